package parcel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"time"

	"parcel-api/internal/catalog"
	"parcel-api/internal/contour"
	"parcel-api/internal/geom"
	"parcel-api/internal/logger"
	"parcel-api/internal/metrics"
	"parcel-api/internal/pkk"
	"parcel-api/internal/tiles"
)

const (
	DefaultTolerance = 5.0
	DefaultBuffer    = 10.0
)

// ErrRasterMissing 恢复时快照引用的光栅文件已不存在
var ErrRasterMissing = errors.New("parcel: raster missing")

// Resolver 按编号查询要素信息，由 pkk.Client 实现
type Resolver interface {
	Resolve(ctx context.Context, areaType pkk.AreaType, code string, target geom.CRS) (*pkk.Result, error)
}

// TileSource 下载并拼接光栅，由 tiles.Fetcher 实现
type TileSource interface {
	Fetch(ctx context.Context, req tiles.Request) (*tiles.Image, error)
}

// Request：一次地块处理请求；Target 为空时使用原生坐标系
type Request struct {
	Code     string
	AreaType pkk.AreaType
	Target   geom.CRS
	Mode     Mode
}

// 文档注释：地块处理流水线
// 背景：先查快照缓存，命中则恢复；否则查询元数据，再按模式生成点或多边形几何；
// 几何非空时写回快照（先写为准）。
// 约束：
// - 仅 pkk.ErrTimeout 与编号非法向上返回，其余失败降级为空几何并记录日志；
// - 每个地块使用独立工作目录 {WorkDir}/tmp/{file_name}，流水线本身无共享可变状态，可并发调用；
// - Catalog 为 nil 时不缓存。
type Pipeline struct {
	Meta      Resolver
	Tiles     TileSource
	Catalog   catalog.Catalog
	Logger    *slog.Logger
	Tolerance float64
	Buffer    float64
	WorkDir   string
}

func NewPipeline(meta Resolver, ts TileSource, cat catalog.Catalog, l *slog.Logger) *Pipeline {
	return &Pipeline{
		Meta:      meta,
		Tiles:     ts,
		Catalog:   cat,
		Logger:    logger.Or(l),
		Tolerance: DefaultTolerance,
		Buffer:    DefaultBuffer,
		WorkDir:   "data",
	}
}

func (p *Pipeline) log() *slog.Logger { return logger.Or(p.Logger) }

// 文档注释：处理单个地块
// 返回：
// - 编号非法返回 pkk.ErrInvalidCode；元数据超时返回包装了 pkk.ErrTimeout 的错误，不产生记录；
// - 其余情况返回记录，未找到或无法生成几何时 Geometry 为空。
func (p *Pipeline) Run(ctx context.Context, req Request) (*Record, error) {
	t0 := time.Now()
	metrics.RequestsTotal.Inc()
	defer func() { metrics.RequestDurationMs.Observe(float64(time.Since(t0).Milliseconds())) }()

	code, err := pkk.NormalizeCode(req.Code)
	if err != nil {
		return nil, err
	}
	target := req.Target
	if target == "" {
		target = geom.Native
	}
	l := p.log().With("code", code, "mode", req.Mode.String())

	if rec := p.fromCatalog(ctx, code, target, req.Mode, l); rec != nil {
		return rec, nil
	}

	res, err := p.Meta.Resolve(ctx, req.AreaType, code, target)
	if err != nil {
		return nil, err
	}
	rec := newRecord(res, target, req.Mode)
	if res.Empty() {
		metrics.EmptyResultsTotal.WithLabelValues("not_found").Inc()
		l.Info("parcel_not_found")
		return rec, nil
	}

	if req.Mode == ModePoint {
		p.point(rec, l)
	} else {
		p.polygon(ctx, rec, l)
	}
	if !rec.Geometry.Empty() && p.Catalog != nil {
		if err := p.Catalog.Update(ctx, rec.Snapshot()); err != nil {
			l.Warn("catalog_update_error", "err", err)
		}
	}
	l.Info("parcel_done", "parts", len(rec.Geometry.Parts), "empty", rec.Geometry.Empty(), "duration_ms", time.Since(t0).Milliseconds())
	return rec, nil
}

// fromCatalog 命中快照时恢复；光栅丢失则按快照元数据重新取图，仍跳过元数据查询
func (p *Pipeline) fromCatalog(ctx context.Context, code string, target geom.CRS, mode Mode, l *slog.Logger) *Record {
	if p.Catalog == nil {
		return nil
	}
	snap, err := p.Catalog.Find(ctx, code)
	if err != nil {
		l.Warn("catalog_find_error", "err", err)
		return nil
	}
	if snap == nil {
		return nil
	}
	rec, err := p.Restore(ctx, snap, target, mode)
	switch {
	case err == nil:
		l.Info("parcel_restored", "image_path", snap.ImagePath)
	case errors.Is(err, ErrRasterMissing):
		l.Info("parcel_raster_missing", "image_path", snap.ImagePath)
		p.polygon(ctx, rec, l)
	default:
		l.Warn("parcel_restore_error", "err", err)
		return nil
	}
	return rec
}

// 文档注释：由快照恢复记录
// 背景：属性、范围与光栅引用全部来自快照，不访问元数据服务；几何对已下载的光栅重新计算。
// 返回：多边形模式下光栅文件不存在时返回已填充元数据的记录与 ErrRasterMissing，
// 调用方可据此重新取图；点模式不依赖光栅。
func (p *Pipeline) Restore(ctx context.Context, snap *catalog.Snapshot, target geom.CRS, mode Mode) (*Record, error) {
	if snap == nil || snap.Code == "" {
		return nil, catalog.ErrNoCode
	}
	if target == "" {
		target = geom.Native
	}
	l := p.log().With("code", snap.Code, "mode", mode.String())
	rec := &Record{
		Code:        snap.Code,
		CodeID:      pkk.CodeIDFromAttrs(snap.Attrs, snap.Code),
		AreaType:    pkk.AreaType(snap.AreaType),
		Attrs:       maps.Clone(snap.Attrs),
		Extent:      snap.Extent,
		ImagePath:   snap.ImagePath,
		ImageExtent: snap.ImageExtent,
		Width:       snap.Width,
		Height:      snap.Height,
		Target:      target,
		Mode:        mode,
		Geometry:    geom.Geometry{CRS: target},
	}
	if rec.Attrs == nil {
		rec.Attrs = map[string]any{}
	}
	raw := snap.Center
	if raw == nil {
		raw, _ = pkk.CenterFromAttrs(rec.Attrs)
	}
	if raw != nil {
		pkk.SetCenter(rec.Attrs, *raw, target)
		rec.CenterRaw, rec.Center = pkk.CenterFromAttrs(rec.Attrs)
	}

	if mode == ModePoint {
		p.point(rec, l)
		return rec, nil
	}
	if rec.ImagePath == "" {
		return rec, ErrRasterMissing
	}
	if _, err := os.Stat(rec.ImagePath); err != nil {
		return rec, fmt.Errorf("%w: %s", ErrRasterMissing, rec.ImagePath)
	}
	p.trace(rec, l)
	return rec, nil
}

// RunWithRetry 仅在元数据超时时重试，attempts 为总尝试次数
func (p *Pipeline) RunWithRetry(ctx context.Context, req Request, attempts int, delay time.Duration) (*Record, error) {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		var rec *Record
		rec, err = p.Run(ctx, req)
		if err == nil || !errors.Is(err, pkk.ErrTimeout) {
			return rec, err
		}
		if i == attempts-1 {
			break
		}
		p.log().Info("parcel_retry", "code", req.Code, "attempt", i+1, "delay_ms", delay.Milliseconds())
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(delay):
		}
	}
	return nil, err
}

func (p *Pipeline) point(rec *Record, l *slog.Logger) {
	if rec.Center == nil {
		metrics.EmptyResultsTotal.WithLabelValues("no_center").Inc()
		l.Info("parcel_no_center")
		return
	}
	c := *rec.Center
	rec.Geometry = geom.Geometry{Point: &c, CRS: rec.Target}
}

// polygon 取图后追踪轮廓；范围缺失或取图失败时保持空几何
func (p *Pipeline) polygon(ctx context.Context, rec *Record, l *slog.Logger) {
	if !geom.ValidExtent(rec.Extent) {
		metrics.EmptyResultsTotal.WithLabelValues("no_extent").Inc()
		l.Info("parcel_no_extent", "extent", rec.Extent)
		return
	}
	if p.Tiles == nil {
		metrics.EmptyResultsTotal.WithLabelValues("tiles").Inc()
		l.Warn("parcel_no_tile_source")
		return
	}
	buf := p.Buffer
	if buf < 0 {
		buf = 0
	}
	img, err := p.Tiles.Fetch(ctx, tiles.Request{
		BBox:   rec.Extent.Buffer(buf),
		CodeID: rec.CodeID,
		Dir:    filepath.Join(p.WorkDir, "tmp", rec.FileName()),
		Name:   rec.FileName(),
	})
	if err != nil {
		metrics.EmptyResultsTotal.WithLabelValues("tiles").Inc()
		l.Warn("parcel_tiles_error", "err", err)
		return
	}
	ie := img.Extent
	rec.ImagePath = img.Path
	rec.ImageExtent = &ie
	rec.Width = img.Width
	rec.Height = img.Height
	p.trace(rec, l)
}

func (p *Pipeline) trace(rec *Record, l *slog.Logger) {
	r, err := contour.DecodeFile(rec.ImagePath)
	if err != nil {
		metrics.EmptyResultsTotal.WithLabelValues("decode").Inc()
		l.Warn("parcel_decode_error", "path", rec.ImagePath, "err", err)
		return
	}
	w, h := rec.Width, rec.Height
	if w <= 0 || h <= 0 {
		w, h = r.Width, r.Height
	}
	// 容差 <= 0 表示不简化
	forest := contour.Build(r, p.Tolerance)
	metrics.ContoursTotal.Observe(float64(len(forest)))
	rec.PixelParts = forest
	rec.Geometry = geom.Assemble(forest, rec.ImageExtent, w, h, geom.Native, rec.Target, l)
	if rec.Geometry.Empty() {
		metrics.EmptyResultsTotal.WithLabelValues("no_contours").Inc()
	}
	l.Debug("parcel_traced", "contours", len(forest), "parts", len(rec.Geometry.Parts))
}
