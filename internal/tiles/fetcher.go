// 包 tiles：地图导出服务取图，按网格分块下载并拼接为一张 PNG
package tiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"parcel-api/internal/geom"
	"parcel-api/internal/logger"
	"parcel-api/internal/metrics"
	"parcel-api/internal/utils"
)

const (
	DefaultExportPath    = "/arcgis/rest/services/Cadastre/CadastreSelected/MapServer/export"
	DefaultTileSize      = 1024
	DefaultMaxSize       = 4096
	DefaultMinResolution = 0.1
	DefaultRetries       = 2
)

// DefaultLayers 为选中地块的轮廓与填充图层
var DefaultLayers = []int{6, 7}

var ErrFetch = errors.New("tiles: fetch failed")

// Request：一次取图请求
// 约束：BBox 为原生坐标系且已含缓冲；CodeID 用于图层过滤；Name 为输出文件名（不含扩展名）
type Request struct {
	BBox   geom.Extent
	CodeID string
	Dir    string
	Name   string
}

// Image：拼接后的光栅引用，Extent 为对齐网格后的实际覆盖范围
type Image struct {
	Path   string
	Width  int
	Height int
	Extent geom.Extent
}

type Fetcher struct {
	BaseURL       string
	ExportPath    string
	HTTP          *http.Client
	Logger        *slog.Logger
	TileSize      int
	MaxSize       int
	MinResolution float64
	Retries       int
	RetryDelay    time.Duration
	Layers        []int
}

func NewFetcher(baseURL string, hc *http.Client, l *slog.Logger) *Fetcher {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		ExportPath:    DefaultExportPath,
		HTTP:          hc,
		Logger:        logger.Or(l),
		TileSize:      DefaultTileSize,
		MaxSize:       DefaultMaxSize,
		MinResolution: DefaultMinResolution,
		Retries:       DefaultRetries,
		RetryDelay:    500 * time.Millisecond,
		Layers:        DefaultLayers,
	}
}

// 文档注释：从环境变量构建取图器
// 背景：TILE_SIZE/TILE_MAX_SIZE 为像素，TILE_MIN_RESOLUTION 为每像素原生单位数，
// TILE_RETRIES 为单块失败重试次数，TILE_LAYERS 为逗号分隔的图层编号，TILE_TIMEOUT_MS 为单块超时。
func NewFetcherFromEnv(baseURL string, tr http.RoundTripper, l *slog.Logger) *Fetcher {
	hc := &http.Client{Timeout: utils.EnvMillis("TILE_TIMEOUT_MS", 30*time.Second), Transport: tr}
	f := NewFetcher(baseURL, hc, l)
	f.TileSize = utils.EnvInt("TILE_SIZE", DefaultTileSize)
	f.MaxSize = utils.EnvInt("TILE_MAX_SIZE", DefaultMaxSize)
	f.MinResolution = utils.EnvFloat("TILE_MIN_RESOLUTION", DefaultMinResolution)
	f.Retries = utils.EnvInt("TILE_RETRIES", DefaultRetries)
	f.Layers = utils.EnvInts("TILE_LAYERS", DefaultLayers)
	return f
}

// 网格规划：分辨率与对齐后的范围、像素尺寸
type plan struct {
	res    float64
	extent geom.Extent
	width  int
	height int
}

func (f *Fetcher) plan(bbox geom.Extent) plan {
	maxSize := f.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	res := math.Max(bbox.Width(), bbox.Height()) / float64(maxSize)
	if res < f.MinResolution {
		res = f.MinResolution
	}
	e := geom.Extent{
		XMin: math.Floor(bbox.XMin/res) * res,
		YMin: math.Floor(bbox.YMin/res) * res,
		XMax: math.Ceil(bbox.XMax/res) * res,
		YMax: math.Ceil(bbox.YMax/res) * res,
	}
	w := int(math.Round(e.Width() / res))
	h := int(math.Round(e.Height() / res))
	return plan{res: res, extent: e, width: max(w, 1), height: max(h, 1)}
}

// 文档注释：下载并拼接光栅
// 背景：导出服务单次尺寸有限，按 TileSize 切块请求后按像素偏移拼接；
// 结果先写临时文件再改名，避免并发读取到半成品。
// 返回：光栅路径、像素尺寸与对齐后的实际范围；任一分块在重试后仍失败即返回 ErrFetch。
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Image, error) {
	l := logger.Or(f.Logger)
	if req.BBox.Degenerate() {
		return nil, fmt.Errorf("%w: %w", ErrFetch, geom.ErrDegenerateExtent)
	}
	p := f.plan(req.BBox)
	tileSize := f.TileSize
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	l.Debug("tile_plan", "code_id", req.CodeID, "res", p.res, "width", p.width, "height", p.height)

	canvas := image.NewNRGBA(image.Rect(0, 0, p.width, p.height))
	for ty := 0; ty < p.height; ty += tileSize {
		for tx := 0; tx < p.width; tx += tileSize {
			tw := min(tileSize, p.width-tx)
			th := min(tileSize, p.height-ty)
			x0 := p.extent.XMin + float64(tx)*p.res
			y1 := p.extent.YMax - float64(ty)*p.res
			bbox := geom.Extent{XMin: x0, YMin: y1 - float64(th)*p.res, XMax: x0 + float64(tw)*p.res, YMax: y1}
			img, err := f.fetchTile(ctx, bbox, tw, th, req.CodeID)
			if err != nil {
				return nil, err
			}
			draw.Draw(canvas, image.Rect(tx, ty, tx+tw, ty+th), img, img.Bounds().Min, draw.Src)
		}
	}

	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return nil, err
	}
	name := req.Name
	if name == "" {
		name = "raster"
	}
	final := filepath.Join(req.Dir, name+".png")
	tmp := filepath.Join(req.Dir, name+"."+uuid.NewString()+".part")
	if err := writePNG(tmp, canvas); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	l.Debug("tile_stitch_ok", "path", final, "width", p.width, "height", p.height)
	return &Image{Path: final, Width: p.width, Height: p.height, Extent: p.extent}, nil
}

func writePNG(path string, img image.Image) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(fh, img); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

func (f *Fetcher) exportURL(bbox geom.Extent, w, h int, codeID string) string {
	layers := make([]string, 0, len(f.Layers))
	defs := make(map[string]string, len(f.Layers))
	for _, id := range f.Layers {
		s := strconv.Itoa(id)
		layers = append(layers, s)
		defs[s] = "ID = '" + codeID + "'"
	}
	ld, _ := json.Marshal(defs)
	q := url.Values{}
	q.Set("dpi", "96")
	q.Set("transparent", "true")
	q.Set("format", "png32")
	q.Set("layers", "show:"+strings.Join(layers, ","))
	q.Set("bbox", fmt.Sprintf("%s,%s,%s,%s", ftoa(bbox.XMin), ftoa(bbox.YMin), ftoa(bbox.XMax), ftoa(bbox.YMax)))
	q.Set("bboxSR", "102100")
	q.Set("imageSR", "102100")
	q.Set("size", strconv.Itoa(w)+","+strconv.Itoa(h))
	q.Set("layerDefs", string(ld))
	q.Set("f", "image")
	return f.BaseURL + f.ExportPath + "?" + q.Encode()
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// fetchTile 请求单块影像，失败按 RetryDelay 线性退避重试
func (f *Fetcher) fetchTile(ctx context.Context, bbox geom.Extent, w, h int, codeID string) (image.Image, error) {
	l := logger.Or(f.Logger)
	u := f.exportURL(bbox, w, h, codeID)
	var lastErr error
	for attempt := 0; attempt <= f.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrFetch, ctx.Err())
			case <-time.After(time.Duration(attempt) * f.RetryDelay):
			}
		}
		metrics.TileRequestsTotal.Inc()
		img, err := f.get(ctx, u)
		if err == nil {
			return img, nil
		}
		metrics.TileFailTotal.Inc()
		l.Warn("tile_fetch_error", "code_id", codeID, "attempt", attempt, "err", err)
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %w", ErrFetch, lastErr)
}

func (f *Fetcher) get(ctx context.Context, u string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	// 导出服务出错时仍返回 200 与 JSON 错误体
	if ct := resp.Header.Get("content-type"); strings.Contains(ct, "json") || strings.HasPrefix(ct, "text/") {
		return nil, fmt.Errorf("unexpected content-type %q", ct)
	}
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, err
	}
	return img, nil
}
