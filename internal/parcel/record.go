// 包 parcel：单个地块的记录与处理流水线（元数据 → 取图 → 轮廓 → 几何）
package parcel

import (
	"strings"

	"github.com/paulmach/orb/geojson"

	"parcel-api/internal/catalog"
	"parcel-api/internal/contour"
	"parcel-api/internal/geom"
	"parcel-api/internal/pkk"
)

// Mode 输出模式：多边形或仅中心点
type Mode int

const (
	ModePolygon Mode = iota
	ModePoint
)

func (m Mode) String() string {
	if m == ModePoint {
		return "point"
	}
	return "polygon"
}

// 文档注释：地块记录
// 背景：保存一次处理的全部输入与输出；Geometry 由流水线派生，从不缓存，恢复时重新计算。
// 约束：
// - Extent/ImageExtent 为原生坐标系；Center 已转换到 Target，CenterRaw 为原生坐标；
// - PixelParts 为最近一次多边形处理的像素轮廓，仅用于调试输出；
// - 记录由单次 Run 独占，不在 goroutine 间共享。
type Record struct {
	Code        string
	CodeID      string
	AreaType    pkk.AreaType
	Attrs       map[string]any
	Extent      *geom.Extent
	Center      *geom.Point
	CenterRaw   *geom.Point
	ImagePath   string
	ImageExtent *geom.Extent
	Width       int
	Height      int
	Target      geom.CRS
	Mode        Mode
	Geometry    geom.Geometry
	PixelParts  contour.Forest
}

func newRecord(res *pkk.Result, target geom.CRS, mode Mode) *Record {
	return &Record{
		Code:      res.Code,
		CodeID:    res.CodeID,
		AreaType:  res.AreaType,
		Attrs:     res.Attrs,
		Extent:    res.Extent,
		Center:    res.Center,
		CenterRaw: res.CenterRaw,
		Target:    target,
		Mode:      mode,
		Geometry:  geom.Geometry{CRS: target},
	}
}

// FileName 编号中的冒号替换为下划线，用作文件与目录名
func (r *Record) FileName() string { return strings.ReplaceAll(r.Code, ":", "_") }

// Snapshot 导出可缓存的元数据；中心点保存原生坐标
func (r *Record) Snapshot() *catalog.Snapshot {
	return &catalog.Snapshot{
		Code:        r.Code,
		AreaType:    int(r.AreaType),
		Attrs:       r.Attrs,
		ImagePath:   r.ImagePath,
		Center:      r.CenterRaw,
		Extent:      r.Extent,
		ImageExtent: r.ImageExtent,
		Width:       r.Width,
		Height:      r.Height,
	}
}

// 文档注释：导出 GeoJSON 要素集合
// 背景：多边形模式输出 Polygon/MultiPolygon，点模式输出 Point；集合附带命名 crs 成员，
// 便于 GIS 工具识别目标坐标系。
// 返回：几何为空时返回 nil。
func (r *Record) FeatureCollection(withAttrs bool) *geojson.FeatureCollection {
	if r.Geometry.Empty() {
		return nil
	}
	g := r.Geometry.Orb()
	if g == nil {
		return nil
	}
	f := geojson.NewFeature(g)
	if withAttrs {
		for k, v := range r.Attrs {
			f.Properties[k] = v
		}
	}
	fc := geojson.NewFeatureCollection()
	fc.Append(f)
	crs := r.Geometry.CRS
	if crs == "" {
		crs = r.Target
	}
	fc.ExtraMembers = geojson.Properties{
		"crs": map[string]any{
			"type":       "name",
			"properties": map[string]any{"name": crs.URN()},
		},
	}
	return fc
}

// CenterFeatureCollection 以中心点导出，与模式无关；无中心点时返回 nil
func (r *Record) CenterFeatureCollection(withAttrs bool) *geojson.FeatureCollection {
	if r.Center == nil {
		return nil
	}
	c := *r.Center
	pt := *r
	pt.Geometry = geom.Geometry{Point: &c, CRS: r.Target}
	return pt.FeatureCollection(withAttrs)
}
