// 包 geom：地块几何的基础类型、像素到地理坐标的映射与多边形装配
package geom

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// 文档注释：空间参考标识
// 背景：地图服务原生坐标系为 Web Mercator，输出可选经纬度；仅支持两种 EPSG 编码。
type CRS string

const (
	EPSG3857 CRS = "EPSG:3857"
	EPSG4326 CRS = "EPSG:4326"
)

// Native 为地图服务（导出影像与要素范围）使用的坐标系
const Native = EPSG3857

var (
	ErrZeroRaster       = errors.New("geom: raster has zero width or height")
	ErrDegenerateExtent = errors.New("geom: degenerate extent")
	ErrUnsupportedCRS   = errors.New("geom: unsupported crs")
)

// ParseCRS：解析坐标系标识，兼容 "4326"、"epsg:4326"、"urn:ogc:def:crs:EPSG::4326" 写法
// 约束：空串视为未指定，返回原生坐标系
func ParseCRS(s string) (CRS, error) {
	v := strings.TrimSpace(strings.ToUpper(s))
	if v == "" {
		return Native, nil
	}
	if i := strings.LastIndex(v, ":"); i >= 0 {
		v = v[i+1:]
	}
	switch v {
	case "3857", "900913", "102100":
		return EPSG3857, nil
	case "4326", "WGS84", "CRS84":
		return EPSG4326, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedCRS, s)
}

// Geographic 报告是否为经纬度坐标系
func (c CRS) Geographic() bool { return c == EPSG4326 }

// URN 返回 GeoJSON crs 成员使用的命名形式
func (c CRS) URN() string {
	code := strings.TrimPrefix(string(c), "EPSG:")
	return "urn:ogc:def:crs:EPSG::" + code
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Ring：隐式闭合的顶点序列，首点不在末尾重复
type Ring []Point

// Part：一个外环与其直接包含的洞
type Part struct {
	Outer Ring
	Holes []Ring
}

// 文档注释：地块几何结果
// 背景：面模式填充 Parts（按光栅扫描发现顺序），点模式填充 Point；二者皆空表示无结果。
// 约束：Parts 中每个环至少 3 个顶点；CRS 为顶点所在坐标系。
type Geometry struct {
	Parts []Part
	Point *Point
	CRS   CRS
}

func (g Geometry) Empty() bool { return len(g.Parts) == 0 && g.Point == nil }

// 文档注释：矩形地理范围
// 背景：光栅左/右/上/下分别对应 xmin/xmax/ymax/ymin；缺失范围用 nil 指针表达。
type Extent struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

func (e Extent) Width() float64  { return e.XMax - e.XMin }
func (e Extent) Height() float64 { return e.YMax - e.YMin }

// Degenerate：宽或高为零、出现 NaN/Inf 或上下颠倒时无法用于映射
func (e Extent) Degenerate() bool {
	for _, v := range [4]float64{e.XMin, e.YMin, e.XMax, e.YMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return !(e.XMax > e.XMin) || !(e.YMax > e.YMin)
}

// Buffer 向四周扩展 d 个单位
func (e Extent) Buffer(d float64) Extent {
	return Extent{XMin: e.XMin - d, YMin: e.YMin - d, XMax: e.XMax + d, YMax: e.YMax + d}
}

// Contains 判断 o 是否完全落在 e 内（含边界）
func (e Extent) Contains(o Extent) bool {
	return o.XMin >= e.XMin && o.YMin >= e.YMin && o.XMax <= e.XMax && o.YMax <= e.YMax
}

// ValidExtent 对可选范围做统一判定
func ValidExtent(e *Extent) bool { return e != nil && !e.Degenerate() }
