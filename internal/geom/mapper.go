package geom

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// 文档注释：像素到地理坐标的映射器
// 背景：同一张光栅的所有顶点共享像素尺寸与投影函数，构造时一次性计算，Map 为纯函数。
// 约束：像素原点在左上角，y 向下；地理 y 向上，因此 y 取 ymax 减偏移。
type Mapper struct {
	extent Extent
	dx, dy float64
	proj   orb.Projection
	target CRS
}

// NewMapper：按范围与光栅尺寸构造映射器
// 约束：宽高非正时立即返回 ErrZeroRaster，避免产生 Inf/NaN
func NewMapper(extent Extent, width, height int, source, target CRS) (*Mapper, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrZeroRaster
	}
	return &Mapper{
		extent: extent,
		dx:     (extent.XMax - extent.XMin) / float64(width),
		dy:     (extent.YMax - extent.YMin) / float64(height),
		proj:   Projection(source, target),
		target: target,
	}, nil
}

// Map 将像素坐标映射到目标坐标系
func (m *Mapper) Map(px, py float64) Point {
	p := orb.Point{m.extent.XMin + px*m.dx, m.extent.YMax - py*m.dy}
	if m.proj != nil {
		p = m.proj(p)
	}
	return Point{X: p[0], Y: p[1]}
}

// Target 返回映射结果所在坐标系
func (m *Mapper) Target() CRS { return m.target }

// MapPoint：单点映射的便捷入口
func MapPoint(px, py float64, extent Extent, width, height int, source, target CRS) (Point, error) {
	m, err := NewMapper(extent, width, height, source, target)
	if err != nil {
		return Point{}, err
	}
	return m.Map(px, py), nil
}

// Projection：返回 source 到 target 的投影函数；同坐标系返回 nil
func Projection(source, target CRS) orb.Projection {
	switch {
	case source == target:
		return nil
	case target.Geographic() && !source.Geographic():
		return project.Mercator.ToWGS84
	case !target.Geographic() && source.Geographic():
		return project.WGS84.ToMercator
	}
	return nil
}

// Reproject 将单点从 source 转到 target
func Reproject(p Point, source, target CRS) Point {
	proj := Projection(source, target)
	if proj == nil {
		return p
	}
	q := proj(orb.Point{p.X, p.Y})
	return Point{X: q[0], Y: q[1]}
}
