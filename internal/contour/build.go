package contour

import (
	"image"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// Simplify：对闭合轮廓做 Douglas-Peucker 简化，容差单位为像素
// 约束：输入不被修改；返回的序列不重复首点
func Simplify(pts []image.Point, tolerance float64) []image.Point {
	if len(pts) < 3 || tolerance <= 0 {
		return append([]image.Point(nil), pts...)
	}
	ring := make(orb.Ring, 0, len(pts)+1)
	for _, p := range pts {
		ring = append(ring, orb.Point{float64(p.X), float64(p.Y)})
	}
	ring = append(ring, ring[0])
	ring = simplify.DouglasPeucker(tolerance).Ring(ring)
	if n := len(ring); n > 1 && ring[0].Equal(ring[n-1]) {
		ring = ring[:n-1]
	}
	out := make([]image.Point, 0, len(ring))
	for _, p := range ring {
		out = append(out, image.Point{X: int(p[0]), Y: int(p[1])})
	}
	return out
}

// 文档注释：构建简化后的轮廓森林
// 背景：追踪得到的原始边界逐条简化；简化后不足 3 个顶点的边界丢弃，
// 其子边界上挂到最近的保留祖先，保证 Parent 始终指向森林内的有效下标。
// 约束：输出顺序与扫描发现顺序一致；相同输入得到相同输出。
func Build(r *Raster, tolerance float64) Forest {
	raw := Trace(r)
	if len(raw) == 0 {
		return nil
	}
	remap := make([]int, len(raw))
	out := make(Forest, 0, len(raw))
	for i, c := range raw {
		pts := Simplify(c.Points, tolerance)
		if len(pts) < 3 {
			remap[i] = -1
			continue
		}
		parent := c.Parent
		for parent >= 0 && remap[parent] < 0 {
			parent = raw[parent].Parent
		}
		if parent >= 0 {
			parent = remap[parent]
		}
		remap[i] = len(out)
		out = append(out, Contour{Points: pts, Parent: parent, Hole: c.Hole})
	}
	return out
}

// Depth 返回下标 i 的嵌套深度，最外层为 0
func (f Forest) Depth(i int) int {
	d := 0
	for p := f[i].Parent; p >= 0; p = f[p].Parent {
		d++
	}
	return d
}
