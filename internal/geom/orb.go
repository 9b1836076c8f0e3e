package geom

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Orb 转为 orb 几何：单部件为 Polygon，多部件为 MultiPolygon，点模式为 Point；空几何返回 nil
func (g Geometry) Orb() orb.Geometry {
	if g.Point != nil {
		return orb.Point{g.Point.X, g.Point.Y}
	}
	switch len(g.Parts) {
	case 0:
		return nil
	case 1:
		return g.Parts[0].Orb()
	}
	mp := make(orb.MultiPolygon, 0, len(g.Parts))
	for _, p := range g.Parts {
		mp = append(mp, p.Orb())
	}
	return mp
}

// Orb 转为 orb.Polygon，环按 GeoJSON 约定显式闭合
func (p Part) Orb() orb.Polygon {
	poly := make(orb.Polygon, 0, 1+len(p.Holes))
	poly = append(poly, p.Outer.Orb())
	for _, h := range p.Holes {
		poly = append(poly, h.Orb())
	}
	return poly
}

func (r Ring) Orb() orb.Ring {
	out := make(orb.Ring, 0, len(r)+1)
	for _, p := range r {
		out = append(out, orb.Point{p.X, p.Y})
	}
	if len(out) > 0 && !out[0].Equal(out[len(out)-1]) {
		out = append(out, out[0])
	}
	return out
}

// Area 返回平面面积（外环减洞），单位为坐标系单位的平方
func (g Geometry) Area() float64 {
	a := 0.0
	for _, p := range g.Parts {
		a += planar.Area(p.Orb())
	}
	return a
}

// Bound 返回几何的包围范围；空几何返回 nil
func (g Geometry) Bound() *Extent {
	og := g.Orb()
	if og == nil {
		return nil
	}
	b := og.Bound()
	return &Extent{XMin: b.Min[0], YMin: b.Min[1], XMax: b.Max[0], YMax: b.Max[1]}
}
