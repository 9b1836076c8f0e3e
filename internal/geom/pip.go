package geom

// 文档注释：点入多边形判定（Even-Odd）
// 背景：用于判断坐标是否落在地块内；命中任一部件的外环且不在其洞内即视为命中。
// 约束：点与几何须处于同一坐标系；射线法在边界上的结果不做保证。
func (g Geometry) Contains(pt Point) bool {
	for _, p := range g.Parts {
		if p.Contains(pt) {
			return true
		}
	}
	return false
}

func (p Part) Contains(pt Point) bool {
	if !inBBox(pt, p.Outer.Bounds()) || !pointInRing(pt, p.Outer) {
		return false
	}
	for _, h := range p.Holes {
		if pointInRing(pt, h) {
			return false
		}
	}
	return true
}

// Bounds 返回环的包围范围
func (r Ring) Bounds() Extent {
	if len(r) == 0 {
		return Extent{}
	}
	e := Extent{XMin: r[0].X, YMin: r[0].Y, XMax: r[0].X, YMax: r[0].Y}
	for _, p := range r[1:] {
		e.XMin = min(e.XMin, p.X)
		e.YMin = min(e.YMin, p.Y)
		e.XMax = max(e.XMax, p.X)
		e.YMax = max(e.YMax, p.Y)
	}
	return e
}

// 射线法判定点是否在环内
func pointInRing(pt Point, ring Ring) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].X, ring[i].Y
		xj, yj := ring[j].X, ring[j].Y
		if (yi > pt.Y) != (yj > pt.Y) && pt.X < (xj-xi)*(pt.Y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// 快速包围盒过滤
func inBBox(pt Point, b Extent) bool {
	return pt.X >= b.XMin && pt.X <= b.XMax && pt.Y >= b.YMin && pt.Y <= b.YMax
}
