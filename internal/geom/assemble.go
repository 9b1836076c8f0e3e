package geom

import (
	"log/slog"

	"parcel-api/internal/contour"
	"parcel-api/internal/logger"
)

// 文档注释：将轮廓森林装配为多部件带洞多边形
// 背景：每个外边界开启一个部件（桶），洞边界挂入其父外边界所在的桶；
// 桶内首个轮廓为外环，其余为洞；顶点逐个经 Mapper 映射到目标坐标系。
// 约束：
// - 范围缺失或退化、光栅尺寸为零时返回空几何并记录日志，不返回错误；
// - 父边界不是外边界（或缺失）的洞无法归属，丢弃并记录 debug；
// - 部件按桶的发现顺序输出，环与顶点顺序保持不变，结果确定。
func Assemble(forest contour.Forest, extent *Extent, width, height int, source, target CRS, l *slog.Logger) Geometry {
	l = logger.Or(l)
	empty := Geometry{CRS: target}
	if !ValidExtent(extent) {
		l.Warn("assemble_degenerate_extent", "extent", extent)
		return empty
	}
	m, err := NewMapper(*extent, width, height, source, target)
	if err != nil {
		l.Warn("assemble_mapper_error", "width", width, "height", height, "err", err)
		return empty
	}

	buckets := make([][]int, len(forest))
	for i, c := range forest {
		if !c.Hole {
			buckets[i] = append(buckets[i], i)
			continue
		}
		p := c.Parent
		if p < 0 || p >= len(forest) || forest[p].Hole {
			l.Debug("assemble_orphan_hole", "index", i, "parent", p)
			continue
		}
		buckets[p] = append(buckets[p], i)
	}

	out := Geometry{CRS: target}
	for _, b := range buckets {
		if len(b) == 0 {
			continue
		}
		part := Part{Outer: mapRing(m, forest[b[0]])}
		if len(part.Outer) < 3 {
			continue
		}
		for _, h := range b[1:] {
			if r := mapRing(m, forest[h]); len(r) >= 3 {
				part.Holes = append(part.Holes, r)
			}
		}
		out.Parts = append(out.Parts, part)
	}
	l.Debug("assemble_done", "contours", len(forest), "parts", len(out.Parts))
	return out
}

func mapRing(m *Mapper, c contour.Contour) Ring {
	r := make(Ring, 0, len(c.Points))
	for _, p := range c.Points {
		r = append(r, m.Map(float64(p.X), float64(p.Y)))
	}
	return r
}
