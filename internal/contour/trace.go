package contour

import "image"

// 文档注释：单条边界
// 背景：Points 为像素坐标（x 向右，y 向下），已压缩为方向变化处的顶点；
// Parent 为森林中最内层包含边界的下标，-1 表示位于最外层。
// 约束：Hole 为 true 表示洞边界（前景包围背景），其父边界总是外边界。
type Contour struct {
	Points []image.Point
	Parent int
	Hole   bool
}

// Forest 按光栅扫描发现顺序排列
type Forest []Contour

// 顺时针方向编码（y 向下）：0 东、1 东南、2 南、3 西南、4 西、5 西北、6 北、7 东北
var (
	dirDI = [8]int{0, 1, 1, 1, 0, -1, -1, -1}
	dirDJ = [8]int{1, 1, 0, -1, -1, -1, 0, 1}
)

func dirOf(di, dj int) int {
	for d := 0; d < 8; d++ {
		if dirDI[d] == di && dirDJ[d] == dj {
			return d
		}
	}
	return 0
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

type border struct {
	hole   bool
	parent int32
}

// 文档注释：拓扑边界追踪（Suzuki-Abe）
// 背景：对 8 连通前景逐行扫描，发现外边界与洞边界并沿边界行走标记，
// 同时依据最近遇到的边界（LNBD）推导父子关系，得到完整层级。
// 约束：输入不被修改；工作网格四周补一圈背景，边界点不会越界。
func Trace(r *Raster) Forest {
	if r == nil || r.Width == 0 || r.Height == 0 {
		return nil
	}
	w := r.Width + 2
	h := r.Height + 2
	f := make([]int32, w*h)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			if r.Pix[y*r.Width+x] != 0 {
				f[(y+1)*w+x+1] = 1
			}
		}
	}
	at := func(i, j int) int32 { return f[i*w+j] }

	// 编号 1 为画框，视作洞边界
	borders := []border{{}, {hole: true, parent: 0}}
	var out Forest
	nbd := int32(1)

	for i := 1; i < h-1; i++ {
		lnbd := int32(1)
		for j := 1; j < w-1; j++ {
			fij := at(i, j)
			if fij == 0 {
				continue
			}
			var (
				isHole bool
				i2, j2 int
				start  bool
			)
			switch {
			case fij == 1 && at(i, j-1) == 0:
				start, i2, j2 = true, i, j-1
			case fij >= 1 && at(i, j+1) == 0:
				start, isHole, i2, j2 = true, true, i, j+1
				if fij > 1 {
					lnbd = fij
				}
			}
			if start {
				nbd++
				prev := borders[lnbd]
				var parent int32
				if isHole == prev.hole {
					parent = prev.parent
				} else {
					parent = lnbd
				}
				borders = append(borders, border{hole: isHole, parent: parent})
				pts := follow(f, w, i, j, i2, j2, nbd)
				p := -1
				if parent > 1 {
					p = int(parent - 2)
				}
				out = append(out, Contour{Points: compress(pts), Parent: p, Hole: isHole})
			}
			if v := at(i, j); v != 1 {
				lnbd = abs32(v)
			}
		}
	}
	return out
}

// follow 沿边界行走并原地标记，返回像素坐标序列（已去除补边偏移）
func follow(f []int32, w, i, j, i2, j2 int, nbd int32) []image.Point {
	d0 := dirOf(i2-i, j2-j)
	i1, j1 := -1, -1
	for k := 0; k < 8; k++ {
		d := (d0 + k) % 8
		ni, nj := i+dirDI[d], j+dirDJ[d]
		if f[ni*w+nj] != 0 {
			i1, j1 = ni, nj
			break
		}
	}
	if i1 < 0 {
		f[i*w+j] = -nbd
		return []image.Point{{X: j - 1, Y: i - 1}}
	}

	var pts []image.Point
	i2, j2 = i1, j1
	i3, j3 := i, j
	for {
		pts = append(pts, image.Point{X: j3 - 1, Y: i3 - 1})
		d := dirOf(i2-i3, j2-j3)
		eastZero := false
		i4, j4 := -1, -1
		for k := 1; k <= 8; k++ {
			dd := ((d-k)%8 + 8) % 8
			ni, nj := i3+dirDI[dd], j3+dirDJ[dd]
			if f[ni*w+nj] != 0 {
				i4, j4 = ni, nj
				break
			}
			if dd == 0 {
				eastZero = true
			}
		}
		switch {
		case eastZero:
			f[i3*w+j3] = -nbd
		case f[i3*w+j3] == 1:
			f[i3*w+j3] = nbd
		}
		if i4 == i && j4 == j && i3 == i1 && j3 == j1 {
			return pts
		}
		i2, j2 = i3, j3
		i3, j3 = i4, j4
	}
}

// compress 仅保留行走方向发生变化的顶点（闭合序列）
func compress(pts []image.Point) []image.Point {
	n := len(pts)
	if n <= 2 {
		return pts
	}
	out := make([]image.Point, 0, n)
	for k := 0; k < n; k++ {
		prev := pts[(k-1+n)%n]
		cur := pts[k]
		next := pts[(k+1)%n]
		if sign(cur.X-prev.X) == sign(next.X-cur.X) && sign(cur.Y-prev.Y) == sign(next.Y-cur.Y) {
			continue
		}
		out = append(out, cur)
	}
	if len(out) == 0 {
		return pts[:1]
	}
	return out
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
