// 包 contour：二值光栅解析、边界追踪与轮廓简化
package contour

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
)

// DefaultThreshold 为反相灰度判定为前景的下限（严格大于）
const DefaultThreshold = 10

// ErrDecode 表示光栅文件无法读取或解码；对同一光栅不可重试
var ErrDecode = errors.New("contour: raster decode failed")

// 文档注释：二值光栅
// 背景：轮廓追踪只关心前景/背景，按行存储，1 为前景。
type Raster struct {
	Width  int
	Height int
	Pix    []uint8
}

func NewRaster(width, height int) *Raster {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Raster{Width: width, Height: height, Pix: make([]uint8, width*height)}
}

// At 越界返回 false
func (r *Raster) At(x, y int) bool {
	if x < 0 || y < 0 || x >= r.Width || y >= r.Height {
		return false
	}
	return r.Pix[y*r.Width+x] != 0
}

func (r *Raster) Set(x, y int, on bool) {
	if x < 0 || y < 0 || x >= r.Width || y >= r.Height {
		return
	}
	var v uint8
	if on {
		v = 1
	}
	r.Pix[y*r.Width+x] = v
}

// Fill 设置半开矩形 [x0,x1)×[y0,y1) 内的像素
func (r *Raster) Fill(x0, y0, x1, y1 int, on bool) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			r.Set(x, y, on)
		}
	}
}

// Count 返回前景像素数
func (r *Raster) Count() int {
	n := 0
	for _, v := range r.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// 文档注释：将彩色影像二值化
// 背景：地图导出影像背景透明，先按 alpha 合成到白底，再转灰度并反相；
// 反相值大于 threshold 的像素视为前景（线条与填充）。
func Binarize(img image.Image, threshold uint8) *Raster {
	b := img.Bounds()
	r := NewRaster(b.Dx(), b.Dy())
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			a := float64(c.A) / 0xffff
			rr := float64(c.R>>8)*a + 255*(1-a)
			gg := float64(c.G>>8)*a + 255*(1-a)
			bb := float64(c.B>>8)*a + 255*(1-a)
			gray := 0.299*rr + 0.587*gg + 0.114*bb
			if 255-gray > float64(threshold) {
				r.Pix[y*r.Width+x] = 1
			}
		}
	}
	return r
}

// Decode 解码影像并以默认阈值二值化
func Decode(rd io.Reader) (*Raster, error) {
	img, _, err := image.Decode(rd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return Binarize(img, DefaultThreshold), nil
}

// DecodeFile：读取并二值化磁盘上的光栅
// 约束：文件缺失与格式错误都归为 ErrDecode，调用方据此降级为空几何
func DecodeFile(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer f.Close()
	return Decode(f)
}
