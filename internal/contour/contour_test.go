package contour

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func squareRaster(size, lo, hi int) *Raster {
	r := NewRaster(size, size)
	r.Fill(lo, lo, hi, hi, true)
	return r
}

func bounds(pts []image.Point) (minX, minY, maxX, maxY int) {
	minX, minY = pts[0].X, pts[0].Y
	maxX, maxY = minX, minY
	for _, p := range pts[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return
}

func TestTraceSquare(t *testing.T) {
	t.Parallel()
	forest := Trace(squareRaster(100, 10, 90))
	require.Len(t, forest, 1)
	c := forest[0]
	assert.False(t, c.Hole)
	assert.Equal(t, -1, c.Parent)
	assert.ElementsMatch(t, []image.Point{{10, 10}, {10, 89}, {89, 89}, {89, 10}}, c.Points)
}

func TestTraceSquareWithHole(t *testing.T) {
	t.Parallel()
	r := squareRaster(100, 10, 90)
	r.Fill(40, 40, 60, 60, false)
	forest := Trace(r)
	require.Len(t, forest, 2)
	assert.False(t, forest[0].Hole)
	assert.Equal(t, -1, forest[0].Parent)
	assert.True(t, forest[1].Hole)
	assert.Equal(t, 0, forest[1].Parent)

	minX, minY, maxX, maxY := bounds(forest[1].Points)
	assert.GreaterOrEqual(t, minX, 39)
	assert.GreaterOrEqual(t, minY, 39)
	assert.LessOrEqual(t, maxX, 60)
	assert.LessOrEqual(t, maxY, 60)
}

func TestTraceNestedIsland(t *testing.T) {
	t.Parallel()
	r := squareRaster(120, 10, 110)
	r.Fill(30, 30, 90, 90, false)
	r.Fill(50, 50, 70, 70, true)
	forest := Trace(r)
	require.Len(t, forest, 3)
	assert.Equal(t, []int{-1, 0, 1}, []int{forest[0].Parent, forest[1].Parent, forest[2].Parent})
	assert.Equal(t, []bool{false, true, false}, []bool{forest[0].Hole, forest[1].Hole, forest[2].Hole})
	assert.Equal(t, 2, forest.Depth(2))
}

func TestTraceDisjoint(t *testing.T) {
	t.Parallel()
	r := NewRaster(60, 20)
	r.Fill(2, 2, 18, 18, true)
	r.Fill(30, 5, 50, 15, true)
	forest := Trace(r)
	require.Len(t, forest, 2)
	for _, c := range forest {
		assert.Equal(t, -1, c.Parent)
		assert.False(t, c.Hole)
	}
}

func TestTraceEdgeCases(t *testing.T) {
	t.Parallel()
	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, Trace(NewRaster(10, 10)))
		assert.Empty(t, Trace(NewRaster(0, 0)))
		assert.Empty(t, Trace(nil))
	})
	t.Run("single pixel", func(t *testing.T) {
		r := NewRaster(5, 5)
		r.Set(2, 2, true)
		forest := Trace(r)
		require.Len(t, forest, 1)
		assert.Equal(t, []image.Point{{2, 2}}, forest[0].Points)
	})
	t.Run("touches frame", func(t *testing.T) {
		r := squareRaster(8, 0, 8)
		forest := Trace(r)
		require.Len(t, forest, 1)
		assert.ElementsMatch(t, []image.Point{{0, 0}, {0, 7}, {7, 7}, {7, 0}}, forest[0].Points)
	})
}

func TestBuildDropsDegenerate(t *testing.T) {
	t.Parallel()
	r := squareRaster(100, 10, 90)
	r.Set(95, 95, true)
	r.Fill(0, 97, 30, 98, true)
	forest := Build(r, 1)
	require.Len(t, forest, 1)
	assert.Len(t, forest[0].Points, 4)
}

func TestBuildSquareWithHole(t *testing.T) {
	t.Parallel()
	r := squareRaster(100, 10, 90)
	r.Fill(40, 40, 60, 60, false)
	forest := Build(r, 1)
	require.Len(t, forest, 2)
	assert.Equal(t, 0, forest[1].Parent)
	for _, c := range forest {
		assert.GreaterOrEqual(t, len(c.Points), 3)
		assert.LessOrEqual(t, len(c.Points), 8)
	}
}

func TestBuildReparentsChildren(t *testing.T) {
	t.Parallel()
	// 洞极小（单像素），简化后丢弃；其内无子边界，外边界保持不变
	r := squareRaster(40, 5, 35)
	r.Set(20, 20, false)
	forest := Build(r, 1)
	require.Len(t, forest, 1)
	assert.Equal(t, -1, forest[0].Parent)
}

func TestBuildDeterministic(t *testing.T) {
	t.Parallel()
	r := squareRaster(120, 10, 110)
	r.Fill(30, 30, 90, 90, false)
	r.Fill(50, 50, 70, 70, true)
	a := Build(r, 2)
	b := Build(r, 2)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("forest differs (-first +second):\n%s", diff)
	}
}

func TestSimplify(t *testing.T) {
	t.Parallel()
	pts := []image.Point{{0, 0}, {5, 0}, {10, 1}, {20, 0}, {20, 20}, {0, 20}}
	got := Simplify(pts, 2)
	assert.Equal(t, []image.Point{{0, 0}, {20, 0}, {20, 20}, {0, 20}}, got)
	assert.Len(t, pts, 6, "input untouched")

	assert.Equal(t, pts, Simplify(pts, 0))
	assert.Equal(t, pts[:2], Simplify(pts[:2], 5))
}

func TestBinarize(t *testing.T) {
	t.Parallel()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 1))
	img.Set(0, 0, color.NRGBA{0, 0, 0, 0})
	img.Set(1, 0, color.NRGBA{0, 0, 0, 255})
	img.Set(2, 0, color.NRGBA{250, 250, 250, 255})
	img.Set(3, 0, color.NRGBA{240, 240, 240, 255})
	r := Binarize(img, DefaultThreshold)
	assert.Equal(t, []uint8{0, 1, 0, 1}, r.Pix)
}

func TestDecode(t *testing.T) {
	t.Parallel()
	img := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	for y := 2; y < 8; y++ {
		for x := 3; x < 9; x++ {
			img.Set(x, y, color.NRGBA{200, 0, 0, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	r, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 20, r.Width)
	assert.Equal(t, 10, r.Height)
	assert.Equal(t, 36, r.Count())
	assert.True(t, r.At(3, 2))
	assert.False(t, r.At(9, 2))

	_, err = Decode(strings.NewReader("not an image"))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_, err := DecodeFile(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, ErrDecode)

	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte{0x89, 'P', 'N', 'G'}, 0o644))
	_, err = DecodeFile(bad)
	assert.ErrorIs(t, err, ErrDecode)
}
