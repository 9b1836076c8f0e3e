package geom

import (
	"image"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcel-api/internal/contour"
	"parcel-api/internal/logger"
)

func TestParseCRS(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want CRS
	}{
		{"", EPSG3857},
		{"EPSG:3857", EPSG3857},
		{"epsg:4326", EPSG4326},
		{"4326", EPSG4326},
		{"urn:ogc:def:crs:EPSG::4326", EPSG4326},
		{"102100", EPSG3857},
	}
	for _, tc := range cases {
		got, err := ParseCRS(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
	_, err := ParseCRS("EPSG:32637")
	assert.ErrorIs(t, err, ErrUnsupportedCRS)
	assert.Equal(t, "urn:ogc:def:crs:EPSG::4326", EPSG4326.URN())
}

func TestExtent(t *testing.T) {
	t.Parallel()
	assert.False(t, Extent{0, 0, 10, 10}.Degenerate())
	assert.True(t, Extent{0, 0, 0, 10}.Degenerate())
	assert.True(t, Extent{0, 5, 10, 5}.Degenerate())
	assert.True(t, Extent{0, 0, math.NaN(), 10}.Degenerate())
	assert.True(t, Extent{10, 0, 0, 10}.Degenerate())
	assert.False(t, ValidExtent(nil))

	b := Extent{0, 0, 10, 10}.Buffer(10)
	assert.Equal(t, Extent{-10, -10, 20, 20}, b)
	assert.True(t, b.Contains(Extent{0, 0, 10, 10}))
}

func TestMapPointCorners(t *testing.T) {
	t.Parallel()
	e := Extent{XMin: 100, YMin: 200, XMax: 400, YMax: 500}
	cases := []struct {
		px, py float64
		want   Point
	}{
		{0, 0, Point{100, 500}},
		{640, 0, Point{400, 500}},
		{0, 480, Point{100, 200}},
		{640, 480, Point{400, 200}},
		{320, 240, Point{250, 350}},
	}
	for _, tc := range cases {
		got, err := MapPoint(tc.px, tc.py, e, 640, 480, EPSG3857, EPSG3857)
		require.NoError(t, err)
		assert.InDelta(t, tc.want.X, got.X, 1e-9)
		assert.InDelta(t, tc.want.Y, got.Y, 1e-9)
	}
}

func TestMapPointZeroRaster(t *testing.T) {
	t.Parallel()
	_, err := MapPoint(0, 0, Extent{0, 0, 1, 1}, 0, 10, EPSG3857, EPSG3857)
	assert.ErrorIs(t, err, ErrZeroRaster)
	_, err = NewMapper(Extent{0, 0, 1, 1}, 10, -1, EPSG3857, EPSG4326)
	assert.ErrorIs(t, err, ErrZeroRaster)
}

func TestReproject(t *testing.T) {
	t.Parallel()
	p := Reproject(Point{500000, 6000000}, EPSG3857, EPSG4326)
	assert.InDelta(t, 4.4916, p.X, 1e-3)
	assert.InDelta(t, 47.3537, p.Y, 1e-3)

	back := Reproject(p, EPSG4326, EPSG3857)
	assert.InDelta(t, 500000, back.X, 1e-6)
	assert.InDelta(t, 6000000, back.Y, 1e-6)

	assert.Equal(t, Point{1, 2}, Reproject(Point{1, 2}, EPSG4326, EPSG4326))

	m, err := NewMapper(Extent{0, 0, 1000, 1000}, 10, 10, EPSG3857, EPSG4326)
	require.NoError(t, err)
	q := m.Map(0, 10)
	assert.InDelta(t, 0, q.X, 1e-12)
	assert.InDelta(t, 0, q.Y, 1e-12)
	assert.Equal(t, EPSG4326, m.Target())
}

func square(x0, y0, x1, y1 int) []image.Point {
	return []image.Point{{x0, y0}, {x0, y1}, {x1, y1}, {x1, y0}}
}

func TestAssembleSquare(t *testing.T) {
	t.Parallel()
	r := contour.NewRaster(100, 100)
	r.Fill(10, 10, 90, 90, true)
	forest := contour.Build(r, 1)
	e := &Extent{0, 0, 100, 100}

	g := Assemble(forest, e, 100, 100, EPSG3857, EPSG3857, logger.Discard())
	require.Len(t, g.Parts, 1)
	p := g.Parts[0]
	assert.Empty(t, p.Holes)
	assert.GreaterOrEqual(t, len(p.Outer), 4)
	assert.LessOrEqual(t, len(p.Outer), 8)
	for _, v := range p.Outer {
		assert.True(t, v.X >= 0 && v.X <= 100 && v.Y >= 0 && v.Y <= 100, "vertex %v outside extent", v)
	}
	assert.Equal(t, EPSG3857, g.CRS)
	assert.True(t, g.Contains(Point{50, 50}))
	assert.False(t, g.Contains(Point{95, 95}))
}

func TestAssembleSquareWithHole(t *testing.T) {
	t.Parallel()
	r := contour.NewRaster(100, 100)
	r.Fill(10, 10, 90, 90, true)
	r.Fill(40, 40, 60, 60, false)
	g := Assemble(contour.Build(r, 1), &Extent{0, 0, 100, 100}, 100, 100, EPSG3857, EPSG3857, logger.Discard())
	require.Len(t, g.Parts, 1)
	require.Len(t, g.Parts[0].Holes, 1)
	assert.False(t, g.Contains(Point{50, 50}))
	assert.True(t, g.Contains(Point{20, 20}))
	assert.Greater(t, g.Area(), 0.0)
	assert.Less(t, g.Area(), 80.0*80.0)
}

func TestAssembleBuckets(t *testing.T) {
	t.Parallel()
	forest := contour.Forest{
		{Points: square(0, 0, 50, 50), Parent: -1},
		{Points: square(10, 10, 20, 20), Parent: 0, Hole: true},
		{Points: square(60, 0, 90, 30), Parent: -1},
		{Points: square(30, 30, 40, 40), Parent: 0, Hole: true},
		{Points: square(12, 12, 18, 18), Parent: 1},
		{Points: square(13, 13, 14, 14), Parent: 4, Hole: true},
		{Points: square(1, 1, 2, 2), Parent: 1, Hole: true},
	}
	e := &Extent{0, 0, 100, 100}
	g := Assemble(forest, e, 100, 100, EPSG3857, EPSG3857, logger.Discard())
	require.Len(t, g.Parts, 3)
	assert.Len(t, g.Parts[0].Holes, 2)
	assert.Empty(t, g.Parts[1].Holes)
	assert.Len(t, g.Parts[2].Holes, 1)
	// 第二个部件为 (60,0)-(90,30)，y 轴翻转
	assert.Equal(t, Point{60, 100}, g.Parts[1].Outer[0])
	assert.Equal(t, Point{60, 70}, g.Parts[1].Outer[1])

	again := Assemble(forest, e, 100, 100, EPSG3857, EPSG3857, logger.Discard())
	if diff := cmp.Diff(g, again); diff != "" {
		t.Fatalf("assemble not deterministic:\n%s", diff)
	}
}

func TestAssembleDegenerate(t *testing.T) {
	t.Parallel()
	forest := contour.Forest{{Points: square(0, 0, 5, 5), Parent: -1}}
	l := logger.Discard()
	assert.True(t, Assemble(forest, nil, 10, 10, EPSG3857, EPSG3857, l).Empty())
	assert.True(t, Assemble(forest, &Extent{0, 0, 0, 10}, 10, 10, EPSG3857, EPSG3857, l).Empty())
	assert.True(t, Assemble(forest, &Extent{0, 0, 10, 10}, 0, 10, EPSG3857, EPSG3857, l).Empty())
	assert.True(t, Assemble(nil, &Extent{0, 0, 10, 10}, 10, 10, EPSG3857, EPSG3857, l).Empty())
}

func TestAssembleReprojects(t *testing.T) {
	t.Parallel()
	forest := contour.Forest{{Points: square(0, 0, 10, 10), Parent: -1}}
	e := &Extent{500000, 6000000, 501000, 6001000}
	g := Assemble(forest, e, 10, 10, EPSG3857, EPSG4326, logger.Discard())
	require.Len(t, g.Parts, 1)
	assert.Equal(t, EPSG4326, g.CRS)
	want := Reproject(Point{500000, 6001000}, EPSG3857, EPSG4326)
	assert.InDelta(t, want.X, g.Parts[0].Outer[0].X, 1e-9)
	assert.InDelta(t, want.Y, g.Parts[0].Outer[0].Y, 1e-9)
}

func TestOrbConversion(t *testing.T) {
	t.Parallel()
	one := Geometry{Parts: []Part{{Outer: Ring{{0, 0}, {0, 1}, {1, 1}, {1, 0}}}}}
	poly, ok := one.Orb().(orb.Polygon)
	require.True(t, ok)
	require.Len(t, poly, 1)
	assert.Len(t, poly[0], 5)
	assert.True(t, poly[0].Closed())
	assert.InDelta(t, 1.0, one.Area(), 1e-12)
	assert.Equal(t, &Extent{0, 0, 1, 1}, one.Bound())

	two := Geometry{Parts: append(one.Parts, Part{Outer: Ring{{5, 5}, {5, 6}, {6, 6}}})}
	_, ok = two.Orb().(orb.MultiPolygon)
	assert.True(t, ok)

	pt := Geometry{Point: &Point{3, 4}}
	assert.Equal(t, orb.Point{3, 4}, pt.Orb())
	assert.Nil(t, Geometry{}.Orb())
	assert.Nil(t, Geometry{}.Bound())
}

func TestRingBounds(t *testing.T) {
	t.Parallel()
	got := Ring{{3, 1}, {-2, 4}, {0, -5}}.Bounds()
	if diff := cmp.Diff(Extent{-2, -5, 3, 4}, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatal(diff)
	}
}
