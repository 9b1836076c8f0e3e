package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcel-api/internal/geom"
	"parcel-api/internal/parcel"
	"parcel-api/internal/pkk"
)

func TestReadCodes(t *testing.T) {
	t.Parallel()
	codes, err := readCodes(strings.NewReader("38:36:021:1106\n\n# skipped\n  1:2:3:4  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"38:36:021:1106", "1:2:3:4"}, codes)
}

func TestOutputsWrite(t *testing.T) {
	t.Parallel()
	o := &outputs{dir: t.TempDir(), withCenter: true}
	rec := &parcel.Record{
		Code:   "1:2:3:4",
		Target: geom.EPSG3857,
		Center: &geom.Point{X: 5, Y: 5},
		Geometry: geom.Geometry{CRS: geom.EPSG3857, Parts: []geom.Part{{
			Outer: geom.Ring{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}},
		}}},
	}
	ok, err := o.write(rec)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.FileExists(t, filepath.Join(o.dir, "1_2_3_4.geojson"))
	assert.FileExists(t, filepath.Join(o.dir, "1_2_3_4_center.geojson"))

	ok, err = o.write(&parcel.Record{Code: "9:9"})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, o.fail("9:9"))
	require.NoError(t, o.fail("8:8"))
	b, err := os.ReadFile(filepath.Join(o.dir, "failed.txt"))
	require.NoError(t, err)
	assert.Equal(t, "9:9\n8:8\n", string(b))
}

type stubResolver struct{ calls int }

func (s *stubResolver) Resolve(ctx context.Context, at pkk.AreaType, code string, target geom.CRS) (*pkk.Result, error) {
	s.calls++
	return &pkk.Result{Code: code}, nil
}

func TestMinuteLimiter(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 12, 0, 30, 0, time.UTC)
	ml := &minuteLimiter{capacity: 2, now: func() time.Time { return now }}
	assert.Zero(t, ml.reserve())
	assert.Zero(t, ml.reserve())
	assert.Equal(t, 30*time.Second, ml.reserve())

	now = now.Add(30 * time.Second)
	assert.Zero(t, ml.reserve())

	assert.Zero(t, (&minuteLimiter{}).reserve())
}

func TestLimitedResolver(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 12, 0, 10, 0, time.UTC)
	inner := &stubResolver{}
	r := &limitedResolver{inner: inner, limiter: &minuteLimiter{capacity: 1, now: func() time.Time { return now }}}
	_, err := r.Resolve(context.Background(), pkk.Parcel, "1", geom.Native)
	require.NoError(t, err)

	// 配额用尽后等待下一分钟，期限先到则返回上下文错误
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = r.Resolve(ctx, pkk.Parcel, "2", geom.Native)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, inner.calls)
}
