package pkk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcel-api/internal/geom"
	"parcel-api/internal/logger"
)

const featureJSON = `{"feature":{"attrs":{"id":"38:36:21:1106","cn":"38:36:000021:1106","address":"Irkutsk"},
"extent":{"xmin":100,"ymin":200,"xmax":300,"ymax":400},"center":{"x":500000,"y":6000000}}}`

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestNormalizeCode(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"38:36:021:1106":  "38:36:21:1106",
		" 77:01:0001:05 ": "77:1:1:5",
		"50:00:0:000":     "50:0:0:0",
		"38:36:21:1106":   "38:36:21:1106",
		"38:36:abc:01":    "38:36:abc:1",
	}
	for in, want := range cases {
		got, err := NormalizeCode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "  ", "38::1", "38:36:"} {
		_, err := NormalizeCode(bad)
		assert.ErrorIs(t, err, ErrInvalidCode, bad)
	}
}

func TestParseAreaType(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]AreaType{"": Parcel, "1": Parcel, "5": Building, "ОКС": Building, "ZOUIT": ZOUIT, "Красные линии": RedLine} {
		got, err := ParseAreaType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseAreaType("8")
	assert.ErrorIs(t, err, ErrAreaType)
	_, err = ParseAreaType("lake")
	assert.ErrorIs(t, err, ErrAreaType)
}

func TestResolve(t *testing.T) {
	t.Parallel()
	paths := make(chan string, 1)
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(featureJSON))
	})
	c := NewClient(srv.URL, srv.Client(), logger.Discard())

	res, err := c.Resolve(context.Background(), Parcel, "38:36:021:1106", geom.EPSG4326)
	require.NoError(t, err)
	assert.Equal(t, "/api/features/1/38:36:21:1106", <-paths)
	assert.Equal(t, "38:36:21:1106", res.Code)
	assert.Equal(t, "38:36:21:1106", res.CodeID)
	assert.Equal(t, &geom.Extent{XMin: 100, YMin: 200, XMax: 300, YMax: 400}, res.Extent)
	require.NotNil(t, res.Center)
	require.NotNil(t, res.CenterRaw)
	assert.Equal(t, geom.Point{X: 500000, Y: 6000000}, *res.CenterRaw)
	assert.InDelta(t, 4.4916, res.Center.X, 1e-3)
	assert.InDelta(t, 47.3537, res.Center.Y, 1e-3)
	assert.Equal(t, "Irkutsk", res.Attrs["address"])

	raw, projected := CenterFromAttrs(res.Attrs)
	assert.Equal(t, res.CenterRaw, raw)
	assert.Equal(t, res.Center, projected)
	assert.False(t, res.Empty())
}

func TestResolveNativeTarget(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(featureJSON))
	})
	c := NewClient(srv.URL, srv.Client(), logger.Discard())
	res, err := c.Resolve(context.Background(), Parcel, "38:36:21:1106", geom.EPSG3857)
	require.NoError(t, err)
	assert.Equal(t, geom.Point{X: 500000, Y: 6000000}, *res.Center)
}

func TestResolveDegradesToEmpty(t *testing.T) {
	t.Parallel()
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		"json":   func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("{not json")) },
		"no feature": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"feature":null}`))
		},
		"null extent": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"feature":{"attrs":null,"extent":{"xmin":null,"ymin":1,"xmax":2,"ymax":3},"center":null}}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := newServer(t, h)
			c := NewClient(srv.URL, srv.Client(), logger.Discard())
			res, err := c.Resolve(context.Background(), Parcel, "1:2:3:4", geom.EPSG3857)
			require.NoError(t, err)
			require.NotNil(t, res)
			assert.True(t, res.Empty())
			assert.NotNil(t, res.Attrs)
			assert.Nil(t, res.Extent)
		})
	}
}

func TestResolveTransportFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	c := NewClient(url, &http.Client{Timeout: time.Second}, logger.Discard())
	res, err := c.Resolve(context.Background(), Parcel, "1:2:3:4", geom.EPSG3857)
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestResolveTimeout(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	c := NewClient(srv.URL, &http.Client{Timeout: 50 * time.Millisecond}, logger.Discard())
	res, err := c.Resolve(context.Background(), Parcel, "1:2:3:4", geom.EPSG3857)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	c = NewClient(srv.URL, srv.Client(), logger.Discard())
	_, err = c.Resolve(ctx, Parcel, "1:2:3:4", geom.EPSG3857)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestResolveInvalidCode(t *testing.T) {
	t.Parallel()
	c := NewClient("http://127.0.0.1:1", nil, logger.Discard())
	_, err := c.Resolve(context.Background(), Parcel, "", geom.EPSG3857)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestCenterFromAttrsMissing(t *testing.T) {
	t.Parallel()
	raw, p := CenterFromAttrs(map[string]any{"center": "nope"})
	assert.Nil(t, raw)
	assert.Nil(t, p)
}
