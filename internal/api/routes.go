// 包 api：集中注册 HTTP API 路由以解耦主入口，便于后续扩展与替换
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"parcel-api/internal/geom"
	"parcel-api/internal/logger"
	"parcel-api/internal/parcel"
	"parcel-api/internal/pkk"
)

// Runner 执行地块流水线，由 parcel.Pipeline 实现
type Runner interface {
	RunWithRetry(ctx context.Context, req parcel.Request, attempts int, delay time.Duration) (*parcel.Record, error)
}

// 文档注释：路由选项
// 背景：Target 为未指定 crs 参数时的默认输出坐标系；Attempts/Delay 控制元数据超时后的重试；
// Timeout 为单次请求的整体期限（0 表示不限制）。
type Options struct {
	Target   geom.CRS
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
	Logger   *slog.Logger
}

var errBadRequest = errors.New("api: bad request")

type typeEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type containsResult struct {
	Code     string   `json:"code"`
	CRS      geom.CRS `json:"crs"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Contains bool     `json:"contains"`
}

type handler struct {
	run  Runner
	opts Options
	l    *slog.Logger
}

// 文档注释：构建并返回 API 路由
// 背景：独立 ServeMux 便于在主入口挂载到 API_BASE 前缀；每个响应携带 X-Request-ID。
// 约束：状态码映射为 超时 504、参数错误 400、无结果 404，其余 200；内部错误 500。
func BuildRoutes(run Runner, opts Options) *http.ServeMux {
	if opts.Target == "" {
		opts.Target = geom.Native
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	h := &handler{run: run, opts: opts, l: logger.Or(opts.Logger)}
	mux := http.NewServeMux()
	mux.HandleFunc("/parcel", withRequestID(h.parcel(false)))
	mux.HandleFunc("/parcel/center", withRequestID(h.parcel(true)))
	mux.HandleFunc("/parcel/contains", withRequestID(h.contains))
	mux.HandleFunc("/types", withRequestID(h.types))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("x-request-id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("x-request-id", id)
		next(w, r)
	}
}

// parseRequest 解析 code/type/crs/center_only 参数；centerOnly 为 true 时强制点模式
func (h *handler) parseRequest(r *http.Request, centerOnly bool) (parcel.Request, error) {
	q := r.URL.Query()
	var req parcel.Request
	req.Code = strings.TrimSpace(q.Get("code"))
	if req.Code == "" {
		return req, pkk.ErrInvalidCode
	}
	at, err := pkk.ParseAreaType(q.Get("type"))
	if err != nil {
		return req, err
	}
	req.AreaType = at
	req.Target = h.opts.Target
	if s := q.Get("crs"); s != "" {
		c, err := geom.ParseCRS(s)
		if err != nil {
			return req, err
		}
		req.Target = c
	}
	if s := q.Get("center_only"); s != "" && !centerOnly {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return req, errBadRequest
		}
		centerOnly = b
	}
	if centerOnly {
		req.Mode = parcel.ModePoint
	}
	return req, nil
}

func (h *handler) execute(r *http.Request, req parcel.Request) (*parcel.Record, error) {
	ctx := r.Context()
	if h.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.Timeout)
		defer cancel()
	}
	rec, err := h.run.RunWithRetry(ctx, req, h.opts.Attempts, h.opts.Delay)
	// 取图阶段超时被流水线降级为空几何，此处还原为超时
	if err == nil && (rec == nil || rec.Geometry.Empty()) && ctx.Err() != nil {
		return rec, ctx.Err()
	}
	return rec, err
}

func (h *handler) parcel(centerOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := h.parseRequest(r, centerOnly)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		withAttrs := false
		if s := r.URL.Query().Get("attrs"); s != "" {
			if withAttrs, err = strconv.ParseBool(s); err != nil {
				h.fail(w, r, errBadRequest)
				return
			}
		}
		rec, err := h.execute(r, req)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		fc := rec.FeatureCollection(withAttrs)
		if fc == nil {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found", "code": rec.Code})
			return
		}
		b, err := fc.MarshalJSON()
		if err != nil {
			h.fail(w, r, err)
			return
		}
		w.Header().Set("content-type", "application/geo+json; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		_, _ = w.Write(b)
	}
}

// contains 判断坐标是否落在地块内，坐标与 crs 参数同一坐标系
func (h *handler) contains(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req.Mode = parcel.ModePolygon
	q := r.URL.Query()
	x, errX := strconv.ParseFloat(q.Get("x"), 64)
	y, errY := strconv.ParseFloat(q.Get("y"), 64)
	if errX != nil || errY != nil {
		h.fail(w, r, errBadRequest)
		return
	}
	rec, err := h.execute(r, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(rec.Geometry.Parts) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found", "code": rec.Code})
		return
	}
	pt := geom.Point{X: x, Y: y}
	writeJSON(w, http.StatusOK, containsResult{Code: rec.Code, CRS: req.Target, X: x, Y: y, Contains: rec.Geometry.Contains(pt)})
}

func (h *handler) types(w http.ResponseWriter, r *http.Request) {
	out := make([]typeEntry, 0, len(pkk.AreaTypes))
	for name, id := range pkk.AreaTypes {
		out = append(out, typeEntry{ID: int(id), Name: name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	writeJSON(w, http.StatusOK, out)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, pkk.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, pkk.ErrInvalidCode), errors.Is(err, pkk.ErrAreaType),
		errors.Is(err, geom.ErrUnsupportedCRS), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= 500 {
		h.l.Warn("api_error", "path", r.URL.Path, "status", status, "err", err)
	} else {
		h.l.Debug("api_reject", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
