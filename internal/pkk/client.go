package pkk

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"parcel-api/internal/geom"
	"parcel-api/internal/logger"
	"parcel-api/internal/metrics"
	"parcel-api/internal/utils"
)

const DefaultBaseURL = "https://pkk.rosreestr.ru"

// CenterKey 为属性表中保存中心点的保留键
const CenterKey = "center"

// 文档注释：要素信息查询结果
// 背景：Attrs 为服务端返回的原始属性（附加保留键 center）；Extent 为原生坐标系范围；
// Center 已转换到目标坐标系，CenterRaw 保持原生坐标。
// 约束：查询失败（非超时）时返回空结果，Attrs 为空映射、其余字段为 nil。
type Result struct {
	Code      string
	CodeID    string
	AreaType  AreaType
	Attrs     map[string]any
	Extent    *geom.Extent
	Center    *geom.Point
	CenterRaw *geom.Point
}

// Empty 表示服务端没有返回任何可用信息
func (r *Result) Empty() bool {
	return r == nil || (len(r.Attrs) == 0 && r.Extent == nil && r.Center == nil)
}

type rawPoint struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type rawExtent struct {
	XMin *float64 `json:"xmin"`
	YMin *float64 `json:"ymin"`
	XMax *float64 `json:"xmax"`
	YMax *float64 `json:"ymax"`
}

type featureResponse struct {
	Feature *struct {
		Attrs  map[string]any `json:"attrs"`
		Extent *rawExtent     `json:"extent"`
		Center *rawPoint      `json:"center"`
	} `json:"feature"`
}

// Client：要素信息查询客户端
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Logger  *slog.Logger
}

// NewClient：hc 为空时使用 10s 超时的默认客户端
func NewClient(baseURL string, hc *http.Client, l *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: hc, Logger: logger.Or(l)}
}

// 文档注释：从环境变量构建客户端
// 背景：PKK_BASE_URL 指定服务地址；PKK_TIMEOUT_MS 为单次请求超时；
// PKK_PROXY 为出站代理；PKK_INSECURE_TLS=true 时跳过证书校验（服务端证书链常不完整）。
func NewClientFromEnv(l *slog.Logger) *Client {
	timeout := utils.EnvMillis("PKK_TIMEOUT_MS", 10*time.Second)
	return NewClient(utils.EnvString("PKK_BASE_URL", DefaultBaseURL), &http.Client{Timeout: timeout, Transport: TransportFromEnv()}, l)
}

// TransportFromEnv 按 PKK_PROXY 与 PKK_INSECURE_TLS 构造出站传输层，瓦片下载共用
func TransportFromEnv() *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if p := utils.EnvString("PKK_PROXY", ""); p != "" {
		if u, err := url.Parse(p); err == nil {
			tr.Proxy = http.ProxyURL(u)
		} else {
			logger.L().Warn("pkk_proxy_invalid", "proxy", p, "err", err)
		}
	}
	if utils.EnvBool("PKK_INSECURE_TLS", false) {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return tr
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// 文档注释：按编号查询要素信息
// 为什么：地块范围与中心点是后续取图与点模式的唯一输入，属性随结果一并缓存。
// 参数：
// - areaType：图层编号，地块为 1；
// - code：原始编号，内部先做规范化；
// - target：中心点输出坐标系，与原生坐标系不同时立即转换。
// 返回：超时返回包装了 ErrTimeout 的错误；编号非法返回 ErrInvalidCode；
// 其余失败（状态码、解析、缺少 feature）记录告警并返回空结果。
func (c *Client) Resolve(ctx context.Context, areaType AreaType, code string, target geom.CRS) (*Result, error) {
	norm, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	l := logger.Or(c.Logger)
	res := &Result{Code: norm, CodeID: norm, AreaType: areaType, Attrs: map[string]any{}}
	u := c.BaseURL + "/api/features/" + strconv.Itoa(int(areaType)) + "/" + url.PathEscape(norm)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		l.Warn("feature_info_request_error", "code", norm, "err", err)
		return res, nil
	}
	req.Header.Set("accept", "application/json")

	t0 := time.Now()
	metrics.PkkRequestsTotal.Inc()
	l.Debug("feature_info_begin", "code", norm, "type", int(areaType))
	resp, err := c.HTTP.Do(req)
	if err != nil {
		if isTimeout(err) {
			metrics.PkkTimeoutTotal.Inc()
			l.Warn("feature_info_timeout", "code", norm, "err", err)
			return nil, fmt.Errorf("%w: %s: %v", ErrTimeout, u, err)
		}
		metrics.PkkFailTotal.Inc()
		l.Warn("feature_info_http_error", "code", norm, "err", err)
		return res, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.PkkFailTotal.Inc()
		l.Warn("feature_info_status", "code", norm, "status", resp.StatusCode)
		return res, nil
	}
	var fr featureResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		if isTimeout(err) {
			metrics.PkkTimeoutTotal.Inc()
			return nil, fmt.Errorf("%w: %s: %v", ErrTimeout, u, err)
		}
		metrics.PkkFailTotal.Inc()
		l.Warn("feature_info_decode_error", "code", norm, "err", err)
		return res, nil
	}
	dur := time.Since(t0).Milliseconds()
	metrics.PkkDurationMs.Observe(float64(dur))
	if fr.Feature == nil {
		metrics.PkkFailTotal.Inc()
		l.Warn("feature_info_not_found", "code", norm, "duration_ms", dur)
		return res, nil
	}

	if fr.Feature.Attrs != nil {
		res.Attrs = fr.Feature.Attrs
	}
	res.CodeID = CodeIDFromAttrs(res.Attrs, norm)
	if e := fr.Feature.Extent; e != nil && e.XMin != nil && e.YMin != nil && e.XMax != nil && e.YMax != nil {
		res.Extent = &geom.Extent{XMin: *e.XMin, YMin: *e.YMin, XMax: *e.XMax, YMax: *e.YMax}
	}
	if p := fr.Feature.Center; p != nil && p.X != nil && p.Y != nil {
		raw := geom.Point{X: *p.X, Y: *p.Y}
		SetCenter(res.Attrs, raw, target)
		res.CenterRaw, res.Center = CenterFromAttrs(res.Attrs)
	}
	metrics.PkkSuccessTotal.Inc()
	l.Debug("feature_info_ok", "code", norm, "code_id", res.CodeID, "has_extent", res.Extent != nil, "has_center", res.Center != nil, "duration_ms", dur)
	return res, nil
}

// CodeIDFromAttrs 返回属性 id（字符串或数字），缺失时返回 fallback
func CodeIDFromAttrs(attrs map[string]any, fallback string) string {
	if id := attrString(attrs["id"]); id != "" {
		return id
	}
	return fallback
}

func attrString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	}
	return ""
}

// 文档注释：在属性表中写入中心点
// 背景：属性表随快照缓存，恢复时从中读回中心点；同时保存原生坐标与目标坐标，避免重复投影。
func SetCenter(attrs map[string]any, raw geom.Point, target geom.CRS) {
	p := geom.Reproject(raw, geom.Native, target)
	attrs[CenterKey] = map[string]any{
		"x":   p.X,
		"y":   p.Y,
		"crs": string(target),
		"raw": map[string]any{"x": raw.X, "y": raw.Y, "crs": string(geom.Native)},
	}
}

// CenterFromAttrs 读回 SetCenter 写入的中心点；缺失返回 nil
func CenterFromAttrs(attrs map[string]any) (raw, projected *geom.Point) {
	m, ok := attrs[CenterKey].(map[string]any)
	if !ok {
		return nil, nil
	}
	projected = pointFrom(m)
	if r, ok := m["raw"].(map[string]any); ok {
		raw = pointFrom(r)
	}
	return raw, projected
}

func pointFrom(m map[string]any) *geom.Point {
	x, okx := m["x"].(float64)
	y, oky := m["y"].(float64)
	if !okx || !oky {
		return nil
	}
	return &geom.Point{X: x, Y: y}
}
