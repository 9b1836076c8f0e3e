package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var durationBuckets = []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10000}

var (
	RequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parcel_requests_total",
		Help: "Total number of parcel geometry requests",
	})
	RequestDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "parcel_request_duration_ms",
		Help:    "Parcel pipeline duration in milliseconds",
		Buckets: durationBuckets,
	})
	EmptyResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parcel_empty_results_total",
		Help: "Parcel requests that produced an empty geometry, by reason",
	}, []string{"reason"})
	ContoursTotal = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "parcel_contours",
		Help:    "Contours per traced raster after simplification",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
	})
	PkkRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parcel_pkk_requests_total",
		Help: "Total feature info requests",
	})
	PkkSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parcel_pkk_success_total",
		Help: "Total feature info successes",
	})
	PkkFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parcel_pkk_fail_total",
		Help: "Total feature info failures (non-timeout)",
	})
	PkkTimeoutTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parcel_pkk_timeout_total",
		Help: "Total feature info timeouts",
	})
	PkkDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "parcel_pkk_duration_ms",
		Help:    "Feature info call duration in milliseconds",
		Buckets: durationBuckets,
	})
	TileRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parcel_tile_requests_total",
		Help: "Total map export tile requests",
	})
	TileFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parcel_tile_fail_total",
		Help: "Total map export tile failures",
	})
	CatalogHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parcel_catalog_hits_total",
		Help: "Catalog snapshot hits by backend",
	}, []string{"backend"})
	CatalogMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parcel_catalog_misses_total",
		Help: "Catalog snapshot misses by backend",
	}, []string{"backend"})
	CatalogUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parcel_catalog_updates_total",
		Help: "Catalog snapshot writes by backend",
	}, []string{"backend"})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(EmptyResultsTotal)
	prometheus.MustRegister(ContoursTotal)
	prometheus.MustRegister(PkkRequestsTotal)
	prometheus.MustRegister(PkkSuccessTotal)
	prometheus.MustRegister(PkkFailTotal)
	prometheus.MustRegister(PkkTimeoutTotal)
	prometheus.MustRegister(PkkDurationMs)
	prometheus.MustRegister(TileRequestsTotal)
	prometheus.MustRegister(TileFailTotal)
	prometheus.MustRegister(CatalogHitsTotal)
	prometheus.MustRegister(CatalogMissesTotal)
	prometheus.MustRegister(CatalogUpdatesTotal)
}

// 文档注释：返回 Prometheus 指标处理器
// 背景：统一暴露注册指标供抓取；在主入口挂载到 {API_BASE}/metrics。
func Handler() http.Handler { return promhttp.Handler() }
