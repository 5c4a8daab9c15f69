package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TransformRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tinshift_transform_requests_total",
		Help: "Total number of transform requests",
	}, []string{"dataset", "direction"})
	TransformPointsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tinshift_transform_points_total",
		Help: "Total number of points transformed (batch requests count every point)",
	}, []string{"dataset", "direction"})
	TransformNotFoundTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tinshift_transform_not_found_total",
		Help: "Total number of points outside the mesh",
	}, []string{"dataset", "direction"})
	TransformDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tinshift_transform_duration_ms",
		Help:    "Transform request duration in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	LRUHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tinshift_lru_hits_total",
		Help: "Total in-process cache hits",
	})
	RedisHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tinshift_redis_hits_total",
		Help: "Total redis cache hits",
	})
	RedisMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tinshift_redis_misses_total",
		Help: "Total redis cache misses",
	})
	DatasetsLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tinshift_datasets_loaded",
		Help: "Number of datasets in the active registry",
	})
	DatasetLoadErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tinshift_dataset_load_errors_total",
		Help: "Total dataset files or rows rejected at load time",
	})
	ReloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tinshift_reloads_total",
		Help: "Registry reloads by status",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(TransformRequestsTotal)
	prometheus.MustRegister(TransformPointsTotal)
	prometheus.MustRegister(TransformNotFoundTotal)
	prometheus.MustRegister(TransformDurationMs)
	prometheus.MustRegister(LRUHitsTotal)
	prometheus.MustRegister(RedisHitsTotal)
	prometheus.MustRegister(RedisMissesTotal)
	prometheus.MustRegister(DatasetsLoaded)
	prometheus.MustRegister(DatasetLoadErrorsTotal)
	prometheus.MustRegister(ReloadsTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 /metrics 路径，供 Prometheus 抓取；在主入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
