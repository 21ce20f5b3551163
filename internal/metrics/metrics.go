// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はストーリーサービスへのAPI呼び出しメトリクスを収集する。
// api.MetricsRecorderインターフェースを実装する。
type Collector struct {
	apiRequests  *prometheus.CounterVec
	apiLatency   *prometheus.HistogramVec
	breakerState *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyman_api_requests_total",
			Help: "ストーリーサービスへのAPI呼び出し数（操作・ステータスコード別）",
		}, []string{"operation", "status_code"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storyman_api_latency_seconds",
			Help:    "ストーリーサービスへのAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		breakerState: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storyman_breaker_transitions_total",
			Help: "サーキットブレーカーの状態遷移数",
		}, []string{"from", "to"}),
	}

	reg.MustRegister(
		c.apiRequests,
		c.apiLatency,
		c.breakerState,
	)

	return c
}

// RecordAPIRequest はAPI呼び出しの結果を記録する。
// statusCodeが0の場合はレスポンスが得られなかったことを表す。
func (c *Collector) RecordAPIRequest(operation string, statusCode int, duration time.Duration) {
	c.apiRequests.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
	c.apiLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBreakerStateChange はサーキットブレーカーの状態遷移を記録する。
func (c *Collector) RecordBreakerStateChange(from, to string) {
	c.breakerState.WithLabelValues(from, to).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
