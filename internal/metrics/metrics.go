// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// セッション、認証フロー、送信リクエストの各層から利用する。
type MetricsCollector interface {
	RecordTransition(event string)
	RecordLoginOutcome(outcome string)
	RecordHydration(source string)
	RecordOutboundRequest(decision string)
	RecordStorageError(op string)
	RecordUpstreamStatus(statusCode int)
	RecordUpstreamLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	transitions     *prometheus.CounterVec
	loginOutcomes   *prometheus.CounterVec
	hydrations      *prometheus.CounterVec
	outbound        *prometheus.CounterVec
	storageErrors   *prometheus.CounterVec
	upstreamStatus  *prometheus.CounterVec
	upstreamLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_session_transitions_total",
			Help: "イベント別のセッション状態遷移数",
		}, []string{"event"}),
		loginOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_login_attempts_total",
			Help: "結果別のログイン試行数",
		}, []string{"outcome"}),
		hydrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_hydrations_total",
			Help: "取得元別の起動時ハイドレーション数",
		}, []string{"source"}),
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_outbound_requests_total",
			Help: "認証ヘッダー付与判定別の送信リクエスト数",
		}, []string{"decision"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_credential_store_errors_total",
			Help: "操作別の資格情報ストアのエラー数",
		}, []string{"op"}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_upstream_status_total",
			Help: "バックエンドAPIのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backoffice_upstream_latency_seconds",
			Help:    "バックエンドAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.transitions,
		c.loginOutcomes,
		c.hydrations,
		c.outbound,
		c.storageErrors,
		c.upstreamStatus,
		c.upstreamLatency,
	)

	return c
}

// RecordTransition はセッション状態遷移を記録する。
func (c *Collector) RecordTransition(event string) {
	c.transitions.WithLabelValues(event).Inc()
}

// RecordLoginOutcome はログイン試行の結果（success, failure, superseded）を記録する。
func (c *Collector) RecordLoginOutcome(outcome string) {
	c.loginOutcomes.WithLabelValues(outcome).Inc()
}

// RecordHydration はハイドレーションの取得元（cache, backend, failure）を記録する。
func (c *Collector) RecordHydration(source string) {
	c.hydrations.WithLabelValues(source).Inc()
}

// RecordOutboundRequest は送信リクエストの認証判定を記録する。
func (c *Collector) RecordOutboundRequest(decision string) {
	c.outbound.WithLabelValues(decision).Inc()
}

// RecordStorageError は資格情報ストアのエラーを記録する。
func (c *Collector) RecordStorageError(op string) {
	c.storageErrors.WithLabelValues(op).Inc()
}

// RecordUpstreamStatus はバックエンドのHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(statusCode int) {
	c.upstreamStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordUpstreamLatency はバックエンド呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(duration time.Duration) {
	c.upstreamLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
