// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 結果ラベルの値
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultIgnored = "ignored"
	ResultBroken  = "broken"
	ResultCached  = "cached"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー・リポジトリ・ワーカーから利用する。
type MetricsCollector interface {
	RecordStoreOperation(op, collection, result string, duration time.Duration)
	RecordSubmission(kind, mode, result string)
	RecordLearningRequest(result string, duration time.Duration)
	RecordImageProbe(result string)
	RecordHTTPStatus(statusCode int)
	RecordEventsMarkedPast(count int64)
	SetActiveActivations(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	storeOps          *prometheus.CounterVec
	storeLatency      *prometheus.HistogramVec
	submissions       *prometheus.CounterVec
	learningRequests  *prometheus.CounterVec
	learningLatency   prometheus.Histogram
	imageProbes       *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	eventsMarkedPast  prometheus.Counter
	activeActivations prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dotsite_store_operations_total",
			Help: "リモートストア操作の合計数",
		}, []string{"op", "collection", "result"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dotsite_store_latency_seconds",
			Help:    "リモートストア操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "collection"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dotsite_form_submissions_total",
			Help: "フォーム送信の合計数",
		}, []string{"kind", "mode", "result"}),
		learningRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dotsite_learning_requests_total",
			Help: "学習ウィジェットの生成リクエスト数",
		}, []string{"result"}),
		learningLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dotsite_learning_latency_seconds",
			Help:    "学習ウィジェット生成のレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		imageProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dotsite_image_probes_total",
			Help: "画像URLの疎通確認結果",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dotsite_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		eventsMarkedPast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dotsite_events_marked_past_total",
			Help: "過去イベントに切り替えたイベントの合計数",
		}),
		activeActivations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dotsite_active_activations",
			Help: "有効なページアクティベーション数",
		}),
	}

	reg.MustRegister(
		c.storeOps,
		c.storeLatency,
		c.submissions,
		c.learningRequests,
		c.learningLatency,
		c.imageProbes,
		c.httpStatus,
		c.eventsMarkedPast,
		c.activeActivations,
	)

	return c
}

// RecordStoreOperation はリモートストア操作の結果とレイテンシを記録する。
func (c *Collector) RecordStoreOperation(op, collection, result string, duration time.Duration) {
	c.storeOps.WithLabelValues(op, collection, result).Inc()
	c.storeLatency.WithLabelValues(op, collection).Observe(duration.Seconds())
}

// RecordSubmission はフォーム送信の結果を記録する。modeはcreateまたはedit。
func (c *Collector) RecordSubmission(kind, mode, result string) {
	c.submissions.WithLabelValues(kind, mode, result).Inc()
}

// RecordLearningRequest は学習ウィジェット生成の結果を記録する。
func (c *Collector) RecordLearningRequest(result string, duration time.Duration) {
	c.learningRequests.WithLabelValues(result).Inc()
	if result != ResultIgnored {
		c.learningLatency.Observe(duration.Seconds())
	}
}

// RecordImageProbe は画像URLの疎通確認結果を記録する。
func (c *Collector) RecordImageProbe(result string) {
	c.imageProbes.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordEventsMarkedPast は過去イベントに切り替えた件数を記録する。
func (c *Collector) RecordEventsMarkedPast(count int64) {
	c.eventsMarkedPast.Add(float64(count))
}

// SetActiveActivations は有効なページアクティベーション数を設定する。
func (c *Collector) SetActiveActivations(count int) {
	c.activeActivations.Set(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// ワーカープロセスの単独公開に使用する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
