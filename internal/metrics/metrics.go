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
// リポジトリやサービス層から利用する。
type MetricsCollector interface {
	RecordStoreOperation(collection, op string, duration time.Duration, err error)
	RecordOwnerLookupFailure()
	RecordUnknownOwners(count int)
	RecordProfileAutoCreated()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	storeOps           *prometheus.CounterVec
	storeLatency       *prometheus.HistogramVec
	ownerLookupFail    prometheus.Counter
	unknownOwners      prometheus.Counter
	profileAutoCreated prometheus.Counter
	httpStatus         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "farmchef_store_operations_total",
			Help: "ストア操作の合計数（コレクション・操作・結果別）",
		}, []string{"collection", "op", "result"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "farmchef_store_latency_seconds",
			Help:    "ストア操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"collection", "op"}),
		ownerLookupFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "farmchef_feed_owner_lookup_fail_total",
			Help: "フィード組み立て時のオーナー検索失敗の合計数",
		}),
		unknownOwners: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "farmchef_feed_unknown_owner_total",
			Help: "Unknown Userに置き換えられたフィードエントリの合計数",
		}),
		profileAutoCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "farmchef_profile_auto_created_total",
			Help: "初回閲覧時に自動作成されたプロフィールの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "farmchef_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.storeOps,
		c.storeLatency,
		c.ownerLookupFail,
		c.unknownOwners,
		c.profileAutoCreated,
		c.httpStatus,
	)

	return c
}

// RecordStoreOperation はストア操作の結果とレイテンシを記録する。
func (c *Collector) RecordStoreOperation(collection, op string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.storeOps.WithLabelValues(collection, op, result).Inc()
	c.storeLatency.WithLabelValues(collection, op).Observe(duration.Seconds())
}

// RecordOwnerLookupFailure はオーナー検索の失敗を記録する。
func (c *Collector) RecordOwnerLookupFailure() {
	c.ownerLookupFail.Inc()
}

// RecordUnknownOwners はUnknown Userに置き換えたエントリ数を記録する。
func (c *Collector) RecordUnknownOwners(count int) {
	c.unknownOwners.Add(float64(count))
}

// RecordProfileAutoCreated はプロフィールの自動作成を記録する。
func (c *Collector) RecordProfileAutoCreated() {
	c.profileAutoCreated.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
