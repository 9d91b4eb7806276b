// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// パイプラインやワーカー層から利用する。
type MetricsCollector interface {
	RecordSourceFetchSuccess(platform string, count int)
	RecordSourceFetchFailure(platform string)
	RecordClassifySuccess()
	RecordClassifyFallback()
	RecordTrendsCommitted(count int)
	RecordBatchFailure()
	RecordStaleDeleted(count int)
	RecordRunDuration(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	sourceFetchSuccess *prometheus.CounterVec
	sourceFetchFail    *prometheus.CounterVec
	sourceTrends       *prometheus.CounterVec
	classifySuccess    prometheus.Counter
	classifyFallback   prometheus.Counter
	trendsCommitted    prometheus.Counter
	batchFail          prometheus.Counter
	staleDeleted       prometheus.Counter
	runDuration        prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sourceFetchSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendradar_source_fetch_success_total",
			Help: "プラットフォーム別のソース取得成功の合計数",
		}, []string{"platform"}),
		sourceFetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendradar_source_fetch_fail_total",
			Help: "プラットフォーム別のソース取得失敗の合計数",
		}, []string{"platform"}),
		sourceTrends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendradar_source_trends_total",
			Help: "プラットフォーム別に取得したトレンドの合計数",
		}, []string{"platform"}),
		classifySuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendradar_classify_success_total",
			Help: "ニッチ分類成功の合計数",
		}),
		classifyFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendradar_classify_fallback_total",
			Help: "分類失敗によりUncategorizedへフォールバックした合計数",
		}),
		trendsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendradar_trends_committed_total",
			Help: "データベースへコミットされたトレンドの合計数",
		}),
		batchFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendradar_batch_commit_fail_total",
			Help: "バッチコミット失敗の合計数",
		}),
		staleDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendradar_stale_trends_deleted_total",
			Help: "保持期間超過で削除されたトレンドの合計数",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trendradar_ingest_run_duration_seconds",
			Help:    "取り込みサイクル1回の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.sourceFetchSuccess,
		c.sourceFetchFail,
		c.sourceTrends,
		c.classifySuccess,
		c.classifyFallback,
		c.trendsCommitted,
		c.batchFail,
		c.staleDeleted,
		c.runDuration,
	)

	return c
}

// RecordSourceFetchSuccess はソース取得成功と取得件数を記録する。
func (c *Collector) RecordSourceFetchSuccess(platform string, count int) {
	c.sourceFetchSuccess.WithLabelValues(platform).Inc()
	c.sourceTrends.WithLabelValues(platform).Add(float64(count))
}

// RecordSourceFetchFailure はソース取得失敗を記録する。
func (c *Collector) RecordSourceFetchFailure(platform string) {
	c.sourceFetchFail.WithLabelValues(platform).Inc()
}

// RecordClassifySuccess はニッチ分類成功を記録する。
func (c *Collector) RecordClassifySuccess() {
	c.classifySuccess.Inc()
}

// RecordClassifyFallback はUncategorizedへのフォールバックを記録する。
func (c *Collector) RecordClassifyFallback() {
	c.classifyFallback.Inc()
}

// RecordTrendsCommitted はコミットされたトレンド数を記録する。
func (c *Collector) RecordTrendsCommitted(count int) {
	c.trendsCommitted.Add(float64(count))
}

// RecordBatchFailure はバッチコミット失敗を記録する。
func (c *Collector) RecordBatchFailure() {
	c.batchFail.Inc()
}

// RecordStaleDeleted は削除された期限切れトレンド数を記録する。
func (c *Collector) RecordStaleDeleted(count int) {
	c.staleDeleted.Add(float64(count))
}

// RecordRunDuration は取り込みサイクルの所要時間を記録する。
func (c *Collector) RecordRunDuration(duration time.Duration) {
	c.runDuration.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は指定されたmuxに/metricsエンドポイントを登録する。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.Handle("/metrics", Handler(gatherer))
}
