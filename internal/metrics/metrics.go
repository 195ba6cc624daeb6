// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はゲートウェイとアイデンティティリゾルバーの
// 動作状況を収集するPrometheusコレクター。
// apiclient.RequestRecorder と identity.CacheRecorder を実装する。
type Collector struct {
	requests      *prometheus.CounterVec
	requestTime   prometheus.Histogram
	networkErrors *prometheus.CounterVec
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	coalesced     prometheus.Counter
	seeded        prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "itmsclient_requests_total",
			Help: "発行したAPIリクエストのメソッド・ステータスコード別合計数",
		}, []string{"method", "status_code"}),
		requestTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "itmsclient_request_duration_seconds",
			Help:    "APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		networkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "itmsclient_network_errors_total",
			Help: "サーバーに到達しなかったリクエストのメソッド別合計数",
		}, []string{"method"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itmsclient_identity_cache_hits_total",
			Help: "アイデンティティキャッシュヒットの合計数",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itmsclient_identity_cache_misses_total",
			Help: "ネットワーク解決を発行したキャッシュミスの合計数",
		}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itmsclient_identity_coalesced_total",
			Help: "実行中の解決に合流した（新規呼び出しを発行しなかった）要求の合計数",
		}),
		seeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itmsclient_identity_seeded_total",
			Help: "一括取得結果からシードされたキャッシュエントリの合計数",
		}),
	}

	reg.MustRegister(
		c.requests,
		c.requestTime,
		c.networkErrors,
		c.cacheHits,
		c.cacheMisses,
		c.coalesced,
		c.seeded,
	)

	return c
}

// RecordRequest はAPIリクエストの完了を記録する。
func (c *Collector) RecordRequest(method string, statusCode int, duration time.Duration) {
	c.requests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.requestTime.Observe(duration.Seconds())
}

// RecordNetworkError は転送層エラーを記録する。
func (c *Collector) RecordNetworkError(method string) {
	c.networkErrors.WithLabelValues(method).Inc()
}

// RecordCacheHit はアイデンティティキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit() {
	c.cacheHits.Inc()
}

// RecordCacheMiss はキャッシュミス（ネットワーク解決の発行）を記録する。
func (c *Collector) RecordCacheMiss() {
	c.cacheMisses.Inc()
}

// RecordCoalescedLookup は実行中解決への合流を記録する。
func (c *Collector) RecordCoalescedLookup() {
	c.coalesced.Inc()
}

// RecordSeededEntries はシードされたエントリ数を記録する。
func (c *Collector) RecordSeededEntries(count int) {
	c.seeded.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 本ライブラリを常駐プロセスに組み込む場合に/metricsとして公開する。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
