// Package telemetry declares the Prometheus metrics exported by the cache,
// directory and transaction layers.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cache metrics
	CacheItemsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fasst_cache_items_total",
			Help: "Occupied cache slots by tag",
		},
		[]string{"tag"},
	)

	CacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasst_cache_evictions_total",
			Help: "Total number of slots reclaimed by eviction, by reason",
		},
		[]string{"reason"},
	)

	CacheEvictionCallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fasst_cache_eviction_callbacks_total",
			Help: "Total number of eviction callbacks fired for modified victims",
		},
	)

	BucketLockRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fasst_bucket_lock_retries_total",
			Help: "Total number of failed bucket CAS attempts before a lock succeeded",
		},
	)

	PlaceholderDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fasst_placeholder_duration_seconds",
			Help:    "Time taken to insert a placeholder item",
			Buckets: prometheus.DefBuckets,
		},
	)

	PrepareReadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fasst_prepare_read_duration_seconds",
			Help:    "Time taken to finalize a read",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Directory metrics
	DirectoryCASRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fasst_directory_cas_retries_total",
			Help: "Total number of directory CAS attempts that lost the race and retried",
		},
	)

	DirectoryOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasst_directory_ops_total",
			Help: "Total number of directory operations by kind and result",
		},
		[]string{"op", "result"},
	)

	DirectoryOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fasst_directory_op_duration_seconds",
			Help:    "Directory operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// Transaction metrics
	TxCommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fasst_tx_commits_total",
			Help: "Total number of committed transactions",
		},
	)

	TxAbortsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasst_tx_aborts_total",
			Help: "Total number of aborted transactions by cause",
		},
		[]string{"cause"},
	)

	TxDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fasst_tx_duration_seconds",
			Help:    "End-to-end transaction duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	TxBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fasst_tx_batch_size",
			Help:    "Number of requests per RPC batch sent by a transaction",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)
)

func init() {
	prometheus.MustRegister(CacheItemsTotal)
	prometheus.MustRegister(CacheEvictionsTotal)
	prometheus.MustRegister(CacheEvictionCallbacksTotal)
	prometheus.MustRegister(BucketLockRetriesTotal)
	prometheus.MustRegister(PlaceholderDuration)
	prometheus.MustRegister(PrepareReadDuration)

	prometheus.MustRegister(DirectoryCASRetriesTotal)
	prometheus.MustRegister(DirectoryOpsTotal)
	prometheus.MustRegister(DirectoryOpDuration)

	prometheus.MustRegister(TxCommitsTotal)
	prometheus.MustRegister(TxAbortsTotal)
	prometheus.MustRegister(TxDuration)
	prometheus.MustRegister(TxBatchSize)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed wall-clock time for metric observation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
