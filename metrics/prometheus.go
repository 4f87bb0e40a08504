package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsPrefix is the prefix used for all metrics
const MetricsPrefix = "dict_cache_"

var (
	// Keys requested from the external source during updates
	// Cardinality: number of dictionaries
	KeysRequestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "keys_requested_total",
			Help: "Total number of keys requested from the external source",
		},
		[]string{"dictionary"},
	)

	// Requested keys the source returned / omitted
	KeysRequestedFoundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "keys_requested_found_total",
			Help: "Total number of requested keys the source returned",
		},
		[]string{"dictionary"},
	)

	KeysRequestedMissTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "keys_requested_miss_total",
			Help: "Total number of requested keys the source omitted",
		},
		[]string{"dictionary"},
	)

	// Lookup partitioning counters
	KeysHitTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "keys_hit_total",
			Help: "Total number of lookup keys found fresh in storage",
		},
		[]string{"dictionary"},
	)

	KeysExpiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "keys_expired_total",
			Help: "Total number of lookup keys found expired in storage",
		},
		[]string{"dictionary"},
	)

	KeysNotFoundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "keys_not_found_total",
			Help: "Total number of lookup keys missing from storage",
		},
		[]string{"dictionary"},
	)

	// Source request duration per dictionary
	SourceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: MetricsPrefix + "source_request_duration_seconds",
			Help: "Time spent reading the external source during an update",
		},
		[]string{"dictionary"},
	)

	SourceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "source_requests_total",
			Help: "Total number of source updates that completed successfully",
		},
		[]string{"dictionary"},
	)

	UpdateErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "update_errors_total",
			Help: "Total number of failed source updates",
		},
		[]string{"dictionary"},
	)

	// Lock wait time by mode (read/write)
	// Cardinality: dictionaries × 2
	LockWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: MetricsPrefix + "lock_wait_duration_seconds",
			Help: "Time spent waiting on the storage reader-writer lock",
		},
		[]string{"dictionary", "mode"},
	)

	CacheSizeGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: MetricsPrefix + "cache_size",
			Help: "Number of entries currently stored",
		},
		[]string{"dictionary"},
	)

	LoadFactorGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: MetricsPrefix + "load_factor",
			Help: "Stored entries relative to configured capacity",
		},
		[]string{"dictionary"},
	)
)

// Writer provides a unified interface for recording one dictionary's metrics
type Writer struct {
	dictionary string
}

// NewWriter creates a Writer for the named dictionary
func NewWriter(dictionary string) *Writer {
	return &Writer{dictionary: dictionary}
}

// Name returns the dictionary name the writer records for
func (w *Writer) Name() string {
	return w.dictionary
}

// RecordLookup records the hit/expired/missing partitioning of one lookup
func (w *Writer) RecordLookup(hit, expired, missing int) {
	KeysHitTotal.WithLabelValues(w.dictionary).Add(float64(hit))
	KeysExpiredTotal.WithLabelValues(w.dictionary).Add(float64(expired))
	KeysNotFoundTotal.WithLabelValues(w.dictionary).Add(float64(missing))
}

// RecordKeysRequested records the size of an update batch
func (w *Writer) RecordKeysRequested(count int) {
	KeysRequestedTotal.WithLabelValues(w.dictionary).Add(float64(count))
}

// RecordUpdateResult records a completed source read
func (w *Writer) RecordUpdateResult(found, missed int, duration time.Duration) {
	KeysRequestedFoundTotal.WithLabelValues(w.dictionary).Add(float64(found))
	KeysRequestedMissTotal.WithLabelValues(w.dictionary).Add(float64(missed))
	SourceRequestsTotal.WithLabelValues(w.dictionary).Inc()
	SourceRequestDuration.WithLabelValues(w.dictionary).Observe(duration.Seconds())
}

// RecordUpdateError records a failed source update
func (w *Writer) RecordUpdateError() {
	UpdateErrorsTotal.WithLabelValues(w.dictionary).Inc()
}

// RecordLockWait records time spent acquiring the storage lock
func (w *Writer) RecordLockWait(mode string, wait time.Duration) {
	LockWaitDuration.WithLabelValues(w.dictionary, mode).Observe(wait.Seconds())
}

// RecordCacheSize publishes the current entry count and load factor
func (w *Writer) RecordCacheSize(size int, loadFactor float64) {
	CacheSizeGauge.WithLabelValues(w.dictionary).Set(float64(size))
	LoadFactorGauge.WithLabelValues(w.dictionary).Set(loadFactor)
}
