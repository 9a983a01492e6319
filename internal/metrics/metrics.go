// Package metrics is a tiny facade between the pipeline and a metrics backend.
//
// The pipeline records counters/histograms through package-level helpers; a
// backend (Datadog, or the default nop) is installed once at startup. Core
// pipeline code never imports vendor SDKs.
package metrics

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Labels are free-form metric tags.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use; the extract workers call these from many goroutines.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer and submit periodically.
type Flusher interface {
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

// holder wraps the interface in one concrete type; atomic.Value requires every
// Store to use the same concrete type, and callers install different Backend
// implementations.
type holder struct {
	b Backend
}

var current atomic.Value

func init() {
	current.Store(holder{nopBackend{}})
}

// SetBackend installs the process-wide backend. Call once at startup.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	current.Store(holder{b})
}

func backend() Backend {
	return current.Load().(holder).b
}

// Flush flushes the installed backend, if it buffers.
func Flush() error {
	if f, ok := backend().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// Metric names shared between recorders and backends.
const (
	MetricHTTPRequests = "http_requests_total"
	MetricHTTPErrors   = "http_errors_total"
	MetricHTTPDuration = "http_request_duration_seconds"
	MetricRecords      = "records_loaded_total"
	MetricLoadBatches  = "load_batches_total"
	MetricLoadDuration = "load_batch_duration_seconds"
)

// RecordHTTP records one page-fetch attempt.
//
// status==0 with a non-nil err means the request never produced a response
// (network error, timeout); it is counted as status "error".
func RecordHTTP(endpoint string, status int, err error, dur time.Duration) {
	b := backend()

	statusLabel := strconv.Itoa(status)
	if status == 0 {
		statusLabel = "error"
	}
	labels := Labels{"endpoint": endpoint, "status": statusLabel}

	b.IncCounter(MetricHTTPRequests, 1, labels)
	if err != nil || status >= 400 {
		b.IncCounter(MetricHTTPErrors, 1, labels)
	}
	b.ObserveHistogram(MetricHTTPDuration, dur.Seconds(), labels)
}

// RecordLoad records one destination write batch.
func RecordLoad(endpoint string, rows int64, dur time.Duration) {
	b := backend()
	labels := Labels{"endpoint": endpoint}

	b.IncCounter(MetricRecords, float64(rows), labels)
	b.IncCounter(MetricLoadBatches, 1, labels)
	b.ObserveHistogram(MetricLoadDuration, dur.Seconds(), labels)
}
