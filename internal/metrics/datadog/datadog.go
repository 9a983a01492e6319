// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Flushing model:
//   - pipeline goroutines buffer observations in-memory (fast, lock-protected)
//   - a ticker goroutine periodically Flush()es (default: once per minute)
//   - Close() stops the loop and performs one final Flush()
//
// Periodic submission matters even for a batch job like this one: a long load
// shows up as a time series rather than a single spike at exit, so monitors
// and dashboards behave normally.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"jaffle/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "jaffle".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets these; unit tests use
	// them to avoid real network submission and nondeterministic clocks.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal interface needed to submit metrics.
// The SDK exposes a concrete *datadogV2.MetricsApi; depending on this tiny
// private interface instead keeps the backend unit-testable without HTTP.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	httpReqCounts map[string]float64 // endpoint\x00status -> count
	httpErrCounts map[string]float64
	httpDurations map[string][]float64
	recordCounts  map[string]float64 // endpoint -> rows loaded
	batchCounts   map[string]float64
	loadDurations map[string][]float64
}

// NewBackend constructs a Datadog backend using the official client.
//
// Edge cases:
//   - If opts.FlushEvery <= 0, defaults to 60s.
//   - Environment tag selection uses ENV then DD_ENV, otherwise env:unknown.
//
// Errors:
//   - Client construction itself is not expected to fail; network errors
//     surface from Flush().
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "jaffle"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		client := dd.NewAPIClient(dd.NewConfiguration())
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		httpReqCounts: make(map[string]float64),
		httpErrCounts: make(map[string]float64),
		httpDurations: make(map[string][]float64),
		recordCounts:  make(map[string]float64),
		batchCounts:   make(map[string]float64),
		loadDurations: make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush().
// Close once; a second call panics (standard "Close once" semantics for a
// process-lifetime backend).
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.MetricHTTPRequests:
		b.httpReqCounts[endpointStatusKey(labels)] += delta
	case metrics.MetricHTTPErrors:
		b.httpErrCounts[endpointStatusKey(labels)] += delta
	case metrics.MetricRecords:
		b.recordCounts[labels["endpoint"]] += delta
	case metrics.MetricLoadBatches:
		b.batchCounts[labels["endpoint"]] += delta
	default:
		// Ignore unknown metrics.
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.MetricHTTPDuration:
		k := endpointStatusKey(labels)
		b.httpDurations[k] = append(b.httpDurations[k], value)
	case metrics.MetricLoadDuration:
		k := labels["endpoint"]
		b.loadDurations[k] = append(b.loadDurations[k], value)
	default:
		// Ignore unknown histograms.
	}
}

// snapshot is the buffered metric state detached for one flush.
// Flush() resets buffers under the lock but submits out-of-lock.
type snapshot struct {
	httpReqCounts map[string]float64
	httpErrCounts map[string]float64
	httpDurations map[string][]float64
	recordCounts  map[string]float64
	batchCounts   map[string]float64
	loadDurations map[string][]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		httpReqCounts: b.httpReqCounts,
		httpErrCounts: b.httpErrCounts,
		httpDurations: b.httpDurations,
		recordCounts:  b.recordCounts,
		batchCounts:   b.batchCounts,
		loadDurations: b.loadDurations,
	}

	b.httpReqCounts = make(map[string]float64)
	b.httpErrCounts = make(map[string]float64)
	b.httpDurations = make(map[string][]float64)
	b.recordCounts = make(map[string]float64)
	b.batchCounts = make(map[string]float64)
	b.loadDurations = make(map[string][]float64)

	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.httpReqCounts) == 0 &&
		len(s.httpErrCounts) == 0 &&
		len(s.httpDurations) == 0 &&
		len(s.recordCounts) == 0 &&
		len(s.batchCounts) == 0 &&
		len(s.loadDurations) == 0
}

// Flush submits buffered metrics to Datadog and resets local buffers.
//
// Edge cases:
//   - Safe to call concurrently with IncCounter/ObserveHistogram.
//   - Buffers are reset even if submission fails, to keep the pipeline fast
//     and avoid blocking future writes.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries constructs Datadog series for a snapshot at a fixed timestamp.
// It is pure (no locks, no network, no clocks), which keeps the naming and
// tagging contract unit-testable.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, 32)

	for k, v := range s.httpReqCounts {
		if v == 0 {
			continue
		}
		ep, status := splitEndpointStatusKey(k)
		series = append(series, countSeries("jaffle.http.requests.total", v, withTags(b.baseTags, "endpoint:"+ep, "status:"+status), nowUnix))
	}
	for k, v := range s.httpErrCounts {
		if v == 0 {
			continue
		}
		ep, status := splitEndpointStatusKey(k)
		series = append(series, countSeries("jaffle.http.errors.total", v, withTags(b.baseTags, "endpoint:"+ep, "status:"+status), nowUnix))
	}
	for ep, v := range s.recordCounts {
		if v == 0 {
			continue
		}
		series = append(series, countSeries("jaffle.load.records.total", v, withTags(b.baseTags, "endpoint:"+ep), nowUnix))
	}
	for ep, v := range s.batchCounts {
		if v == 0 {
			continue
		}
		series = append(series, countSeries("jaffle.load.batches.total", v, withTags(b.baseTags, "endpoint:"+ep), nowUnix))
	}

	for k, samples := range s.httpDurations {
		ep, status := splitEndpointStatusKey(k)
		addPercentiles(&series, "jaffle.http.request_duration_seconds", withTags(b.baseTags, "endpoint:"+ep, "status:"+status), samples, nowUnix)
	}
	for ep, samples := range s.loadDurations {
		addPercentiles(&series, "jaffle.load.batch_duration_seconds", withTags(b.baseTags, "endpoint:"+ep), samples, nowUnix)
	}

	return series
}

// addPercentiles appends a fixed set of percentile gauges for a sample set.
// It sorts a copy of samples (does not mutate input); empty input is a no-op.
func addPercentiles(series *[]datadogV2.MetricSeries, metricPrefix string, tags []string, samples []float64, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series, gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix))
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func endpointStatusKey(labels metrics.Labels) string {
	return labels["endpoint"] + "\x00" + labels["status"]
}

func splitEndpointStatusKey(k string) (endpoint, status string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:jaffle".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
