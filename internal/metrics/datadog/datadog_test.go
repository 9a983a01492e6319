package datadog

import (
	"context"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"jaffle/internal/metrics"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, nil
}

func (f *fakeSubmitter) series() []datadogV2.MetricSeries {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []datadogV2.MetricSeries
	for _, p := range f.payloads {
		out = append(out, p.Series...)
	}
	return out
}

func newTestBackend(t *testing.T) (*Backend, *fakeSubmitter) {
	t.Helper()

	sub := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		JobName:    "jaffle_test",
		FlushEvery: time.Hour, // the test drives flushes explicitly
		now:        func() time.Time { return time.Unix(1766000000, 0) },
		newTicker:  time.NewTicker,
		submitter:  sub,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b, sub
}

func findSeries(series []datadogV2.MetricSeries, metric string) *datadogV2.MetricSeries {
	for i := range series {
		if series[i].Metric == metric {
			return &series[i]
		}
	}
	return nil
}

func TestFlush_SubmitsBufferedCounters(t *testing.T) {
	t.Parallel()

	b, sub := newTestBackend(t)

	labels := metrics.Labels{"endpoint": "orders", "status": "200"}
	b.IncCounter(metrics.MetricHTTPRequests, 1, labels)
	b.IncCounter(metrics.MetricHTTPRequests, 1, labels)
	b.IncCounter(metrics.MetricRecords, 500, metrics.Labels{"endpoint": "orders"})

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	series := sub.series()
	req := findSeries(series, "jaffle.http.requests.total")
	if req == nil {
		t.Fatal("missing jaffle.http.requests.total series")
	}
	if got := *req.Points[0].Value; got != 2 {
		t.Fatalf("request count=%v want 2 (accumulated)", got)
	}
	wantTags := []string{"endpoint:orders", "status:200", "job:jaffle_test"}
	for _, w := range wantTags {
		if !containsTag(req.Tags, w) {
			t.Fatalf("tags %v missing %q", req.Tags, w)
		}
	}

	rec := findSeries(series, "jaffle.load.records.total")
	if rec == nil || *rec.Points[0].Value != 500 {
		t.Fatalf("records series: %+v", rec)
	}
}

func TestFlush_EmptyBufferSubmitsNothing(t *testing.T) {
	t.Parallel()

	b, sub := newTestBackend(t)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(sub.payloads) != 0 {
		t.Fatalf("payloads=%d want 0 for empty buffers", len(sub.payloads))
	}
}

func TestFlush_ResetsBuffers(t *testing.T) {
	t.Parallel()

	b, sub := newTestBackend(t)
	b.IncCounter(metrics.MetricLoadBatches, 1, metrics.Labels{"endpoint": "items"})

	if err := b.Flush(); err != nil {
		t.Fatalf("first flush: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The second (final) flush must not resubmit the already-flushed counter.
	if len(sub.payloads) != 1 {
		t.Fatalf("payloads=%d want 1", len(sub.payloads))
	}
}

func TestHistograms_EmitPercentileGauges(t *testing.T) {
	t.Parallel()

	b, sub := newTestBackend(t)
	labels := metrics.Labels{"endpoint": "orders", "status": "200"}
	for _, v := range []float64{0.1, 0.2, 0.3, 0.4, 1.5} {
		b.ObserveHistogram(metrics.MetricHTTPDuration, v, labels)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	series := sub.series()
	p50 := findSeries(series, "jaffle.http.request_duration_seconds.p50")
	if p50 == nil || *p50.Points[0].Value != 0.3 {
		t.Fatalf("p50 series: %+v", p50)
	}
	max := findSeries(series, "jaffle.http.request_duration_seconds.max")
	if max == nil || *max.Points[0].Value != 1.5 {
		t.Fatalf("max series: %+v", max)
	}
	n := findSeries(series, "jaffle.http.request_duration_seconds.samples")
	if n == nil || *n.Points[0].Value != 5 {
		t.Fatalf("samples series: %+v", n)
	}
}

func TestIncCounter_IgnoresNonPositiveAndUnknown(t *testing.T) {
	t.Parallel()

	b, sub := newTestBackend(t)
	b.IncCounter(metrics.MetricHTTPRequests, 0, metrics.Labels{"endpoint": "orders", "status": "200"})
	b.IncCounter("something_else", 5, metrics.Labels{"endpoint": "orders"})
	b.ObserveHistogram(metrics.MetricHTTPDuration, -1, metrics.Labels{"endpoint": "orders", "status": "200"})

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(sub.payloads) != 0 {
		t.Fatalf("payloads=%d want 0", len(sub.payloads))
	}
}

func TestPercentileNearestRank(t *testing.T) {
	t.Parallel()

	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{0.5, 6},
		{0.9, 9},
		{0.99, 10},
		{1, 10},
	}
	for _, tc := range tests {
		if got := percentileNearestRank(sorted, tc.p); got != tc.want {
			t.Fatalf("p%v=%v want %v", tc.p, got, tc.want)
		}
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Fatalf("empty input=%v want 0", got)
	}
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"env:prod", []string{"env:prod"}},
		{"env:prod, service:jaffle ,", []string{"env:prod", "service:jaffle"}},
	}
	for _, tc := range tests {
		if got := ParseTagsCSV(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("ParseTagsCSV(%q)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func containsTag(tags []string, want string) bool {
	for _, tg := range tags {
		if tg == want {
			return true
		}
	}
	return false
}
