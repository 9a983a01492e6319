package pipeline

import "time"

// Report summarizes one complete pipeline run.
type Report struct {
	// LoadID is the run identifier stamped on every loaded row.
	LoadID    string
	StartedAt time.Time
	Duration  time.Duration
	Endpoints []EndpointLoad
}

// EndpointLoad is the per-resource outcome.
type EndpointLoad struct {
	Name     string
	Rows     int64
	Requests int
	Duration time.Duration
}

// TotalRows sums rows written across all endpoints.
func (r *Report) TotalRows() int64 {
	var n int64
	for _, e := range r.Endpoints {
		n += e.Rows
	}
	return n
}

// Throughput returns rows per second for the whole run, or 0 for an
// instantaneous run.
func (r *Report) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.TotalRows()) / r.Duration.Seconds()
}
