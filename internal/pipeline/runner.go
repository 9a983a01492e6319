// Package pipeline orchestrates the complete extract/normalize/merge-load run.
//
// Execution is strictly linear: configure, then for each registry endpoint
// stream chunks through normalization into buffered merge writes, then report.
// The first error anywhere cancels the run and propagates unmodified; there
// is no retry, backoff, or partial-failure recovery here.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"jaffle/internal/config"
	"jaffle/internal/extract"
	"jaffle/internal/metrics"
	"jaffle/internal/normalize"
	"jaffle/internal/registry"
	"jaffle/internal/storage"
)

// Runner executes the complete pipeline.
//
// The exported fields are seams:
//   - NewRepository: storage factory (tests inject in-memory destinations).
//   - Fetch: page provider (tests inject deterministic pages).
//   - NewLoadID: run id generator.
type Runner struct {
	Cfg    config.Config
	Logger *zap.Logger

	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	Fetch         extract.FetchFn
	NewLoadID     func() string
}

// NewRunner wires the production dependencies: the registered storage
// backends, an HTTP page client, and uuid run ids.
func NewRunner(cfg config.Config, logger *zap.Logger) *Runner {
	client := extract.NewClient(cfg.BaseURL, cfg.PageSize, cfg.HTTPTimeout)
	return &Runner{
		Cfg:           cfg,
		Logger:        logger,
		NewRepository: storage.New,
		Fetch:         client.FetchPage,
		NewLoadID:     uuid.NewString,
	}
}

// OpenDestination opens the configured destination, used by the analytics
// stage after the load completes.
func OpenDestination(ctx context.Context, cfg config.Config) (storage.Repository, error) {
	return storage.New(ctx, storage.Config{Kind: cfg.Destination, DSN: cfg.DSN})
}

// Run executes the complete pipeline and returns its report.
//
// Behavior:
//   - FullRefresh drops the destination tables before loading.
//   - Endpoints load sequentially, in registry order; within an endpoint,
//     extraction and normalization run concurrently with the writer.
//
// Errors:
//   - Network, normalization, and destination-write errors abort the run and
//     propagate to the caller unmodified.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	log := r.logger()
	cfg := r.Cfg

	log.Info("jaffle shop complete pipeline",
		zap.Int("cpu_cores", runtime.NumCPU()),
		zap.Int("extract_workers", cfg.ExtractWorkers),
		zap.Int("normalize_workers", cfg.NormalizeWorkers),
		zap.Int("chunk_size", cfg.ChunkSize),
		zap.String("destination", cfg.Destination),
		zap.String("endpoints", strings.Join(registry.Names(), ", ")),
	)

	repo, err := r.NewRepository(ctx, storage.Config{Kind: cfg.Destination, DSN: cfg.DSN})
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	defer repo.Close()

	tables := registry.Tables()
	if cfg.FullRefresh {
		log.Info("full refresh: dropping previously loaded tables")
		if err := repo.DropTables(ctx, tables); err != nil {
			return nil, err
		}
	}
	if err := repo.EnsureTables(ctx, tables); err != nil {
		return nil, err
	}

	report := &Report{
		LoadID:    r.NewLoadID(),
		StartedAt: time.Now(),
	}

	for _, ep := range registry.Endpoints {
		load, err := r.loadEndpoint(ctx, repo, ep, report.LoadID)
		if err != nil {
			return nil, err
		}
		report.Endpoints = append(report.Endpoints, load)
	}

	report.Duration = time.Since(report.StartedAt)

	log.Info("pipeline completed",
		zap.String("load_id", report.LoadID),
		zap.Duration("duration", report.Duration.Truncate(time.Millisecond)),
	)
	r.logStats(ctx, repo, report)

	return report, nil
}

// loadEndpoint streams one endpoint: extractor goroutine -> chunk channel ->
// normalize pool -> row batches -> buffered merge writes on this goroutine.
func (r *Runner) loadEndpoint(ctx context.Context, repo storage.Repository, ep registry.Endpoint, loadID string) (EndpointLoad, error) {
	cfg := r.Cfg
	log := r.logger().Named(ep.Name)
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan []map[string]any, cfg.ExtractWorkers)
	rowBatches := make(chan [][]any, cfg.NormalizeWorkers)

	ext := &extract.Extractor{
		Fetch:           r.Fetch,
		Workers:         cfg.ExtractWorkers,
		BatchPages:      cfg.BatchPages,
		ChunkSize:       cfg.ChunkSize,
		EmptyBatchLimit: cfg.EmptyBatchLimit,
		Logger:          r.logger(),
	}

	var (
		extRequests int
		extErr      error
	)
	go func() {
		defer close(chunks)
		extRequests, extErr = ext.Run(ctx, ep, chunks)
	}()

	norm := &normalize.Normalizer{Endpoint: ep, LoadID: loadID}
	pool := &normalize.Pool{Workers: cfg.NormalizeWorkers}
	go pool.Run(ctx, norm, chunks, rowBatches)

	table := ep.TableSpec()
	columns := table.ColumnNames()

	var (
		buffer  [][]any
		written int64
	)
	flush := func() error {
		for startIdx := 0; startIdx < len(buffer); startIdx += cfg.FileMaxItems {
			end := startIdx + cfg.FileMaxItems
			if end > len(buffer) {
				end = len(buffer)
			}
			batch := buffer[startIdx:end]

			writeStart := time.Now()
			n, err := repo.MergeRows(ctx, table, columns, batch)
			metrics.RecordLoad(ep.Name, n, time.Since(writeStart))
			written += n
			if err != nil {
				return err
			}
		}
		buffer = buffer[:0]
		return nil
	}

	for rows := range rowBatches {
		buffer = append(buffer, rows...)
		if len(buffer) >= cfg.BufferMaxItems {
			if err := flush(); err != nil {
				cancel()
				drain(rowBatches)
				return EndpointLoad{}, err
			}
		}
	}
	if err := flush(); err != nil {
		return EndpointLoad{}, err
	}

	// rowBatches is closed only after the extractor goroutine finished, so
	// extErr/extRequests are settled here.
	if extErr != nil {
		return EndpointLoad{}, extErr
	}

	load := EndpointLoad{
		Name:     ep.Name,
		Rows:     written,
		Requests: extRequests,
		Duration: time.Since(start),
	}
	log.Info("endpoint loaded",
		zap.Int64("rows", load.Rows),
		zap.Int("requests", load.Requests),
		zap.Duration("duration", load.Duration.Truncate(time.Millisecond)),
	)
	return load, nil
}

// logStats mirrors the original post-run statistics block: per-table counts
// from the destination, total, and throughput, with thousands separators.
func (r *Runner) logStats(ctx context.Context, repo storage.Repository, report *Report) {
	log := r.logger().Named("stats")
	p := message.NewPrinter(language.English)

	var total int64
	for _, ep := range registry.Endpoints {
		count, err := repo.CountRows(ctx, ep.Name)
		if err != nil {
			log.Warn("could not get stats", zap.String("table", ep.Name), zap.Error(err))
			continue
		}
		total += count
		log.Info(p.Sprintf("%s: %d records", ep.Name, count))
	}

	log.Info(p.Sprintf("total records: %d", total))
	if tp := report.Throughput(); tp > 0 {
		log.Info(p.Sprintf("throughput: %.0f records/second", tp))
	}
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func drain[T any](ch <-chan T) {
	for range ch {
	}
}
