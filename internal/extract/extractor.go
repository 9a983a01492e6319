package extract

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"jaffle/internal/registry"
)

// FetchFn is a seam for providing pages.
//
// When to use:
//   - Production: Client.FetchPage.
//   - Unit tests: inject deterministic pages without HTTP.
type FetchFn func(ctx context.Context, ep registry.Endpoint, page int) ([]map[string]any, error)

// Extractor streams one endpoint's records as chunks.
//
// Termination rules (in order):
//   - page number exceeds the endpoint's MaxPages
//   - EmptyBatchLimit consecutive batches contain no records at all
//
// A single empty page inside an otherwise non-empty batch does not terminate
// extraction; only consecutive all-empty batches do. With BatchPages=1 the
// extractor issues exactly one request past the last non-empty page.
type Extractor struct {
	Fetch FetchFn

	// Workers bounds concurrent page fetches within a batch.
	Workers int
	// BatchPages is how many page numbers each batch covers.
	BatchPages int
	// ChunkSize bounds how many records accumulate before a chunk is emitted.
	ChunkSize int
	// EmptyBatchLimit is how many consecutive all-empty batches end the run.
	EmptyBatchLimit int

	Logger *zap.Logger
}

// Run extracts ep and sends record chunks on out until the endpoint is
// exhausted. It does not close out; the caller owns the channel.
//
// Returns the number of page requests issued.
//
// Errors:
//   - The first fetch error aborts the run and propagates unmodified.
//   - ctx cancellation aborts between sends and between batches.
func (e *Extractor) Run(ctx context.Context, ep registry.Endpoint, out chan<- []map[string]any) (int, error) {
	if e.Fetch == nil {
		return 0, fmt.Errorf("extract: Fetch is required")
	}

	workers := e.Workers
	if workers <= 0 {
		workers = 1
	}
	batchPages := e.BatchPages
	if batchPages <= 0 {
		batchPages = 1
	}
	chunkSize := e.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	emptyLimit := e.EmptyBatchLimit
	if emptyLimit <= 0 {
		emptyLimit = 1
	}

	log := e.logger().Named(ep.Name)
	log.Info("starting extraction",
		zap.Int("start_page", 1),
		zap.Int("max_pages", ep.MaxPages),
	)

	var (
		buffer     []map[string]any
		requests   int
		emptyCount int
		page       = 1
	)

	emit := func(chunk []map[string]any) error {
		select {
		case out <- chunk:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for page <= ep.MaxPages && emptyCount < emptyLimit {
		batchEnd := page + batchPages
		if batchEnd > ep.MaxPages+1 {
			batchEnd = ep.MaxPages + 1
		}

		log.Debug("processing batch", zap.Int("first_page", page), zap.Int("last_page", batchEnd-1))

		pages, err := e.fetchBatch(ctx, ep, page, batchEnd, workers)
		requests += batchEnd - page
		if err != nil {
			return requests, err
		}

		batchEmpty := true
		for _, records := range pages {
			if len(records) == 0 {
				continue
			}
			batchEmpty = false
			buffer = append(buffer, records...)
		}

		for len(buffer) >= chunkSize {
			chunk := make([]map[string]any, chunkSize)
			copy(chunk, buffer)
			buffer = buffer[chunkSize:]

			log.Debug("yielding chunk", zap.Int("records", len(chunk)))
			if err := emit(chunk); err != nil {
				return requests, err
			}
		}

		if batchEmpty {
			emptyCount++
			log.Debug("empty batch", zap.Int("streak", emptyCount))
		} else {
			emptyCount = 0
		}

		page = batchEnd
	}

	if len(buffer) > 0 {
		log.Debug("yielding final chunk", zap.Int("records", len(buffer)))
		if err := emit(buffer); err != nil {
			return requests, err
		}
	}

	log.Info("extraction completed", zap.Int("requests", requests))
	return requests, nil
}

// fetchBatch fetches pages [first, end) with bounded concurrency and returns
// results in page order. The first error wins; remaining in-flight fetches
// still complete before the error is returned.
func (e *Extractor) fetchBatch(ctx context.Context, ep registry.Endpoint, first, end, workers int) ([][]map[string]any, error) {
	n := end - first
	results := make([][]map[string]any, n)
	errs := make([]error, n)

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = e.Fetch(ctx, ep, first+i)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (e *Extractor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
