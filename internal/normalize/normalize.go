// Package normalize converts raw API records into positional destination rows.
//
// This is the local counterpart of a load library's normalize stage: incoming
// JSON objects are mapped onto the endpoint's column specs, scalar values are
// coerced to the column's logical type, and every row is stamped with the
// run's load id and load timestamp. Unknown fields are dropped; missing
// fields become NULL.
package normalize

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"jaffle/internal/registry"
)

// Normalizer maps records of a single endpoint onto destination rows.
type Normalizer struct {
	Endpoint registry.Endpoint
	LoadID   string

	// Now is a clock seam for deterministic tests. Nil means time.Now.
	Now func() time.Time
}

// Rows normalizes a chunk of records.
func (n *Normalizer) Rows(chunk []map[string]any) [][]any {
	out := make([][]any, 0, len(chunk))
	for _, rec := range chunk {
		out = append(out, n.Row(rec))
	}
	return out
}

// Row normalizes one record into a positional row matching the endpoint's
// column order.
func (n *Normalizer) Row(rec map[string]any) []any {
	loadedAt := time.Now
	if n.Now != nil {
		loadedAt = n.Now
	}

	cols := n.Endpoint.Columns
	row := make([]any, len(cols))
	for i, c := range cols {
		switch c.Name {
		case registry.LoadedAtColumn:
			row[i] = loadedAt().UTC().Format(time.RFC3339Nano)
		case registry.LoadIDColumn:
			row[i] = n.LoadID
		default:
			row[i] = coerce(lookupField(rec, c.Name), c.Type)
		}
	}
	return row
}

// lookupField finds a record value for a destination column, tolerating
// non-canonical source keys ("Order Total", "order-total").
func lookupField(rec map[string]any, column string) any {
	if v, ok := rec[column]; ok {
		return v
	}
	for k, v := range rec {
		if snakeCase(k) == column {
			return v
		}
	}
	return nil
}

// coerce converts a decoded JSON scalar to the column's logical type.
// Values that cannot be coerced are passed through; the destination driver
// reports them as write errors, which is the documented failure path.
func coerce(v any, logical string) any {
	if v == nil {
		return nil
	}

	switch strings.ToLower(logical) {
	case "real":
		switch t := v.(type) {
		case float64:
			return t
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return f
			}
		case bool:
			if t {
				return float64(1)
			}
			return float64(0)
		}
		return v

	case "boolean":
		switch t := v.(type) {
		case bool:
			return t
		case float64:
			return t != 0
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
				return b
			}
		}
		return v

	default:
		// text / timestamptz: keep text forms as-is. Currency-formatted
		// amounts in particular must stay text at rest.
		switch t := v.(type) {
		case string:
			return t
		case float64:
			return strconv.FormatFloat(t, 'g', -1, 64)
		case bool:
			return strconv.FormatBool(t)
		}
		return v
	}
}

// snakeCase canonicalizes a source field name: lower-cased, with spaces and
// dashes collapsed to underscores.
func snakeCase(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

// Pool runs normalization with bounded worker concurrency.
//
// Chunks are consumed from in and emitted to out as row batches. Cross-chunk
// ordering is not preserved; merge loads do not depend on it.
type Pool struct {
	Workers int
}

// Run consumes in until it is closed, then closes out.
// Cancellation stops work between chunks.
func (p *Pool) Run(ctx context.Context, n *Normalizer, in <-chan []map[string]any, out chan<- [][]any) {
	defer close(out)

	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()

			for chunk := range in {
				rows := n.Rows(chunk)
				select {
				case out <- rows:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	wg.Wait()
}
