package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Config is the minimal configuration needed to create a destination repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Repository is a backend-agnostic interface for the merge-load destination.
//
// IMPORTANT: This interface is intentionally minimal and focused on the
// operations the pipeline runner and analytics runner need. Each backend
// implements merge semantics in its own idiomatic way (SQLite/Postgres
// ON CONFLICT DO UPDATE, SQL Server MERGE).
type Repository interface {
	// Close releases backend resources. Treat as "call once" at shutdown.
	Close()

	// EnsureTables creates destination tables if they do not exist.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// DropTables removes previously loaded tables (full refresh).
	// Missing tables are not an error.
	DropTables(ctx context.Context, tables []TableSpec) error

	// MergeRows upserts rows keyed on the table's primary key and returns the
	// number of rows written. Incoming rows overwrite destination rows sharing
	// the same key; backends split oversized batches to respect their own
	// bind-parameter limits.
	MergeRows(ctx context.Context, table TableSpec, columns []string, rows [][]any) (int64, error)

	// CountRows returns the current row count of a destination table.
	CountRows(ctx context.Context, table string) (int64, error)

	// Handle exposes the underlying database handle for the read-only
	// analytics queries that run after the load completes.
	Handle() *sql.DB
}

// ---- backend factories (selected by Config.Kind) ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a destination backend under a kind (e.g. "sqlite").
//
// Call Register from an init() function in a backend package. Registering the
// same kind twice panics; this is intentional to fail fast on ambiguous
// backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing destination kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported destination kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
