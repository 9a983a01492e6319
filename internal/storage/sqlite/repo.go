package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"jaffle/internal/storage"
)

// Repo implements storage.Repository for SQLite, the embedded destination.
//
// Key design points:
//   - SQLite has no native TIMESTAMPTZ type; "timestamptz" columns are stored
//     as RFC3339 TEXT for reliable round-trip behavior and easy debugging.
//   - Merge uses INSERT ... ON CONFLICT(pk) DO UPDATE, which requires the
//     primary key declared in DDL (EnsureTables guarantees that).
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// Multi-statement write batches share one connection; modernc.org/sqlite
	// serializes access per connection, so cap the pool at one writer.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close()          { _ = r.db.Close() }
func (r *Repo) Handle() *sql.DB { return r.db }

// maxBindParams is kept well under SQLITE_MAX_VARIABLE_NUMBER so multi-row
// inserts never trip the limit regardless of build configuration.
const maxBindParams = 8000

// EnsureTables creates destination tables if absent. Load startup is idempotent.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// DropTables removes destination tables. Used by full refresh to discard all
// previously loaded state before re-extracting.
func (r *Repo) DropTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		if _, err := r.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(t.Name)); err != nil {
			return fmt.Errorf("drop table %s: %w", t.Name, err)
		}
	}
	return nil
}

// MergeRows upserts rows keyed on the table primary key.
//
// Behavior:
//   - Splits the batch so each statement stays under maxBindParams.
//   - All sub-batches run in a single transaction; a failed statement rolls
//     back the whole call and the error propagates to the runner unmodified.
func (r *Repo) MergeRows(ctx context.Context, table storage.TableSpec, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: merge into %s with no columns", table.Name)
	}

	perStatement := maxBindParams / len(columns)
	if perStatement < 1 {
		perStatement = 1
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var written int64
	for start := 0; start < len(rows); start += perStatement {
		end := start + perStatement
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		q, args := buildMergeSQL(table, columns, chunk)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return written, fmt.Errorf("merge into %s: %w", table.Name, err)
		}
		written += int64(len(chunk))
	}

	if err := tx.Commit(); err != nil {
		return written, err
	}
	return written, nil
}

func (r *Repo) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+sqlIdent(table)).Scan(&n)
	return n, err
}

// buildMergeSQL renders a multi-row upsert:
//
//	INSERT INTO t (c1, c2, ...) VALUES (?,?,...), ...
//	ON CONFLICT(pk) DO UPDATE SET c2 = excluded.c2, ...
//
// Every non-key column is overwritten from the incoming row, which implements
// "latest values win" merge semantics.
func buildMergeSQL(table storage.TableSpec, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table.Name))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, row...)
	}

	b.WriteString(" ON CONFLICT(")
	b.WriteString(sqlIdent(table.PrimaryKey))
	b.WriteString(") DO UPDATE SET ")
	first := true
	for _, c := range columns {
		if c == table.PrimaryKey {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(sqlIdent(c))
		b.WriteString(" = excluded.")
		b.WriteString(sqlIdent(c))
	}

	return b.String(), args
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}
	if t.PrimaryKey == "" {
		return "", fmt.Errorf("table %s: primary key is required for merge loads", t.Name)
	}

	parts := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		col := sqlIdent(c.Name) + " " + sqliteType(c.Type)
		if c.Name == t.PrimaryKey {
			col += " PRIMARY KEY"
		} else if !c.Nullable {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", sqlIdent(t.Name), strings.Join(parts, ",\n  ")), nil
}

// sqliteType translates logical column types into SQLite DDL types.
// Timestamps become TEXT; see the Repo doc comment.
func sqliteType(logical string) string {
	switch strings.ToLower(strings.TrimSpace(logical)) {
	case "real":
		return "REAL"
	case "boolean":
		return "BOOLEAN"
	case "timestamptz":
		return "TEXT"
	default:
		return "TEXT"
	}
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
