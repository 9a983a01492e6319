// Package postgres implements the Postgres destination backend.
//
// The pipeline's default destination is the embedded SQLite file; Postgres is
// the server-side alternative for loads that should land in a shared warehouse.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"jaffle/internal/storage"
)

type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("postgres", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close()          { _ = r.db.Close() }
func (r *Repo) Handle() *sql.DB { return r.db }

// Postgres allows up to 65535 binds per statement; stay far below that.
const maxBindParams = 8000

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

func (r *Repo) DropTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		if _, err := r.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(t.Name)); err != nil {
			return fmt.Errorf("drop table %s: %w", t.Name, err)
		}
	}
	return nil
}

// MergeRows upserts rows via INSERT ... ON CONFLICT (pk) DO UPDATE.
// Sub-batches share one transaction; the first failure rolls everything back.
// Rows repeating a primary key within the batch are collapsed client-side,
// last occurrence wins; ON CONFLICT DO UPDATE cannot affect a row twice in
// one statement.
func (r *Repo) MergeRows(ctx context.Context, table storage.TableSpec, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("postgres: merge into %s with no columns", table.Name)
	}
	rows = storage.DedupeByKey(rows, keyIndex(columns, table.PrimaryKey))

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

func keyIndex(columns []string, key string) int {
	for i, c := range columns {
		if c == key {
			return i
		}
	}
	return -1
}

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

	args := make([]any, 0, len(rows)*len(columns))
	n := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(",")
			}
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			n++
		}
		b.WriteString(")")
		args = append(args, row...)
	}

	b.WriteString(" ON CONFLICT (")
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
		b.WriteString(" = EXCLUDED.")
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

	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		col := sqlIdent(c.Name) + " " + pgType(c.Type)
		if c.Name == t.PrimaryKey {
			col += " PRIMARY KEY"
		} else if !c.Nullable {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", sqlIdent(t.Name), strings.Join(parts, ",\n  ")), nil
}

func pgType(logical string) string {
	switch strings.ToLower(strings.TrimSpace(logical)) {
	case "real":
		return "DOUBLE PRECISION"
	case "boolean":
		return "BOOLEAN"
	case "timestamptz":
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
