// Package mssql implements the SQL Server destination backend.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"jaffle/internal/storage"
)

// Repo implements storage.Repository for SQL Server.
//
// Merge uses a single MERGE statement per sub-batch. SQL Server caps binds at
// 2100 per statement, so sub-batches are much smaller than on other backends.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
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

// SQL Server rejects statements with more than 2100 parameters.
const maxBindParams = 2000

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
		q := fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s;", t.Name, sqlIdent(t.Name))
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("drop table %s: %w", t.Name, err)
		}
	}
	return nil
}

// MergeRows upserts rows with one MERGE statement per sub-batch, all inside
// one transaction. Rows repeating a primary key within the batch are collapsed
// client-side, last occurrence wins; MERGE rejects duplicate source keys.
func (r *Repo) MergeRows(ctx context.Context, table storage.TableSpec, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("mssql: merge into %s with no columns", table.Name)
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

// buildMergeSQL renders one MERGE per sub-batch:
//
//	MERGE INTO t AS target
//	USING (VALUES (@p1,...), ...) AS src (c1, c2, ...)
//	ON target.pk = src.pk
//	WHEN MATCHED THEN UPDATE SET target.c2 = src.c2, ...
//	WHEN NOT MATCHED THEN INSERT (c1, ...) VALUES (src.c1, ...);
func buildMergeSQL(table storage.TableSpec, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("MERGE INTO ")
	b.WriteString(sqlIdent(table.Name))
	b.WriteString(" AS target USING (VALUES ")

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
			b.WriteString("@p")
			b.WriteString(strconv.Itoa(n))
			n++
		}
		b.WriteString(")")
		args = append(args, row...)
	}

	b.WriteString(") AS src (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") ON target.")
	b.WriteString(sqlIdent(table.PrimaryKey))
	b.WriteString(" = src.")
	b.WriteString(sqlIdent(table.PrimaryKey))

	b.WriteString(" WHEN MATCHED THEN UPDATE SET ")
	first := true
	for _, c := range columns {
		if c == table.PrimaryKey {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString("target.")
		b.WriteString(sqlIdent(c))
		b.WriteString(" = src.")
		b.WriteString(sqlIdent(c))
	}

	b.WriteString(" WHEN NOT MATCHED THEN INSERT (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("src.")
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(");")

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
		col := sqlIdent(c.Name) + " " + mssqlType(c.Type)
		if c.Name == t.PrimaryKey {
			col += " PRIMARY KEY"
		} else if !c.Nullable {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}

	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (\n  %s\n);",
		t.Name, sqlIdent(t.Name), strings.Join(parts, ",\n  "),
	), nil
}

// mssqlType translates logical column types into SQL Server DDL types.
// Text columns use NVARCHAR(400) so the primary key stays indexable.
func mssqlType(logical string) string {
	switch strings.ToLower(strings.TrimSpace(logical)) {
	case "real":
		return "FLOAT"
	case "boolean":
		return "BIT"
	case "timestamptz":
		return "DATETIMEOFFSET"
	default:
		return "NVARCHAR(400)"
	}
}

func sqlIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}
