package mssql

import (
	"strings"
	"testing"

	"jaffle/internal/storage"
)

func ordersTable() storage.TableSpec {
	return storage.TableSpec{
		Name:       "orders",
		PrimaryKey: "id",
		Columns: []storage.ColumnSpec{
			{Name: "id", Type: "text"},
			{Name: "order_total", Type: "text", Nullable: true},
		},
	}
}

func TestBuildMergeSQL(t *testing.T) {
	t.Parallel()

	table := ordersTable()
	columns := table.ColumnNames()
	rows := [][]any{
		{"o1", "$10.00"},
		{"o2", "$20.00"},
	}

	q, args := buildMergeSQL(table, columns, rows)

	if !strings.HasPrefix(q, "MERGE INTO [orders] AS target USING (VALUES (@p1,@p2), (@p3,@p4))") {
		t.Fatalf("query %q", q)
	}
	if !strings.Contains(q, "ON target.[id] = src.[id]") {
		t.Fatalf("missing join condition: %q", q)
	}
	if !strings.Contains(q, "WHEN MATCHED THEN UPDATE SET target.[order_total] = src.[order_total]") {
		t.Fatalf("missing update clause: %q", q)
	}
	if strings.Contains(q, "target.[id] = src.[id],") {
		t.Fatalf("primary key must not appear in the update set: %q", q)
	}
	if len(args) != 4 {
		t.Fatalf("args=%d want 4", len(args))
	}
}

// MERGE rejects duplicate source keys, so a batch repeating a primary key must
// collapse to one source row per key with the latest values.
func TestMergeStatement_DuplicateKeyCollapsesToLatest(t *testing.T) {
	t.Parallel()

	table := ordersTable()
	columns := table.ColumnNames()
	rows := [][]any{
		{"o1", "$10.00"},
		{"o1", "$15.00"},
	}

	deduped := storage.DedupeByKey(rows, keyIndex(columns, table.PrimaryKey))
	q, args := buildMergeSQL(table, columns, deduped)

	if strings.Contains(q, "@p3") {
		t.Fatalf("expected a single source tuple: %q", q)
	}
	if len(args) != 2 || args[0] != "o1" || args[1] != "$15.00" {
		t.Fatalf("args=%v want [o1 $15.00]", args)
	}
}
