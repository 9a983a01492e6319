package postgres

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

	wantPrefix := `INSERT INTO "orders" ("id", "order_total") VALUES ($1,$2), ($3,$4)`
	if !strings.HasPrefix(q, wantPrefix) {
		t.Fatalf("query %q\nwant prefix %q", q, wantPrefix)
	}
	if !strings.Contains(q, `ON CONFLICT ("id") DO UPDATE SET "order_total" = EXCLUDED."order_total"`) {
		t.Fatalf("missing conflict clause: %q", q)
	}
	if strings.Contains(q, `"id" = EXCLUDED."id"`) {
		t.Fatalf("primary key must not appear in the update set: %q", q)
	}
	if len(args) != 4 {
		t.Fatalf("args=%d want 4", len(args))
	}
}

// A batch repeating a primary key must collapse to one tuple per key before
// rendering; Postgres rejects an ON CONFLICT DO UPDATE that affects the same
// row twice in one statement.
func TestMergeStatement_DuplicateKeyCollapsesToLatest(t *testing.T) {
	t.Parallel()

	table := ordersTable()
	columns := table.ColumnNames()
	rows := [][]any{
		{"o1", "$10.00"},
		{"o2", "$20.00"},
		{"o1", "$15.00"},
	}

	deduped := storage.DedupeByKey(rows, keyIndex(columns, table.PrimaryKey))
	q, args := buildMergeSQL(table, columns, deduped)

	if !strings.Contains(q, "($1,$2), ($3,$4)") || strings.Contains(q, "$5") {
		t.Fatalf("expected exactly two tuples: %q", q)
	}
	want := []any{"o1", "$15.00", "o2", "$20.00"}
	if len(args) != len(want) {
		t.Fatalf("args=%v want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args=%v want %v", args, want)
		}
	}
}

func TestKeyIndex(t *testing.T) {
	t.Parallel()

	if got := keyIndex([]string{"id", "order_total"}, "id"); got != 0 {
		t.Fatalf("keyIndex=%d want 0", got)
	}
	if got := keyIndex([]string{"id", "order_total"}, "sku"); got != -1 {
		t.Fatalf("keyIndex=%d want -1", got)
	}
}
