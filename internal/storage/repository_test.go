package storage

import (
	"context"
	"database/sql"
	"testing"
)

type stubRepo struct{}

func (stubRepo) Close() {}

func (stubRepo) EnsureTables(context.Context, []TableSpec) error {
	return nil
}

func (stubRepo) DropTables(context.Context, []TableSpec) error {
	return nil
}

func (stubRepo) CountRows(context.Context, string) (int64, error) {
	return 0, nil
}

func (stubRepo) Handle() *sql.DB {
	return nil
}

func (stubRepo) MergeRows(context.Context, TableSpec, []string, [][]any) (int64, error) {
	return 0, nil
}

func TestRegisterAndNew(t *testing.T) {
	Register("stub", func(ctx context.Context, cfg Config) (Repository, error) {
		return stubRepo{}, nil
	})

	repo, err := New(context.Background(), Config{Kind: "stub"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if repo == nil {
		t.Fatal("New returned nil repository")
	}
}

func TestNew_UnknownKind(t *testing.T) {
	if _, err := New(context.Background(), Config{Kind: "oracle"}); err == nil {
		t.Fatal("expected error for unregistered kind")
	}
}

func TestNew_EmptyKind(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for empty kind")
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate Register")
		}
	}()

	f := func(ctx context.Context, cfg Config) (Repository, error) { return stubRepo{}, nil }
	Register("dup", f)
	Register("dup", f)
}

func TestRegister_EmptyKindPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on empty kind")
		}
	}()
	Register("", func(ctx context.Context, cfg Config) (Repository, error) { return stubRepo{}, nil })
}

func TestColumnNamesAndIndex(t *testing.T) {
	t.Parallel()

	table := TableSpec{
		Name:       "items",
		PrimaryKey: "id",
		Columns: []ColumnSpec{
			{Name: "id", Type: "text"},
			{Name: "order_id", Type: "text", Nullable: true},
			{Name: "sku", Type: "text", Nullable: true},
		},
	}

	names := table.ColumnNames()
	want := []string{"id", "order_id", "sku"}
	if len(names) != len(want) {
		t.Fatalf("names=%v want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names=%v want %v", names, want)
		}
	}

	if idx := table.ColumnIndex("sku"); idx != 2 {
		t.Fatalf("ColumnIndex(sku)=%d want 2", idx)
	}
	if idx := table.ColumnIndex("missing"); idx != -1 {
		t.Fatalf("ColumnIndex(missing)=%d want -1", idx)
	}
}

func TestDedupeByKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		rows   [][]any
		keyIdx int
		want   [][]any
	}{
		{
			name: "last occurrence wins in first position",
			rows: [][]any{
				{"o1", "$10.00"},
				{"o2", "$20.00"},
				{"o1", "$15.00"},
			},
			keyIdx: 0,
			want: [][]any{
				{"o1", "$15.00"},
				{"o2", "$20.00"},
			},
		},
		{
			name:   "no duplicates unchanged",
			rows:   [][]any{{"o1", "a"}, {"o2", "b"}},
			keyIdx: 0,
			want:   [][]any{{"o1", "a"}, {"o2", "b"}},
		},
		{
			name:   "negative key index passes through",
			rows:   [][]any{{"o1", "a"}, {"o1", "b"}},
			keyIdx: -1,
			want:   [][]any{{"o1", "a"}, {"o1", "b"}},
		},
		{
			name:   "empty",
			rows:   nil,
			keyIdx: 0,
			want:   nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DedupeByKey(tc.rows, tc.keyIdx)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
			for i := range tc.want {
				for j := range tc.want[i] {
					if got[i][j] != tc.want[i][j] {
						t.Fatalf("row %d: got %v want %v", i, got[i], tc.want[i])
					}
				}
			}
		})
	}
}
