// TableSpec types live here so both the pipeline and backend packages can import
// them without circular deps.
package storage

// TableSpec describes one destination table for a loaded resource.
//
// The primary key drives merge semantics: backends must guarantee at most one
// row per key, with the latest loaded values winning.
type TableSpec struct {
	Name       string
	PrimaryKey string
	Columns    []ColumnSpec
}

// ColumnSpec describes a destination column using portable logical types.
// Backends translate logical types into their own DDL types.
//
// Logical types:
//   - "text":        free-form text (also used for currency-formatted amounts,
//     which intentionally keep their "$1,234.56" form at rest)
//   - "real":        double-precision float
//   - "boolean":     true/false
//   - "timestamptz": timestamp with zone; SQLite stores these as RFC3339 text
type ColumnSpec struct {
	Name     string
	Type     string
	Nullable bool
}

// ColumnNames returns the column names in declaration order.
// The primary key is always the first declared column by convention.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}

// ColumnIndex returns the position of a column, or -1 when absent.
func (t TableSpec) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// DedupeByKey collapses rows that share a value at keyIdx, keeping the last
// occurrence's values in the first occurrence's position. Postgres rejects an
// INSERT ... ON CONFLICT DO UPDATE that touches the same row twice within one
// statement, and SQL Server's MERGE rejects duplicate source keys, so backends
// that build multi-row statements must merge duplicates client-side first.
// A negative keyIdx returns the input unchanged.
func DedupeByKey(rows [][]any, keyIdx int) [][]any {
	if keyIdx < 0 || len(rows) < 2 {
		return rows
	}
	out := make([][]any, 0, len(rows))
	seen := make(map[any]int, len(rows))
	for _, row := range rows {
		if keyIdx >= len(row) {
			out = append(out, row)
			continue
		}
		if i, ok := seen[row[keyIdx]]; ok {
			out[i] = row
			continue
		}
		seen[row[keyIdx]] = len(out)
		out = append(out, row)
	}
	return out
}
