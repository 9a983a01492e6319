package registry

import (
	"testing"
)

// TestEndpoints_MatchDocumentedSchema pins the endpoint catalog to the
// documented API surface: path, merge key, page ceiling, and schema columns.
// A drift here silently changes what gets loaded, so it is locked by test.
func TestEndpoints_MatchDocumentedSchema(t *testing.T) {
	t.Parallel()

	want := []struct {
		name       string
		path       string
		primaryKey string
		maxPages   int
		columns    []string
	}{
		{"orders", "/orders", "id", 100, []string{"id", "customer_id", "store_id", "ordered_at", "order_total"}},
		{"customers", "/customers", "id", 50, []string{"id", "name"}},
		{"items", "/items", "id", 100, []string{"id", "order_id", "sku"}},
		{"supplies", "/supplies", "id", 20, []string{"id", "name", "sku", "cost", "perishable"}},
		{"stores", "/stores", "id", 5, []string{"id", "name", "opened_at", "tax_rate"}},
	}

	if len(Endpoints) != len(want) {
		t.Fatalf("endpoint count: got %d want %d", len(Endpoints), len(want))
	}

	for i, w := range want {
		ep := Endpoints[i]
		if ep.Name != w.name {
			t.Fatalf("endpoint %d: name=%q want %q", i, ep.Name, w.name)
		}
		if ep.Path != w.path {
			t.Fatalf("%s: path=%q want %q", ep.Name, ep.Path, w.path)
		}
		if ep.PrimaryKey != w.primaryKey {
			t.Fatalf("%s: primary key=%q want %q", ep.Name, ep.PrimaryKey, w.primaryKey)
		}
		if ep.MaxPages != w.maxPages {
			t.Fatalf("%s: max pages=%d want %d", ep.Name, ep.MaxPages, w.maxPages)
		}

		// Schema columns plus the two audit columns, in order, key first.
		wantCols := append(append([]string{}, w.columns...), LoadedAtColumn, LoadIDColumn)
		gotCols := ep.TableSpec().ColumnNames()
		if len(gotCols) != len(wantCols) {
			t.Fatalf("%s: columns %v want %v", ep.Name, gotCols, wantCols)
		}
		for j := range wantCols {
			if gotCols[j] != wantCols[j] {
				t.Fatalf("%s: column %d=%q want %q", ep.Name, j, gotCols[j], wantCols[j])
			}
		}
		if gotCols[0] != ep.PrimaryKey {
			t.Fatalf("%s: first column %q is not the primary key", ep.Name, gotCols[0])
		}
	}
}

// Currency-formatted columns must stay text at rest; the analytics layer
// casts them in SQL.
func TestEndpoints_CurrencyColumnsAreText(t *testing.T) {
	t.Parallel()

	checks := map[string]string{
		"orders":   "order_total",
		"supplies": "cost",
	}

	for _, ep := range Endpoints {
		col, ok := checks[ep.Name]
		if !ok {
			continue
		}
		idx := ep.TableSpec().ColumnIndex(col)
		if idx < 0 {
			t.Fatalf("%s: missing column %s", ep.Name, col)
		}
		if typ := ep.Columns[idx].Type; typ != "text" {
			t.Fatalf("%s.%s: type=%q want text", ep.Name, col, typ)
		}
	}
}

func TestTablesAndNames(t *testing.T) {
	t.Parallel()

	if got := Names(); len(got) != len(Endpoints) {
		t.Fatalf("Names() len=%d want %d", len(got), len(Endpoints))
	}
	for i, tbl := range Tables() {
		if tbl.Name != Endpoints[i].Name {
			t.Fatalf("Tables()[%d].Name=%q want %q", i, tbl.Name, Endpoints[i].Name)
		}
		if tbl.PrimaryKey != Endpoints[i].PrimaryKey {
			t.Fatalf("Tables()[%d].PrimaryKey=%q want %q", i, tbl.PrimaryKey, Endpoints[i].PrimaryKey)
		}
	}
}
