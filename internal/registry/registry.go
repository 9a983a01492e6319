// Package registry is the static endpoint catalog for the Jaffle Shop API.
//
// It is configuration data, not an algorithm: each entry maps a logical
// resource to its API path, primary key, page ceiling, and destination schema.
// Nothing here mutates or validates at runtime.
package registry

import "jaffle/internal/storage"

// Endpoint describes one extractable resource.
type Endpoint struct {
	// Name is the logical resource and destination table name.
	Name string
	// Path is the API path relative to the base URL.
	Path string
	// PrimaryKey is the merge key column.
	PrimaryKey string
	// MaxPages caps pagination for this resource.
	MaxPages int
	// Columns is the destination schema in declaration order (key first).
	// Currency-formatted amounts stay TEXT on purpose; the analytics layer
	// casts them in SQL.
	Columns []storage.ColumnSpec
}

// Audit columns stamped on every loaded row.
const (
	LoadedAtColumn = "_loaded_at"
	LoadIDColumn   = "_load_id"
)

// Endpoints lists the five Jaffle Shop resources in load order.
var Endpoints = []Endpoint{
	{
		Name:       "orders",
		Path:       "/orders",
		PrimaryKey: "id",
		MaxPages:   100,
		Columns: withAudit(
			storage.ColumnSpec{Name: "id", Type: "text"},
			storage.ColumnSpec{Name: "customer_id", Type: "text", Nullable: true},
			storage.ColumnSpec{Name: "store_id", Type: "text", Nullable: true},
			storage.ColumnSpec{Name: "ordered_at", Type: "timestamptz", Nullable: true},
			storage.ColumnSpec{Name: "order_total", Type: "text", Nullable: true},
		),
	},
	{
		Name:       "customers",
		Path:       "/customers",
		PrimaryKey: "id",
		MaxPages:   50,
		Columns: withAudit(
			storage.ColumnSpec{Name: "id", Type: "text"},
			storage.ColumnSpec{Name: "name", Type: "text", Nullable: true},
		),
	},
	{
		Name:       "items",
		Path:       "/items",
		PrimaryKey: "id",
		MaxPages:   100,
		Columns: withAudit(
			storage.ColumnSpec{Name: "id", Type: "text"},
			storage.ColumnSpec{Name: "order_id", Type: "text", Nullable: true},
			storage.ColumnSpec{Name: "sku", Type: "text", Nullable: true},
		),
	},
	{
		Name:       "supplies",
		Path:       "/supplies",
		PrimaryKey: "id",
		MaxPages:   20,
		Columns: withAudit(
			storage.ColumnSpec{Name: "id", Type: "text"},
			storage.ColumnSpec{Name: "name", Type: "text", Nullable: true},
			storage.ColumnSpec{Name: "sku", Type: "text", Nullable: true},
			storage.ColumnSpec{Name: "cost", Type: "text", Nullable: true},
			storage.ColumnSpec{Name: "perishable", Type: "boolean", Nullable: true},
		),
	},
	{
		Name:       "stores",
		Path:       "/stores",
		PrimaryKey: "id",
		MaxPages:   5,
		Columns: withAudit(
			storage.ColumnSpec{Name: "id", Type: "text"},
			storage.ColumnSpec{Name: "name", Type: "text", Nullable: true},
			storage.ColumnSpec{Name: "opened_at", Type: "timestamptz", Nullable: true},
			storage.ColumnSpec{Name: "tax_rate", Type: "real", Nullable: true},
		),
	},
}

// TableSpec renders the endpoint's destination table spec.
func (e Endpoint) TableSpec() storage.TableSpec {
	return storage.TableSpec{
		Name:       e.Name,
		PrimaryKey: e.PrimaryKey,
		Columns:    e.Columns,
	}
}

// Tables returns destination table specs for all endpoints.
func Tables() []storage.TableSpec {
	out := make([]storage.TableSpec, 0, len(Endpoints))
	for _, e := range Endpoints {
		out = append(out, e.TableSpec())
	}
	return out
}

// Names returns endpoint names in load order.
func Names() []string {
	out := make([]string, 0, len(Endpoints))
	for _, e := range Endpoints {
		out = append(out, e.Name)
	}
	return out
}

func withAudit(cols ...storage.ColumnSpec) []storage.ColumnSpec {
	return append(cols,
		storage.ColumnSpec{Name: LoadedAtColumn, Type: "timestamptz", Nullable: true},
		storage.ColumnSpec{Name: LoadIDColumn, Type: "text", Nullable: true},
	)
}
