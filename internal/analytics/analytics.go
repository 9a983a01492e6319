// Package analytics runs the fixed menu of read-only queries against the
// destination after a load completes.
//
// Each named query is a parameter-free SQL constant paired with a typed result
// row, so the read layer stays auditable and testable independent of the
// write layer. Errors propagate as database driver errors.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
)

// ProductSales is one row of the most-purchased-products ranking.
type ProductSales struct {
	Product         string
	SKU             string
	TotalSales      int64
	UniqueCustomers int64
	StoresSoldIn    int64
	TotalRevenue    float64
	AvgRevenue      float64
	SupplyCost      sql.NullFloat64
	GrossProfit     float64
	GrossMarginPct  sql.NullFloat64
}

// CategorySales is one row of the category breakdown.
type CategorySales struct {
	Category       string
	UniqueProducts int64
	TotalSales     int64
	TotalRevenue   float64
}

// SupplyPerformance is one row of the supply-chain analysis.
type SupplyPerformance struct {
	SupplyName       string
	SKU              string
	UnitCost         float64
	Perishable       bool
	UnitsSold        int64
	CustomersReached int64
	TotalCost        float64
}

// StoreRevenue is one row of the store performance report.
type StoreRevenue struct {
	StoreName       string
	Orders          int64
	UniqueCustomers int64
	TotalRevenue    sql.NullFloat64
	TaxRate         float64
}

// SKUCount is one row of the fallback per-SKU sales count.
type SKUCount struct {
	SKU   string
	Count int64
}

// MostPurchasedProducts returns the top-20 product ranking.
func MostPurchasedProducts(ctx context.Context, db *sql.DB) ([]ProductSales, error) {
	rows, err := db.QueryContext(ctx, QueryMostPurchasedProducts)
	if err != nil {
		return nil, fmt.Errorf("product analysis: %w", err)
	}
	defer rows.Close()

	var out []ProductSales
	for rows.Next() {
		var p ProductSales
		if err := rows.Scan(
			&p.Product, &p.SKU, &p.TotalSales, &p.UniqueCustomers, &p.StoresSoldIn,
			&p.TotalRevenue, &p.AvgRevenue, &p.SupplyCost, &p.GrossProfit, &p.GrossMarginPct,
		); err != nil {
			return nil, fmt.Errorf("product analysis: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CategoryBreakdown returns sales aggregated by SKU-prefix category.
func CategoryBreakdown(ctx context.Context, db *sql.DB) ([]CategorySales, error) {
	rows, err := db.QueryContext(ctx, QueryCategoryBreakdown)
	if err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}
	defer rows.Close()

	var out []CategorySales
	for rows.Next() {
		var c CategorySales
		if err := rows.Scan(&c.Category, &c.UniqueProducts, &c.TotalSales, &c.TotalRevenue); err != nil {
			return nil, fmt.Errorf("category breakdown: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SupplyChain returns the supply-chain performance rows.
func SupplyChain(ctx context.Context, db *sql.DB) ([]SupplyPerformance, error) {
	rows, err := db.QueryContext(ctx, QuerySupplyChain)
	if err != nil {
		return nil, fmt.Errorf("supply chain analysis: %w", err)
	}
	defer rows.Close()

	var out []SupplyPerformance
	for rows.Next() {
		var s SupplyPerformance
		if err := rows.Scan(
			&s.SupplyName, &s.SKU, &s.UnitCost, &s.Perishable,
			&s.UnitsSold, &s.CustomersReached, &s.TotalCost,
		); err != nil {
			return nil, fmt.Errorf("supply chain analysis: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// StorePerformance returns per-store order counts and revenue.
func StorePerformance(ctx context.Context, db *sql.DB) ([]StoreRevenue, error) {
	rows, err := db.QueryContext(ctx, QueryStorePerformance)
	if err != nil {
		return nil, fmt.Errorf("store performance: %w", err)
	}
	defer rows.Close()

	var out []StoreRevenue
	for rows.Next() {
		var s StoreRevenue
		if err := rows.Scan(&s.StoreName, &s.Orders, &s.UniqueCustomers, &s.TotalRevenue, &s.TaxRate); err != nil {
			return nil, fmt.Errorf("store performance: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SimpleSKUCounts returns the fallback per-SKU sales counts.
func SimpleSKUCounts(ctx context.Context, db *sql.DB) ([]SKUCount, error) {
	rows, err := db.QueryContext(ctx, QuerySimpleSKUCounts)
	if err != nil {
		return nil, fmt.Errorf("sku counts: %w", err)
	}
	defer rows.Close()

	var out []SKUCount
	for rows.Next() {
		var s SKUCount
		if err := rows.Scan(&s.SKU, &s.Count); err != nil {
			return nil, fmt.Errorf("sku counts: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
