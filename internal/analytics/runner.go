package analytics

import (
	"context"
	"database/sql"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Runner executes the full analytics menu and logs formatted results.
type Runner struct {
	DB     *sql.DB
	Logger *zap.Logger
}

// RunAll runs the product analysis (with its category breakdown), the
// supply-chain analysis, and the store performance report.
//
// Behavior:
//   - If the product analysis fails, it falls back to the simple per-SKU
//     count query before giving up, matching the original pipeline.
//   - The first unrecoverable error stops the run and propagates.
func (r *Runner) RunAll(ctx context.Context) error {
	if err := r.MostPurchasedProduct(ctx); err != nil {
		return err
	}
	if err := r.SupplyChainAnalysis(ctx); err != nil {
		return err
	}
	return r.StorePerformanceReport(ctx)
}

// MostPurchasedProduct logs the top-20 product ranking, the winner summary,
// and the category breakdown.
func (r *Runner) MostPurchasedProduct(ctx context.Context) error {
	log := r.logger().Named("analysis").Sugar()
	p := message.NewPrinter(language.English)

	log.Info("analyzing most purchased product")

	products, err := MostPurchasedProducts(ctx, r.DB)
	if err != nil {
		log.Errorw("product analysis failed, falling back to simple counts", "error", err)
		return r.simpleSKUFallback(ctx)
	}
	if len(products) == 0 {
		log.Warn("no data found; make sure the pipeline has run successfully")
		return nil
	}

	log.Info("top 20 most purchased products:")
	log.Infof("%-30s %-10s %-8s %-10s %-12s %-10s %-12s %-10s",
		"Product", "SKU", "Sales", "Customers", "Revenue", "Cost/Unit", "Gross Profit", "Margin %")
	for _, pr := range products {
		log.Info(p.Sprintf("%-30s %-10s %-8d %-10d $%-11.2f $%-9.2f $%-11.2f %-9.1f%%",
			pr.Product, pr.SKU, pr.TotalSales, pr.UniqueCustomers,
			pr.TotalRevenue, pr.SupplyCost.Float64, pr.GrossProfit, pr.GrossMarginPct.Float64))
	}

	winner := products[0]
	log.Info("most purchased product:")
	log.Infof("product: %s (sku %s)", winner.Product, winner.SKU)
	log.Info(p.Sprintf("total sales: %d", winner.TotalSales))
	log.Info(p.Sprintf("unique customers: %d", winner.UniqueCustomers))
	log.Info(p.Sprintf("sold in %d stores", winner.StoresSoldIn))
	log.Info(p.Sprintf("total revenue: $%.2f", winner.TotalRevenue))
	log.Infof("average revenue per sale: $%.2f", winner.AvgRevenue)
	if winner.SupplyCost.Valid {
		log.Infof("unit cost: $%.2f", winner.SupplyCost.Float64)
		log.Info(p.Sprintf("total gross profit: $%.2f", winner.GrossProfit))
		if winner.GrossMarginPct.Valid {
			log.Infof("profit margin: %.1f%%", winner.GrossMarginPct.Float64)
		}
	}

	return r.categoryBreakdown(ctx)
}

func (r *Runner) categoryBreakdown(ctx context.Context) error {
	log := r.logger().Named("analysis").Sugar()
	p := message.NewPrinter(language.English)

	categories, err := CategoryBreakdown(ctx, r.DB)
	if err != nil {
		return err
	}
	if len(categories) == 0 {
		return nil
	}

	log.Info("analysis by category:")
	log.Infof("%-15s %-15s %-15s %-20s", "Category", "Products", "Total Sales", "Total Revenue")
	for _, c := range categories {
		log.Info(p.Sprintf("%-15s %-15d %-15d $%-19.2f",
			c.Category, c.UniqueProducts, c.TotalSales, c.TotalRevenue))
	}
	return nil
}

// SupplyChainAnalysis logs per-supply cost and sales performance.
func (r *Runner) SupplyChainAnalysis(ctx context.Context) error {
	log := r.logger().Named("supply_chain").Sugar()

	log.Info("supply chain analysis")

	supplies, err := SupplyChain(ctx, r.DB)
	if err != nil {
		return err
	}
	if len(supplies) == 0 {
		log.Warn("no supply data found")
		return nil
	}

	log.Infof("%-30s %-15s %-10s %-12s %-12s %-12s",
		"Supply Name", "SKU", "Cost", "Perishable", "Units Sold", "Customers")
	for _, s := range supplies {
		perish := "No"
		if s.Perishable {
			perish = "Yes"
		}
		log.Infof("%-30s %-15s $%-9.2f %-12s %-12d %-12d",
			s.SupplyName, s.SKU, s.UnitCost, perish, s.UnitsSold, s.CustomersReached)
	}
	return nil
}

// StorePerformanceReport logs per-store order counts and revenue.
func (r *Runner) StorePerformanceReport(ctx context.Context) error {
	log := r.logger().Named("stores").Sugar()
	p := message.NewPrinter(language.English)

	log.Info("store performance")

	stores, err := StorePerformance(ctx, r.DB)
	if err != nil {
		return err
	}
	if len(stores) == 0 {
		log.Warn("no store data found")
		return nil
	}

	log.Infof("%-30s %-10s %-12s %-15s %-10s",
		"Store", "Orders", "Customers", "Revenue", "Tax Rate")
	for _, s := range stores {
		log.Info(p.Sprintf("%-30s %-10d %-12d $%-14.2f %-9.4f",
			s.StoreName, s.Orders, s.UniqueCustomers, s.TotalRevenue.Float64, s.TaxRate))
	}
	return nil
}

func (r *Runner) simpleSKUFallback(ctx context.Context) error {
	log := r.logger().Named("analysis").Sugar()
	p := message.NewPrinter(language.English)

	counts, err := SimpleSKUCounts(ctx, r.DB)
	if err != nil {
		return err
	}

	log.Info("simple count by sku:")
	for i, c := range counts {
		log.Info(p.Sprintf("%d. SKU %s: %d sales", i+1, c.SKU, c.Count))
	}
	return nil
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
