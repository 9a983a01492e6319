package analytics

// Fixed, parameter-free query texts executed against the destination after a
// load. Currency-formatted text columns (order_total, cost) are cast in SQL:
// strip the "$" and thousands separators, then CAST AS REAL.
//
// The dialect targets the embedded SQLite destination, where the analytics
// stage runs by default.

// QueryMostPurchasedProducts ranks SKUs by sales volume, joining supply costs
// to derive gross profit and margin.
const QueryMostPurchasedProducts = `
WITH product_sales AS (
    SELECT i.sku,
           COUNT(*)                      AS total_sales,
           COUNT(DISTINCT o.customer_id) AS unique_customers,
           COUNT(DISTINCT o.store_id)    AS stores_sold_in,
           SUM(CAST(REPLACE(REPLACE(o.order_total, '$', ''), ',', '') AS REAL)) AS total_revenue
    FROM items i
    JOIN orders o ON i.order_id = o.id
    GROUP BY i.sku
),
product_info AS (
    SELECT ps.*,
           s.name AS product_name,
           CAST(REPLACE(REPLACE(s.cost, '$', ''), ',', '') AS REAL) AS supply_cost
    FROM product_sales ps
    LEFT JOIN supplies s ON ps.sku = s.sku
)
SELECT COALESCE(product_name, sku) AS product,
       sku,
       total_sales,
       unique_customers,
       stores_sold_in,
       total_revenue,
       ROUND(total_revenue / total_sales, 2) AS avg_revenue_per_sale,
       supply_cost,
       ROUND(total_revenue - total_sales * COALESCE(supply_cost, 0), 2) AS gross_profit,
       ROUND((total_revenue - total_sales * COALESCE(supply_cost, 0)) / total_revenue * 100, 2) AS gross_margin_pct
FROM product_info
ORDER BY total_sales DESC
LIMIT 20`

// QueryCategoryBreakdown aggregates sales by SKU prefix (first three
// characters), the catalog's category convention.
const QueryCategoryBreakdown = `
SELECT SUBSTR(sku, 1, 3)   AS category,
       COUNT(DISTINCT sku) AS unique_products,
       SUM(total_sales)    AS total_category_sales,
       SUM(total_revenue)  AS total_category_revenue
FROM (
    SELECT i.sku,
           COUNT(*) AS total_sales,
           SUM(CAST(REPLACE(REPLACE(o.order_total, '$', ''), ',', '') AS REAL)) AS total_revenue
    FROM items i
    JOIN orders o ON i.order_id = o.id
    GROUP BY i.sku
)
GROUP BY SUBSTR(sku, 1, 3)
ORDER BY total_category_sales DESC`

// QuerySupplyChain joins supplies against per-SKU sales to surface unit cost,
// units sold, customers reached, and total supply cost.
const QuerySupplyChain = `
WITH sku_performance AS (
    SELECT i.sku,
           COUNT(*)                      AS units_sold,
           COUNT(DISTINCT o.customer_id) AS unique_customers
    FROM items i
    JOIN orders o ON i.order_id = o.id
    GROUP BY i.sku
)
SELECT s.name AS supply_name,
       s.sku,
       CAST(REPLACE(REPLACE(s.cost, '$', ''), ',', '') AS REAL) AS unit_cost,
       s.perishable,
       COALESCE(sp.units_sold, 0)       AS units_sold,
       COALESCE(sp.unique_customers, 0) AS customers_reached,
       ROUND(COALESCE(sp.units_sold, 0) * CAST(REPLACE(REPLACE(s.cost, '$', ''), ',', '') AS REAL), 2) AS total_cost
FROM supplies s
LEFT JOIN sku_performance sp ON s.sku = sp.sku
ORDER BY units_sold DESC
LIMIT 15`

// QueryStorePerformance aggregates order counts and revenue per store.
const QueryStorePerformance = `
SELECT st.name AS store_name,
       COUNT(o.id)                   AS orders_count,
       COUNT(DISTINCT o.customer_id) AS unique_customers,
       ROUND(SUM(CAST(REPLACE(REPLACE(o.order_total, '$', ''), ',', '') AS REAL)), 2) AS total_revenue,
       st.tax_rate
FROM stores st
LEFT JOIN orders o ON o.store_id = st.id
GROUP BY st.id, st.name, st.tax_rate
ORDER BY total_revenue DESC`

// QuerySimpleSKUCounts is the fallback when the product analysis fails:
// plain sales counts per SKU.
const QuerySimpleSKUCounts = `
SELECT sku, COUNT(*) AS count
FROM items
GROUP BY sku
ORDER BY count DESC
LIMIT 10`
