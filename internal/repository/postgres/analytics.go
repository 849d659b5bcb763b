package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/pkg/database"
)

// revenueCondition selects orders that count as revenue: not cancelled or
// returned, and either paid online or delivered cash on delivery.
const revenueCondition = `status NOT IN ('cancelled', 'returned')
	AND (payment_status = 'paid' OR (payment_method = 'cod' AND status = 'delivered'))`

// AnalyticsRepository implements repository.AnalyticsRepository using PostgreSQL.
type AnalyticsRepository struct {
	db database.DBTX
}

// NewAnalyticsRepository creates a new PostgreSQL-backed analytics repository.
func NewAnalyticsRepository(db database.DBTX) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// Revenue sums revenue-bearing orders placed since t.
func (r *AnalyticsRepository) Revenue(ctx context.Context, since time.Time) (int64, int, error) {
	var (
		revenue int64
		orders  int
	)
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(total), 0)::bigint, count(*)
		FROM orders
		WHERE created_at >= $1 AND `+revenueCondition, since).Scan(&revenue, &orders)
	if err != nil {
		return 0, 0, fmt.Errorf("query revenue: %w", err)
	}
	return revenue, orders, nil
}

// OrdersByStatus counts orders per status placed since t.
func (r *AnalyticsRepository) OrdersByStatus(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status, count(*)
		FROM orders
		WHERE created_at >= $1
		GROUP BY status`, since)
	if err != nil {
		return nil, fmt.Errorf("query orders by status: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for _, s := range domain.ValidStatuses() {
		out[s] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return out, nil
}

// RevenueByDay returns one point per day with revenue since t.
func (r *AnalyticsRepository) RevenueByDay(ctx context.Context, since time.Time) ([]domain.DailyRevenue, error) {
	rows, err := r.db.Query(ctx, `
		SELECT to_char(date_trunc('day', created_at), 'YYYY-MM-DD') AS day,
		       COALESCE(SUM(total), 0)::bigint, count(*)
		FROM orders
		WHERE created_at >= $1 AND `+revenueCondition+`
		GROUP BY day
		ORDER BY day`, since)
	if err != nil {
		return nil, fmt.Errorf("query revenue by day: %w", err)
	}
	defer rows.Close()

	out := []domain.DailyRevenue{}
	for rows.Next() {
		var d domain.DailyRevenue
		if err := rows.Scan(&d.Date, &d.Revenue, &d.Orders); err != nil {
			return nil, fmt.Errorf("scan daily revenue: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily revenue: %w", err)
	}
	return out, nil
}

// TopProducts aggregates the item snapshots of non-cancelled orders.
func (r *AnalyticsRepository) TopProducts(ctx context.Context, since time.Time, limit int) ([]domain.TopProduct, error) {
	rows, err := r.db.Query(ctx, `
		SELECT item ->> 'product_id', MAX(item ->> 'name'),
		       SUM((item ->> 'quantity')::int)::int,
		       SUM((item ->> 'line_total')::bigint)::bigint
		FROM orders, jsonb_array_elements(items) AS item
		WHERE created_at >= $1 AND status NOT IN ('cancelled', 'returned')
		GROUP BY item ->> 'product_id'
		ORDER BY 3 DESC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query top products: %w", err)
	}
	defer rows.Close()

	out := []domain.TopProduct{}
	for rows.Next() {
		var p domain.TopProduct
		if err := rows.Scan(&p.ProductID, &p.Name, &p.Units, &p.Revenue); err != nil {
			return nil, fmt.Errorf("scan top product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top products: %w", err)
	}
	return out, nil
}

// LowStock lists active products with stock at or below threshold.
func (r *AnalyticsRepository) LowStock(ctx context.Context, threshold int) ([]domain.LowStockItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, sku, stock
		FROM products
		WHERE is_active = TRUE AND stock <= $1
		ORDER BY stock, name`, threshold)
	if err != nil {
		return nil, fmt.Errorf("query low stock: %w", err)
	}
	defer rows.Close()

	out := []domain.LowStockItem{}
	for rows.Next() {
		var it domain.LowStockItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.SKU, &it.Stock); err != nil {
			return nil, fmt.Errorf("scan low stock: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate low stock: %w", err)
	}
	return out, nil
}

// Customers counts customer accounts, total and created since t.
func (r *AnalyticsRepository) Customers(ctx context.Context, since time.Time) (int, int, error) {
	var total, recent int
	err := r.db.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE created_at >= $1)
		FROM users
		WHERE role = 'customer'`, since).Scan(&total, &recent)
	if err != nil {
		return 0, 0, fmt.Errorf("query customers: %w", err)
	}
	return total, recent, nil
}
