package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kazuya8222/embld-revenue/internal/models"
)

type analyticsRepo struct{ pool *pgxpool.Pool }

// Both upserts increment in a single statement so concurrent deliveries for
// the same bucket cannot lose an update. The conflict targets are the
// constraints declared in migrations/0001_revenue.up.sql.
const (
	revenueAnalyticsKey = "revenue_analytics_key"
	productRevenueKey   = "product_revenue_key"

	upsertUserRevenueSQL = `INSERT INTO revenue_analytics (user_id, product_id, date, revenue, payout_amount, transaction_count)
		 VALUES ($1, $2, $3, $4, $5, 1)
		 ON CONFLICT ON CONSTRAINT ` + revenueAnalyticsKey + ` DO UPDATE
		    SET revenue           = revenue_analytics.revenue + EXCLUDED.revenue,
		        payout_amount     = revenue_analytics.payout_amount + EXCLUDED.payout_amount,
		        transaction_count = revenue_analytics.transaction_count + 1,
		        updated_at        = now()
		 RETURNING id, user_id, product_id, date, revenue, payout_amount, transaction_count, updated_at`

	upsertProductRevenueSQL = `INSERT INTO product_revenue (product_id, date, revenue, customer_count, user_share)
		 VALUES ($1, $2, $3, 1, $4)
		 ON CONFLICT ON CONSTRAINT ` + productRevenueKey + ` DO UPDATE
		    SET revenue        = product_revenue.revenue + EXCLUDED.revenue,
		        customer_count = product_revenue.customer_count + 1,
		        user_share     = product_revenue.user_share + EXCLUDED.user_share
		 RETURNING id, product_id, date, revenue, customer_count, user_share`
)

func (r *analyticsRepo) AddUserRevenue(ctx context.Context, userID string, productID *string, day time.Time, revenue, payout int64) (models.RevenueAnalytics, error) {
	var a models.RevenueAnalytics
	err := r.pool.QueryRow(ctx, upsertUserRevenueSQL,
		userID, productID, models.Day(day), revenue, payout,
	).Scan(&a.ID, &a.UserID, &a.ProductID, &a.Date, &a.Revenue, &a.PayoutAmount, &a.TransactionCount, &a.UpdatedAt)
	return a, translate(err)
}

func (r *analyticsRepo) AddProductRevenue(ctx context.Context, productID string, day time.Time, revenue, userShare int64) (models.ProductRevenue, error) {
	var p models.ProductRevenue
	err := r.pool.QueryRow(ctx, upsertProductRevenueSQL,
		productID, models.Day(day), revenue, userShare,
	).Scan(&p.ID, &p.ProductID, &p.Date, &p.Revenue, &p.CustomerCount, &p.UserShare)
	return p, translate(err)
}

func (r *analyticsRepo) ListUserRevenue(ctx context.Context, userID string, productID *string, from, to time.Time) ([]models.RevenueAnalytics, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, product_id, date, revenue, payout_amount, transaction_count, updated_at
		   FROM revenue_analytics
		  WHERE user_id = $1
		    AND date BETWEEN $2 AND $3
		    AND ($4::text IS NULL OR product_id = $4)
		  ORDER BY date ASC`,
		userID, models.Day(from), models.Day(to), productID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RevenueAnalytics
	for rows.Next() {
		var a models.RevenueAnalytics
		if err := rows.Scan(&a.ID, &a.UserID, &a.ProductID, &a.Date, &a.Revenue, &a.PayoutAmount, &a.TransactionCount, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *analyticsRepo) CountUserProducts(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT product_id) FROM revenue_analytics WHERE user_id=$1 AND product_id IS NOT NULL`,
		userID,
	).Scan(&n)
	return n, err
}
