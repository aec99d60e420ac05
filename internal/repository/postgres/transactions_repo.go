package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kazuya8222/embld-revenue/internal/models"
)

type transactionsRepo struct{ pool *pgxpool.Pool }

func (r *transactionsRepo) Create(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Metadata == nil {
		tx.Metadata = map[string]string{}
	}
	const q = `
INSERT INTO transactions (
  id, stripe_payment_intent_id, product_id, buyer_email, amount, currency, status, metadata
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id, stripe_payment_intent_id, product_id, buyer_email, amount, currency, status, metadata, created_at`
	err := r.pool.QueryRow(ctx, q,
		tx.ID, tx.StripePaymentIntentID, tx.ProductID, tx.BuyerEmail, tx.Amount, tx.Currency, tx.Status, tx.Metadata,
	).Scan(&tx.ID, &tx.StripePaymentIntentID, &tx.ProductID, &tx.BuyerEmail, &tx.Amount, &tx.Currency, &tx.Status, &tx.Metadata, &tx.CreatedAt)
	return tx, translate(err)
}

func (r *transactionsRepo) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	var tx models.Transaction
	err := r.pool.QueryRow(ctx,
		`SELECT id, stripe_payment_intent_id, product_id, buyer_email, amount, currency, status, metadata, created_at
		   FROM transactions
		  WHERE id=$1`,
		id,
	).Scan(&tx.ID, &tx.StripePaymentIntentID, &tx.ProductID, &tx.BuyerEmail, &tx.Amount, &tx.Currency, &tx.Status, &tx.Metadata, &tx.CreatedAt)
	return tx, translate(err)
}
