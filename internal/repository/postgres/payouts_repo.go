package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kazuya8222/embld-revenue/internal/models"
	repo "github.com/kazuya8222/embld-revenue/internal/repository"
)

type payoutsRepo struct{ pool *pgxpool.Pool }

const payoutColumns = `id, transaction_id, user_id, amount, currency, percentage, status, stripe_transfer_id, attempts, transferred_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayout(row rowScanner) (models.Payout, error) {
	var p models.Payout
	err := row.Scan(&p.ID, &p.TransactionID, &p.UserID, &p.Amount, &p.Currency, &p.Percentage,
		&p.Status, &p.StripeTransferID, &p.Attempts, &p.TransferredAt, &p.CreatedAt)
	return p, err
}

func (r *payoutsRepo) Create(ctx context.Context, p models.Payout) (models.Payout, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO payouts (id, transaction_id, user_id, amount, currency, percentage, status, stripe_transfer_id, transferred_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 RETURNING `+payoutColumns,
		p.ID, p.TransactionID, p.UserID, p.Amount, p.Currency, p.Percentage, p.Status, p.StripeTransferID, p.TransferredAt,
	)
	out, err := scanPayout(row)
	return out, translate(err)
}

func (r *payoutsRepo) GetByID(ctx context.Context, id string) (models.Payout, error) {
	out, err := scanPayout(r.pool.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id=$1`, id))
	return out, translate(err)
}

func (r *payoutsRepo) ListByStatus(ctx context.Context, status models.PayoutStatus, limit int) ([]models.Payout, error) {
	return r.list(ctx,
		`SELECT `+payoutColumns+`
		   FROM payouts
		  WHERE status=$1
		  ORDER BY created_at ASC
		  LIMIT $2`,
		status, limit,
	)
}

func (r *payoutsRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.Payout, error) {
	return r.list(ctx,
		`SELECT `+payoutColumns+`
		   FROM payouts
		  WHERE user_id=$1
		  ORDER BY created_at DESC
		  LIMIT $2`,
		userID, limit,
	)
}

func (r *payoutsRepo) list(ctx context.Context, sql string, args ...any) ([]models.Payout, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *payoutsRepo) TotalByUser(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payouts WHERE user_id=$1`, userID).Scan(&total)
	return total, err
}

// claimPayoutSQL is the only way a payout enters processing.
const claimPayoutSQL = `UPDATE payouts
    SET status=$2, attempts=attempts+1
  WHERE id=$1 AND status IN ($3, $4)
  RETURNING ` + payoutColumns

func (r *payoutsRepo) Claim(ctx context.Context, id string) (models.Payout, bool, error) {
	p, err := scanPayout(r.pool.QueryRow(ctx, claimPayoutSQL,
		id, models.PayoutProcessing, models.PayoutPending, models.PayoutFailed))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Payout{}, false, nil
	}
	if err != nil {
		return models.Payout{}, false, err
	}
	return p, true, nil
}

func (r *payoutsRepo) MarkTransferred(ctx context.Context, id, transferID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payouts
		    SET status=$2, stripe_transfer_id=$3, transferred_at=$4
		  WHERE id=$1`,
		id, models.PayoutCompleted, transferID, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *payoutsRepo) MarkFailed(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payouts SET status=$2 WHERE id=$1 AND status <> $3`,
		id, models.PayoutFailed, models.PayoutCompleted,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

const completeByTransferSQL = `UPDATE payouts
    SET status=$3, stripe_transfer_id=$1, transferred_at=$4
  WHERE stripe_transfer_id=$1
     OR ($2 <> '' AND id::text=$2 AND stripe_transfer_id IS NULL AND status <> $3)`

func (r *payoutsRepo) CompleteByTransferID(ctx context.Context, transferID, payoutID string, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, completeByTransferSQL, transferID, payoutID, models.PayoutCompleted, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
