package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kazuya8222/embld-revenue/internal/models"
)

type usersRepo struct{ pool *pgxpool.Pool }

func (r *usersRepo) GetPayoutAccount(ctx context.Context, userID string) (models.PayoutAccount, error) {
	var a models.PayoutAccount
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, stripe_account_id, stripe_onboarding_completed FROM users WHERE id=$1`, userID,
	).Scan(&a.UserID, &a.Email, &a.StripeAccountID, &a.OnboardingCompleted)
	return a, translate(err)
}

func (r *usersRepo) GetByStripeAccount(ctx context.Context, accountID string) (models.PayoutAccount, error) {
	var a models.PayoutAccount
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, stripe_account_id, stripe_onboarding_completed FROM users WHERE stripe_account_id=$1`, accountID,
	).Scan(&a.UserID, &a.Email, &a.StripeAccountID, &a.OnboardingCompleted)
	return a, translate(err)
}

func (r *usersRepo) SetOnboardingCompleted(ctx context.Context, accountID string, completed bool) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET stripe_onboarding_completed=$2 WHERE stripe_account_id=$1`,
		accountID, completed,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *usersRepo) UpdateAccountStatus(ctx context.Context, s models.AccountStatus) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		    SET stripe_onboarding_completed      = $2,
		        stripe_account_updated_at        = $3,
		        stripe_connect_details_submitted = $4,
		        stripe_connect_payouts_enabled   = $5,
		        stripe_connect_capabilities      = $6,
		        stripe_connect_requirements      = $7
		  WHERE stripe_account_id = $1`,
		s.AccountID, s.OnboardingComplete(), s.UpdatedAt, s.DetailsSubmitted, s.PayoutsEnabled,
		jsonOrEmpty(s.Capabilities), jsonOrEmpty(s.Requirements),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *usersRepo) ClearStripeAccount(ctx context.Context, accountID string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		    SET stripe_account_id           = NULL,
		        stripe_onboarding_completed = false,
		        stripe_account_created_at   = NULL,
		        stripe_account_updated_at   = NULL
		  WHERE stripe_account_id = $1`,
		accountID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *usersRepo) ListOnboarded(ctx context.Context) ([]models.PayoutAccount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, stripe_account_id, stripe_onboarding_completed
		   FROM users
		  WHERE stripe_account_id IS NOT NULL AND stripe_onboarding_completed
		  ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PayoutAccount
	for rows.Next() {
		var a models.PayoutAccount
		if err := rows.Scan(&a.UserID, &a.Email, &a.StripeAccountID, &a.OnboardingCompleted); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func jsonOrEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`{}`)
	}
	return raw
}
