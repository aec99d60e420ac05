package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kazuya8222/embld-revenue/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

type Transactions interface {
	// Create fails with ErrDuplicate when the payment intent was already recorded.
	Create(ctx context.Context, tx models.Transaction) (models.Transaction, error)
	GetByID(ctx context.Context, id string) (models.Transaction, error)
}

type Payouts interface {
	Create(ctx context.Context, p models.Payout) (models.Payout, error)
	GetByID(ctx context.Context, id string) (models.Payout, error)
	ListByStatus(ctx context.Context, status models.PayoutStatus, limit int) ([]models.Payout, error)
	// ListByUser returns the user's payouts, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Payout, error)
	// TotalByUser sums the amount of every payout row for the user.
	TotalByUser(ctx context.Context, userID string) (int64, error)
	// Claim moves a pending or failed payout to processing and counts the
	// attempt. ok is false when another caller holds it or it is completed.
	Claim(ctx context.Context, id string) (p models.Payout, ok bool, err error)
	MarkTransferred(ctx context.Context, id, transferID string, at time.Time) error
	MarkFailed(ctx context.Context, id string) error
	// CompleteByTransferID completes the payouts carrying transferID, or the
	// not yet completed payout payoutID when its transfer id was never stored.
	// It returns the number of payouts updated.
	CompleteByTransferID(ctx context.Context, transferID, payoutID string, at time.Time) (int64, error)
}

type Analytics interface {
	// AddUserRevenue increments (or creates) the bucket for user, product and day.
	AddUserRevenue(ctx context.Context, userID string, productID *string, day time.Time, revenue, payout int64) (models.RevenueAnalytics, error)
	// AddProductRevenue increments (or creates) the bucket for product and day.
	AddProductRevenue(ctx context.Context, productID string, day time.Time, revenue, userShare int64) (models.ProductRevenue, error)
	ListUserRevenue(ctx context.Context, userID string, productID *string, from, to time.Time) ([]models.RevenueAnalytics, error)
	// CountUserProducts counts distinct products that earned the user revenue.
	CountUserProducts(ctx context.Context, userID string) (int, error)
}

type Users interface {
	GetPayoutAccount(ctx context.Context, userID string) (models.PayoutAccount, error)
	GetByStripeAccount(ctx context.Context, accountID string) (models.PayoutAccount, error)
	SetOnboardingCompleted(ctx context.Context, accountID string, completed bool) (int64, error)
	UpdateAccountStatus(ctx context.Context, s models.AccountStatus) (int64, error)
	ClearStripeAccount(ctx context.Context, accountID string) (int64, error)
	// ListOnboarded returns users whose connected account finished onboarding.
	ListOnboarded(ctx context.Context) ([]models.PayoutAccount, error)
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}
