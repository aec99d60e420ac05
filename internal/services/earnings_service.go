package services

import (
	"context"
	"fmt"

	"github.com/kazuya8222/embld-revenue/internal/models"
	"github.com/kazuya8222/embld-revenue/internal/payments"
	repo "github.com/kazuya8222/embld-revenue/internal/repository"
	"go.uber.org/zap"
)

const (
	userPayoutsLimit = 50
	balanceCurrency  = "jpy"
)

type UserPayouts struct {
	Payouts []models.Payout    `json:"payouts"`
	Stats   models.PayoutStats `json:"stats"`
}

// Recipient is an onboarded user as shown on the admin transfer screen.
type Recipient struct {
	models.PayoutAccount
	TotalPaid int64 `json:"total_paid"`
	// StripeBalance is nil when the provider could not be reached.
	StripeBalance *int64 `json:"stripe_balance"`
	PendingAmount int64  `json:"pending_amount"`
}

// EarningsService answers what a user has earned and what sits in their
// connected account.
type EarningsService struct {
	payouts   repo.Payouts
	analytics repo.Analytics
	users     repo.Users
	balances  payments.Balances
	log       *zap.Logger
}

func NewEarningsService(p repo.Payouts, a repo.Analytics, u repo.Users, b payments.Balances, log *zap.Logger) *EarningsService {
	return &EarningsService{payouts: p, analytics: a, users: u, balances: b, log: log}
}

// UserPayouts returns the user's latest payouts and stats over that page.
func (s *EarningsService) UserPayouts(ctx context.Context, userID string) (UserPayouts, error) {
	list, err := s.payouts.ListByUser(ctx, userID, userPayoutsLimit)
	if err != nil {
		return UserPayouts{}, fmt.Errorf("list payouts: %w", err)
	}
	if list == nil {
		list = []models.Payout{}
	}
	stats := models.SummarizePayouts(list)
	if stats.ProductCount, err = s.analytics.CountUserProducts(ctx, userID); err != nil {
		return UserPayouts{}, fmt.Errorf("count products: %w", err)
	}
	return UserPayouts{Payouts: list, Stats: stats}, nil
}

// Balance reads the user's connected account balance.
func (s *EarningsService) Balance(ctx context.Context, userID string) (models.AccountBalance, error) {
	acct, err := s.users.GetPayoutAccount(ctx, userID)
	if err != nil {
		return models.AccountBalance{}, err
	}
	if acct.StripeAccountID == nil || *acct.StripeAccountID == "" {
		return models.AccountBalance{Currency: balanceCurrency}, ErrNoPayoutAccount
	}
	if !acct.OnboardingCompleted {
		return models.AccountBalance{Currency: balanceCurrency}, ErrNotOnboarded
	}
	return s.balances.GetBalance(ctx, *acct.StripeAccountID, balanceCurrency)
}

// Recipients lists onboarded users with what they were paid so far. A
// balance lookup failure leaves that user's balance empty.
func (s *EarningsService) Recipients(ctx context.Context) ([]Recipient, error) {
	accts, err := s.users.ListOnboarded(ctx)
	if err != nil {
		return nil, fmt.Errorf("list onboarded users: %w", err)
	}
	out := make([]Recipient, 0, len(accts))
	for _, a := range accts {
		total, err := s.payouts.TotalByUser(ctx, a.UserID)
		if err != nil {
			return nil, fmt.Errorf("total paid for %s: %w", a.UserID, err)
		}
		r := Recipient{PayoutAccount: a, TotalPaid: total}
		if b, err := s.balances.GetBalance(ctx, *a.StripeAccountID, balanceCurrency); err != nil {
			s.log.Warn("recipient balance", zap.String("user_id", a.UserID), zap.Error(err))
		} else {
			avail := b.Available
			r.StripeBalance = &avail
		}
		out = append(out, r)
	}
	return out, nil
}
