package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/kazuya8222/embld-revenue/internal/models"
	"github.com/kazuya8222/embld-revenue/internal/payments"
	repo "github.com/kazuya8222/embld-revenue/internal/repository"
	"go.uber.org/zap"
)

// AccountService keeps the users table in sync with connected account state.
type AccountService struct {
	users    repo.Users
	accounts payments.Accounts
	log      *zap.Logger
}

func NewAccountService(u repo.Users, a payments.Accounts, log *zap.Logger) *AccountService {
	return &AccountService{users: u, accounts: a, log: log}
}

// SetOnboarding persists only the onboarding flag. Used by the revenue endpoint.
func (s *AccountService) SetOnboarding(ctx context.Context, st models.AccountStatus) error {
	n, err := s.users.SetOnboardingCompleted(ctx, st.AccountID, st.OnboardingComplete())
	if err != nil {
		return fmt.Errorf("set onboarding for %s: %w", st.AccountID, err)
	}
	if n == 0 {
		s.log.Info("no user for connected account", zap.String("account_id", st.AccountID))
	}
	return nil
}

// ApplyStatus persists the full account status. A missing user yields
// repo.ErrNotFound without writing anything.
func (s *AccountService) ApplyStatus(ctx context.Context, st models.AccountStatus) error {
	if _, err := s.users.GetByStripeAccount(ctx, st.AccountID); err != nil {
		return err
	}
	if _, err := s.users.UpdateAccountStatus(ctx, st); err != nil {
		return fmt.Errorf("update account %s: %w", st.AccountID, err)
	}
	s.log.Info("account status updated",
		zap.String("account_id", st.AccountID),
		zap.Bool("onboarding_completed", st.OnboardingComplete()),
		zap.Bool("details_submitted", st.DetailsSubmitted),
		zap.Bool("payouts_enabled", st.PayoutsEnabled))
	return nil
}

// Refresh fetches the account from the provider and applies it.
func (s *AccountService) Refresh(ctx context.Context, accountID string) error {
	if accountID == "" {
		return errors.New("refresh: empty account id")
	}
	if _, err := s.users.GetByStripeAccount(ctx, accountID); err != nil {
		return err
	}
	st, err := s.accounts.GetAccountStatus(ctx, accountID)
	if err != nil {
		return fmt.Errorf("retrieve account %s: %w", accountID, err)
	}
	if st.AccountID == "" {
		st.AccountID = accountID
	}
	return s.ApplyStatus(ctx, st)
}

// Deauthorize detaches the connected account from its user.
func (s *AccountService) Deauthorize(ctx context.Context, accountID string) error {
	n, err := s.users.ClearStripeAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("clear account %s: %w", accountID, err)
	}
	s.log.Info("account deauthorized", zap.String("account_id", accountID), zap.Int64("users", n))
	return nil
}
