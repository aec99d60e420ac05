package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kazuya8222/embld-revenue/internal/metrics"
	"github.com/kazuya8222/embld-revenue/internal/models"
	"github.com/kazuya8222/embld-revenue/internal/payments"
	repo "github.com/kazuya8222/embld-revenue/internal/repository"
	"github.com/kazuya8222/embld-revenue/internal/worker"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	distributionCurrency = "jpy"
	retryBatchLimit      = 500
)

// PayoutService holds the manual tools admins use on payouts.
type PayoutService struct {
	payouts   repo.Payouts
	trx       repo.Transactions
	users     repo.Users
	transfers payments.Transfers
	initiator *TransferInitiator
	wp        *worker.Pool
	log       *zap.Logger
	now       func() time.Time
}

func NewPayoutService(p repo.Payouts, t repo.Transactions, u repo.Users, tr payments.Transfers, ti *TransferInitiator, wp *worker.Pool, log *zap.Logger) *PayoutService {
	return &PayoutService{payouts: p, trx: t, users: u, transfers: tr, initiator: ti, wp: wp, log: log, now: time.Now}
}

func (s *PayoutService) List(ctx context.Context, status models.PayoutStatus, limit int) ([]models.Payout, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown payout status %q", status)
	}
	if limit <= 0 || limit > retryBatchLimit {
		limit = 100
	}
	return s.payouts.ListByStatus(ctx, status, limit)
}

// Retry runs the transfer again for a pending or failed payout.
func (s *PayoutService) Retry(ctx context.Context, id string) (models.Payout, error) {
	p, err := s.payouts.GetByID(ctx, id)
	if err != nil {
		return models.Payout{}, err
	}
	switch p.Status {
	case models.PayoutCompleted:
		return p, ErrPayoutCompleted
	case models.PayoutProcessing:
		return p, ErrPayoutInFlight
	}

	tc := transferContext{}
	if tx, err := s.trx.GetByID(ctx, p.TransactionID); err == nil {
		tc.PaymentIntentID = tx.StripePaymentIntentID
		if tx.ProductID != nil {
			tc.ProductID = *tx.ProductID
		}
	} else {
		s.log.Warn("retry without transaction context", zap.String("payout_id", id), zap.Error(err))
	}

	res := s.initiator.Initiate(ctx, &p, tc)
	switch {
	case res.Skipped && res.Reason == ReasonInFlight:
		return p, ErrPayoutInFlight
	case res.Skipped:
		return p, fmt.Errorf("%w: %s", ErrNotOnboarded, res.Reason)
	case res.Failed():
		return p, res.Err
	}
	s.log.Info("payout retried", zap.String("payout_id", id), zap.String("status", string(p.Status)))
	return p, nil
}

// RetryFailed queues a retry for every failed payout and returns how many
// were queued. A payout queued twice is transferred once; the later task
// loses the claim and is dropped.
func (s *PayoutService) RetryFailed(ctx context.Context) (int, error) {
	failedPayouts, err := s.payouts.ListByStatus(ctx, models.PayoutFailed, retryBatchLimit)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, p := range failedPayouts {
		id := p.ID
		if err := s.wp.Submit(func(ctx context.Context) {
			if _, err := s.Retry(ctx, id); err != nil {
				s.log.Warn("queued payout retry", zap.String("payout_id", id), zap.Error(err))
			}
		}); err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}

type Distribution struct {
	TransferID     string        `json:"transfer_id"`
	UserID         string        `json:"user_id"`
	OriginalAmount int64         `json:"original_amount"`
	Amount         int64         `json:"amount"`
	Destination    string        `json:"destination"`
	Payout         models.Payout `json:"payout"`
}

// DistributionAmount is the recipient's share of amount, rounded down.
func DistributionAmount(amount int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(models.DistributionSharePercent)).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
}

// Distribute sends a manual revenue share to an onboarded user and records
// it as a completed payout.
func (s *PayoutService) Distribute(ctx context.Context, userID string, amount int64, description string) (Distribution, error) {
	acct, err := s.users.GetPayoutAccount(ctx, userID)
	if err != nil {
		return Distribution{}, err
	}
	if !acct.CanReceiveTransfers() {
		return Distribution{}, ErrNotOnboarded
	}

	share := DistributionAmount(amount)
	p := models.Payout{
		UserID:     userID,
		Amount:     share,
		Currency:   distributionCurrency,
		Percentage: models.DistributionSharePercent,
		Status:     models.PayoutCompleted,
	}
	if err := p.Validate(amount); err != nil {
		return Distribution{}, err
	}
	if description == "" {
		description = "Revenue share for user " + acct.Email
	}

	transferID, err := s.transfers.CreateTransfer(ctx, payments.TransferRequest{
		Amount:      share,
		Currency:    distributionCurrency,
		Destination: *acct.StripeAccountID,
		Description: description,
		Metadata: map[string]string{
			"user_id":          userID,
			"original_amount":  fmt.Sprint(amount),
			"share_percentage": fmt.Sprint(models.DistributionSharePercent),
		},
	})
	if err != nil {
		metrics.PayoutTransfers.WithLabelValues("failed").Inc()
		return Distribution{}, fmt.Errorf("create transfer: %w", err)
	}
	metrics.PayoutTransfers.WithLabelValues("completed").Inc()

	at := s.now().UTC()
	p.TransactionID = transferID
	p.StripeTransferID = &transferID
	p.TransferredAt = &at
	created, err := s.payouts.Create(ctx, p)
	if err != nil {
		s.log.Error("record distribution payout", zap.String("transfer_id", transferID), zap.Error(err))
		created = p
	} else {
		metrics.PayoutsCreated.WithLabelValues("admin").Inc()
	}

	return Distribution{
		TransferID:     transferID,
		UserID:         userID,
		OriginalAmount: amount,
		Amount:         share,
		Destination:    *acct.StripeAccountID,
		Payout:         created,
	}, nil
}

// IsClientError reports whether err comes from the caller's input rather
// than from storage or the provider.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotOnboarded) ||
		errors.Is(err, ErrPayoutCompleted) ||
		errors.Is(err, ErrPayoutInFlight) ||
		errors.Is(err, models.ErrPayoutExceedsTransaction) ||
		errors.Is(err, models.ErrNonPositivePayout)
}
