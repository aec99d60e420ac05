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
	"go.uber.org/zap"
)

// LedgerOutcome describes what RecordPayment wrote. Steps lists every
// best-effort step after the transaction insert, in execution order.
type LedgerOutcome struct {
	Transaction models.Transaction
	Payout      *models.Payout
	Steps       []StepResult
}

func (o LedgerOutcome) FailedSteps() []StepResult {
	var out []StepResult
	for _, s := range o.Steps {
		if s.Failed() {
			out = append(out, s)
		}
	}
	return out
}

type LedgerService struct {
	trx       repo.Transactions
	payouts   repo.Payouts
	analytics repo.Analytics
	transfers *TransferInitiator
	log       *zap.Logger
	now       func() time.Time
}

func NewLedgerService(t repo.Transactions, p repo.Payouts, a repo.Analytics, ti *TransferInitiator, log *zap.Logger) *LedgerService {
	return &LedgerService{trx: t, payouts: p, analytics: a, transfers: ti, log: log, now: time.Now}
}

// RecordPayment writes the ledger rows for a successful payment intent.
// Only the transaction insert can fail the call; everything after it is
// reported through the outcome's steps.
func (s *LedgerService) RecordPayment(ctx context.Context, evt payments.PaymentSucceeded) (LedgerOutcome, error) {
	var out LedgerOutcome

	tx, err := s.trx.Create(ctx, models.Transaction{
		StripePaymentIntentID: evt.PaymentIntentID,
		ProductID:             evt.ProductID,
		BuyerEmail:            evt.ReceiptEmail,
		Amount:                evt.Amount,
		Currency:              evt.Currency,
		Status:                models.TxnSucceeded,
		Metadata:              evt.Metadata,
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return out, fmt.Errorf("%w: %s", ErrAlreadyRecorded, evt.PaymentIntentID)
	}
	if err != nil {
		return out, fmt.Errorf("record transaction: %w", err)
	}
	out.Transaction = tx
	today := s.now()

	if evt.OwnerUserID != "" && evt.OwnerShare > 0 {
		s.ownerShare(ctx, &out, evt, today)
	}

	// The product is credited with the share whenever it is a valid part of
	// the amount, whether or not an owner was named.
	var share int64
	if evt.OwnerShare > 0 && evt.OwnerShare <= evt.Amount {
		share = evt.OwnerShare
	}

	if evt.ProductID != nil {
		if _, err := s.analytics.AddProductRevenue(ctx, *evt.ProductID, today, evt.Amount, share); err != nil {
			out.Steps = append(out.Steps, failed(StepProductRevenue, err))
		} else {
			out.Steps = append(out.Steps, ok(StepProductRevenue))
		}
	}

	for _, st := range out.FailedSteps() {
		metrics.LedgerStepFailures.WithLabelValues(st.Step).Inc()
	}
	return out, nil
}

// ownerShare writes the payout, the owner's daily analytics and the transfer.
func (s *LedgerService) ownerShare(ctx context.Context, out *LedgerOutcome, evt payments.PaymentSucceeded, today time.Time) {
	p := models.Payout{
		TransactionID: out.Transaction.ID,
		UserID:        evt.OwnerUserID,
		Amount:        evt.OwnerShare,
		Currency:      evt.Currency,
		Percentage:    models.OwnerSharePercent,
		Status:        models.PayoutPending,
	}
	if err := p.Validate(evt.Amount); err != nil {
		out.Steps = append(out.Steps,
			failed(StepPayout, fmt.Errorf("owner share %d: %w", evt.OwnerShare, err)),
			skipped(StepUserAnalytics, "invalid owner share"),
			skipped(StepTransfer, "invalid owner share"),
		)
		return
	}

	created, err := s.payouts.Create(ctx, p)
	if err != nil {
		out.Steps = append(out.Steps, failed(StepPayout, err))
	} else {
		metrics.PayoutsCreated.WithLabelValues("webhook").Inc()
		out.Payout = &created
		out.Steps = append(out.Steps, ok(StepPayout))
	}

	if _, err := s.analytics.AddUserRevenue(ctx, evt.OwnerUserID, evt.ProductID, today, evt.Amount, evt.OwnerShare); err != nil {
		out.Steps = append(out.Steps, failed(StepUserAnalytics, err))
	} else {
		out.Steps = append(out.Steps, ok(StepUserAnalytics))
	}

	if out.Payout == nil {
		out.Steps = append(out.Steps, skipped(StepTransfer, "no payout row"))
		return
	}
	var productID string
	if evt.ProductID != nil {
		productID = *evt.ProductID
	}
	out.Steps = append(out.Steps, s.transfers.Initiate(ctx, out.Payout, transferContext{
		PaymentIntentID: evt.PaymentIntentID,
		ProductID:       productID,
	}))
}
