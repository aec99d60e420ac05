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

// TransferInitiator sends a pending payout to the owner's connected account
// and records the outcome on the payout row. It never retries on its own.
//
// A payout is claimed (pending or failed to processing) before any transfer
// is created, so two callers can never send money for the same row.
type TransferInitiator struct {
	users     repo.Users
	payouts   repo.Payouts
	transfers payments.Transfers
	log       *zap.Logger
	now       func() time.Time
}

func NewTransferInitiator(u repo.Users, p repo.Payouts, t payments.Transfers, log *zap.Logger) *TransferInitiator {
	return &TransferInitiator{users: u, payouts: p, transfers: t, log: log, now: time.Now}
}

type transferContext struct {
	PaymentIntentID string
	ProductID       string
}

// Initiate updates p in place with the resulting status.
func (ti *TransferInitiator) Initiate(ctx context.Context, p *models.Payout, tc transferContext) StepResult {
	acct, err := ti.users.GetPayoutAccount(ctx, p.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		metrics.PayoutTransfers.WithLabelValues("skipped").Inc()
		return skipped(StepTransfer, ReasonNoRecipient)
	}
	if err != nil {
		return failed(StepTransfer, fmt.Errorf("load payout account: %w", err))
	}
	if !acct.CanReceiveTransfers() {
		metrics.PayoutTransfers.WithLabelValues("skipped").Inc()
		return skipped(StepTransfer, ReasonNotOnboarded)
	}

	claimed, won, err := ti.payouts.Claim(ctx, p.ID)
	if err != nil {
		return failed(StepTransfer, fmt.Errorf("claim payout: %w", err))
	}
	if !won {
		metrics.PayoutTransfers.WithLabelValues("skipped").Inc()
		return skipped(StepTransfer, ReasonInFlight)
	}
	*p = claimed

	transferID, err := ti.transfers.CreateTransfer(ctx, payments.TransferRequest{
		Amount:        p.Amount,
		Currency:      p.Currency,
		Destination:   *acct.StripeAccountID,
		TransferGroup: tc.PaymentIntentID,
		Metadata: map[string]string{
			payments.MetaPayoutID: p.ID,
			"payment_intent_id":   tc.PaymentIntentID,
			"product_id":          tc.ProductID,
			"user_id":             p.UserID,
		},
		IdempotencyKey: p.IdempotencyKey(),
	})

	// The provider call has happened; its outcome must reach the row even
	// when the caller goes away.
	bg := context.WithoutCancel(ctx)
	if err != nil {
		metrics.PayoutTransfers.WithLabelValues("failed").Inc()
		ti.log.Error("transfer failed",
			zap.String("payout_id", p.ID), zap.String("user_id", p.UserID),
			zap.Int("attempt", p.Attempts), zap.Error(err))
		if uerr := ti.payouts.MarkFailed(bg, p.ID); uerr != nil {
			return failed(StepTransfer, fmt.Errorf("transfer: %w; mark failed: %v", err, uerr))
		}
		p.Status = models.PayoutFailed
		return failed(StepTransfer, fmt.Errorf("transfer: %w", err))
	}

	metrics.PayoutTransfers.WithLabelValues("completed").Inc()
	at := ti.now().UTC()
	if err := ti.payouts.MarkTransferred(bg, p.ID, transferID, at); err != nil {
		// The row stays processing, so it cannot be claimed again. The
		// transfer.created event carries payout_id and completes it.
		ti.log.Error("transfer sent but payout not updated",
			zap.String("payout_id", p.ID), zap.String("transfer_id", transferID), zap.Error(err))
		return failed(StepTransfer, fmt.Errorf("transfer %s sent, status update: %w", transferID, err))
	}
	p.Status = models.PayoutCompleted
	p.StripeTransferID = &transferID
	p.TransferredAt = &at
	return ok(StepTransfer)
}
