package services

import (
	"context"
	"errors"
	"time"

	"github.com/kazuya8222/embld-revenue/internal/metrics"
	"github.com/kazuya8222/embld-revenue/internal/models"
	"github.com/kazuya8222/embld-revenue/internal/payments"
	repo "github.com/kazuya8222/embld-revenue/internal/repository"
	"go.uber.org/zap"
)

const (
	EndpointRevenue = "revenue"
	EndpointConnect = "connect"
)

const (
	outcomeHandled   = "handled"
	outcomeIgnored   = "ignored"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
)

// WebhookService routes verified events to their handlers. A returned error
// means the delivery should be answered with a server error so the sender
// retries; everything else is acknowledged.
type WebhookService struct {
	ledger   *LedgerService
	accounts *AccountService
	payouts  repo.Payouts
	audit    repo.AuditLogs
	log      *zap.Logger
	now      func() time.Time
}

func NewWebhookService(l *LedgerService, a *AccountService, p repo.Payouts, audit repo.AuditLogs, log *zap.Logger) *WebhookService {
	return &WebhookService{ledger: l, accounts: a, payouts: p, audit: audit, log: log, now: time.Now}
}

func (s *WebhookService) HandleRevenueEvent(ctx context.Context, evt payments.Event) error {
	outcome, err := s.dispatchRevenue(ctx, evt)
	s.finish(ctx, EndpointRevenue, evt, outcome, err)
	return err
}

func (s *WebhookService) dispatchRevenue(ctx context.Context, evt payments.Event) (string, error) {
	switch e := evt.(type) {
	case payments.PaymentSucceeded:
		return s.onPaymentSucceeded(ctx, e)
	case payments.TransferCreated:
		return s.onTransferCreated(ctx, e), nil
	case payments.AccountUpdated:
		if err := s.accounts.SetOnboarding(ctx, e.Status); err != nil {
			s.log.Error("account.updated", zap.Error(err))
		}
		return outcomeHandled, nil
	default:
		return outcomeIgnored, nil
	}
}

func (s *WebhookService) onPaymentSucceeded(ctx context.Context, e payments.PaymentSucceeded) (string, error) {
	out, err := s.ledger.RecordPayment(ctx, e)
	if errors.Is(err, ErrAlreadyRecorded) {
		s.log.Info("payment intent already recorded", zap.String("payment_intent_id", e.PaymentIntentID))
		return outcomeDuplicate, nil
	}
	if err != nil {
		return outcomeFailed, err
	}
	for _, st := range out.Steps {
		switch {
		case st.Failed():
			s.log.Error("ledger step failed",
				zap.String("step", st.Step),
				zap.String("payment_intent_id", e.PaymentIntentID),
				zap.String("transaction_id", out.Transaction.ID),
				zap.Error(st.Err))
		case st.Skipped:
			s.log.Debug("ledger step skipped",
				zap.String("step", st.Step), zap.String("reason", st.Reason),
				zap.String("payment_intent_id", e.PaymentIntentID))
		}
	}
	return outcomeHandled, nil
}

func (s *WebhookService) onTransferCreated(ctx context.Context, e payments.TransferCreated) string {
	n, err := s.payouts.CompleteByTransferID(ctx, e.TransferID, e.PayoutID, s.now().UTC())
	if err != nil {
		s.log.Error("complete payout by transfer", zap.String("transfer_id", e.TransferID), zap.Error(err))
		return outcomeHandled
	}
	if n == 0 {
		s.log.Info("no payout for transfer",
			zap.String("transfer_id", e.TransferID), zap.String("payout_id", e.PayoutID))
	}
	return outcomeHandled
}

func (s *WebhookService) HandleConnectEvent(ctx context.Context, evt payments.Event) error {
	outcome, err := s.dispatchConnect(ctx, evt)
	s.finish(ctx, EndpointConnect, evt, outcome, err)
	return err
}

func (s *WebhookService) dispatchConnect(ctx context.Context, evt payments.Event) (string, error) {
	switch e := evt.(type) {
	case payments.AccountUpdated:
		err := s.accounts.ApplyStatus(ctx, e.Status)
		if errors.Is(err, repo.ErrNotFound) {
			s.log.Warn("user not found for account", zap.String("account_id", e.Status.AccountID))
			return outcomeHandled, nil
		}
		if err != nil {
			return outcomeFailed, err
		}
		return outcomeHandled, nil
	case payments.PersonUpdated:
		s.refresh(ctx, e.AccountID, e.EventType())
		return outcomeHandled, nil
	case payments.ExternalAccountUpdated:
		s.refresh(ctx, e.AccountID, e.EventType())
		return outcomeHandled, nil
	case payments.AccountDeauthorized:
		if err := s.accounts.Deauthorize(ctx, e.AccountID); err != nil {
			s.log.Error("deauthorize", zap.Error(err))
		}
		return outcomeHandled, nil
	default:
		return outcomeIgnored, nil
	}
}

func (s *WebhookService) refresh(ctx context.Context, accountID, eventType string) {
	err := s.accounts.Refresh(ctx, accountID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		s.log.Warn("user not found for account", zap.String("account_id", accountID), zap.String("type", eventType))
	case err != nil:
		s.log.Error("refresh account", zap.String("account_id", accountID), zap.String("type", eventType), zap.Error(err))
	}
}

func (s *WebhookService) finish(ctx context.Context, endpoint string, evt payments.Event, outcome string, err error) {
	metrics.WebhookEvents.WithLabelValues(endpoint, evt.EventType(), outcome).Inc()

	fields := []zap.Field{
		zap.String("endpoint", endpoint),
		zap.String("event_id", evt.EventID()),
		zap.String("type", evt.EventType()),
		zap.String("outcome", outcome),
	}
	switch {
	case err != nil:
		s.log.Error("webhook processing failed", append(fields, zap.Error(err))...)
	case outcome == outcomeIgnored:
		s.log.Info("unhandled event type", fields...)
	default:
		s.log.Debug("webhook processed", fields...)
	}

	id := evt.EventID()
	details := map[string]any{"endpoint": endpoint, "outcome": outcome}
	if err != nil {
		details["error"] = err.Error()
	}
	if aerr := s.audit.Create(ctx, models.AuditLog{
		EntityType: "stripe_event",
		EntityID:   &id,
		Action:     evt.EventType(),
		Details:    details,
	}); aerr != nil {
		s.log.Warn("audit log", zap.Error(aerr))
	}
}
