package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/kazuya8222/embld-revenue/internal/api/httpx"
	"github.com/kazuya8222/embld-revenue/internal/middleware"
	"github.com/kazuya8222/embld-revenue/internal/models"
	repo "github.com/kazuya8222/embld-revenue/internal/repository"
	"github.com/kazuya8222/embld-revenue/internal/services"
	"go.uber.org/zap"
)

type earningsReader interface {
	UserPayouts(ctx context.Context, userID string) (services.UserPayouts, error)
	Balance(ctx context.Context, userID string) (models.AccountBalance, error)
	Recipients(ctx context.Context) ([]services.Recipient, error)
}

type EarningsHandler struct {
	svc earningsReader
	log *zap.Logger
}

func NewEarningsHandler(svc earningsReader, log *zap.Logger) *EarningsHandler {
	return &EarningsHandler{svc: svc, log: log}
}

// Payouts serves GET /revenue/payouts for the calling user.
func (h *EarningsHandler) Payouts(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.FromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", nil)
		return
	}
	out, err := h.svc.UserPayouts(r.Context(), u.UserID)
	if err != nil {
		h.log.Error("user payouts", zap.String("user_id", u.UserID), zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to fetch payouts", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// Balance serves GET /revenue/balance. A user without a usable connected
// account gets an empty balance and a reason, not an error status.
func (h *EarningsHandler) Balance(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.FromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", nil)
		return
	}
	b, err := h.svc.Balance(r.Context(), u.UserID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "User not found", nil)
	case errors.Is(err, services.ErrNoPayoutAccount):
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"balance": b, "error": "No Stripe account connected"})
	case errors.Is(err, services.ErrNotOnboarded):
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"balance": b, "error": "Stripe onboarding not completed"})
	case err != nil:
		h.log.Error("account balance", zap.String("user_id", u.UserID), zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to fetch balance", nil)
	default:
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"balance": b, "currency": b.Currency})
	}
}

// Recipients serves the admin list of users who can receive transfers.
func (h *EarningsHandler) Recipients(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Recipients(r.Context())
	if err != nil {
		h.log.Error("list recipients", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to fetch users", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"users": list})
}
