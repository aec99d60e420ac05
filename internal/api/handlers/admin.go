package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kazuya8222/embld-revenue/internal/api/httpx"
	"github.com/kazuya8222/embld-revenue/internal/api/validate"
	"github.com/kazuya8222/embld-revenue/internal/models"
	repo "github.com/kazuya8222/embld-revenue/internal/repository"
	"github.com/kazuya8222/embld-revenue/internal/services"
	"go.uber.org/zap"
)

type payoutAdmin interface {
	List(ctx context.Context, status models.PayoutStatus, limit int) ([]models.Payout, error)
	Retry(ctx context.Context, id string) (models.Payout, error)
	RetryFailed(ctx context.Context) (int, error)
	Distribute(ctx context.Context, userID string, amount int64, description string) (services.Distribution, error)
}

type AdminHandler struct {
	svc payoutAdmin
	log *zap.Logger
}

func NewAdminHandler(svc payoutAdmin, log *zap.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, log: log}
}

func (h *AdminHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	status := models.PayoutStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.PayoutFailed
	}
	if !status.Valid() {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_status", "status must be pending, processing, completed or failed", nil)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.svc.List(r.Context(), status, limit)
	if err != nil {
		h.serverError(w, "list payouts", err)
		return
	}
	if list == nil {
		list = []models.Payout{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"payouts": list})
}

func (h *AdminHandler) RetryPayout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.svc.Retry(r.Context(), id)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "payout not found", nil)
	case errors.Is(err, services.ErrPayoutCompleted):
		httpx.WriteError(w, http.StatusConflict, "already_completed", err.Error(), nil)
	case errors.Is(err, services.ErrPayoutInFlight):
		httpx.WriteError(w, http.StatusConflict, "in_flight", err.Error(), nil)
	case services.IsClientError(err):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "not_transferable", err.Error(), nil)
	case err != nil:
		h.log.Error("retry payout", zap.String("payout_id", id), zap.Error(err))
		httpx.WriteJSON(w, http.StatusBadGateway, map[string]any{
			"error":  "transfer failed",
			"code":   "transfer_failed",
			"payout": p,
		})
	default:
		httpx.WriteJSON(w, http.StatusOK, p)
	}
}

func (h *AdminHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.RetryFailed(r.Context())
	if err != nil {
		h.serverError(w, "retry failed payouts", err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]int{"queued": n})
}

type transferReq struct {
	UserID      string `json:"user_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// Transfer sends a manual revenue-share distribution.
func (h *AdminHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", nil)
		return
	}
	if errs := validate.Collect(
		validate.Required("user_id", req.UserID),
		validate.MinInt("amount", req.Amount, 1),
		validate.MaxLen("description", req.Description, 500),
	); errs != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", "invalid request", errs)
		return
	}

	d, err := h.svc.Distribute(r.Context(), req.UserID, req.Amount, req.Description)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "user not found", nil)
	case services.IsClientError(err):
		httpx.WriteError(w, http.StatusBadRequest, "not_transferable", err.Error(), nil)
	case err != nil:
		h.serverError(w, "distribute", err)
	default:
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"transfer": d,
			"message":  "Transfer of " + strconv.FormatInt(d.Amount, 10) + " JPY sent",
		})
	}
}

func (h *AdminHandler) serverError(w http.ResponseWriter, op string, err error) {
	h.log.Error(op, zap.Error(err))
	httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
}
