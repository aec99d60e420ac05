package handlers

import (
	"context"
	"net/http"

	"github.com/kazuya8222/embld-revenue/internal/api/httpx"
	"github.com/kazuya8222/embld-revenue/internal/middleware"
	"github.com/kazuya8222/embld-revenue/internal/services"
	"go.uber.org/zap"
)

type analyticsReporter interface {
	Report(ctx context.Context, userID string, period services.Period, productID *string) (services.AnalyticsReport, error)
}

type AnalyticsHandler struct {
	svc analyticsReporter
	log *zap.Logger
}

func NewAnalyticsHandler(svc analyticsReporter, log *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc, log: log}
}

// Revenue serves GET /revenue/analytics for the calling user.
func (h *AnalyticsHandler) Revenue(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.FromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", nil)
		return
	}
	q := r.URL.Query()
	period, err := services.ParsePeriod(q.Get("period"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_period", err.Error(), nil)
		return
	}
	var productID *string
	if p := q.Get("product_id"); p != "" {
		productID = &p
	}

	rep, err := h.svc.Report(r.Context(), u.UserID, period, productID)
	if err != nil {
		h.log.Error("revenue analytics", zap.String("user_id", u.UserID), zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to fetch analytics", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rep)
}
