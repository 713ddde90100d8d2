package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Ced-Maker4352/luxe-mobile/internal/domain"
	"github.com/Ced-Maker4352/luxe-mobile/internal/store"
	"github.com/go-chi/chi/v5"
)

// PaymentLookup reads the payment ledger and the failed-grant backlog.
type PaymentLookup interface {
	GetPayment(ctx context.Context, sessionID string) (*domain.PaymentRecord, error)
	ListUnreconciled(ctx context.Context, limit int) ([]domain.WebhookDelivery, error)
}

// ReconciliationRunner runs the reconciliation job on demand.
type ReconciliationRunner interface {
	ReportUnreconciledPayments(ctx context.Context) (int, error)
}

// OpsHandler serves the operator API behind OpsAuthMiddleware.
type OpsHandler struct {
	payments PaymentLookup
	jobs     ReconciliationRunner
	logger   *slog.Logger
}

func NewOpsHandler(payments PaymentLookup, jobs ReconciliationRunner, logger *slog.Logger) *OpsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpsHandler{payments: payments, jobs: jobs, logger: logger}
}

func (h *OpsHandler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return
	}

	payment, err := h.payments.GetPayment(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			http.Error(w, "Payment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("payment lookup failed", slog.String("session_id", sessionID), slog.Any("error", err))
		http.Error(w, "Failed to load payment", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, payment)
}

func (h *OpsHandler) handleListUnreconciled(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	deliveries, err := h.payments.ListUnreconciled(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing unreconciled deliveries failed", slog.Any("error", err))
		http.Error(w, "Failed to list deliveries", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"deliveries": deliveries,
		"count":      len(deliveries),
	})
}

func (h *OpsHandler) handleRunReconciliation(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("reconciliation run requested", slog.String("operator", OpsSubjectFromContext(r.Context())))

	reported, err := h.jobs.ReportUnreconciledPayments(r.Context())
	if err != nil {
		http.Error(w, "Reconciliation failed", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"reported": reported})
}
