package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarerhq/tripbook/internal/payments"
	"github.com/wayfarerhq/tripbook/internal/plans"
	"github.com/wayfarerhq/tripbook/pkg/logging"
)

type checkoutCreator interface {
	CreateCheckout(ctx context.Context, planID uuid.UUID) (*payments.CheckoutResult, error)
}

type paymentChecker interface {
	CheckPayment(ctx context.Context, planID uuid.UUID) (*plans.Plan, error)
}

type documentLookup interface {
	Lookup(ctx context.Context, plan *plans.Plan, preferred payments.DocumentKind) (*payments.Document, error)
}

// PaymentsHandler serves checkout creation, payment status polling, and
// payment document downloads.
type PaymentsHandler struct {
	checkout   checkoutCreator
	reconciler paymentChecker
	documents  documentLookup
	plans      planReader
	logger     *logging.Logger

	// Retry pacing for checkout racing a just-confirmed plan.
	retryDelay func(attempt int) time.Duration
}

// NewPaymentsHandler creates the payments handler.
func NewPaymentsHandler(checkout checkoutCreator, reconciler paymentChecker, documents documentLookup, planRepo planReader, logger *logging.Logger) *PaymentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PaymentsHandler{
		checkout:   checkout,
		reconciler: reconciler,
		documents:  documents,
		plans:      planRepo,
		logger:     logger,
		retryDelay: func(attempt int) time.Duration {
			return time.Duration(attempt) * 200 * time.Millisecond
		},
	}
}

// CheckoutResponse drives the embedded payment form on the client.
type CheckoutResponse struct {
	SessionID    string `json:"session_id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
}

// CreateCheckout handles POST /plans/{planID}/checkout. A client that calls
// checkout immediately after confirm can see the plan before the confirm
// write lands; retry a few times with linear backoff before reporting the
// conflict.
func (h *PaymentsHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	planID, ok := planIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid plan id")
		return
	}

	const maxAttempts = 3
	var result *payments.CheckoutResult
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = h.checkout.CreateCheckout(r.Context(), planID)
		if !errors.Is(err, payments.ErrNotConfirmed) || attempt == maxAttempts {
			break
		}
		select {
		case <-r.Context().Done():
			writeError(w, http.StatusRequestTimeout, "request canceled")
			return
		case <-time.After(h.retryDelay(attempt)):
		}
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, CheckoutResponse{
			SessionID:    result.SessionID,
			ClientSecret: result.ClientSecret,
			AmountCents:  result.AmountCents,
		})
	case errors.Is(err, plans.ErrNotFound):
		writeError(w, http.StatusNotFound, "plan not found")
	case errors.Is(err, payments.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, "plan is already paid")
	case errors.Is(err, payments.ErrNotConfirmed):
		writeError(w, http.StatusConflict, "appointment must be confirmed before checkout")
	case errors.Is(err, payments.ErrUnknownTier):
		writeError(w, http.StatusUnprocessableEntity, "plan has no valid tier selected")
	default:
		h.logger.Error("failed to create checkout", "error", err, "plan_id", planID.String())
		writeError(w, http.StatusInternalServerError, "server error")
	}
}

// PaymentStatusResponse reports settlement state for polling clients.
type PaymentStatusResponse struct {
	PlanID        string     `json:"plan_id"`
	PaymentStatus string     `json:"payment_status"`
	AmountCents   int64      `json:"amount_cents,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

// PaymentStatus handles GET /plans/{planID}/payment. The read itself can
// settle the plan when the webhook has not arrived yet.
func (h *PaymentsHandler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	planID, ok := planIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid plan id")
		return
	}

	plan, err := h.reconciler.CheckPayment(r.Context(), planID)
	if err != nil {
		if errors.Is(err, plans.ErrNotFound) {
			writeError(w, http.StatusNotFound, "plan not found")
			return
		}
		h.logger.Error("payment status check failed", "error", err, "plan_id", planID.String())
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	writeJSON(w, http.StatusOK, PaymentStatusResponse{
		PlanID:        plan.ID.String(),
		PaymentStatus: string(plan.PaymentStatus),
		AmountCents:   plan.AmountCents,
		PaidAt:        plan.PaidAt,
	})
}

// DocumentResponse points the client at a hosted payment document.
type DocumentResponse struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// Document handles GET /plans/{planID}/document?type=invoice|receipt.
func (h *PaymentsHandler) Document(w http.ResponseWriter, r *http.Request) {
	planID, ok := planIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid plan id")
		return
	}

	kind := payments.DocumentInvoice
	if raw := r.URL.Query().Get("type"); raw != "" {
		parsed, err := payments.ParseDocumentKind(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "type must be invoice or receipt")
			return
		}
		kind = parsed
	}

	plan, err := h.plans.GetByID(r.Context(), planID)
	if err != nil {
		if errors.Is(err, plans.ErrNotFound) {
			writeError(w, http.StatusNotFound, "plan not found")
			return
		}
		h.logger.Error("failed to load plan", "error", err, "plan_id", planID.String())
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if !plan.Paid() {
		writeError(w, http.StatusConflict, "plan is not paid")
		return
	}

	doc, err := h.documents.Lookup(r.Context(), plan, kind)
	if err != nil {
		if errors.Is(err, payments.ErrDocumentNotReady) {
			writeError(w, http.StatusNotFound, "document not yet available, retry later")
			return
		}
		h.logger.Error("document lookup failed", "error", err, "plan_id", planID.String())
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	writeJSON(w, http.StatusOK, DocumentResponse{Kind: string(doc.Kind), URL: doc.URL})
}
