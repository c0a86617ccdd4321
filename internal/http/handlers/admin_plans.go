package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/wayfarerhq/tripbook/internal/plans"
	"github.com/wayfarerhq/tripbook/pkg/logging"
)

type appointmentCanceler interface {
	CancelAppointment(ctx context.Context, planID uuid.UUID) error
}

// AdminPlansHandler serves staff-only plan operations.
type AdminPlansHandler struct {
	booking appointmentCanceler
	logger  *logging.Logger
}

// NewAdminPlansHandler creates the admin plans handler.
func NewAdminPlansHandler(bookingSvc appointmentCanceler, logger *logging.Logger) *AdminPlansHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminPlansHandler{booking: bookingSvc, logger: logger}
}

// Cancel handles POST /admin/plans/{planID}/cancel. Canceling a plan that is
// not confirmed is a no-op, reported as success.
func (h *AdminPlansHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	planID, ok := planIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid plan id")
		return
	}

	err := h.booking.CancelAppointment(r.Context(), planID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, plans.ErrNotFound):
		writeError(w, http.StatusNotFound, "plan not found")
	default:
		h.logger.Error("failed to cancel appointment", "error", err, "plan_id", planID.String())
		writeError(w, http.StatusInternalServerError, "server error")
	}
}
