package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wayfarerhq/tripbook/internal/booking"
	"github.com/wayfarerhq/tripbook/internal/ical"
	"github.com/wayfarerhq/tripbook/internal/plans"
	"github.com/wayfarerhq/tripbook/internal/specialists"
	"github.com/wayfarerhq/tripbook/pkg/logging"
)

type bookingService interface {
	CreateDraft(ctx context.Context, specialistID uuid.UUID, destinationID *uuid.UUID) (*plans.Plan, error)
	SelectSlot(ctx context.Context, planID uuid.UUID, start, end time.Time) error
	ConfirmAppointment(ctx context.Context, planID uuid.UUID) (*plans.Plan, error)
}

type planReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*plans.Plan, error)
	UpdateContact(ctx context.Context, id uuid.UUID, firstName, lastName, email, phone string, travelerCount int, travelNotes string) error
	UpdateTier(ctx context.Context, id uuid.UUID, tier string) error
}

// PlansHandler serves the plan lifecycle endpoints: draft creation, slot
// selection, contact and tier updates, confirmation, and calendar export.
type PlansHandler struct {
	booking     bookingService
	plans       planReader
	specialists specialistGetter
	tiers       map[string]int64
	logger      *logging.Logger
}

// NewPlansHandler creates the plan lifecycle handler. tiers is the price
// table; tier updates are validated against its keys.
func NewPlansHandler(bookingSvc bookingService, planRepo planReader, specialistRepo specialistGetter, tiers map[string]int64, logger *logging.Logger) *PlansHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PlansHandler{
		booking:     bookingSvc,
		plans:       planRepo,
		specialists: specialistRepo,
		tiers:       tiers,
		logger:      logger,
	}
}

// PlanResponse is the wire shape of a plan.
type PlanResponse struct {
	ID               string     `json:"id"`
	SpecialistID     string     `json:"specialist_id"`
	Status           string     `json:"status"`
	PaymentStatus    string     `json:"payment_status"`
	PlanTier         string     `json:"plan_tier,omitempty"`
	AmountCents      int64      `json:"amount_cents,omitempty"`
	AppointmentStart *time.Time `json:"appointment_start,omitempty"`
	AppointmentEnd   *time.Time `json:"appointment_end,omitempty"`
	MeetingLink      string     `json:"meeting_link,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func planToResponse(p *plans.Plan) PlanResponse {
	return PlanResponse{
		ID:               p.ID.String(),
		SpecialistID:     p.SpecialistID.String(),
		Status:           string(p.Status),
		PaymentStatus:    string(p.PaymentStatus),
		PlanTier:         p.PlanTier,
		AmountCents:      p.AmountCents,
		AppointmentStart: p.AppointmentStart,
		AppointmentEnd:   p.AppointmentEnd,
		MeetingLink:      p.MeetingLink,
		PaidAt:           p.PaidAt,
		CreatedAt:        p.CreatedAt,
	}
}

func planIDFromRequest(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "planID"))
	return id, err == nil
}

// CreatePlanRequest starts a draft plan with a chosen specialist.
type CreatePlanRequest struct {
	SpecialistID  string  `json:"specialist_id"`
	DestinationID *string `json:"destination_id,omitempty"`
}

// Create handles POST /plans.
func (h *PlansHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	specialistID, err := uuid.Parse(req.SpecialistID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid specialist_id")
		return
	}
	var destinationID *uuid.UUID
	if req.DestinationID != nil {
		id, err := uuid.Parse(*req.DestinationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid destination_id")
			return
		}
		destinationID = &id
	}

	plan, err := h.booking.CreateDraft(r.Context(), specialistID, destinationID)
	if err != nil {
		if errors.Is(err, specialists.ErrNotFound) {
			writeError(w, http.StatusNotFound, "specialist not found")
			return
		}
		h.logger.Error("failed to create plan", "error", err, "specialist_id", req.SpecialistID)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusCreated, planToResponse(plan))
}

// Get handles GET /plans/{planID}.
func (h *PlansHandler) Get(w http.ResponseWriter, r *http.Request) {
	planID, ok := planIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid plan id")
		return
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
	writeJSON(w, http.StatusOK, planToResponse(plan))
}

// SelectSlotRequest records the client's chosen appointment window.
type SelectSlotRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SelectSlot handles POST /plans/{planID}/slot.
func (h *PlansHandler) SelectSlot(w http.ResponseWriter, r *http.Request) {
	planID, ok := planIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid plan id")
		return
	}
	var req SelectSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.booking.SelectSlot(r.Context(), planID, req.Start, req.End)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, plans.ErrNotFound):
		writeError(w, http.StatusNotFound, "plan not found")
	case errors.Is(err, booking.ErrInvalidAppointmentTimes):
		writeError(w, http.StatusBadRequest, "start must precede end")
	case errors.Is(err, booking.ErrAlreadyConfirmed):
		writeError(w, http.StatusConflict, "appointment already confirmed")
	default:
		h.logger.Error("failed to select slot", "error", err, "plan_id", planID.String())
		writeError(w, http.StatusInternalServerError, "server error")
	}
}

// UpdateContactRequest carries the client profile for the plan.
type UpdateContactRequest struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	TravelerCount int    `json:"traveler_count"`
	TravelNotes   string `json:"travel_notes"`
}

// UpdateContact handles PUT /plans/{planID}/contact.
func (h *PlansHandler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	planID, ok := planIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid plan id")
		return
	}
	var req UpdateContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if req.TravelerCount < 0 {
		writeError(w, http.StatusBadRequest, "traveler_count must not be negative")
		return
	}

	err := h.plans.UpdateContact(r.Context(), planID, req.FirstName, req.LastName, req.Email, req.Phone, req.TravelerCount, req.TravelNotes)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, plans.ErrNotFound):
		writeError(w, http.StatusNotFound, "plan not found")
	default:
		h.logger.Error("failed to update contact", "error", err, "plan_id", planID.String())
		writeError(w, http.StatusInternalServerError, "server error")
	}
}

// UpdateTierRequest selects a pricing tier for the plan.
type UpdateTierRequest struct {
	Tier string `json:"tier"`
}

// UpdateTier handles PUT /plans/{planID}/tier.
func (h *PlansHandler) UpdateTier(w http.ResponseWriter, r *http.Request) {
	planID, ok := planIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid plan id")
		return
	}
	var req UpdateTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, ok := h.tiers[req.Tier]; !ok {
		writeError(w, http.StatusBadRequest, "unknown tier")
		return
	}

	err := h.plans.UpdateTier(r.Context(), planID, req.Tier)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, plans.ErrNotFound):
		writeError(w, http.StatusNotFound, "plan not found")
	default:
		h.logger.Error("failed to update tier", "error", err, "plan_id", planID.String())
		writeError(w, http.StatusInternalServerError, "server error")
	}
}

// Confirm handles POST /plans/{planID}/confirm.
func (h *PlansHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	planID, ok := planIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid plan id")
		return
	}

	plan, err := h.booking.ConfirmAppointment(r.Context(), planID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, planToResponse(plan))
	case errors.Is(err, plans.ErrNotFound):
		writeError(w, http.StatusNotFound, "plan not found")
	case errors.Is(err, booking.ErrAlreadyConfirmed):
		writeError(w, http.StatusConflict, "appointment already confirmed")
	case errors.Is(err, booking.ErrMissingAppointmentTimes), errors.Is(err, booking.ErrInvalidAppointmentTimes):
		writeError(w, http.StatusUnprocessableEntity, "appointment times not set")
	case errors.Is(err, booking.ErrCalendarNotConnected):
		writeError(w, http.StatusConflict, "specialist calendar not connected")
	default:
		h.logger.Error("failed to confirm appointment", "error", err, "plan_id", planID.String())
		writeError(w, http.StatusInternalServerError, "server error")
	}
}

// CalendarICS handles GET /plans/{planID}/calendar.ics.
func (h *PlansHandler) CalendarICS(w http.ResponseWriter, r *http.Request) {
	planID, ok := planIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid plan id")
		return
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

	// Specialist lookup is for the event title only; the export still works
	// without it.
	var sp *specialists.Specialist
	if loaded, err := h.specialists.GetByID(r.Context(), plan.SpecialistID); err == nil {
		sp = loaded
	}

	body, err := ical.Render(plan, sp)
	if err != nil {
		if errors.Is(err, ical.ErrNoAppointment) {
			writeError(w, http.StatusConflict, "plan has no confirmed appointment")
			return
		}
		h.logger.Error("failed to render calendar file", "error", err, "plan_id", planID.String())
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ical.Filename(plan)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
