package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarerhq/tripbook/internal/availability"
	"github.com/wayfarerhq/tripbook/internal/specialists"
	"github.com/wayfarerhq/tripbook/pkg/logging"
)

type specialistGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*specialists.Specialist, error)
}

type slotCalculator interface {
	Slots(ctx context.Context, sp *specialists.Specialist, durationMinutes int, targetDate time.Time) ([]availability.Slot, availability.Source, error)
}

// AvailabilityHandler serves bookable slot queries.
type AvailabilityHandler struct {
	specialists     specialistGetter
	calculator      slotCalculator
	defaultDuration int
	logger          *logging.Logger
}

// NewAvailabilityHandler creates an availability query handler.
func NewAvailabilityHandler(specialistRepo specialistGetter, calc slotCalculator, defaultDurationMinutes int, logger *logging.Logger) *AvailabilityHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityHandler{
		specialists:     specialistRepo,
		calculator:      calc,
		defaultDuration: defaultDurationMinutes,
		logger:          logger,
	}
}

// AvailabilityResponse lists the bookable slots for one specialist and date,
// tagged with how the slots were computed.
type AvailabilityResponse struct {
	SpecialistID string              `json:"specialist_id"`
	Date         string              `json:"date"`
	Slots        []availability.Slot `json:"slots"`
	Source       string              `json:"source"`
}

// Query handles GET /availability?specialist_id=&date=&duration=.
func (h *AvailabilityHandler) Query(w http.ResponseWriter, r *http.Request) {
	specialistID, err := uuid.Parse(r.URL.Query().Get("specialist_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid specialist_id")
		return
	}

	dateRaw := r.URL.Query().Get("date")
	date, err := time.Parse("2006-01-02", dateRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	duration := h.defaultDuration
	if raw := r.URL.Query().Get("duration"); raw != "" {
		duration, err = strconv.Atoi(raw)
		if err != nil || duration <= 0 {
			writeError(w, http.StatusBadRequest, "duration must be a positive number of minutes")
			return
		}
	}

	sp, err := h.specialists.GetByID(r.Context(), specialistID)
	if err != nil {
		if errors.Is(err, specialists.ErrNotFound) {
			writeError(w, http.StatusNotFound, "specialist not found")
			return
		}
		h.logger.Error("failed to load specialist", "error", err, "specialist_id", specialistID.String())
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	slots, source, err := h.calculator.Slots(r.Context(), sp, duration, date)
	if err != nil {
		if errors.Is(err, availability.ErrNoSchedule) {
			writeError(w, http.StatusConflict, "specialist has no working hours configured")
			return
		}
		h.logger.Error("availability query failed", "error", err, "specialist_id", specialistID.String())
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	writeJSON(w, http.StatusOK, AvailabilityResponse{
		SpecialistID: specialistID.String(),
		Date:         dateRaw,
		Slots:        slots,
		Source:       string(source),
	})
}
