// Package booking drives the plan lifecycle: draft, slot selection,
// appointment confirmation with calendar event creation, and cancellation.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wayfarerhq/tripbook/internal/gcal"
	"github.com/wayfarerhq/tripbook/internal/observability/metrics"
	"github.com/wayfarerhq/tripbook/internal/plans"
	"github.com/wayfarerhq/tripbook/internal/specialists"
	"github.com/wayfarerhq/tripbook/pkg/logging"
)

var tracer = otel.Tracer("tripbook.internal.booking")

// Precondition violations reported as rejected operations. No partial state
// change accompanies any of them.
var (
	ErrCalendarNotConnected    = errors.New("booking: specialist calendar not connected")
	ErrMissingAppointmentTimes = errors.New("booking: appointment start and end must be set")
	ErrInvalidAppointmentTimes = errors.New("booking: appointment start must precede end")
	ErrAlreadyConfirmed        = errors.New("booking: appointment already confirmed")
)

type planStore interface {
	Create(ctx context.Context, specialistID uuid.UUID, destinationID *uuid.UUID) (*plans.Plan, error)
	GetByID(ctx context.Context, id uuid.UUID) (*plans.Plan, error)
	UpdateAppointmentTimes(ctx context.Context, id uuid.UUID, start, end time.Time) error
	ConfirmAppointment(ctx context.Context, id uuid.UUID, eventID, meetingLink string) error
	ResetToDraft(ctx context.Context, id uuid.UUID) error
}

type specialistStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*specialists.Specialist, error)
}

type confirmationNotifier interface {
	SendSpecialistAppointmentConfirmed(ctx context.Context, plan *plans.Plan, sp *specialists.Specialist, event *gcal.CreatedEvent)
}

// Service owns plan lifecycle transitions and the side effects attached to
// each one. Notifications run as post-commit hooks after the transition is
// durably persisted, so a notification failure can never be mistaken for a
// transition failure.
type Service struct {
	plans       planStore
	specialists specialistStore
	calendar    gcal.Gateway
	notifier    confirmationNotifier
	metrics     *metrics.BookingMetrics
	logger      *logging.Logger
}

// NewService creates the booking state machine service.
func NewService(planRepo planStore, specialistRepo specialistStore, calendar gcal.Gateway, notifier confirmationNotifier, m *metrics.BookingMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		plans:       planRepo,
		specialists: specialistRepo,
		calendar:    calendar,
		notifier:    notifier,
		metrics:     m,
		logger:      logger,
	}
}

type postCommitHook func(ctx context.Context)

// runPostCommit fires hooks after a durable state change. A panicking hook is
// contained; hooks are best-effort by contract.
func (s *Service) runPostCommit(ctx context.Context, hooks []postCommitHook) {
	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("booking: post-commit hook panicked", "panic", r)
				}
			}()
			hook(ctx)
		}()
	}
}

// CreateDraft initializes a draft plan against an existing specialist.
func (s *Service) CreateDraft(ctx context.Context, specialistID uuid.UUID, destinationID *uuid.UUID) (*plans.Plan, error) {
	if _, err := s.specialists.GetByID(ctx, specialistID); err != nil {
		return nil, fmt.Errorf("booking: create draft: %w", err)
	}
	plan, err := s.plans.Create(ctx, specialistID, destinationID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("booking: draft created", "plan_id", plan.ID.String(), "specialist_id", specialistID.String())
	return plan, nil
}

// SelectSlot records the chosen appointment window. Pure data mutation,
// valid in any pre-completed state; no calendar effects.
func (s *Service) SelectSlot(ctx context.Context, planID uuid.UUID, start, end time.Time) error {
	if !start.Before(end) {
		return ErrInvalidAppointmentTimes
	}
	if err := s.plans.UpdateAppointmentTimes(ctx, planID, start, end); err != nil {
		if errors.Is(err, plans.ErrNotEligible) {
			return ErrAlreadyConfirmed
		}
		return err
	}
	return nil
}

// ConfirmAppointment transitions the plan to completed: it creates the
// calendar event, then persists event id, meeting link, and completed status
// in one write. A calendar failure aborts with no persisted change.
func (s *Service) ConfirmAppointment(ctx context.Context, planID uuid.UUID) (*plans.Plan, error) {
	ctx, span := tracer.Start(ctx, "booking.confirm_appointment")
	defer span.End()
	span.SetAttributes(attribute.String("tripbook.plan_id", planID.String()))

	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	sp, err := s.specialists.GetByID(ctx, plan.SpecialistID)
	if err != nil {
		return nil, fmt.Errorf("booking: confirm: %w", err)
	}
	if !sp.CalendarConnected() {
		s.metrics.ObserveConfirmation("rejected")
		return nil, ErrCalendarNotConnected
	}
	if plan.AppointmentStart == nil || plan.AppointmentEnd == nil {
		s.metrics.ObserveConfirmation("rejected")
		return nil, ErrMissingAppointmentTimes
	}
	if !plan.AppointmentStart.Before(*plan.AppointmentEnd) {
		s.metrics.ObserveConfirmation("rejected")
		return nil, ErrInvalidAppointmentTimes
	}

	duration := int(plan.AppointmentEnd.Sub(*plan.AppointmentStart) / time.Minute)
	account := gcal.Account{CalendarID: sp.CalendarID, RefreshToken: sp.CalendarRefreshToken}
	event, err := s.calendar.CreateEvent(ctx, account, gcal.EventRequest{
		Start:           *plan.AppointmentStart,
		DurationMinutes: duration,
		AttendeeName:    plan.ClientName(),
		AttendeeEmail:   plan.Email,
		AttendeePhone:   plan.Phone,
		Notes:           buildEventNotes(plan),
		OrganizerName:   sp.Name,
		OrganizerEmail:  sp.Email,
		OrganizerPhone:  sp.Phone,
	})
	if err != nil {
		s.metrics.ObserveConfirmation("calendar_failed")
		return nil, fmt.Errorf("booking: create calendar event: %w", err)
	}

	if err := s.plans.ConfirmAppointment(ctx, planID, event.ID, event.MeetingLink); err != nil {
		// The event exists but the transition didn't persist; clean up so a
		// retry doesn't leave a duplicate on the specialist's calendar.
		if delErr := s.calendar.DeleteEvent(ctx, account, event.ID); delErr != nil {
			s.logger.Error("booking: orphan event cleanup failed", "error", delErr, "event_id", event.ID)
		}
		if errors.Is(err, plans.ErrNotEligible) {
			s.metrics.ObserveConfirmation("rejected")
			return nil, ErrAlreadyConfirmed
		}
		s.metrics.ObserveConfirmation("persist_failed")
		return nil, err
	}

	plan.Status = plans.StatusCompleted
	plan.AppointmentStatus = plans.StatusCompleted
	plan.GoogleCalendarEventID = event.ID
	plan.MeetingLink = event.MeetingLink

	s.metrics.ObserveConfirmation("completed")
	s.runPostCommit(ctx, []postCommitHook{
		func(ctx context.Context) {
			if s.notifier != nil {
				s.notifier.SendSpecialistAppointmentConfirmed(ctx, plan, sp, event)
			}
		},
	})

	s.logger.Info("booking: appointment confirmed",
		"plan_id", plan.ID.String(), "event_id", event.ID, "specialist_id", sp.ID.String())
	return plan, nil
}

// CancelAppointment resets a completed plan to draft, deleting the calendar
// event best-effort. On a non-completed plan it is a logged no-op. The
// cancellation audit columns are cleared, not populated; this action is the
// reset to draft, not an archival cancel.
func (s *Service) CancelAppointment(ctx context.Context, planID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "booking.cancel_appointment")
	defer span.End()

	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return err
	}
	if plan.Status != plans.StatusCompleted {
		s.logger.Info("booking: cancel requested for non-completed plan, ignoring",
			"plan_id", planID.String(), "status", string(plan.Status))
		s.metrics.ObserveCancellation("noop")
		return nil
	}

	if plan.GoogleCalendarEventID != "" {
		sp, err := s.specialists.GetByID(ctx, plan.SpecialistID)
		if err != nil {
			s.logger.Warn("booking: cancel could not load specialist for event delete",
				"error", err, "plan_id", planID.String())
		} else if sp.CalendarConnected() {
			account := gcal.Account{CalendarID: sp.CalendarID, RefreshToken: sp.CalendarRefreshToken}
			if err := s.calendar.DeleteEvent(ctx, account, plan.GoogleCalendarEventID); err != nil {
				// Calendar is not the source of truth; cancellation proceeds.
				s.logger.Warn("booking: calendar event delete failed",
					"error", err, "plan_id", planID.String(), "event_id", plan.GoogleCalendarEventID)
			}
		}
	}

	if err := s.plans.ResetToDraft(ctx, planID); err != nil {
		s.metrics.ObserveCancellation("failed")
		return err
	}
	s.metrics.ObserveCancellation("reset")
	s.logger.Info("booking: appointment canceled and plan reset", "plan_id", planID.String())
	return nil
}

// buildEventNotes composes the free-text event description from the client's
// trip details.
func buildEventNotes(plan *plans.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trip consultation booked via Wayfarer.\n")
	fmt.Fprintf(&b, "Client: %s", plan.ClientName())
	if plan.Email != "" {
		fmt.Fprintf(&b, " <%s>", plan.Email)
	}
	b.WriteString("\n")
	if plan.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", plan.Phone)
	}
	if plan.PlanTier != "" {
		fmt.Fprintf(&b, "Plan tier: %s\n", plan.PlanTier)
	}
	if plan.TravelerCount > 0 {
		fmt.Fprintf(&b, "Travelers: %d\n", plan.TravelerCount)
	}
	if plan.TravelNotes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", plan.TravelNotes)
	}
	return strings.TrimRight(b.String(), "\n")
}
