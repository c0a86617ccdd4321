package plans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no plan matches the requested id.
	ErrNotFound = errors.New("plans: not found")
	// ErrNotEligible is returned when a guarded update matched no row because
	// the plan is not in the required state.
	ErrNotEligible = errors.New("plans: not eligible for this transition")
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides persistence for plans. All mutations are single-row
// updates; the guarded updates double as the atomic check-and-set gates the
// state machine relies on.
type Repository struct {
	pool rowQuerier
}

// NewRepository creates a repository backed by pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("plans: pgx pool required")
	}
	return &Repository{pool: pool}
}

// NewRepositoryWithQuerier allows injecting a mock for tests.
func NewRepositoryWithQuerier(q rowQuerier) *Repository {
	if q == nil {
		panic("plans: querier required")
	}
	return &Repository{pool: q}
}

const planColumns = `
	id, specialist_id, destination_id, status, appointment_status,
	appointment_start, appointment_end,
	payment_status, amount_cents, COALESCE(plan_tier, ''),
	COALESCE(stripe_session_id, ''), COALESCE(stripe_payment_intent_id, ''), paid_at,
	COALESCE(google_calendar_event_id, ''), COALESCE(meeting_link, ''),
	COALESCE(cancellation_comment, ''), COALESCE(canceled_by_type, ''), canceled_by_id, canceled_at,
	COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(email, ''), COALESCE(phone, ''),
	traveler_count, COALESCE(travel_notes, ''),
	created_at, updated_at`

func scanPlan(row pgx.Row) (*Plan, error) {
	var p Plan
	err := row.Scan(
		&p.ID, &p.SpecialistID, &p.DestinationID, &p.Status, &p.AppointmentStatus,
		&p.AppointmentStart, &p.AppointmentEnd,
		&p.PaymentStatus, &p.AmountCents, &p.PlanTier,
		&p.StripeSessionID, &p.StripePaymentIntentID, &p.PaidAt,
		&p.GoogleCalendarEventID, &p.MeetingLink,
		&p.CancellationComment, &p.CanceledByType, &p.CanceledByID, &p.CanceledAt,
		&p.FirstName, &p.LastName, &p.Email, &p.Phone,
		&p.TravelerCount, &p.TravelNotes,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a draft plan for a specialist.
func (r *Repository) Create(ctx context.Context, specialistID uuid.UUID, destinationID *uuid.UUID) (*Plan, error) {
	query := `
		INSERT INTO plans (id, specialist_id, destination_id, status, appointment_status, payment_status)
		VALUES ($1, $2, $3, 'draft', 'draft', 'pending')
		RETURNING ` + planColumns
	p, err := scanPlan(r.pool.QueryRow(ctx, query, uuid.New(), specialistID, destinationID))
	if err != nil {
		return nil, fmt.Errorf("plans: insert draft: %w", err)
	}
	return p, nil
}

// GetByID loads a plan by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1`
	p, err := scanPlan(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("plans: load by id: %w", err)
	}
	return p, nil
}

// UpdateAppointmentTimes sets the selected slot. Rejected once the plan is
// completed; slot selection is a pre-confirmation mutation only.
func (r *Repository) UpdateAppointmentTimes(ctx context.Context, id uuid.UUID, start, end time.Time) error {
	query := `
		UPDATE plans
		SET appointment_start = $2, appointment_end = $3, updated_at = now()
		WHERE id = $1 AND status <> 'completed'
	`
	ct, err := r.pool.Exec(ctx, query, id, start, end)
	if err != nil {
		return fmt.Errorf("plans: update appointment times: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotEligible
	}
	return nil
}

// UpdateContact stores the client's contact and travel details.
func (r *Repository) UpdateContact(ctx context.Context, id uuid.UUID, firstName, lastName, email, phone string, travelerCount int, travelNotes string) error {
	query := `
		UPDATE plans
		SET first_name = $2, last_name = $3, email = $4, phone = $5,
		    traveler_count = $6, travel_notes = $7, updated_at = now()
		WHERE id = $1
	`
	ct, err := r.pool.Exec(ctx, query, id, firstName, lastName, email, phone, travelerCount, travelNotes)
	if err != nil {
		return fmt.Errorf("plans: update contact: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTier sets the selected pricing tier while the plan is not yet paid.
func (r *Repository) UpdateTier(ctx context.Context, id uuid.UUID, tier string) error {
	query := `
		UPDATE plans
		SET plan_tier = $2, updated_at = now()
		WHERE id = $1 AND payment_status <> 'paid'
	`
	ct, err := r.pool.Exec(ctx, query, id, tier)
	if err != nil {
		return fmt.Errorf("plans: update tier: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotEligible
	}
	return nil
}

// ConfirmAppointment marks the plan completed and records the calendar event
// in a single write, so a calendar failure can never leave a completed plan
// without its event.
func (r *Repository) ConfirmAppointment(ctx context.Context, id uuid.UUID, eventID, meetingLink string) error {
	query := `
		UPDATE plans
		SET status = 'completed', appointment_status = 'completed',
		    google_calendar_event_id = $2, meeting_link = $3, updated_at = now()
		WHERE id = $1 AND status <> 'completed'
	`
	ct, err := r.pool.Exec(ctx, query, id, eventID, meetingLink)
	if err != nil {
		return fmt.Errorf("plans: confirm appointment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotEligible
	}
	return nil
}

// SetCheckoutSession persists the created checkout session against a
// completed, unpaid plan. The guard makes duplicate checkout creation for an
// already-paid plan fail fast instead of silently overwriting.
func (r *Repository) SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string, amountCents int64) error {
	query := `
		UPDATE plans
		SET stripe_session_id = $2, amount_cents = $3, updated_at = now()
		WHERE id = $1 AND status = 'completed' AND payment_status <> 'paid'
	`
	ct, err := r.pool.Exec(ctx, query, id, sessionID, amountCents)
	if err != nil {
		return fmt.Errorf("plans: set checkout session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotEligible
	}
	return nil
}

// MarkPaid settles the plan's payment at most once. The payment_status guard
// is the idempotency gate shared by the webhook and polling paths: whichever
// arrives first wins and the second observes settled=false.
func (r *Repository) MarkPaid(ctx context.Context, id uuid.UUID, paymentIntentID string, paidAt time.Time) (settled bool, err error) {
	query := `
		UPDATE plans
		SET payment_status = 'paid', stripe_payment_intent_id = $2, paid_at = $3, updated_at = now()
		WHERE id = $1 AND payment_status <> 'paid'
	`
	ct, err := r.pool.Exec(ctx, query, id, paymentIntentID, paidAt)
	if err != nil {
		return false, fmt.Errorf("plans: mark paid: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// ResetToDraft rewinds a plan to its pre-booking defaults: appointment,
// payment, calendar, and cancellation fields are all cleared, permitting
// rebooking.
func (r *Repository) ResetToDraft(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE plans
		SET status = 'draft', appointment_status = 'draft',
		    appointment_start = NULL, appointment_end = NULL,
		    payment_status = 'pending', paid_at = NULL,
		    stripe_session_id = NULL, stripe_payment_intent_id = NULL,
		    google_calendar_event_id = NULL, meeting_link = NULL,
		    cancellation_comment = NULL, canceled_by_type = NULL,
		    canceled_by_id = NULL, canceled_at = NULL,
		    updated_at = now()
		WHERE id = $1
	`
	ct, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("plans: reset to draft: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
