// Package plans holds the Plan aggregate: a client's trip-planning
// appointment with a specialist, tracked from draft through confirmation
// and payment settlement.
package plans

import (
	"time"

	"github.com/google/uuid"
)

// Status is the appointment confirmation stage of a plan.
type Status string

const (
	StatusDraft          Status = "draft"
	StatusPendingPayment Status = "pending_payment"
	StatusCompleted      Status = "completed"
)

// PaymentStatus tracks payment settlement for a plan.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Plan is the appointment/booking aggregate and the single source of truth
// for the whole lifecycle.
type Plan struct {
	ID            uuid.UUID
	SpecialistID  uuid.UUID
	DestinationID *uuid.UUID

	Status            Status
	AppointmentStatus Status
	AppointmentStart  *time.Time
	AppointmentEnd    *time.Time

	PaymentStatus         PaymentStatus
	AmountCents           int64
	PlanTier              string
	StripeSessionID       string
	StripePaymentIntentID string
	PaidAt                *time.Time

	// Set only after a successful calendar event creation; both empty
	// whenever Status is not completed.
	GoogleCalendarEventID string
	MeetingLink           string

	CancellationComment string
	CanceledByType      string
	CanceledByID        *uuid.UUID
	CanceledAt          *time.Time

	// Client profile, carried through to notifications and event text.
	FirstName     string
	LastName      string
	Email         string
	Phone         string
	TravelerCount int
	TravelNotes   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClientName returns the client's display name.
func (p *Plan) ClientName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	case p.LastName != "":
		return p.LastName
	default:
		return "A traveler"
	}
}

// HasAppointment reports whether both appointment times are set and ordered.
func (p *Plan) HasAppointment() bool {
	return p.AppointmentStart != nil && p.AppointmentEnd != nil &&
		p.AppointmentStart.Before(*p.AppointmentEnd)
}

// Paid reports whether the plan's payment has settled.
func (p *Plan) Paid() bool {
	return p.PaymentStatus == PaymentPaid
}
