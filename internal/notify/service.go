// Package notify sends confirmation and payment emails. Sends are
// fire-and-forget: a notification failure is logged and never reaches the
// booking or payment critical path.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wayfarerhq/tripbook/internal/gcal"
	"github.com/wayfarerhq/tripbook/internal/plans"
	"github.com/wayfarerhq/tripbook/internal/specialists"
	"github.com/wayfarerhq/tripbook/pkg/logging"
)

// Dispatcher sends booking-lifecycle notifications. All methods swallow
// failures by design; callers invoke them from post-commit hooks.
type Dispatcher struct {
	email  EmailSender
	logger *logging.Logger
}

// NewDispatcher creates a notification dispatcher.
func NewDispatcher(email EmailSender, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{email: email, logger: logger}
}

// SendSpecialistAppointmentConfirmed notifies the specialist that a client
// confirmed an appointment on their calendar.
func (d *Dispatcher) SendSpecialistAppointmentConfirmed(ctx context.Context, plan *plans.Plan, sp *specialists.Specialist, event *gcal.CreatedEvent) {
	if d.email == nil || sp == nil || sp.Email == "" {
		return
	}

	when := "the selected time"
	if plan.AppointmentStart != nil {
		if loc, err := sp.Location(); err == nil {
			when = plan.AppointmentStart.In(loc).Format("Monday, January 2 at 3:04 PM")
		} else {
			when = plan.AppointmentStart.Format("Monday, January 2 at 3:04 PM")
		}
	}

	meetInfo := ""
	if event != nil && event.MeetingLink != "" {
		meetInfo = fmt.Sprintf("\nMeeting link: %s", event.MeetingLink)
	}
	notesInfo := ""
	if plan.TravelNotes != "" {
		notesInfo = fmt.Sprintf("\nTrip notes: %s", plan.TravelNotes)
	}

	msg := EmailMessage{
		To:      sp.Email,
		ToName:  sp.Name,
		Subject: fmt.Sprintf("New consultation booked - %s", plan.ClientName()),
		Body: fmt.Sprintf(`%s has booked a trip consultation with you.

Client: %s
Email: %s
Phone: %s
When: %s%s%s

The event has been added to your calendar.

— Wayfarer`, plan.ClientName(), plan.ClientName(), plan.Email, plan.Phone, when, meetInfo, notesInfo),
	}

	if err := d.email.Send(ctx, msg); err != nil {
		d.logger.Error("notify: appointment confirmation email failed", "error", err, "to", sp.Email, "plan_id", plan.ID.String())
		return
	}
	d.logger.Info("notify: appointment confirmation email sent", "to", sp.Email, "plan_id", plan.ID.String())
}

// SendPaymentSuccess notifies the client that their payment settled.
// Triggered exactly once per settlement by the reconciler's idempotent gate.
func (d *Dispatcher) SendPaymentSuccess(ctx context.Context, plan *plans.Plan) {
	if d.email == nil || plan == nil || plan.Email == "" {
		return
	}

	amountStr := fmt.Sprintf("$%.2f", float64(plan.AmountCents)/100)
	paidAt := time.Now()
	if plan.PaidAt != nil {
		paidAt = *plan.PaidAt
	}

	scheduledInfo := ""
	if plan.AppointmentStart != nil {
		scheduledInfo = fmt.Sprintf("\nYour consultation: %s", plan.AppointmentStart.Format("Monday, January 2 at 3:04 PM MST"))
	}

	msg := EmailMessage{
		To:      plan.Email,
		ToName:  plan.ClientName(),
		Subject: "Payment received - your trip plan is underway",
		Body: fmt.Sprintf(`Hi %s,

We've received your payment of %s on %s.%s

Your specialist will come prepared with a tailored itinerary. See you soon!

— Wayfarer`, plan.ClientName(), amountStr, paidAt.Format("January 2, 2006 at 3:04 PM"), scheduledInfo),
	}

	if err := d.email.Send(ctx, msg); err != nil {
		d.logger.Error("notify: payment success email failed", "error", err, "to", plan.Email, "plan_id", plan.ID.String())
		return
	}
	d.logger.Info("notify: payment success email sent", "to", plan.Email, "plan_id", plan.ID.String())
}
