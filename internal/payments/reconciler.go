package payments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarerhq/tripbook/internal/events"
	"github.com/wayfarerhq/tripbook/internal/observability/metrics"
	"github.com/wayfarerhq/tripbook/internal/plans"
	"github.com/wayfarerhq/tripbook/pkg/logging"
)

// Settlement delivery paths. Webhook delivery and poll-triggered settlement
// may race; both funnel into the same idempotent MarkPaid gate.
const (
	SettlementPathWebhook = "webhook"
	SettlementPathPoll    = "poll"
)

type reconcilerPlanStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*plans.Plan, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paymentIntentID string, paidAt time.Time) (bool, error)
}

type paymentNotifier interface {
	SendPaymentSuccess(ctx context.Context, plan *plans.Plan)
}

type settlementOutbox interface {
	Insert(ctx context.Context, eventType string, payload any) (uuid.UUID, error)
}

// Reconciler converges the webhook and polling settlement paths on one
// idempotent mark-paid operation. Whichever path arrives first wins; the
// second observes settled=false and triggers nothing.
type Reconciler struct {
	plans    reconcilerPlanStore
	stripe   stripeAPI
	notifier paymentNotifier
	outbox   settlementOutbox
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// NewReconciler creates a payment reconciler.
func NewReconciler(planRepo reconcilerPlanStore, stripe stripeAPI, notifier paymentNotifier, m *metrics.BookingMetrics, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		plans:    planRepo,
		stripe:   stripe,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// WithOutbox records a settlement event for downstream consumers on every
// winning settlement. Outbox failures never fail the settlement itself.
func (r *Reconciler) WithOutbox(outbox settlementOutbox) *Reconciler {
	r.outbox = outbox
	return r
}

// WithNow overrides the clock (for testing).
func (r *Reconciler) WithNow(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// MarkPaid settles a plan at most once. On a plan that is already paid it is
// a no-op: paid_at is untouched and no second notification fires. The
// repository's guarded update is the atomic check-and-set; this method never
// does a read-then-write of payment_status.
func (r *Reconciler) MarkPaid(ctx context.Context, plan *plans.Plan, paymentIntentID string, paidAt time.Time, path string) (bool, error) {
	settled, err := r.plans.MarkPaid(ctx, plan.ID, paymentIntentID, paidAt)
	if err != nil {
		return false, err
	}
	if !settled {
		r.logger.Info("payments: settlement already recorded, skipping",
			"plan_id", plan.ID.String(), "path", path)
		return false, nil
	}

	plan.PaymentStatus = plans.PaymentPaid
	plan.StripePaymentIntentID = paymentIntentID
	plan.PaidAt = &paidAt

	r.metrics.ObserveSettlement(path)
	if r.notifier != nil {
		r.notifier.SendPaymentSuccess(ctx, plan)
	}
	if r.outbox != nil {
		evt := events.PaymentSettledV1{
			PlanID:          plan.ID.String(),
			PaymentIntentID: paymentIntentID,
			SessionID:       plan.StripeSessionID,
			AmountCents:     plan.AmountCents,
			Path:            path,
			PaidAt:          paidAt,
			ClientName:      plan.ClientName(),
			ClientEmail:     plan.Email,
			ScheduledFor:    plan.AppointmentStart,
		}
		if _, err := r.outbox.Insert(ctx, events.EventPaymentSettled, evt); err != nil {
			r.logger.Warn("payments: settlement outbox insert failed",
				"error", err, "plan_id", plan.ID.String())
		}
	}
	r.logger.Info("payments: plan settled",
		"plan_id", plan.ID.String(), "payment_intent_id", paymentIntentID, "path", path)
	return true, nil
}

// SettleFromWebhook loads the plan referenced by webhook metadata and runs
// the idempotent settlement.
func (r *Reconciler) SettleFromWebhook(ctx context.Context, planID uuid.UUID, paymentIntentID string, paidAt time.Time) (bool, error) {
	plan, err := r.plans.GetByID(ctx, planID)
	if err != nil {
		return false, err
	}
	return r.MarkPaid(ctx, plan, paymentIntentID, paidAt, SettlementPathWebhook)
}

// CheckPayment is the read-time fallback: when a plan with a checkout session
// still reads unpaid, the session is re-fetched and a remotely-paid session
// settles the plan. Exists because webhook delivery is not guaranteed to
// precede the client's next read. A processor failure degrades to returning
// the stored state.
func (r *Reconciler) CheckPayment(ctx context.Context, planID uuid.UUID) (*plans.Plan, error) {
	plan, err := r.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Paid() || plan.StripeSessionID == "" {
		return plan, nil
	}

	session, err := r.stripe.RetrieveSession(ctx, plan.StripeSessionID)
	if err != nil {
		r.logger.Warn("payments: poll-path session lookup failed",
			"error", err, "plan_id", plan.ID.String(), "session_id", plan.StripeSessionID)
		return plan, nil
	}
	if session.PaymentStatus != "paid" {
		return plan, nil
	}

	if _, err := r.MarkPaid(ctx, plan, session.PaymentIntentID(), r.now().UTC(), SettlementPathPoll); err != nil {
		return nil, err
	}
	return plan, nil
}
