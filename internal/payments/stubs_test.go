package payments

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarerhq/tripbook/internal/plans"
)

// memPlanStore is an in-memory plan store whose MarkPaid reproduces the
// repository's guarded check-and-set semantics.
type memPlanStore struct {
	mu              sync.Mutex
	plan            *plans.Plan
	markPaidErr     error
	setCheckoutErr  error
	checkoutSession string
	checkoutAmount  int64
}

func (m *memPlanStore) GetByID(ctx context.Context, id uuid.UUID) (*plans.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.plan == nil || m.plan.ID != id {
		return nil, plans.ErrNotFound
	}
	copied := *m.plan
	return &copied, nil
}

func (m *memPlanStore) MarkPaid(ctx context.Context, id uuid.UUID, paymentIntentID string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markPaidErr != nil {
		return false, m.markPaidErr
	}
	if m.plan == nil || m.plan.ID != id {
		return false, plans.ErrNotFound
	}
	if m.plan.PaymentStatus == plans.PaymentPaid {
		return false, nil
	}
	m.plan.PaymentStatus = plans.PaymentPaid
	m.plan.StripePaymentIntentID = paymentIntentID
	m.plan.PaidAt = &paidAt
	return true, nil
}

func (m *memPlanStore) SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string, amountCents int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setCheckoutErr != nil {
		return m.setCheckoutErr
	}
	if m.plan == nil || m.plan.ID != id {
		return plans.ErrNotFound
	}
	if m.plan.Status != plans.StatusCompleted || m.plan.PaymentStatus == plans.PaymentPaid {
		return plans.ErrNotEligible
	}
	m.checkoutSession = sessionID
	m.checkoutAmount = amountCents
	m.plan.StripeSessionID = sessionID
	m.plan.AmountCents = amountCents
	return nil
}

type stubStripe struct {
	session       *Session
	sessionErr    error
	createdParams []CheckoutSessionParams
	createErr     error
	intent        *PaymentIntent
	intentErr     error
	invoice       *Invoice
	invoiceErr    error
	charge        *Charge
	chargeErr     error
}

func (s *stubStripe) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*Session, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.createdParams = append(s.createdParams, params)
	if s.session != nil {
		return s.session, nil
	}
	return &Session{ID: "cs_test_1", ClientSecret: "cs_test_1_secret"}, nil
}

func (s *stubStripe) RetrieveSession(ctx context.Context, id string, expand ...string) (*Session, error) {
	if s.sessionErr != nil {
		return nil, s.sessionErr
	}
	if s.session == nil {
		return nil, errors.New("stub: no session")
	}
	return s.session, nil
}

func (s *stubStripe) RetrievePaymentIntent(ctx context.Context, id string, expand ...string) (*PaymentIntent, error) {
	if s.intentErr != nil {
		return nil, s.intentErr
	}
	if s.intent == nil {
		return nil, errors.New("stub: no intent")
	}
	return s.intent, nil
}

func (s *stubStripe) RetrieveInvoice(ctx context.Context, id string) (*Invoice, error) {
	if s.invoiceErr != nil {
		return nil, s.invoiceErr
	}
	if s.invoice == nil {
		return nil, errors.New("stub: no invoice")
	}
	return s.invoice, nil
}

func (s *stubStripe) RetrieveCharge(ctx context.Context, id string) (*Charge, error) {
	if s.chargeErr != nil {
		return nil, s.chargeErr
	}
	if s.charge == nil {
		return nil, errors.New("stub: no charge")
	}
	return s.charge, nil
}

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) SendPaymentSuccess(ctx context.Context, plan *plans.Plan) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
}

func (n *countingNotifier) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

func completedPlan() *plans.Plan {
	return &plans.Plan{
		ID:            uuid.New(),
		SpecialistID:  uuid.New(),
		Status:        plans.StatusCompleted,
		PaymentStatus: plans.PaymentPending,
		PlanTier:      "signature",
		Email:         "ada@example.com",
	}
}
