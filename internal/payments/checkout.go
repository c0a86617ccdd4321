package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wayfarerhq/tripbook/internal/plans"
	"github.com/wayfarerhq/tripbook/pkg/logging"
)

// Rejected-operation errors for checkout creation.
var (
	ErrNotConfirmed = errors.New("payments: appointment must be confirmed before checkout")
	ErrAlreadyPaid  = errors.New("payments: plan is already paid")
	ErrUnknownTier  = errors.New("payments: unknown plan tier")
)

type checkoutPlanStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*plans.Plan, error)
	SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string, amountCents int64) error
}

// CheckoutResult is returned to the caller to drive the embedded checkout.
type CheckoutResult struct {
	SessionID    string
	ClientSecret string
	AmountCents  int64
}

// CheckoutService creates Stripe checkout sessions for confirmed plans.
// Prices come from an injected tier table so tests can supply fixtures.
type CheckoutService struct {
	plans     checkoutPlanStore
	stripe    stripeAPI
	prices    map[string]int64
	returnURL string
	logger    *logging.Logger
}

// NewCheckoutService creates a checkout service with a fixed price table.
func NewCheckoutService(planRepo checkoutPlanStore, stripe stripeAPI, prices map[string]int64, returnURL string, logger *logging.Logger) *CheckoutService {
	if logger == nil {
		logger = logging.Default()
	}
	return &CheckoutService{
		plans:     planRepo,
		stripe:    stripe,
		prices:    prices,
		returnURL: returnURL,
		logger:    logger,
	}
}

// CreateCheckout creates a payment session for a completed, unpaid plan and
// persists the session id and amount. It never mutates payment_status.
func (s *CheckoutService) CreateCheckout(ctx context.Context, planID uuid.UUID) (*CheckoutResult, error) {
	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Paid() {
		return nil, ErrAlreadyPaid
	}
	if plan.Status != plans.StatusCompleted {
		return nil, ErrNotConfirmed
	}
	price, ok := s.prices[plan.PlanTier]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, plan.PlanTier)
	}

	session, err := s.stripe.CreateCheckoutSession(ctx, CheckoutSessionParams{
		PlanID:      plan.ID.String(),
		AmountCents: price,
		Description: tierDescription(plan.PlanTier),
		ReturnURL:   s.returnURL,
	})
	if err != nil {
		return nil, err
	}

	if err := s.plans.SetCheckoutSession(ctx, planID, session.ID, price); err != nil {
		if errors.Is(err, plans.ErrNotEligible) {
			// The plan's state moved under us between the read and the guarded
			// write; reclassify against the current row.
			current, loadErr := s.plans.GetByID(ctx, planID)
			if loadErr == nil && current.Paid() {
				return nil, ErrAlreadyPaid
			}
			return nil, ErrNotConfirmed
		}
		return nil, err
	}

	s.logger.Info("payments: checkout session created",
		"plan_id", planID.String(), "session_id", session.ID, "amount_cents", price)
	return &CheckoutResult{
		SessionID:    session.ID,
		ClientSecret: session.ClientSecret,
		AmountCents:  price,
	}, nil
}

func tierDescription(tier string) string {
	if tier == "" {
		return "Trip planning"
	}
	return "Trip planning - " + strings.ToUpper(tier[:1]) + tier[1:]
}
