// Package events holds cross-component event types and the processed-webhook
// idempotency store.
package events

import "time"

// PaymentSettledV1 describes a plan payment that has settled, emitted once
// per settlement regardless of which path (webhook or poll) won the race.
type PaymentSettledV1 struct {
	PlanID          string     `json:"plan_id"`
	PaymentIntentID string     `json:"payment_intent_id"`
	SessionID       string     `json:"session_id"`
	AmountCents     int64      `json:"amount_cents"`
	Path            string     `json:"path"` // "webhook" or "poll"
	PaidAt          time.Time  `json:"paid_at"`
	ClientName      string     `json:"client_name"`
	ClientEmail     string     `json:"client_email"`
	ScheduledFor    *time.Time `json:"scheduled_for,omitempty"`
}
