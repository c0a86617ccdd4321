// Package payments holds the Stripe client, checkout-session creation, the
// dual-path payment reconciler, and invoice/receipt lookup.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wayfarerhq/tripbook/pkg/logging"
)

var stripeTracer = otel.Tracer("tripbook.internal.payments.stripe")

// stripeAPI is the slice of the Stripe surface the checkout, reconciler, and
// document services consume. StripeClient implements it.
type stripeAPI interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*Session, error)
	RetrieveSession(ctx context.Context, id string, expand ...string) (*Session, error)
	RetrievePaymentIntent(ctx context.Context, id string, expand ...string) (*PaymentIntent, error)
	RetrieveInvoice(ctx context.Context, id string) (*Invoice, error)
	RetrieveCharge(ctx context.Context, id string) (*Charge, error)
}

// CheckoutSessionParams describes the embedded checkout session to create.
type CheckoutSessionParams struct {
	PlanID      string
	AmountCents int64
	Description string
	ReturnURL   string
}

// Session is the subset of Stripe's Checkout Session we need. PaymentIntent
// is raw because Stripe serializes it as an id string or, when expanded, as
// a full object.
type Session struct {
	ID            string            `json:"id"`
	ClientSecret  string            `json:"client_secret"`
	URL           string            `json:"url"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Invoice       string            `json:"invoice"`
	PaymentIntent json.RawMessage   `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

// PaymentIntentID returns the session's payment intent id whether or not the
// field was expanded.
func (s *Session) PaymentIntentID() string {
	if len(s.PaymentIntent) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(s.PaymentIntent, &id); err == nil {
		return id
	}
	var intent PaymentIntent
	if err := json.Unmarshal(s.PaymentIntent, &intent); err == nil {
		return intent.ID
	}
	return ""
}

// ExpandedPaymentIntent returns the embedded payment intent object when the
// session was retrieved with payment_intent expanded.
func (s *Session) ExpandedPaymentIntent() (*PaymentIntent, bool) {
	if len(s.PaymentIntent) == 0 || s.PaymentIntent[0] != '{' {
		return nil, false
	}
	var intent PaymentIntent
	if err := json.Unmarshal(s.PaymentIntent, &intent); err != nil {
		return nil, false
	}
	return &intent, true
}

// PaymentIntent is the subset of Stripe's PaymentIntent we need.
type PaymentIntent struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Invoice      string          `json:"invoice"`
	LatestCharge json.RawMessage `json:"latest_charge"`
}

// ExpandedLatestCharge returns the embedded charge when latest_charge was
// retrieved expanded.
func (p *PaymentIntent) ExpandedLatestCharge() (*Charge, bool) {
	if len(p.LatestCharge) == 0 || p.LatestCharge[0] != '{' {
		return nil, false
	}
	var charge Charge
	if err := json.Unmarshal(p.LatestCharge, &charge); err != nil {
		return nil, false
	}
	return &charge, true
}

// Invoice is the subset of Stripe's Invoice we need.
type Invoice struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	InvoicePDF       string `json:"invoice_pdf"`
	HostedInvoiceURL string `json:"hosted_invoice_url"`
}

// Charge is the subset of Stripe's Charge we need.
type Charge struct {
	ID         string `json:"id"`
	ReceiptURL string `json:"receipt_url"`
}

// StripeClient talks to the Stripe API over form-encoded HTTP.
type StripeClient struct {
	secretKey  string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewStripeClient creates a Stripe API client.
func NewStripeClient(secretKey string, logger *logging.Logger) *StripeClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeClient{
		secretKey:  secretKey,
		baseURL:    "https://api.stripe.com",
		apiVersion: "2024-12-18.acacia",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (c *StripeClient) WithBaseURL(baseURL string) *StripeClient {
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// CreateCheckoutSession creates an embedded-mode checkout session carrying
// the plan_id correlation tag in metadata.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*Session, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_checkout_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("tripbook.plan_id", params.PlanID),
		attribute.Int("tripbook.amount_cents", int(params.AmountCents)),
	)

	description := params.Description
	if strings.TrimSpace(description) == "" {
		description = "Trip planning"
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("ui_mode", "embedded")
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", params.AmountCents))
	form.Set("line_items[0][price_data][product_data][name]", description)
	form.Set("line_items[0][quantity]", "1")
	if params.ReturnURL != "" {
		form.Set("return_url", params.ReturnURL)
	}

	// Metadata for webhook processing
	form.Set("metadata[plan_id]", params.PlanID)
	form.Set("payment_intent_data[metadata][plan_id]", params.PlanID)

	var session Session
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	if session.ID == "" {
		return nil, fmt.Errorf("payments: stripe response missing session id")
	}
	return &session, nil
}

// RetrieveSession fetches a checkout session, optionally expanding fields.
func (c *StripeClient) RetrieveSession(ctx context.Context, id string, expand ...string) (*Session, error) {
	var session Session
	if err := c.get(ctx, "/v1/checkout/sessions/"+url.PathEscape(id), expand, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// RetrievePaymentIntent fetches a payment intent, optionally expanding fields.
func (c *StripeClient) RetrievePaymentIntent(ctx context.Context, id string, expand ...string) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := c.get(ctx, "/v1/payment_intents/"+url.PathEscape(id), expand, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// RetrieveInvoice fetches an invoice.
func (c *StripeClient) RetrieveInvoice(ctx context.Context, id string) (*Invoice, error) {
	var invoice Invoice
	if err := c.get(ctx, "/v1/invoices/"+url.PathEscape(id), nil, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// RetrieveCharge fetches a charge.
func (c *StripeClient) RetrieveCharge(ctx context.Context, id string) (*Charge, error) {
	var charge Charge
	if err := c.get(ctx, "/v1/charges/"+url.PathEscape(id), nil, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}

func (c *StripeClient) get(ctx context.Context, path string, expand []string, out any) error {
	query := url.Values{}
	for _, field := range expand {
		query.Add("expand[]", field)
	}
	fullPath := path
	if len(query) > 0 {
		fullPath += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, fullPath, nil, out)
}

func (c *StripeClient) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("payments: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Stripe-Version", c.apiVersion)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payments: stripe http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("payments: stripe api status %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("payments: stripe decode: %w", err)
	}
	return nil
}

var _ stripeAPI = (*StripeClient)(nil)
