package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/wayfarerhq/tripbook/internal/plans"
	"github.com/wayfarerhq/tripbook/pkg/logging"
)

// DocumentKind is the closed set of payment documents a client can request.
type DocumentKind string

const (
	DocumentInvoice DocumentKind = "invoice"
	DocumentReceipt DocumentKind = "receipt"
)

// ParseDocumentKind validates a caller-supplied document preference.
func ParseDocumentKind(s string) (DocumentKind, error) {
	switch DocumentKind(s) {
	case DocumentInvoice:
		return DocumentInvoice, nil
	case DocumentReceipt:
		return DocumentReceipt, nil
	default:
		return "", fmt.Errorf("payments: unknown document kind %q", s)
	}
}

// ErrDocumentNotReady means none of the lookup paths produced a document yet.
// Expected transient behavior for receipts before the processor has finished
// generating them; retry later.
var ErrDocumentNotReady = errors.New("payments: document not yet available, retry later")

// Document is a payment document resolved from the processor.
type Document struct {
	Kind DocumentKind
	URL  string
}

// DocumentService resolves invoice PDFs and receipt URLs for settled plans.
// Read-only and best-effort: every probe failure is logged and treated as an
// empty result, never surfaced.
type DocumentService struct {
	stripe stripeAPI
	logger *logging.Logger
}

// NewDocumentService creates a document lookup service.
func NewDocumentService(stripe stripeAPI, logger *logging.Logger) *DocumentService {
	if logger == nil {
		logger = logging.Default()
	}
	return &DocumentService{stripe: stripe, logger: logger}
}

type documentProbe struct {
	kind DocumentKind
	fn   func(ctx context.Context, plan *plans.Plan) string
}

// Lookup tries, in order: invoice via payment intent, invoice via session,
// receipt via the session's expanded intent/charge, receipt via the intent id
// directly. The preferred kind's probes run first; all four run before giving
// up with ErrDocumentNotReady.
func (s *DocumentService) Lookup(ctx context.Context, plan *plans.Plan, preferred DocumentKind) (*Document, error) {
	invoiceProbes := []documentProbe{
		{DocumentInvoice, s.invoiceViaIntent},
		{DocumentInvoice, s.invoiceViaSession},
	}
	receiptProbes := []documentProbe{
		{DocumentReceipt, s.receiptViaSession},
		{DocumentReceipt, s.receiptViaIntent},
	}

	var probes []documentProbe
	switch preferred {
	case DocumentReceipt:
		probes = append(receiptProbes, invoiceProbes...)
	default:
		probes = append(invoiceProbes, receiptProbes...)
	}

	for _, probe := range probes {
		if url := probe.fn(ctx, plan); url != "" {
			return &Document{Kind: probe.kind, URL: url}, nil
		}
	}
	return nil, ErrDocumentNotReady
}

func (s *DocumentService) invoiceViaIntent(ctx context.Context, plan *plans.Plan) string {
	if plan.StripePaymentIntentID == "" {
		return ""
	}
	intent, err := s.stripe.RetrievePaymentIntent(ctx, plan.StripePaymentIntentID)
	if err != nil {
		s.logger.Warn("payments: intent lookup for invoice failed", "error", err, "plan_id", plan.ID.String())
		return ""
	}
	if intent.Invoice == "" {
		return ""
	}
	return s.invoicePDF(ctx, intent.Invoice, plan)
}

func (s *DocumentService) invoiceViaSession(ctx context.Context, plan *plans.Plan) string {
	if plan.StripeSessionID == "" {
		return ""
	}
	session, err := s.stripe.RetrieveSession(ctx, plan.StripeSessionID)
	if err != nil {
		s.logger.Warn("payments: session lookup for invoice failed", "error", err, "plan_id", plan.ID.String())
		return ""
	}
	if session.Invoice == "" {
		return ""
	}
	return s.invoicePDF(ctx, session.Invoice, plan)
}

func (s *DocumentService) invoicePDF(ctx context.Context, invoiceID string, plan *plans.Plan) string {
	invoice, err := s.stripe.RetrieveInvoice(ctx, invoiceID)
	if err != nil {
		s.logger.Warn("payments: invoice lookup failed", "error", err, "plan_id", plan.ID.String())
		return ""
	}
	if invoice.InvoicePDF != "" {
		return invoice.InvoicePDF
	}
	return invoice.HostedInvoiceURL
}

func (s *DocumentService) receiptViaSession(ctx context.Context, plan *plans.Plan) string {
	if plan.StripeSessionID == "" {
		return ""
	}
	session, err := s.stripe.RetrieveSession(ctx, plan.StripeSessionID, "payment_intent.latest_charge")
	if err != nil {
		s.logger.Warn("payments: session lookup for receipt failed", "error", err, "plan_id", plan.ID.String())
		return ""
	}
	intent, ok := session.ExpandedPaymentIntent()
	if !ok {
		return ""
	}
	if charge, ok := intent.ExpandedLatestCharge(); ok {
		return charge.ReceiptURL
	}
	return ""
}

func (s *DocumentService) receiptViaIntent(ctx context.Context, plan *plans.Plan) string {
	if plan.StripePaymentIntentID == "" {
		return ""
	}
	intent, err := s.stripe.RetrievePaymentIntent(ctx, plan.StripePaymentIntentID, "latest_charge")
	if err != nil {
		s.logger.Warn("payments: intent lookup for receipt failed", "error", err, "plan_id", plan.ID.String())
		return ""
	}
	if charge, ok := intent.ExpandedLatestCharge(); ok {
		return charge.ReceiptURL
	}
	return ""
}
