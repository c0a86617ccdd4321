package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestLookupInvoiceViaIntent(t *testing.T) {
	plan := completedPlan()
	plan.StripePaymentIntentID = "pi_1"
	stripe := &stubStripe{
		intent:  &PaymentIntent{ID: "pi_1", Invoice: "in_1"},
		invoice: &Invoice{ID: "in_1", InvoicePDF: "https://pdf"},
	}
	svc := NewDocumentService(stripe, nil)

	doc, err := svc.Lookup(context.Background(), plan, DocumentInvoice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Kind != DocumentInvoice || doc.URL != "https://pdf" {
		t.Fatalf("unexpected doc: %+v", doc)
	}
}

func TestLookupInvoiceFallsBackToSession(t *testing.T) {
	plan := completedPlan()
	plan.StripeSessionID = "cs_1"
	// No payment intent on the plan; the session path must fire.
	stripe := &stubStripe{
		session: &Session{ID: "cs_1", Invoice: "in_2"},
		invoice: &Invoice{ID: "in_2", HostedInvoiceURL: "https://hosted"},
	}
	svc := NewDocumentService(stripe, nil)

	doc, err := svc.Lookup(context.Background(), plan, DocumentInvoice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Kind != DocumentInvoice || doc.URL != "https://hosted" {
		t.Fatalf("unexpected doc: %+v", doc)
	}
}

func TestLookupReceiptPreferred(t *testing.T) {
	plan := completedPlan()
	plan.StripeSessionID = "cs_1"
	plan.StripePaymentIntentID = "pi_1"
	stripe := &stubStripe{
		session: &Session{
			ID:            "cs_1",
			PaymentIntent: json.RawMessage(`{"id": "pi_1", "latest_charge": {"id": "ch_1", "receipt_url": "https://receipt"}}`),
		},
		// An invoice also exists; receipt preference must win.
		intent:  &PaymentIntent{ID: "pi_1", Invoice: "in_1"},
		invoice: &Invoice{ID: "in_1", InvoicePDF: "https://pdf"},
	}
	svc := NewDocumentService(stripe, nil)

	doc, err := svc.Lookup(context.Background(), plan, DocumentReceipt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Kind != DocumentReceipt || doc.URL != "https://receipt" {
		t.Fatalf("unexpected doc: %+v", doc)
	}
}

func TestLookupReceiptViaIntentExpansion(t *testing.T) {
	plan := completedPlan()
	plan.StripePaymentIntentID = "pi_1"
	stripe := &stubStripe{
		intent: &PaymentIntent{
			ID:           "pi_1",
			LatestCharge: json.RawMessage(`{"id": "ch_1", "receipt_url": "https://receipt2"}`),
		},
	}
	svc := NewDocumentService(stripe, nil)

	doc, err := svc.Lookup(context.Background(), plan, DocumentReceipt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.URL != "https://receipt2" {
		t.Fatalf("unexpected doc: %+v", doc)
	}
}

func TestLookupCrossFallbackReceiptToInvoice(t *testing.T) {
	plan := completedPlan()
	plan.StripePaymentIntentID = "pi_1"
	// No receipt anywhere, but an invoice exists; preference receipt must
	// still end with the invoice rather than not-ready.
	stripe := &stubStripe{
		intent:  &PaymentIntent{ID: "pi_1", Invoice: "in_1"},
		invoice: &Invoice{ID: "in_1", InvoicePDF: "https://pdf"},
	}
	svc := NewDocumentService(stripe, nil)

	doc, err := svc.Lookup(context.Background(), plan, DocumentReceipt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Kind != DocumentInvoice || doc.URL != "https://pdf" {
		t.Fatalf("unexpected doc: %+v", doc)
	}
}

func TestLookupNothingAvailable(t *testing.T) {
	plan := completedPlan()
	plan.StripeSessionID = "cs_1"
	plan.StripePaymentIntentID = "pi_1"
	stripe := &stubStripe{
		session: &Session{ID: "cs_1"},
		intent:  &PaymentIntent{ID: "pi_1"},
	}
	svc := NewDocumentService(stripe, nil)

	_, err := svc.Lookup(context.Background(), plan, DocumentInvoice)
	if !errors.Is(err, ErrDocumentNotReady) {
		t.Fatalf("expected ErrDocumentNotReady, got %v", err)
	}
}

func TestLookupProbeFailuresTreatedAsEmpty(t *testing.T) {
	plan := completedPlan()
	plan.StripeSessionID = "cs_1"
	plan.StripePaymentIntentID = "pi_1"
	stripe := &stubStripe{
		sessionErr: errors.New("stripe down"),
		intentErr:  errors.New("stripe down"),
	}
	svc := NewDocumentService(stripe, nil)

	_, err := svc.Lookup(context.Background(), plan, DocumentInvoice)
	if !errors.Is(err, ErrDocumentNotReady) {
		t.Fatalf("expected ErrDocumentNotReady on probe failures, got %v", err)
	}
}

func TestParseDocumentKind(t *testing.T) {
	if kind, err := ParseDocumentKind("invoice"); err != nil || kind != DocumentInvoice {
		t.Errorf("invoice parse: %v %v", kind, err)
	}
	if kind, err := ParseDocumentKind("receipt"); err != nil || kind != DocumentReceipt {
		t.Errorf("receipt parse: %v %v", kind, err)
	}
	if _, err := ParseDocumentKind("statement"); err == nil {
		t.Error("unknown kind must be rejected")
	}
}
