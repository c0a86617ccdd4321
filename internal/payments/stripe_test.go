package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCreateCheckoutSessionRequestShape(t *testing.T) {
	var gotPath, gotAuth, gotVersion string
	var gotForm map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("Stripe-Version")
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = r.PostForm
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "cs_live_1",
			"client_secret": "cs_live_1_secret",
		})
	}))
	defer srv.Close()

	client := NewStripeClient("sk_test_abc", nil).WithBaseURL(srv.URL)
	session, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionParams{
		PlanID:      "plan-1",
		AmountCents: 19900,
		Description: "Trip planning - Signature",
		ReturnURL:   "https://app.example/return",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.ID != "cs_live_1" || session.ClientSecret != "cs_live_1_secret" {
		t.Fatalf("unexpected session: %+v", session)
	}
	if gotPath != "/v1/checkout/sessions" {
		t.Errorf("path %q", gotPath)
	}
	if gotAuth != "Bearer sk_test_abc" {
		t.Errorf("authorization %q", gotAuth)
	}
	if gotVersion == "" {
		t.Error("Stripe-Version header missing")
	}
	checks := map[string]string{
		"mode":    "payment",
		"ui_mode": "embedded",
		"line_items[0][price_data][unit_amount]": "19900",
		"metadata[plan_id]":                      "plan-1",
		"payment_intent_data[metadata][plan_id]": "plan-1",
		"return_url":                             "https://app.example/return",
	}
	for key, want := range checks {
		if got := first(gotForm[key]); got != want {
			t.Errorf("form[%s] = %q, want %q", key, got, want)
		}
	}
}

func TestCreateCheckoutSessionMissingIDRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	client := NewStripeClient("sk", nil).WithBaseURL(srv.URL)
	if _, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionParams{}); err == nil {
		t.Fatal("expected error for response without session id")
	}
}

func TestRetrieveSessionExpandsFields(t *testing.T) {
	var gotQuery []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()["expand[]"]
		_, _ = w.Write([]byte(`{
			"id": "cs_1",
			"payment_status": "paid",
			"payment_intent": {"id": "pi_1", "latest_charge": {"id": "ch_1", "receipt_url": "https://r"}}
		}`))
	}))
	defer srv.Close()

	client := NewStripeClient("sk", nil).WithBaseURL(srv.URL)
	session, err := client.RetrieveSession(context.Background(), "cs_1", "payment_intent.latest_charge")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gotQuery) != 1 || gotQuery[0] != "payment_intent.latest_charge" {
		t.Errorf("expand query %v", gotQuery)
	}
	intent, ok := session.ExpandedPaymentIntent()
	if !ok || intent.ID != "pi_1" {
		t.Fatalf("expanded intent missing: %+v", session)
	}
	charge, ok := intent.ExpandedLatestCharge()
	if !ok || charge.ReceiptURL != "https://r" {
		t.Fatalf("expanded charge missing: %+v", intent)
	}
}

func TestSessionPaymentIntentIDHandlesBothEncodings(t *testing.T) {
	plain := &Session{PaymentIntent: json.RawMessage(`"pi_plain"`)}
	if got := plain.PaymentIntentID(); got != "pi_plain" {
		t.Errorf("plain id %q", got)
	}
	expanded := &Session{PaymentIntent: json.RawMessage(`{"id": "pi_obj"}`)}
	if got := expanded.PaymentIntentID(); got != "pi_obj" {
		t.Errorf("expanded id %q", got)
	}
	empty := &Session{}
	if got := empty.PaymentIntentID(); got != "" {
		t.Errorf("empty id %q", got)
	}
}

func TestStripeErrorStatusSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error": {"message": "card declined"}}`))
	}))
	defer srv.Close()

	client := NewStripeClient("sk", nil).WithBaseURL(srv.URL)
	_, err := client.RetrievePaymentIntent(context.Background(), "pi_1")
	if err == nil || !strings.Contains(err.Error(), "402") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
