package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func signPayload(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","status":"succeeded"}}}`)
	now := time.Now()

	header := signPayload(secret, now.Unix(), payload)
	event, err := verifySignature(payload, header, secret, now)
	if err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if event.Type != "payment_intent.succeeded" {
		t.Errorf("unexpected event type %s", event.Type)
	}
	intent, err := event.IntentObject()
	if err != nil {
		t.Fatalf("decode intent: %v", err)
	}
	if intent.ID != "pi_1" || !intent.Succeeded() {
		t.Errorf("unexpected intent %+v", intent)
	}
}

func TestVerifySignatureRejects(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1","type":"x"}`)
	now := time.Now()

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong secret", signPayload("whsec_other", now.Unix(), payload)},
		{"stale timestamp", signPayload(secret, now.Add(-10*time.Minute).Unix(), payload)},
		{"future timestamp", signPayload(secret, now.Add(10*time.Minute).Unix(), payload)},
		{"malformed", "v1=abcdef"},
		{"tampered payload", signPayload(secret, now.Unix(), []byte(`{"id":"evt_2"}`))},
	}
	for _, tc := range cases {
		if _, err := verifySignature(payload, tc.header, secret, now); !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("%s: expected ErrInvalidSignature, got %v", tc.name, err)
		}
	}
}

func TestVerifySignatureMultipleV1(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1","type":"x"}`)
	now := time.Now()

	good := signPayload(secret, now.Unix(), payload)
	// prepend a stale v1 value; one matching signature is enough
	header := fmt.Sprintf("t=%d,v1=%s,%s", now.Unix(), "deadbeef", good[len(fmt.Sprintf("t=%d,", now.Unix())):])
	if _, err := verifySignature(payload, header, secret, now); err != nil {
		t.Fatalf("expected second v1 to match, got %v", err)
	}
}

func TestCreateIntent(t *testing.T) {
	var gotAuth, gotIdem, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotIdem = r.Header.Get("Idempotency-Key")
		_ = r.ParseForm()
		gotBody = r.PostForm.Encode()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"pi_123","client_secret":"pi_123_secret_x","status":"requires_payment_method","amount":4250,"currency":"usd"}`)
	}))
	defer srv.Close()

	c := NewStripeClient(srv.URL, "sk_test_key", "whsec_test", srv.Client())
	intent, err := c.CreateIntent(context.Background(), 42.50, "USD")
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.ID != "pi_123" || intent.ClientSecret != "pi_123_secret_x" {
		t.Errorf("unexpected intent %+v", intent)
	}
	if gotAuth != "Bearer sk_test_key" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotIdem == "" {
		t.Error("expected an idempotency key")
	}
	// amount in minor units, currency lowercased
	if gotBody != "amount=4250&automatic_payment_methods%5Benabled%5D=true&currency=usd" {
		t.Errorf("unexpected form body %q", gotBody)
	}
}

func TestCreateIntentAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`)
	}))
	defer srv.Close()

	c := NewStripeClient(srv.URL, "sk_test_key", "whsec_test", srv.Client())
	_, err := c.CreateIntent(context.Background(), 10, "usd")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Code != "card_declined" {
		t.Errorf("unexpected code %s", apiErr.Code)
	}
}

func TestRetrieveIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents/pi_456" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"pi_456","status":"succeeded","amount":1000,"currency":"usd"}`)
	}))
	defer srv.Close()

	c := NewStripeClient(srv.URL, "sk_test_key", "whsec_test", srv.Client())
	intent, err := c.RetrieveIntent(context.Background(), "pi_456")
	if err != nil {
		t.Fatalf("retrieve intent: %v", err)
	}
	if !intent.Succeeded() {
		t.Errorf("expected succeeded intent, got status %s", intent.Status)
	}
}

func TestTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transfers" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = r.ParseForm()
		if r.PostForm.Get("destination") != "acct_1" || r.PostForm.Get("amount") != "9000" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		if r.PostForm.Get("transfer_group") != "pi_789" {
			t.Errorf("expected transfer_group pi_789, got %q", r.PostForm.Get("transfer_group"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"tr_1"}`)
	}))
	defer srv.Close()

	c := NewStripeClient(srv.URL, "sk_test_key", "whsec_test", srv.Client())
	id, err := c.Transfer(context.Background(), 90, "usd", "acct_1", "pi_789")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if id != "tr_1" {
		t.Errorf("unexpected transfer id %s", id)
	}
}

func TestTransferFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","code":"balance_insufficient","message":"Insufficient funds."}}`)
	}))
	defer srv.Close()

	c := NewStripeClient(srv.URL, "sk_test_key", "whsec_test", srv.Client())

	// missing destination short-circuits without a request
	if _, err := c.Transfer(context.Background(), 90, "usd", "", "pi_1"); !errors.Is(err, ErrPayoutFailed) {
		t.Errorf("expected ErrPayoutFailed for empty destination, got %v", err)
	}
	// processor rejection maps to ErrPayoutFailed
	if _, err := c.Transfer(context.Background(), 90, "usd", "acct_1", "pi_1"); !errors.Is(err, ErrPayoutFailed) {
		t.Errorf("expected ErrPayoutFailed for rejected transfer, got %v", err)
	}
}

func TestRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/refunds" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = r.ParseForm()
		if r.PostForm.Get("payment_intent") != "pi_1" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"re_1"}`)
	}))
	defer srv.Close()

	c := NewStripeClient(srv.URL, "sk_test_key", "whsec_test", srv.Client())
	id, err := c.Refund(context.Background(), "pi_1")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if id != "re_1" {
		t.Errorf("unexpected refund id %s", id)
	}
}

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{42.50, 4250},
		{0.1, 10},
		{19.99, 1999},
		{100, 10000},
	}
	for _, tc := range cases {
		if got := toMinorUnits(tc.in); got != tc.want {
			t.Errorf("toMinorUnits(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
