package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors surfaced to the lifecycle engine and the HTTP layer.
var (
	// ErrInvalidSignature means a webhook payload failed signature verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrPayoutFailed means a transfer to a connected payout account was rejected
	// or the destination is not onboarded. The triggering operation is retryable.
	ErrPayoutFailed = errors.New("payout failed")
)

// APIError is a structured error returned by the payment processor.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment processor %s/%s: %s", e.Type, e.Code, e.Message)
}

// Intent is the processor-side representation of an in-flight or settled charge.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// Succeeded reports whether the intent has reached its terminal paid state.
func (i *Intent) Succeeded() bool {
	return i.Status == "succeeded"
}

// Event is a verified webhook event from the processor.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// IntentObject decodes the event payload as a payment intent.
func (e *Event) IntentObject() (*Intent, error) {
	var in Intent
	if err := json.Unmarshal(e.Data.Object, &in); err != nil {
		return nil, fmt.Errorf("decode event object: %w", err)
	}
	return &in, nil
}

// Gateway is the payment processor contract consumed by the lifecycle engine.
// Settlement is never assumed synchronous: card payments complete via a separate
// confirmation event, not the return value of CreateIntent.
type Gateway interface {
	CreateIntent(ctx context.Context, amount float64, currency string) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
	Transfer(ctx context.Context, amount float64, currency, destination, sourceIntent string) (string, error)
	Refund(ctx context.Context, intentID string) (string, error)
	VerifyWebhookSignature(payload []byte, sigHeader string) (*Event, error)
}
