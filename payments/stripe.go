package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultStripeBaseURL = "https://api.stripe.com"

// signatureTolerance is the maximum accepted age of a webhook signature timestamp.
const signatureTolerance = 5 * time.Minute

// StripeClient talks to the Stripe REST API with form-encoded bodies and
// idempotency keys. Only the endpoints the engine needs are implemented.
type StripeClient struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	http          *http.Client
}

// NewStripeClient builds a client with explicit configuration (used by tests).
func NewStripeClient(baseURL, secretKey, webhookSecret string, httpClient *http.Client) *StripeClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &StripeClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		http:          httpClient,
	}
}

// NewStripeClientFromEnv reads STRIPE_SECRET_KEY, STRIPE_WEBHOOK_SECRET and the
// optional STRIPE_BASE_URL override.
func NewStripeClientFromEnv() (*StripeClient, error) {
	secret := strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY"))
	whSecret := strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET"))
	if secret == "" || whSecret == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required")
	}
	base := os.Getenv("STRIPE_BASE_URL")
	if base == "" {
		base = defaultStripeBaseURL
	}
	return NewStripeClient(base, secret, whSecret, nil), nil
}

// toMinorUnits converts a decimal amount to the processor's smallest currency unit.
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func (c *StripeClient) post(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Idempotency-Key", uuid.NewString())
	return c.do(req, out)
}

func (c *StripeClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	return c.do(req, out)
}

func (c *StripeClient) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		var wrapper struct {
			Error APIError `json:"error"`
		}
		if err := json.Unmarshal(body, &wrapper); err != nil || wrapper.Error.Message == "" {
			return fmt.Errorf("payment processor HTTP %d: %s", resp.StatusCode, string(body))
		}
		return &wrapper.Error
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("parse response: %w (body: %s)", err, string(body))
		}
	}
	return nil
}

// CreateIntent opens a payment intent for the given amount and returns its id,
// client secret and status.
func (c *StripeClient) CreateIntent(ctx context.Context, amount float64, currency string) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(toMinorUnits(amount), 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("automatic_payment_methods[enabled]", "true")

	var in Intent
	if err := c.post(ctx, "/v1/payment_intents", form, &in); err != nil {
		return nil, err
	}
	if in.ID == "" {
		return nil, fmt.Errorf("payment processor returned empty intent id")
	}
	return &in, nil
}

// RetrieveIntent fetches the current processor-side status of an intent.
func (c *StripeClient) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	var in Intent
	if err := c.get(ctx, "/v1/payment_intents/"+url.PathEscape(intentID), &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// Transfer moves funds to a connected payout account. Processor rejections are
// surfaced as ErrPayoutFailed so the caller can keep the triggering operation
// retryable.
func (c *StripeClient) Transfer(ctx context.Context, amount float64, currency, destination, sourceIntent string) (string, error) {
	if destination == "" {
		return "", fmt.Errorf("%w: destination account is not onboarded", ErrPayoutFailed)
	}
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(toMinorUnits(amount), 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("destination", destination)
	if sourceIntent != "" {
		form.Set("transfer_group", sourceIntent)
	}

	var tr struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/v1/transfers", form, &tr); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPayoutFailed, err)
	}
	if tr.ID == "" {
		return "", fmt.Errorf("%w: empty transfer id", ErrPayoutFailed)
	}
	return tr.ID, nil
}

// Refund returns the full captured amount of an intent to the payer.
func (c *StripeClient) Refund(ctx context.Context, intentID string) (string, error) {
	form := url.Values{}
	form.Set("payment_intent", intentID)

	var rf struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/v1/refunds", form, &rf); err != nil {
		return "", err
	}
	return rf.ID, nil
}

// VerifyWebhookSignature checks a Stripe-Signature header ("t=...,v1=...") against
// the webhook secret: HMAC-SHA256 over "<t>.<payload>", constant-time compare,
// timestamp within tolerance. On success the payload is decoded into an Event.
func (c *StripeClient) VerifyWebhookSignature(payload []byte, sigHeader string) (*Event, error) {
	return verifySignature(payload, sigHeader, c.webhookSecret, time.Now())
}

func verifySignature(payload []byte, sigHeader, secret string, now time.Time) (*Event, error) {
	if sigHeader == "" {
		return nil, fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}

	var ts int64
	var sigs []string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			v, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			ts = v
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return nil, fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}
	if d := now.Sub(time.Unix(ts, 0)); d > signatureTolerance || d < -signatureTolerance {
		return nil, fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	expected := mac.Sum(nil)

	ok := false
	for _, s := range sigs {
		got, err := hex.DecodeString(s)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			ok = true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: no matching v1 signature", ErrInvalidSignature)
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &ev, nil
}
