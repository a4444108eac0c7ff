package users

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taskpost/database"
	"taskpost/models"
	"taskpost/notify"
	"taskpost/payments"
	"taskpost/utils"

	"github.com/gorilla/mux"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const stubSignature = "t=1,v1=stub-valid"

// stubGateway verifies webhooks against a fixed header value and serves
// canned intents; everything else is unreachable from these handlers.
type stubGateway struct {
	intents      map[string]*payments.Intent
	failTransfer bool
}

func (g *stubGateway) CreateIntent(ctx context.Context, amount float64, currency string) (*payments.Intent, error) {
	return nil, fmt.Errorf("not supported in this test")
}

func (g *stubGateway) RetrieveIntent(ctx context.Context, intentID string) (*payments.Intent, error) {
	in, ok := g.intents[intentID]
	if !ok {
		return nil, &payments.APIError{Type: "invalid_request_error", Code: "resource_missing", Message: "No such payment_intent"}
	}
	cp := *in
	return &cp, nil
}

func (g *stubGateway) Transfer(ctx context.Context, amount float64, currency, destination, sourceIntent string) (string, error) {
	if g.failTransfer {
		return "", fmt.Errorf("%w: destination account not onboarded", payments.ErrPayoutFailed)
	}
	return "tr_stub", nil
}

func (g *stubGateway) Refund(ctx context.Context, intentID string) (string, error) {
	return "re_stub", nil
}

func (g *stubGateway) VerifyWebhookSignature(payload []byte, sigHeader string) (*payments.Event, error) {
	if sigHeader != stubSignature {
		return nil, payments.ErrInvalidSignature
	}
	var ev payments.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func setupHandlers(t *testing.T) (*gorm.DB, *stubGateway) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(testDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	gw := &stubGateway{intents: make(map[string]*payments.Intent)}
	Init(testDB, gw, notify.Nop{})
	return testDB, gw
}

// seedPendingPayment creates a seeker, provider and a card-paid task stuck in
// Pending Payment with a stored payment row.
func seedPendingPayment(t *testing.T, testDB *gorm.DB, intentID string) (*models.User, *models.Task) {
	t.Helper()
	seeker := &models.User{Name: "seeker", Email: "seeker@example.com", Password: "x", Status: "Active"}
	provider := &models.User{Name: "provider", Email: "provider@example.com", Password: "x", Status: "Active"}
	if err := testDB.Create(seeker).Error; err != nil {
		t.Fatalf("seed seeker: %v", err)
	}
	if err := testDB.Create(provider).Error; err != nil {
		t.Fatalf("seed provider: %v", err)
	}

	secret := intentID + "_secret"
	expires := time.Now().Add(24 * time.Hour)
	task := &models.Task{
		SeekerID:        seeker.ID,
		ProviderID:      &provider.ID,
		Title:           "Hang curtains",
		Category:        "handyman",
		BudgetAmount:    50,
		Currency:        "usd",
		Status:          models.TaskPendingPayment,
		PaymentMethod:   models.PayStripe,
		PaymentIntentID: &intentID,
		AcceptedAmount:  50,
	}
	if err := testDB.Create(task).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}
	payment := &models.Payment{
		TaskID:       task.ID,
		OrderID:      utils.GenerateOrderID(seeker.ID),
		IntentID:     &intentID,
		ClientSecret: &secret,
		Amount:       50,
		Currency:     "usd",
		Status:       "Pending",
		ExpiredAt:    &expires,
	}
	if err := testDB.Create(payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return seeker, task
}

func webhookRequest(body, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/stripe-webhook", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	return req
}

func eventBody(eventType, intentID string) string {
	return fmt.Sprintf(`{"id":"evt_1","type":"%s","data":{"object":{"id":"%s","status":"succeeded"}}}`, eventType, intentID)
}

func TestStripeWebhookConfirmsPayment(t *testing.T) {
	testDB, _ := setupHandlers(t)
	_, task := seedPendingPayment(t, testDB, "pi_hook")

	w := httptest.NewRecorder()
	StripeWebhookHandler(w, webhookRequest(eventBody("payment_intent.succeeded", "pi_hook"), stubSignature))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got models.Task
	if err := testDB.First(&got, task.ID).Error; err != nil {
		t.Fatalf("reload task: %v", err)
	}
	if got.Status != models.TaskAssigned || !got.Paid {
		t.Errorf("expected paid Assigned task, got %s paid=%v", got.Status, got.Paid)
	}

	// replayed delivery is acknowledged without changing anything
	w = httptest.NewRecorder()
	StripeWebhookHandler(w, webhookRequest(eventBody("payment_intent.succeeded", "pi_hook"), stubSignature))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", w.Code)
	}
	if err := testDB.First(&got, task.ID).Error; err != nil {
		t.Fatalf("reload task: %v", err)
	}
	if got.Status != models.TaskAssigned {
		t.Errorf("replay changed status to %s", got.Status)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	testDB, _ := setupHandlers(t)
	_, task := seedPendingPayment(t, testDB, "pi_hook")

	w := httptest.NewRecorder()
	StripeWebhookHandler(w, webhookRequest(eventBody("payment_intent.succeeded", "pi_hook"), "t=1,v1=forged"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var got models.Task
	if err := testDB.First(&got, task.ID).Error; err != nil {
		t.Fatalf("reload task: %v", err)
	}
	if got.Status != models.TaskPendingPayment {
		t.Errorf("forged webhook moved the task to %s", got.Status)
	}
}

func TestStripeWebhookUnknownIntentAcked(t *testing.T) {
	setupHandlers(t)

	w := httptest.NewRecorder()
	StripeWebhookHandler(w, webhookRequest(eventBody("payment_intent.succeeded", "pi_unknown"), stubSignature))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown intent, got %d", w.Code)
	}
}

func TestStripeWebhookPaymentFailed(t *testing.T) {
	testDB, _ := setupHandlers(t)
	_, task := seedPendingPayment(t, testDB, "pi_hook")

	w := httptest.NewRecorder()
	StripeWebhookHandler(w, webhookRequest(eventBody("payment_intent.payment_failed", "pi_hook"), stubSignature))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var payment models.Payment
	if err := testDB.Where("task_id = ?", task.ID).First(&payment).Error; err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if payment.Status != "Failed" {
		t.Errorf("expected Failed payment, got %s", payment.Status)
	}
	// the task itself stays in Pending Payment awaiting a retry or new intent
	var got models.Task
	if err := testDB.First(&got, task.ID).Error; err != nil {
		t.Fatalf("reload task: %v", err)
	}
	if got.Status != models.TaskPendingPayment {
		t.Errorf("failed payment moved task to %s", got.Status)
	}
}

func TestPaymentDetailsInquiryRecoversMissedWebhook(t *testing.T) {
	testDB, gw := setupHandlers(t)
	seeker, task := seedPendingPayment(t, testDB, "pi_hook")
	gw.intents["pi_hook"] = &payments.Intent{ID: "pi_hook", Status: "succeeded", Amount: 5000, Currency: "usd"}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/tasks/%d/payment-details", task.ID), nil)
	req = mux.SetURLVars(req, map[string]string{"id": fmt.Sprintf("%d", task.ID)})
	req = req.WithContext(context.WithValue(req.Context(), utils.UserIDKey, seeker.ID))

	w := httptest.NewRecorder()
	PaymentDetailsHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// the inquiry noticed the succeeded intent and advanced the task
	var got models.Task
	if err := testDB.First(&got, task.ID).Error; err != nil {
		t.Fatalf("reload task: %v", err)
	}
	if got.Status != models.TaskAssigned || !got.Paid {
		t.Errorf("expected inquiry to assign the task, got %s paid=%v", got.Status, got.Paid)
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Data.Status != "Succeeded" {
		t.Errorf("unexpected response %s", w.Body.String())
	}
}

func TestPaymentDetailsForbiddenForNonOwner(t *testing.T) {
	testDB, _ := setupHandlers(t)
	_, task := seedPendingPayment(t, testDB, "pi_hook")

	other := &models.User{Name: "other", Email: "other@example.com", Password: "x", Status: "Active"}
	if err := testDB.Create(other).Error; err != nil {
		t.Fatalf("seed other: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/tasks/%d/payment-details", task.ID), nil)
	req = mux.SetURLVars(req, map[string]string{"id": fmt.Sprintf("%d", task.ID)})
	req = req.WithContext(context.WithValue(req.Context(), utils.UserIDKey, other.ID))

	w := httptest.NewRecorder()
	PaymentDetailsHandler(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}
