package users

import (
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"taskpost/lifecycle"
	"taskpost/models"
	"taskpost/utils"
)

// GET /v1/tasks/{id}/payment-details
// Returns the payment attached to a task. While the payment is pending this
// also inquires the processor directly, so a missed webhook cannot strand a
// task in Pending Payment.
func PaymentDetailsHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	taskID, err := pathID(r, "id")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: err.Error()})
		return
	}

	var task models.Task
	if err := db.WithContext(r.Context()).First(&task, taskID).Error; err != nil {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Task not found"})
		return
	}
	if task.SeekerID != uid {
		utils.WriteJSON(w, http.StatusForbidden, utils.APIResponse{Success: false, Message: "Forbidden"})
		return
	}

	var payment models.Payment
	if err := db.WithContext(r.Context()).
		Where("task_id = ?", task.ID).Order("id DESC").First(&payment).Error; err != nil {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "No payment for this task"})
		return
	}

	// Inquiry while pending and not expired: the webhook may not have arrived.
	if payment.Status == "Pending" && payment.IntentID != nil &&
		(payment.ExpiredAt == nil || time.Now().Before(*payment.ExpiredAt)) {
		intent, err := gateway.RetrieveIntent(r.Context(), *payment.IntentID)
		if err != nil {
			log.Printf("[stripe] retrieve intent %s: %v", *payment.IntentID, err)
		} else if intent.Succeeded() {
			if _, err := engine.PaymentConfirmed(r.Context(), intent.ID); err != nil {
				log.Printf("[stripe] confirm via inquiry %s: %v", intent.ID, err)
			} else {
				payment.Status = "Succeeded"
			}
		}
	}

	data := map[string]interface{}{
		"order_id": payment.OrderID,
		"status":   payment.Status,
		"amount":   payment.Amount,
		"currency": payment.Currency,
	}
	if payment.Status == "Pending" && payment.ClientSecret != nil {
		data["client_secret"] = *payment.ClientSecret
	}
	if payment.ExpiredAt != nil {
		data["expired_at"] = payment.ExpiredAt.UTC().Format(time.RFC3339)
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: data})
}

// POST /v1/payments/stripe-webhook
// Signature-verified, replay-safe entry point for processor events. Unknown
// intents and stale deliveries are acknowledged so the processor stops
// retrying; transient failures return 500 so it retries later.
func StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Cannot read body"})
		return
	}
	event, err := gateway.VerifyWebhookSignature(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		log.Printf("[webhook] signature verification failed: %v", err)
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid signature"})
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		intent, err := event.IntentObject()
		if err != nil {
			log.Printf("[webhook] malformed event %s: %v", event.ID, err)
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Malformed event"})
			return
		}
		if _, err := engine.PaymentConfirmed(r.Context(), intent.ID); err != nil {
			if errors.Is(err, lifecycle.ErrNotFound) || errors.Is(err, lifecycle.ErrInvalidTransition) {
				// Not ours, or already settled another way. Ack so Stripe stops retrying.
				log.Printf("[webhook] ignoring intent %s: %v", intent.ID, err)
			} else {
				log.Printf("[webhook] confirm intent %s: %v", intent.ID, err)
				utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Server error"})
				return
			}
		}

	case "payment_intent.payment_failed":
		intent, err := event.IntentObject()
		if err != nil {
			log.Printf("[webhook] malformed event %s: %v", event.ID, err)
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Malformed event"})
			return
		}
		if err := db.WithContext(r.Context()).Model(&models.Payment{}).
			Where("intent_id = ? AND status = ?", intent.ID, "Pending").
			Update("status", "Failed").Error; err != nil {
			log.Printf("[webhook] mark payment failed %s: %v", intent.ID, err)
		}

	default:
		log.Printf("[webhook] unhandled event type %s", event.Type)
	}

	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Received"})
}
