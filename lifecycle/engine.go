package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"taskpost/models"
	"taskpost/notify"
	"taskpost/payments"
	"taskpost/utils"

	"gorm.io/gorm"
)

// PlatformFeeRate is retained from the accepted amount on settlement.
const PlatformFeeRate = 0.10

// PlatformFee returns the fee retained on settlement of the given amount.
func PlatformFee(amount float64) float64 {
	return utils.RoundFloat(amount*PlatformFeeRate, 2)
}

// NetPayout returns the amount transferred to the provider on settlement.
func NetPayout(amount float64) float64 {
	return utils.RoundFloat(amount-PlatformFee(amount), 2)
}

// transitions is the single source of truth for legal status moves. Cancelled
// is reachable from Open and Assigned only; Completed is terminal.
var transitions = map[models.TaskStatus][]models.TaskStatus{
	models.TaskOpen:                {models.TaskPendingPayment, models.TaskAssigned, models.TaskCancelled},
	models.TaskPendingPayment:      {models.TaskAssigned},
	models.TaskAssigned:            {models.TaskCompletedByProvider, models.TaskCancelled},
	models.TaskCompletedByProvider: {models.TaskCompleted},
}

// CanTransition reports whether moving a task from one status to another is legal.
func CanTransition(from, to models.TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Engine owns the task status field and every transition on it. All writes go
// through guarded updates that re-check the pre-transition status in the same
// statement, so two concurrent transitions on one task resolve to exactly one
// success; the loser sees ErrConflict instead of overwriting.
type Engine struct {
	db         *gorm.DB
	gateway    payments.Gateway
	dispatcher notify.Dispatcher
}

func NewEngine(db *gorm.DB, gateway payments.Gateway, dispatcher notify.Dispatcher) *Engine {
	if dispatcher == nil {
		dispatcher = notify.Nop{}
	}
	return &Engine{db: db, gateway: gateway, dispatcher: dispatcher}
}

// emit dispatches a notification best-effort. Failures are logged and swallowed;
// they never roll back a state transition or money movement.
func (e *Engine) emit(ctx context.Context, ev notify.Event) {
	if err := e.dispatcher.Dispatch(ctx, ev); err != nil {
		log.Printf("[notify] dispatch %s to user %d: %v", ev.Type, ev.UserID, err)
	}
}

func (e *Engine) getTask(ctx context.Context, taskID uint) (*models.Task, error) {
	var task models.Task
	if err := e.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: task %d", ErrNotFound, taskID)
		}
		return nil, err
	}
	return &task, nil
}

// moveStatus applies the guarded status transition plus any extra column
// updates in a single statement. RowsAffected == 0 means another request moved
// the task first.
func moveStatus(tx *gorm.DB, taskID uint, from, to models.TaskStatus, updates map[string]interface{}) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	res := tx.Model(&models.Task{}).Where("id = ? AND status = ?", taskID, from).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: task %d left status %s", ErrConflict, taskID, from)
	}
	return nil
}

// PlaceBid records a provider's offer against an open task.
func (e *Engine) PlaceBid(ctx context.Context, taskID, providerID uint, amount float64, message *string) (*models.Bid, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: bid amount must be positive", ErrValidation)
	}
	task, err := e.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.SeekerID == providerID {
		return nil, fmt.Errorf("%w: cannot bid on your own task", ErrValidation)
	}
	if task.Status != models.TaskOpen {
		return nil, fmt.Errorf("%w: task is no longer open for bidding", ErrInvalidTransition)
	}

	bid := &models.Bid{
		TaskID:     task.ID,
		ProviderID: providerID,
		Amount:     utils.RoundFloat(amount, 2),
		Message:    message,
		Status:     models.BidPending,
	}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(bid).Error; err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("%w: you already have a bid on this task", ErrConflict)
			}
			return err
		}
		// Re-check inside the transaction: an accept may have closed the task
		// between the read above and the insert.
		var open int64
		if err := tx.Model(&models.Task{}).
			Where("id = ? AND status = ?", task.ID, models.TaskOpen).
			Count(&open).Error; err != nil {
			return err
		}
		if open == 0 {
			return fmt.Errorf("%w: task closed while placing the bid", ErrConflict)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, notify.Event{
		Type:    notify.EventBidPlaced,
		UserID:  task.SeekerID,
		TaskID:  task.ID,
		Message: fmt.Sprintf("New bid of %.2f on %q", bid.Amount, task.Title),
	})
	return bid, nil
}

// ListBids returns a task's bids. Only the task's seeker may list them.
func (e *Engine) ListBids(ctx context.Context, taskID, requesterID uint) ([]models.Bid, error) {
	task, err := e.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.SeekerID != requesterID {
		return nil, fmt.Errorf("%w: only the task owner may list bids", ErrNotAuthorized)
	}
	var bids []models.Bid
	if err := e.db.WithContext(ctx).Preload("Provider").
		Where("task_id = ?", taskID).Order("amount ASC").Find(&bids).Error; err != nil {
		return nil, err
	}
	return bids, nil
}

// AcceptBid moves an open task to Pending Payment (card) or Assigned (cash),
// marking the bid Accepted in the same unit of work. Acceptance is exclusive:
// the status guard makes concurrent accepts on one task resolve to one winner.
// For card payments the returned client secret resumes the payment client-side;
// the transition to Assigned happens later via PaymentConfirmed.
func (e *Engine) AcceptBid(ctx context.Context, taskID, seekerID, bidID uint, method models.PaymentMethod) (*models.Task, *string, error) {
	if !models.ValidPaymentMethod(method) {
		return nil, nil, fmt.Errorf("%w: payment method must be Stripe or Cash", ErrValidation)
	}
	task, err := e.getTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if task.SeekerID != seekerID {
		return nil, nil, fmt.Errorf("%w: only the task owner may accept a bid", ErrNotAuthorized)
	}
	if task.Status != models.TaskOpen {
		return nil, nil, fmt.Errorf("%w: task is no longer open", ErrConflict)
	}

	var bid models.Bid
	if err := e.db.WithContext(ctx).Where("id = ? AND task_id = ?", bidID, taskID).First(&bid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: bid %d on task %d", ErrNotFound, bidID, taskID)
		}
		return nil, nil, err
	}

	next := models.TaskAssigned
	var intent *payments.Intent
	if method == models.PayStripe {
		next = models.TaskPendingPayment
		in, err := e.gateway.CreateIntent(ctx, bid.Amount, task.Currency)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrPaymentProcessor, err)
		}
		intent = in
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"provider_id":     bid.ProviderID,
			"payment_method":  method,
			"accepted_amount": bid.Amount,
		}
		if intent != nil {
			updates["payment_intent_id"] = intent.ID
		}
		if err := moveStatus(tx, task.ID, models.TaskOpen, next, updates); err != nil {
			return err
		}
		res := tx.Model(&models.Bid{}).
			Where("id = ? AND status = ?", bid.ID, models.BidPending).
			Update("status", models.BidAccepted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: bid %d already resolved", ErrConflict, bid.ID)
		}
		if intent != nil {
			intentID := intent.ID
			secret := intent.ClientSecret
			expires := time.Now().Add(24 * time.Hour)
			pay := models.Payment{
				TaskID:       task.ID,
				OrderID:      utils.GenerateOrderID(seekerID),
				IntentID:     &intentID,
				ClientSecret: &secret,
				Amount:       bid.Amount,
				Currency:     task.Currency,
				Status:       "Pending",
				ExpiredAt:    &expires,
			}
			if err := tx.Create(&pay).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.emit(ctx, notify.Event{
		Type:    notify.EventTaskAssigned,
		UserID:  bid.ProviderID,
		TaskID:  task.ID,
		Message: fmt.Sprintf("Your bid on %q was accepted", task.Title),
	})

	updated, err := e.getTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	var secret *string
	if intent != nil {
		s := intent.ClientSecret
		secret = &s
	}
	return updated, secret, nil
}

// PaymentConfirmed advances a card-paid task from Pending Payment to Assigned.
// It is driven by the webhook reconciler (or the on-demand intent inquiry) and
// is idempotent: replaying the same confirmation is a harmless no-op once the
// task is Assigned.
func (e *Engine) PaymentConfirmed(ctx context.Context, intentID string) (*models.Task, error) {
	var task models.Task
	if err := e.db.WithContext(ctx).Where("payment_intent_id = ?", intentID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no task for intent %s", ErrNotFound, intentID)
		}
		return nil, err
	}
	if task.Status != models.TaskPendingPayment {
		if task.Paid {
			// Replay after the transition already applied.
			return &task, nil
		}
		return nil, fmt.Errorf("%w: task %d is %s", ErrInvalidTransition, task.ID, task.Status)
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := moveStatus(tx, task.ID, models.TaskPendingPayment, models.TaskAssigned, map[string]interface{}{"paid": true}); err != nil {
			return err
		}
		return tx.Model(&models.Payment{}).
			Where("task_id = ? AND intent_id = ?", task.ID, intentID).
			Update("status", "Succeeded").Error
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// Lost a replay race; if the other delivery won, converge.
			reloaded, rerr := e.getTask(ctx, task.ID)
			if rerr == nil && reloaded.Paid {
				return reloaded, nil
			}
		}
		return nil, err
	}

	e.emit(ctx, notify.Event{
		Type:    notify.EventPaymentReceived,
		UserID:  task.SeekerID,
		TaskID:  task.ID,
		Message: fmt.Sprintf("Payment received for %q", task.Title),
	})
	if task.ProviderID != nil {
		e.emit(ctx, notify.Event{
			Type:    notify.EventTaskAssigned,
			UserID:  *task.ProviderID,
			TaskID:  task.ID,
			Message: fmt.Sprintf("%q is funded and assigned to you", task.Title),
		})
	}
	return e.getTask(ctx, task.ID)
}

// ProviderCompletes marks the provider's side of the contract fulfilled.
func (e *Engine) ProviderCompletes(ctx context.Context, taskID, providerID uint) (*models.Task, error) {
	task, err := e.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskAssigned {
		return nil, fmt.Errorf("%w: task %d is %s, not Assigned", ErrInvalidTransition, task.ID, task.Status)
	}
	if task.ProviderID == nil || *task.ProviderID != providerID {
		return nil, fmt.Errorf("%w: only the assigned provider may mark completion", ErrNotAuthorized)
	}
	if err := moveStatus(e.db.WithContext(ctx), task.ID, models.TaskAssigned, models.TaskCompletedByProvider, nil); err != nil {
		return nil, err
	}

	e.emit(ctx, notify.Event{
		Type:    notify.EventProviderDone,
		UserID:  task.SeekerID,
		TaskID:  task.ID,
		Message: fmt.Sprintf("%q was marked done; confirm to release payment", task.Title),
	})
	return e.getTask(ctx, task.ID)
}

// SeekerConfirms settles the task: 10%% platform fee, net payout transferred to
// the provider for card payments, completion timestamp set once. The status
// write and the transfer are one atomic step: a failed transfer rolls the task
// back to CompletedByProvider so confirmation can be retried.
func (e *Engine) SeekerConfirms(ctx context.Context, taskID, seekerID uint) (*models.Task, error) {
	task, err := e.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.SeekerID != seekerID {
		return nil, fmt.Errorf("%w: only the task owner may confirm completion", ErrNotAuthorized)
	}
	if task.Status != models.TaskCompletedByProvider {
		return nil, fmt.Errorf("%w: task %d is %s, not CompletedByProvider", ErrInvalidTransition, task.ID, task.Status)
	}
	if task.ProviderID == nil {
		return nil, fmt.Errorf("%w: task %d has no assigned provider", ErrInvalidTransition, task.ID)
	}
	providerID := *task.ProviderID
	fee := PlatformFee(task.AcceptedAmount)
	net := NetPayout(task.AcceptedAmount)

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := moveStatus(tx, task.ID, models.TaskCompletedByProvider, models.TaskCompleted, map[string]interface{}{"completed_at": now}); err != nil {
			return err
		}
		if task.PaymentMethod != models.PayStripe {
			// Cash settles off-platform; no transfer, no ledger.
			return nil
		}

		var provider models.User
		if err := tx.First(&provider, providerID).Error; err != nil {
			return err
		}
		acct := ""
		if provider.PayoutAccount != nil {
			acct = *provider.PayoutAccount
		}
		intentID := ""
		if task.PaymentIntentID != nil {
			intentID = *task.PaymentIntentID
		}
		transferID, err := e.gateway.Transfer(ctx, net, task.Currency, acct, intentID)
		if err != nil {
			if errors.Is(err, payments.ErrPayoutFailed) {
				return err
			}
			return fmt.Errorf("%w: %v", payments.ErrPayoutFailed, err)
		}

		payoutMsg := fmt.Sprintf("Payout for task %q", task.Title)
		feeMsg := fmt.Sprintf("Platform fee for task %q", task.Title)
		ref := transferID
		ledger := []models.Transaction{
			{
				UserID:          providerID,
				TaskID:          task.ID,
				Amount:          net,
				OrderID:         utils.GenerateOrderID(providerID),
				TransactionFlow: "debit",
				TransactionType: models.TrxPayout,
				Reference:       &ref,
				Message:         &payoutMsg,
				Status:          "Success",
			},
			{
				UserID:          providerID,
				TaskID:          task.ID,
				Amount:          fee,
				OrderID:         utils.GenerateOrderID(providerID),
				TransactionFlow: "credit",
				TransactionType: models.TrxFee,
				Message:         &feeMsg,
				Status:          "Success",
			},
		}
		return tx.Create(&ledger).Error
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, notify.Event{
		Type:    notify.EventTaskCompleted,
		UserID:  providerID,
		TaskID:  task.ID,
		Message: fmt.Sprintf("%q confirmed complete; %.2f on its way", task.Title, net),
	})
	return e.getTask(ctx, task.ID)
}

// Cancel moves a task to the terminal Cancelled state. Allowed from Open
// (seeker only) and Assigned (either party). Card payments already captured
// are refunded in the same unit of work; a failed refund aborts the cancel.
func (e *Engine) Cancel(ctx context.Context, taskID, callerID uint) (*models.Task, error) {
	task, err := e.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	switch task.Status {
	case models.TaskOpen:
		if task.SeekerID != callerID {
			return nil, fmt.Errorf("%w: only the task owner may cancel an open task", ErrNotAuthorized)
		}
		if err := moveStatus(e.db.WithContext(ctx), task.ID, models.TaskOpen, models.TaskCancelled, nil); err != nil {
			return nil, err
		}

	case models.TaskAssigned:
		party := task.SeekerID == callerID || (task.ProviderID != nil && *task.ProviderID == callerID)
		if !party {
			return nil, fmt.Errorf("%w: only the seeker or the assigned provider may cancel", ErrNotAuthorized)
		}
		err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// The intent reference travels with the active payment path only;
			// the payments row keeps it for audit.
			updates := map[string]interface{}{"payment_intent_id": nil}
			if err := moveStatus(tx, task.ID, models.TaskAssigned, models.TaskCancelled, updates); err != nil {
				return err
			}
			if task.PaymentMethod != models.PayStripe || !task.Paid {
				return nil
			}
			intentID := ""
			if task.PaymentIntentID != nil {
				intentID = *task.PaymentIntentID
			}
			refundID, err := e.gateway.Refund(ctx, intentID)
			if err != nil {
				return fmt.Errorf("%w: refund: %v", ErrPaymentProcessor, err)
			}
			if err := tx.Model(&models.Payment{}).
				Where("task_id = ? AND intent_id = ?", task.ID, intentID).
				Update("status", "Refunded").Error; err != nil {
				return err
			}
			msg := fmt.Sprintf("Refund for cancelled task %q", task.Title)
			ref := refundID
			trx := models.Transaction{
				UserID:          task.SeekerID,
				TaskID:          task.ID,
				Amount:          task.AcceptedAmount,
				OrderID:         utils.GenerateOrderID(task.SeekerID),
				TransactionFlow: "debit",
				TransactionType: models.TrxRefund,
				Reference:       &ref,
				Message:         &msg,
				Status:          "Success",
			}
			return tx.Create(&trx).Error
		})
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("%w: cannot cancel a task in status %s", ErrInvalidTransition, task.Status)
	}

	// Tell the other party, if there is one.
	notifyID := task.SeekerID
	if callerID == task.SeekerID && task.ProviderID != nil {
		notifyID = *task.ProviderID
	}
	if notifyID != callerID {
		e.emit(ctx, notify.Event{
			Type:    notify.EventTaskCancelled,
			UserID:  notifyID,
			TaskID:  task.ID,
			Message: fmt.Sprintf("%q was cancelled", task.Title),
		})
	}
	return e.getTask(ctx, task.ID)
}

// CreateReview records post-completion feedback and recalculates the
// reviewee's running average rating. The provider may review once they have
// marked completion; the seeker once they have confirmed it.
func (e *Engine) CreateReview(ctx context.Context, taskID, reviewerID uint, rating int, comment *string) (*models.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}
	task, err := e.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var revieweeID uint
	switch {
	case task.SeekerID == reviewerID:
		if task.Status != models.TaskCompleted {
			return nil, fmt.Errorf("%w: confirm completion before reviewing", ErrInvalidTransition)
		}
		revieweeID = *task.ProviderID
	case task.ProviderID != nil && *task.ProviderID == reviewerID:
		if task.Status != models.TaskCompletedByProvider && task.Status != models.TaskCompleted {
			return nil, fmt.Errorf("%w: mark the task done before reviewing", ErrInvalidTransition)
		}
		revieweeID = task.SeekerID
	default:
		return nil, fmt.Errorf("%w: only the task's parties may review it", ErrNotAuthorized)
	}

	review := &models.Review{
		TaskID:     task.ID,
		ReviewerID: reviewerID,
		RevieweeID: revieweeID,
		Rating:     rating,
		Comment:    comment,
	}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(review).Error; err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("%w: you already reviewed this task", ErrConflict)
			}
			return err
		}
		var agg struct {
			Avg float64
			Cnt int64
		}
		if err := tx.Model(&models.Review{}).
			Where("reviewee_id = ?", revieweeID).
			Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS cnt").
			Scan(&agg).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", revieweeID).
			Updates(map[string]interface{}{
				"rating_avg":   utils.RoundFloat(agg.Avg, 2),
				"rating_count": agg.Cnt,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, notify.Event{
		Type:    notify.EventReviewReceived,
		UserID:  revieweeID,
		TaskID:  task.ID,
		Message: fmt.Sprintf("You received a %d-star review on %q", rating, task.Title),
	})
	return review, nil
}

// BookService creates a task directly from a fixed-price service listing,
// skipping the bidding phase. The task starts in Pending Payment (card) or
// Assigned (cash) with the service's provider and price already locked in.
func (e *Engine) BookService(ctx context.Context, serviceID, seekerID uint, method models.PaymentMethod) (*models.Task, *string, error) {
	if !models.ValidPaymentMethod(method) {
		return nil, nil, fmt.Errorf("%w: payment method must be Stripe or Cash", ErrValidation)
	}
	var svc models.Service
	if err := e.db.WithContext(ctx).Where("id = ? AND status = ?", serviceID, "Active").First(&svc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: service %d", ErrNotFound, serviceID)
		}
		return nil, nil, err
	}
	if svc.ProviderID == seekerID {
		return nil, nil, fmt.Errorf("%w: cannot book your own service", ErrValidation)
	}

	status := models.TaskAssigned
	var intent *payments.Intent
	if method == models.PayStripe {
		status = models.TaskPendingPayment
		in, err := e.gateway.CreateIntent(ctx, svc.Price, svc.Currency)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrPaymentProcessor, err)
		}
		intent = in
	}

	providerID := svc.ProviderID
	task := &models.Task{
		SeekerID:       seekerID,
		ProviderID:     &providerID,
		Title:          svc.Title,
		Description:    svc.Description,
		Category:       svc.Category,
		BudgetAmount:   svc.Price,
		Currency:       svc.Currency,
		Status:         status,
		PaymentMethod:  method,
		AcceptedAmount: svc.Price,
		InstantBooking: true,
		ServiceID:      &svc.ID,
	}
	if intent != nil {
		intentID := intent.ID
		task.PaymentIntentID = &intentID
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(task).Error; err != nil {
			return err
		}
		if intent == nil {
			return nil
		}
		intentID := intent.ID
		secret := intent.ClientSecret
		expires := time.Now().Add(24 * time.Hour)
		pay := models.Payment{
			TaskID:       task.ID,
			OrderID:      utils.GenerateOrderID(seekerID),
			IntentID:     &intentID,
			ClientSecret: &secret,
			Amount:       svc.Price,
			Currency:     svc.Currency,
			Status:       "Pending",
			ExpiredAt:    &expires,
		}
		return tx.Create(&pay).Error
	})
	if err != nil {
		return nil, nil, err
	}

	e.emit(ctx, notify.Event{
		Type:    notify.EventTaskAssigned,
		UserID:  svc.ProviderID,
		TaskID:  task.ID,
		Message: fmt.Sprintf("%q was booked instantly", svc.Title),
	})

	var secret *string
	if intent != nil {
		s := intent.ClientSecret
		secret = &s
	}
	return task, secret, nil
}
