package users

import (
	"errors"
	"net/http"
	"strconv"

	"taskpost/lifecycle"
	"taskpost/notify"
	"taskpost/payments"
	"taskpost/utils"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

var (
	db      *gorm.DB
	gateway payments.Gateway
	engine  *lifecycle.Engine
)

// Init wires the shared handler dependencies. Called once from main after the
// database connection is established.
func Init(database *gorm.DB, gw payments.Gateway, dispatcher notify.Dispatcher) {
	db = database
	gateway = gw
	engine = lifecycle.NewEngine(database, gw, dispatcher)
}

// pathID extracts a numeric path variable from the route.
func pathID(r *http.Request, name string) (uint, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid " + name)
	}
	return uint(id), nil
}

// writeEngineError maps lifecycle errors onto HTTP statuses with the standard
// response envelope.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "Server error"
	switch {
	case errors.Is(err, lifecycle.ErrValidation), errors.Is(err, lifecycle.ErrInvalidTransition):
		status = http.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, lifecycle.ErrNotAuthorized):
		status = http.StatusForbidden
		msg = err.Error()
	case errors.Is(err, lifecycle.ErrNotFound):
		status = http.StatusNotFound
		msg = err.Error()
	case errors.Is(err, lifecycle.ErrConflict):
		status = http.StatusConflict
		msg = err.Error()
	case errors.Is(err, payments.ErrPayoutFailed):
		// Transfer failed after the confirmation was otherwise valid. The task
		// stays in CompletedByProvider, so the caller can retry.
		status = http.StatusBadGateway
		msg = "Payout transfer failed; the task is still awaiting confirmation, retry to release funds"
	case errors.Is(err, lifecycle.ErrPaymentProcessor):
		status = http.StatusBadGateway
		msg = "Payment processor error"
	}
	utils.WriteJSON(w, status, utils.APIResponse{Success: false, Message: msg})
}

func requireUser(w http.ResponseWriter, r *http.Request) (uint, bool) {
	uid, ok := utils.GetUserID(r)
	if !ok || uid == 0 {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return 0, false
	}
	return uid, true
}
