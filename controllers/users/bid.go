package users

import (
	"net/http"

	"taskpost/middleware"
	"taskpost/models"
	"taskpost/utils"
)

type placeBidRequest struct {
	Amount  float64 `json:"amount"`
	Message *string `json:"message,omitempty"`
}

// POST /v1/tasks/{id}/bids
func BidCreateHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	taskID, err := pathID(r, "id")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: err.Error()})
		return
	}
	var req placeBidRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}

	bid, err := engine.PlaceBid(r.Context(), taskID, uid, req.Amount, req.Message)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{Success: true, Message: "Bid placed", Data: bid})
}

// GET /v1/tasks/{id}/bids
func BidListHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	taskID, err := pathID(r, "id")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: err.Error()})
		return
	}
	bids, err := engine.ListBids(r.Context(), taskID, uid)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: bids})
}

type assignTaskRequest struct {
	BidID         uint   `json:"bid_id"`
	ProviderID    uint   `json:"provider_id"`
	PaymentMethod string `json:"payment_method" validate:"required"`
}

// PUT /v1/tasks/{id}/assign
func TaskAssignHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	taskID, err := pathID(r, "id")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: err.Error()})
		return
	}
	var req assignTaskRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}
	if req.BidID == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "bid_id is required"})
		return
	}
	// provider_id is redundant with the bid, but reject an inconsistent pair.
	if req.ProviderID != 0 {
		var bid models.Bid
		if err := db.Where("id = ? AND task_id = ?", req.BidID, taskID).First(&bid).Error; err == nil && bid.ProviderID != req.ProviderID {
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "provider_id does not match the selected bid"})
			return
		}
	}

	task, clientSecret, err := engine.AcceptBid(r.Context(), taskID, uid, req.BidID, models.PaymentMethod(req.PaymentMethod))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	// client_secret is null for cash assignments.
	data := map[string]interface{}{"task": task, "client_secret": clientSecret}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Bid accepted", Data: data})
}
