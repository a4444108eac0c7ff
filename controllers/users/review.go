package users

import (
	"net/http"

	"taskpost/middleware"
	"taskpost/models"
	"taskpost/utils"
)

type createReviewRequest struct {
	Rating  int     `json:"rating"`
	Comment *string `json:"comment,omitempty"`
}

// POST /v1/tasks/{id}/review
func ReviewCreateHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	taskID, err := pathID(r, "id")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: err.Error()})
		return
	}
	var req createReviewRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}

	review, err := engine.CreateReview(r.Context(), taskID, uid, req.Rating, req.Comment)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{Success: true, Message: "Review recorded", Data: review})
}

// GET /v1/users/{id}/reviews
func UserReviewsHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	userID, err := pathID(r, "id")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: err.Error()})
		return
	}

	var user models.User
	if err := db.WithContext(r.Context()).First(&user, userID).Error; err != nil {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "User not found"})
		return
	}
	var reviews []models.Review
	if err := db.WithContext(r.Context()).
		Where("reviewee_id = ?", userID).Order("id DESC").Find(&reviews).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "DB error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{
		Success: true,
		Message: "Successfully",
		Data: map[string]interface{}{
			"rating_avg":   user.RatingAvg,
			"rating_count": user.RatingCount,
			"reviews":      reviews,
		},
	})
}
