package users

import (
	"net/http"
	"strconv"

	"taskpost/middleware"
	"taskpost/models"
	"taskpost/utils"
)

type createTaskRequest struct {
	Title        string  `json:"title" validate:"required"`
	Description  string  `json:"description"`
	Category     string  `json:"category" validate:"required"`
	BudgetAmount float64 `json:"budget_amount"`
	Currency     string  `json:"currency"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
}

// POST /v1/tasks
func TaskCreateHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createTaskRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}
	if req.BudgetAmount <= 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "budget_amount must be positive"})
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}

	task := models.Task{
		SeekerID:     uid,
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		BudgetAmount: utils.RoundFloat(req.BudgetAmount, 2),
		Currency:     currency,
		Lat:          req.Lat,
		Lng:          req.Lng,
		Status:       models.TaskOpen,
	}
	if err := db.WithContext(r.Context()).Create(&task).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "DB error"})
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{Success: true, Message: "Successfully", Data: task})
}

// GET /v1/tasks
// Filters: status, category, mine=seeker|provider; paginated via limit/offset.
func TaskListHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := db.WithContext(r.Context()).Model(&models.Task{})
	switch r.URL.Query().Get("mine") {
	case "seeker":
		q = q.Where("seeker_id = ?", uid)
	case "provider":
		q = q.Where("provider_id = ?", uid)
	default:
		// Browsing: only open tasks are publicly listed.
		q = q.Where("status = ?", models.TaskOpen)
	}
	if status := r.URL.Query().Get("status"); status != "" {
		if !models.ValidTaskStatus(models.TaskStatus(status)) {
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid status filter"})
			return
		}
		q = q.Where("status = ?", status)
	}
	if category := r.URL.Query().Get("category"); category != "" {
		q = q.Where("category = ?", category)
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	var tasks []models.Task
	if err := q.Order("id DESC").Limit(limit).Offset(offset).Find(&tasks).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "DB error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: tasks})
}

// GET /v1/tasks/{id}
func TaskDetailHandler(w http.ResponseWriter, r *http.Request) {
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
	q := db.WithContext(r.Context()).Preload("Seeker").Preload("Provider").Preload("Reviews")
	if err := q.First(&task, taskID).Error; err != nil {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Task not found"})
		return
	}
	// Bids are visible to the task owner only.
	if task.SeekerID == uid {
		_ = db.WithContext(r.Context()).Preload("Provider").
			Where("task_id = ?", task.ID).Order("amount ASC").Find(&task.Bids).Error
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: task})
}

// PUT /v1/tasks/{id}/cancel
func TaskCancelHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	taskID, err := pathID(r, "id")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: err.Error()})
		return
	}
	task, err := engine.Cancel(r.Context(), taskID, uid)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Task cancelled", Data: task})
}

// PUT /v1/tasks/{id}/complete-by-provider
func TaskProviderCompleteHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	taskID, err := pathID(r, "id")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: err.Error()})
		return
	}
	task, err := engine.ProviderCompletes(r.Context(), taskID, uid)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Marked as done", Data: task})
}

// PUT /v1/tasks/{id}/complete
func TaskConfirmHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	taskID, err := pathID(r, "id")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: err.Error()})
		return
	}
	task, err := engine.SeekerConfirms(r.Context(), taskID, uid)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Task completed", Data: task})
}
