package users

import (
	"net/http"
	"strconv"

	"taskpost/middleware"
	"taskpost/models"
	"taskpost/utils"
)

type createServiceRequest struct {
	Title       string  `json:"title" validate:"required"`
	Description string  `json:"description"`
	Category    string  `json:"category" validate:"required"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
}

// POST /v1/services
func ServiceCreateHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createServiceRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}
	if req.Price <= 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "price must be positive"})
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}

	svc := models.Service{
		ProviderID:  uid,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Price:       utils.RoundFloat(req.Price, 2),
		Currency:    currency,
		Status:      "Active",
	}
	if err := db.WithContext(r.Context()).Create(&svc).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "DB error"})
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{Success: true, Message: "Successfully", Data: svc})
}

// GET /v1/services
func ServiceListHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	q := db.WithContext(r.Context()).Model(&models.Service{}).Where("status = ?", "Active")
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

	var services []models.Service
	if err := q.Order("id DESC").Limit(limit).Offset(offset).Find(&services).Error; err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "DB error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Successfully", Data: services})
}

type bookServiceRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required"`
}

// POST /v1/services/{id}/book
func ServiceBookHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	serviceID, err := pathID(r, "id")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: err.Error()})
		return
	}
	var req bookServiceRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}

	task, clientSecret, err := engine.BookService(r.Context(), serviceID, uid, models.PaymentMethod(req.PaymentMethod))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	data := map[string]interface{}{"task": task}
	if clientSecret != nil {
		data["client_secret"] = *clientSecret
	}
	utils.WriteJSON(w, http.StatusCreated, utils.APIResponse{Success: true, Message: "Service booked", Data: data})
}
