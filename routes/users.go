package routes

import (
	"net/http"

	"taskpost/controllers/users"
	"taskpost/middleware"

	"github.com/gorilla/mux"
)

// registerUserRoutes mounts the JWT-protected marketplace endpoints.
func registerUserRoutes(api *mux.Router) {
	userLimiter := middleware.NewUserRateLimiter(100, 30, 60)

	protected := func(h http.HandlerFunc) http.Handler {
		return middleware.AuthMiddleware(userLimiter.Middleware(h))
	}

	// Tasks
	api.Handle("/tasks", protected(users.TaskCreateHandler)).Methods(http.MethodPost)
	api.Handle("/tasks", protected(users.TaskListHandler)).Methods(http.MethodGet)
	api.Handle("/tasks/{id}", protected(users.TaskDetailHandler)).Methods(http.MethodGet)
	api.Handle("/tasks/{id}/assign", protected(users.TaskAssignHandler)).Methods(http.MethodPut)
	api.Handle("/tasks/{id}/complete-by-provider", protected(users.TaskProviderCompleteHandler)).Methods(http.MethodPut)
	api.Handle("/tasks/{id}/complete", protected(users.TaskConfirmHandler)).Methods(http.MethodPut)
	api.Handle("/tasks/{id}/cancel", protected(users.TaskCancelHandler)).Methods(http.MethodPut)

	// Bids
	api.Handle("/tasks/{id}/bids", protected(users.BidCreateHandler)).Methods(http.MethodPost)
	api.Handle("/tasks/{id}/bids", protected(users.BidListHandler)).Methods(http.MethodGet)

	// Payments
	api.Handle("/tasks/{id}/payment-details", protected(users.PaymentDetailsHandler)).Methods(http.MethodGet)

	// Reviews
	api.Handle("/tasks/{id}/review", protected(users.ReviewCreateHandler)).Methods(http.MethodPost)
	api.Handle("/users/{id}/reviews", protected(users.UserReviewsHandler)).Methods(http.MethodGet)

	// Services (instant booking)
	api.Handle("/services", protected(users.ServiceCreateHandler)).Methods(http.MethodPost)
	api.Handle("/services", protected(users.ServiceListHandler)).Methods(http.MethodGet)
	api.Handle("/services/{id}/book", protected(users.ServiceBookHandler)).Methods(http.MethodPost)
}
