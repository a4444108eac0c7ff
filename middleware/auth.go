package middleware

import (
	"context"
	"net/http"
	"strings"

	"taskpost/utils"
)

// AuthMiddleware requires a Bearer access token, validates it (signature,
// registered claims, jti revocation) and injects the user id into the request
// context for handlers and the per-user rate limiter.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Missing or invalid Authorization header"})
			return
		}
		tokenStr := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))

		_, claims, err := utils.ValidateAccessToken(tokenStr)
		if err != nil {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
			return
		}
		userID, err := utils.UserIDFromClaims(claims)
		if err != nil || userID == 0 {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
			return
		}

		ctx := context.WithValue(r.Context(), utils.UserIDKey, userID)
		if role, ok := claims["role"].(string); ok {
			ctx = context.WithValue(ctx, utils.UserRoleKey, role)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
