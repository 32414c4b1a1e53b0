package middleware

import (
	"context"
	"net/http"

	"github.com/cuappdev/clicker-backend/internal/models"
	"github.com/cuappdev/clicker-backend/internal/utils"
)

// Authenticate rejects requests without a valid token and stores the claims
// for UserID.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := utils.VerifyRequest(r, secret)
			if err != nil {
				utils.JSON(w, http.StatusUnauthorized, models.ErrorResponse{Code: "unauthorized", Message: err.Error()})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func WithClaims(ctx context.Context, claims *utils.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// UserID returns the authenticated caller, or "" outside Authenticate.
func UserID(r *http.Request) string {
	if claims, ok := r.Context().Value(claimsKey).(*utils.Claims); ok {
		return claims.Subject
	}
	return ""
}
