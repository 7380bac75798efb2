package middleware

import (
	"context"
	"net/http"
	"strings"

	"codearena/internal/common"
	"codearena/internal/common/security"
	"codearena/internal/domain/model"

	"github.com/go-chi/jwtauth/v5"
)

type contextKey string

const (
	UserIDCtxKey      contextKey = "userID"
	DisplayNameCtxKey contextKey = "displayName"
)

func unauthorized(w http.ResponseWriter, msg string) {
	common.RespondWithDomainError(w, common.Errorf("%s: %w", msg, common.ErrUnauthorized))
}

// Authenticator rejects requests without a valid bearer token and puts the
// caller's identity into the request context. jwtauth.Verifier must run first.
func Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())

		if err != nil {
			if strings.Contains(err.Error(), "token not found") || token == nil {
				unauthorized(w, "authorization token required")
			} else {
				unauthorized(w, "invalid token: "+err.Error())
			}
			return
		}

		if token == nil {
			unauthorized(w, "invalid token")
			return
		}

		userID, err := security.GetUserIDFromClaims(claims)
		if err != nil {
			unauthorized(w, "invalid token claims: "+err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), UserIDCtxKey, userID)
		ctx = context.WithValue(ctx, DisplayNameCtxKey, security.GetDisplayNameFromClaims(claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Helper to get user ID from context
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDCtxKey).(string)
	return userID, ok && userID != ""
}

func GetIdentityFromContext(ctx context.Context) (model.Identity, bool) {
	userID, ok := GetUserIDFromContext(ctx)
	if !ok {
		return model.Identity{}, false
	}
	name, _ := ctx.Value(DisplayNameCtxKey).(string)
	return model.Identity{UserID: userID, DisplayName: name}, true
}
