package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"livechat-backend/internal/service/auth"
)

type Authenticator interface {
	IdentityFromAuthorizationHeader(header string) (auth.Identity, error)
}

type adminKey struct{}

// RequireAdmin rejects requests without a valid admin bearer token and stores the
// resolved identity on the request context.
func RequireAdmin(a Authenticator) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.IdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
			if err != nil {
				message := "Unauthorized"
				var authErr *auth.Error
				if errors.As(err, &authErr) && authErr.Code == auth.ErrorCodeUnauthorized {
					message = authErr.Message
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
				return
			}

			ctx := context.WithValue(r.Context(), adminKey{}, identity)
			next(w, r.WithContext(ctx))
		}
	}
}

func AdminFromContext(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(adminKey{}).(auth.Identity)
	return identity, ok
}
