package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/nlin-dev/chatrelay/internal/service/auth"
	"github.com/nlin-dev/chatrelay/pkg/utils"
)

type contextKey struct{}

var callerKey contextKey

// RequireAuth rejects requests without a valid bearer token and injects
// the verified caller identity into the request context.
func RequireAuth(authSvc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				utils.RespondError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			user, err := authSvc.Verify(token)
			if err != nil {
				utils.RespondError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), callerKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFrom returns the authenticated caller placed by RequireAuth.
func CallerFrom(ctx context.Context) (auth.User, bool) {
	user, ok := ctx.Value(callerKey).(auth.User)
	return user, ok
}
