package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/kavrelis/streamtube/internal/domain"
	"github.com/kavrelis/streamtube/internal/service"
	apperrors "github.com/kavrelis/streamtube/pkg/errors"
	"github.com/kavrelis/streamtube/pkg/httputil"
	"github.com/kavrelis/streamtube/pkg/logger"
)

type contextKey string

const userContextKey contextKey = "auth_user"

// One message for every gate failure. Which check rejected the request
// is never revealed to the caller.
const msgUnauthenticated = "authentication required"

// Authenticate is the gate in front of every protected route. It tries
// the access_token cookie first, then the Authorization bearer header,
// verifies the token statelessly and resolves the user behind it. Any
// failure short-circuits with the same 401 envelope.
func Authenticate(svc *service.UserService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				httputil.WriteErrorMessage(w, http.StatusUnauthorized, msgUnauthenticated)
				return
			}

			claims, err := svc.VerifyAccessToken(token)
			if err != nil {
				httputil.WriteErrorMessage(w, http.StatusUnauthorized, msgUnauthenticated)
				return
			}

			user, err := svc.GetByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, apperrors.ErrUnavailable) {
					httputil.WriteError(w, r, err, nil)
					return
				}
				httputil.WriteErrorMessage(w, http.StatusUnauthorized, msgUnauthenticated)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			ctx = logger.WithUserID(ctx, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearer applies the ordered extraction strategies: the cookie
// slot first, then the Authorization header. First present wins.
func extractBearer(r *http.Request) string {
	if c, err := r.Cookie(accessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// UserFromContext returns the authenticated user the gate attached, or
// nil on routes that skipped it.
func UserFromContext(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userContextKey).(*domain.User)
	return u
}
