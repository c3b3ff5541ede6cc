package middleware

import (
	"context"
	"net/http"

	"github.com/devsync-io/devsync/backend/internal/auth"
	"github.com/devsync-io/devsync/backend/internal/model/user"
	"github.com/devsync-io/devsync/backend/pkg/utils"
)

type contextKey string

const userContextKey contextKey = "authenticated-user"

// RefreshedTokenHeader carries a silently refreshed token back to
// clients that authenticate with a bearer header instead of a cookie.
const RefreshedTokenHeader = "X-Refreshed-Token"

// RequireAuth rejects requests without a valid session and stores the
// resolved identity in the request context. Silent refreshes are
// propagated via the session cookie and a response header.
func RequireAuth(authSvc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ExtractToken(r)
			result, err := authSvc.Authenticate(r.Context(), token)
			if err != nil {
				utils.RespondError(w, http.StatusUnauthorized, rejectionMessage(err))
				return
			}

			if result.RefreshedToken != "" {
				SetSessionCookie(w, result.RefreshedToken)
				w.Header().Set(RefreshedTokenHeader, result.RefreshedToken)
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), result.User)))
		})
	}
}

func rejectionMessage(err error) string {
	switch err {
	case auth.ErrNoToken:
		return "authentication token is required"
	case auth.ErrRevokedToken:
		return "token has been revoked"
	case auth.ErrExpiredToken:
		return "token has expired"
	default:
		return "invalid authentication token"
	}
}

// WithUser returns a context carrying an authenticated identity.
func WithUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFrom returns the authenticated identity stored by RequireAuth.
func UserFrom(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(userContextKey).(*user.User)
	return u, ok
}

// SetSessionCookie writes the session token as an HttpOnly cookie.
func SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie immediately.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
