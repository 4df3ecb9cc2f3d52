package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/rxportal/rxcore/internal/auth"
)

// refreshCredentials is what the refresh guard attaches to the request.
type refreshCredentials struct {
	claims *auth.RefreshClaims
	token  string
}

// authenticate resolves the access_token cookie to a user and attaches it
// to the request context. Missing, invalid and expired tokens, and tokens of
// deleted users, all end the request with 401.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if c, err := r.Cookie(accessCookie); err == nil {
			token = c.Value
		}

		user, err := s.auth.Authenticate(r.Context(), token)
		if errors.Is(err, auth.ErrUnauthenticated) {
			writeUnauthorized(w, "authentication required")
			return
		}
		if err != nil {
			s.logger.Error("authenticating request", "error", err)
			writeInternalError(w, "failed to authenticate request")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUser, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// refreshGuard verifies the refresh_token cookie's signature and expiry.
// Whether the token is still stored is decided later by the auth service.
func (s *Server) refreshGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(refreshCookie)
		if err != nil || c.Value == "" {
			writeUnauthorized(w, "refresh token required")
			return
		}

		claims, err := s.auth.VerifyRefreshToken(c.Value)
		if err != nil {
			writeUnauthorized(w, "invalid refresh token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyRefresh, &refreshCredentials{claims: claims, token: c.Value})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authorize rejects users whose role is not in roles. It must run after
// authenticate; a request without a user is treated as unauthenticated.
func (s *Server) authorize(roles auth.RoleSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := userFromContext(r.Context())
			if user == nil {
				writeUnauthorized(w, "authentication required")
				return
			}
			if err := auth.Authorize(roles, user.Role); err != nil {
				writeForbidden(w, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// throttle returns the global per-IP request limiter, or nil when disabled.
// One limiter is shared by every route.
func (s *Server) throttle() func(http.Handler) http.Handler {
	rl := s.secCfg.RateLimit
	if !rl.Enabled || rl.Requests <= 0 || rl.Window <= 0 {
		return nil
	}
	return httprate.Limit(rl.Requests, time.Duration(rl.Window)*time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusTooManyRequests, ErrCodeTooManyRequests, "too many requests")
		}),
	)
}

// userFromContext returns the authenticated user, or nil.
func userFromContext(ctx context.Context) *auth.User {
	u, _ := ctx.Value(ctxKeyUser).(*auth.User) //nolint:errcheck // type assertion, not an error
	return u
}

// refreshFromContext returns what the refresh guard verified, or nil.
func refreshFromContext(ctx context.Context) *refreshCredentials {
	c, _ := ctx.Value(ctxKeyRefresh).(*refreshCredentials) //nolint:errcheck // type assertion, not an error
	return c
}
