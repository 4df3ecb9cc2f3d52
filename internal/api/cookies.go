package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/rxportal/rxcore/internal/auth"
)

// Session cookie names.
const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

// cookieAttrs returns Secure and SameSite for session cookies. Production
// always uses Secure with SameSite=None so the web client may live on
// another site.
func (s *Server) cookieAttrs() (bool, http.SameSite) {
	if s.production {
		return true, http.SameSiteNoneMode
	}
	switch strings.ToLower(s.secCfg.Cookies.SameSite) {
	case "lax":
		return s.secCfg.Cookies.Secure, http.SameSiteLaxMode
	case "none":
		return s.secCfg.Cookies.Secure, http.SameSiteNoneMode
	default:
		return s.secCfg.Cookies.Secure, http.SameSiteStrictMode
	}
}

func (s *Server) sessionCookie(name, value string, expires time.Time) *http.Cookie {
	secure, sameSite := s.cookieAttrs()
	maxAge := int(time.Until(expires).Round(time.Second).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.secCfg.Cookies.Domain,
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	}
}

// setSessionCookies writes both session cookies with their own lifetimes.
func (s *Server) setSessionCookies(w http.ResponseWriter, session *auth.Session) {
	http.SetCookie(w, s.sessionCookie(accessCookie, session.AccessToken, session.AccessExpiresAt))
	http.SetCookie(w, s.sessionCookie(refreshCookie, session.RefreshToken, session.RefreshExpiresAt))
}

// clearSessionCookies expires both session cookies.
func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookie, refreshCookie} {
		c := s.sessionCookie(name, "", time.Unix(0, 0))
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}
