package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rxportal/rxcore/internal/auth"
)

// ─── Request/Response Types ────────────────────────────────────────

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	User auth.PublicUser `json:"user"`
}

// ─── Handlers ──────────────────────────────────────────────────────

// handleRegister creates an account and signs it in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req accountFields
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeValidationError(w, msg)
		return
	}

	session, err := s.auth.Register(r.Context(), req.input())
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		writeConflict(w, "email already registered")
		return
	case errors.Is(err, auth.ErrPasswordTooLong):
		writeValidationError(w, "password is too long")
		return
	case err != nil:
		s.logger.Error("registration failed", "error", err)
		writeInternalError(w, "registration failed")
		return
	}

	s.setSessionCookies(w, session)
	writeJSON(w, http.StatusCreated, userResponse{User: session.User})
}

// handleLogin verifies credentials and sets the session cookies.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	session, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeUnauthorized(w, "invalid credentials")
		return
	}
	if err != nil {
		s.logger.Error("login failed", "error", err)
		writeInternalError(w, "login failed")
		return
	}

	s.setSessionCookies(w, session)
	writeJSON(w, http.StatusOK, userResponse{User: session.User})
}

// handleRefresh rotates the session. The refresh guard has already checked
// the cookie's signature and expiry.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	creds := refreshFromContext(r.Context())
	if creds == nil {
		writeUnauthorized(w, "refresh token required")
		return
	}

	session, err := s.auth.Refresh(r.Context(), creds.claims.Subject, creds.token)
	if errors.Is(err, auth.ErrInvalidRefreshToken) {
		writeUnauthorized(w, "invalid refresh token")
		return
	}
	if err != nil {
		s.logger.Error("refresh failed", "error", err)
		writeInternalError(w, "refresh failed")
		return
	}

	s.setSessionCookies(w, session)
	writeJSON(w, http.StatusOK, userResponse{User: session.User})
}

// handleProfile returns the authenticated user.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, userResponse{User: user.Public()})
}

// handleLogout deletes the presented refresh token, if any, and clears both
// cookies.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var presented string
	if c, err := r.Cookie(refreshCookie); err == nil {
		presented = c.Value
	}

	if err := s.auth.Logout(r.Context(), user.ID, presented); err != nil {
		s.logger.Error("logout failed", "error", err, "user_id", user.ID)
		writeInternalError(w, "logout failed")
		return
	}

	s.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}
