package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rxportal/rxcore/internal/audit"
	"github.com/rxportal/rxcore/internal/auth"
)

// ─── Request/Response Types ────────────────────────────────────────

type updateUserRequest struct {
	Email     *string    `json:"email,omitempty"`
	Name      *string    `json:"name,omitempty"`
	Password  *string    `json:"password,omitempty"`
	Role      *auth.Role `json:"role,omitempty"`
	Specialty *string    `json:"specialty,omitempty"`
	BirthDate *string    `json:"birthDate,omitempty"`
}

// validate normalises the request and returns a client-facing message for
// the first invalid field, or "".
func (req *updateUserRequest) validate() string {
	if req.Email != nil {
		e := strings.TrimSpace(*req.Email)
		req.Email = &e
		if !validEmail(e) {
			return "email must be a valid address"
		}
	}
	if req.Name != nil {
		n := strings.TrimSpace(*req.Name)
		req.Name = &n
		if n == "" || len(n) > maxNameLength {
			return "name must be between 1 and 200 characters"
		}
	}
	if req.Password != nil && len(*req.Password) < minPasswordLength {
		return "password must be at least 6 characters"
	}
	if req.BirthDate != nil && !validDate(*req.BirthDate) {
		return "birthDate must be a YYYY-MM-DD date"
	}
	return ""
}

// changedFields lists the fields a request touched, for the audit trail.
// Password values are never recorded.
func (req *updateUserRequest) changedFields() []string {
	var fields []string
	for name, set := range map[string]bool{
		"email":     req.Email != nil,
		"name":      req.Name != nil,
		"password":  req.Password != nil,
		"specialty": req.Specialty != nil,
		"birthDate": req.BirthDate != nil,
	} {
		if set {
			fields = append(fields, name)
		}
	}
	slices.Sort(fields)
	return fields
}

type userListResponse struct {
	Data []auth.PublicUser `json:"data"`
	Meta pageMeta          `json:"meta"`
}

// ─── Handlers ──────────────────────────────────────────────────────

// handleCreateUser creates an account on behalf of an admin. No session is
// issued.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req accountFields
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeValidationError(w, msg)
		return
	}

	user, err := s.auth.CreateUser(r.Context(), req.input())
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		writeConflict(w, "email already registered")
		return
	case errors.Is(err, auth.ErrPasswordTooLong):
		writeValidationError(w, "password is too long")
		return
	case err != nil:
		s.logger.Error("create user failed", "error", err)
		writeInternalError(w, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{User: user.Public()})
}

// handleListUsers returns a page of accounts filtered by role and a
// name/email query.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	role := auth.Role(q.Get("role"))
	if role != "" && !auth.IsValidRole(role) {
		writeValidationError(w, "role must be admin, doctor or patient")
		return
	}
	s.listUsers(w, r, role)
}

// handleListByRole returns a handler listing only accounts of role.
func (s *Server) handleListByRole(role auth.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.listUsers(w, r, role)
	}
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request, role auth.Role) {
	q := r.URL.Query()
	filter := auth.UserFilter{
		Role:  role,
		Query: strings.TrimSpace(q.Get("query")),
		Page:  queryInt(q.Get("page")),
		Limit: queryInt(q.Get("limit")),
	}
	filter.Normalize()

	users, total, err := s.auth.ListUsers(r.Context(), filter)
	if err != nil {
		s.logger.Error("list users failed", "error", err)
		writeInternalError(w, "failed to list users")
		return
	}

	data := make([]auth.PublicUser, 0, len(users))
	for i := range users {
		data = append(data, users[i].Public())
	}
	writeJSON(w, http.StatusOK, userListResponse{
		Data: data,
		Meta: newPageMeta(total, filter.Page, filter.Limit),
	})
}

// handleGetUser returns a single account.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.GetUser(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, auth.ErrUserNotFound) {
		writeNotFound(w, "user not found")
		return
	}
	if err != nil {
		s.logger.Error("get user failed", "error", err)
		writeInternalError(w, "failed to get user")
		return
	}

	writeJSON(w, http.StatusOK, userResponse{User: user.Public()})
}

// handleUpdateUser applies a partial update. Roles cannot change.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeValidationError(w, msg)
		return
	}

	user, err := s.auth.UpdateUser(r.Context(), id, auth.UserUpdate{
		Email:     req.Email,
		Name:      req.Name,
		Password:  req.Password,
		Role:      req.Role,
		Specialty: req.Specialty,
		BirthDate: req.BirthDate,
	})
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		writeNotFound(w, "user not found")
		return
	case errors.Is(err, auth.ErrRoleImmutable):
		writeValidationError(w, "role cannot be changed")
		return
	case errors.Is(err, auth.ErrEmailTaken):
		writeConflict(w, "email already registered")
		return
	case errors.Is(err, auth.ErrPasswordTooLong):
		writeValidationError(w, "password is too long")
		return
	case err != nil:
		s.logger.Error("update user failed", "error", err, "user_id", id)
		writeInternalError(w, "failed to update user")
		return
	}

	actor := userFromContext(r.Context())
	s.auditLog(audit.ActionUpdate, audit.EntityUser, user.ID, actor.ID, map[string]any{
		"fields": req.changedFields(),
	})
	writeJSON(w, http.StatusOK, userResponse{User: user.Public()})
}

// handleDeleteUser removes an account. Admins cannot delete themselves, and
// accounts referenced by prescriptions are kept.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := userFromContext(r.Context())

	err := s.auth.DeleteUser(r.Context(), actor.ID, id)
	switch {
	case errors.Is(err, auth.ErrSelfDeletion):
		writeForbidden(w, "cannot delete your own account")
		return
	case errors.Is(err, auth.ErrUserNotFound):
		writeNotFound(w, "user not found")
		return
	case errors.Is(err, auth.ErrUserHasPrescriptions):
		writeConflict(w, "user is referenced by prescriptions")
		return
	case err != nil:
		s.logger.Error("delete user failed", "error", err, "user_id", id)
		writeInternalError(w, "failed to delete user")
		return
	}

	s.auditLog(audit.ActionDelete, audit.EntityUser, id, actor.ID, nil)
	w.WriteHeader(http.StatusNoContent)
}
