// Package audit records who did what to which entity. Rows are written by the
// auth event fan-out and by admin user management, and read back by the
// admin audit endpoint.
package audit

import "time"

// Actions written by rxcore.
const (
	ActionRegister        = "register"
	ActionLogin           = "login"
	ActionLoginFailed     = "login_failed"
	ActionRefresh         = "refresh"
	ActionRefreshRejected = "refresh_rejected"
	ActionLogout          = "logout"
	ActionCreate          = "create"
	ActionUpdate          = "update"
	ActionDelete          = "delete"
	ActionPasswordChange  = "password_change"
	ActionConsume         = "consume"
)

// Entity types.
const (
	EntityUser         = "user"
	EntitySession      = "session"
	EntityPrescription = "prescription"
)

// Sources.
const (
	SourceAPI  = "api"
	SourceAuth = "auth"
	SourceCLI  = "cli"
)

// Paging limits for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Entry is a single audit trail row.
type Entry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter selects audit rows. Empty fields match everything.
type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	UserID     string
	Limit      int
	Offset     int
}

// Normalize clamps Limit to [1, MaxLimit] and Offset to >= 0.
func (f *Filter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// ListResult is one page of audit rows.
type ListResult struct {
	Logs   []Entry `json:"logs"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}
