package authevents

import (
	"context"

	"github.com/rxportal/rxcore/internal/audit"
	"github.com/rxportal/rxcore/internal/auth"
)

// Recorder is the part of *audit.Writer the sink uses.
type Recorder interface {
	Record(entry *audit.Entry)
}

// AuditSink turns events into audit rows.
type AuditSink struct {
	rec Recorder
}

// NewAuditSink creates an AuditSink.
func NewAuditSink(rec Recorder) *AuditSink {
	return &AuditSink{rec: rec}
}

var auditActions = map[auth.EventType]struct{ action, entity string }{
	auth.EventRegistered:      {audit.ActionRegister, audit.EntityUser},
	auth.EventUserCreated:     {audit.ActionCreate, audit.EntityUser},
	auth.EventLoginSucceeded:  {audit.ActionLogin, audit.EntitySession},
	auth.EventLoginFailed:     {audit.ActionLoginFailed, audit.EntitySession},
	auth.EventRefreshed:       {audit.ActionRefresh, audit.EntitySession},
	auth.EventRefreshRejected: {audit.ActionRefreshRejected, audit.EntitySession},
	auth.EventLoggedOut:       {audit.ActionLogout, audit.EntitySession},
	auth.EventPasswordChanged: {audit.ActionPasswordChange, audit.EntityUser},
}

// Emit implements auth.EventSink. Unknown event types are ignored.
func (s *AuditSink) Emit(_ context.Context, e auth.Event) {
	m, ok := auditActions[e.Type]
	if !ok {
		return
	}

	details := map[string]any{"outcome": e.Outcome}
	if e.Role != "" {
		details["role"] = string(e.Role)
	}
	if e.Reason != "" {
		details["reason"] = e.Reason
	}
	if e.Email != "" && e.UserID == "" {
		details["email"] = e.Email
	}

	entry := &audit.Entry{
		Action:     m.action,
		EntityType: m.entity,
		UserID:     e.UserID,
		Source:     audit.SourceAuth,
		Details:    details,
		CreatedAt:  e.At,
	}
	if m.entity == audit.EntityUser {
		entry.EntityID = e.UserID
	}
	s.rec.Record(entry)
}
