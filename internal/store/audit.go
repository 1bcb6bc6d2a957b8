package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by the admin surface.
const (
	ActionLogin       = "login"
	ActionLoginFailed = "login_failed"
	ActionLogout      = "logout"
	ActionJob         = "job"
	ActionJobFailed   = "job_failed"
)

// AuditEntry is one admin action.
type AuditEntry struct {
	ID        string
	Action    string
	Actor     string
	Detail    string
	CreatedAt time.Time
}

// AppendAudit records an admin action. Actor is the client address.
func (s *Store) AppendAudit(action, actor, detail string) (*AuditEntry, error) {
	e := &AuditEntry{
		ID:        uuid.NewString(),
		Action:    action,
		Actor:     actor,
		Detail:    detail,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	_, err := s.db.Exec(
		"INSERT INTO audit_log (id, action, actor, detail, created_at) VALUES (?, ?, ?, ?, ?)",
		e.ID, e.Action, e.Actor, e.Detail, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("append audit: %w", err)
	}
	return e, nil
}

// RecentAudit returns up to limit entries, newest first.
func (s *Store) RecentAudit(limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT id, action, actor, detail, created_at FROM audit_log ORDER BY created_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var ms int64
		if err := rows.Scan(&e.ID, &e.Action, &e.Actor, &e.Detail, &ms); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		e.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
