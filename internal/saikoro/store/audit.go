package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Audit results.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultRejected = "rejected"
)

// AuditEntry represents an audit log entry
type AuditEntry struct {
	ID           int64
	Timestamp    time.Time
	TraceID      string
	Actor        string
	Action       string
	Target       sql.NullString
	PayloadJSON  sql.NullString
	Result       string
	ErrorMessage sql.NullString
}

// AuditPayload is a helper for structured audit payloads
type AuditPayload map[string]any

// WriteAudit appends an audit entry. Empty target and errorMsg are stored as
// NULL.
func (s *Store) WriteAudit(ctx context.Context, traceID, actor, action, target, result string, payload AuditPayload, errorMsg string) error {
	var payloadJSON sql.NullString
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal audit payload: %w", err)
		}
		payloadJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (ts, trace_id, actor, action, target, payload_json, result, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, time.Now().UTC(), traceID, actor, action, nullString(target), payloadJSON, result, nullString(errorMsg))
	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

const auditColumns = `id, ts, trace_id, actor, action, target, payload_json, result, error_message`

// GetAuditLog returns the most recent entries, newest first.
func (s *Store) GetAuditLog(ctx context.Context, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryAudit(ctx, `SELECT `+auditColumns+` FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
}

// GetAuditByTrace returns every entry for a trace ID in the order written.
func (s *Store) GetAuditByTrace(ctx context.Context, traceID string) ([]*AuditEntry, error) {
	return s.queryAudit(ctx, `SELECT `+auditColumns+` FROM audit_log WHERE trace_id = ? ORDER BY id ASC`, traceID)
}

// GetAuditByActor returns the most recent entries for one actor, newest first.
func (s *Store) GetAuditByActor(ctx context.Context, actor string, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryAudit(ctx, `SELECT `+auditColumns+` FROM audit_log WHERE actor = ? ORDER BY id DESC LIMIT ?`, actor, limit)
}

func (s *Store) queryAudit(ctx context.Context, query string, args ...any) ([]*AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		e := &AuditEntry{}
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.TraceID, &e.Actor,
			&e.Action, &e.Target, &e.PayloadJSON,
			&e.Result, &e.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
