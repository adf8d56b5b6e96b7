package domain

import "time"

// AuditEventType enumerates supported audit event identifiers.
type AuditEventType string

const (
	AuditTokenExchange AuditEventType = "token_exchange"
)

// AuditEvent records one delegated-token operation, successful or denied.
// Events are append-only and each one is an independent insert.
type AuditEvent struct {
	ID             string         `json:"id"`
	Type           AuditEventType `json:"type"`
	UserID         string         `json:"user_id"`
	TargetAudience string         `json:"target_audience"`
	Scope          string         `json:"scope"`
	Success        bool           `json:"success"`
	ErrorCode      string         `json:"error_code,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}
