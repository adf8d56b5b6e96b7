package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engify/obo-gateway/internal/domain"
)

// AuditRepository appends exchange audit events.
type AuditRepository interface {
	Insert(ctx context.Context, event *domain.AuditEvent) error
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository constructs repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Insert(ctx context.Context, event *domain.AuditEvent) error {
	const query = `
        INSERT INTO audit_events (id, event_type, user_id, target_audience, scope, success, error_code, occurred_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		string(event.Type),
		event.UserID,
		event.TargetAudience,
		event.Scope,
		event.Success,
		event.ErrorCode,
		event.Timestamp,
	)
	return err
}
