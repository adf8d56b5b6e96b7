package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/engify/obo-gateway/internal/domain"
	"github.com/engify/obo-gateway/internal/events"
	"github.com/engify/obo-gateway/internal/repository"
)

// StartAuditWorker subscribes the audit repository to exchange events. Writes
// are best-effort: failures are logged and never propagate to the exchange.
func StartAuditWorker(dispatcher events.Dispatcher, repo repository.AuditRepository, logger *zap.Logger) {
	if dispatcher == nil || repo == nil {
		return
	}
	dispatcher.Subscribe(events.EventTokenExchange, func(ctx context.Context, event domain.AuditEvent) error {
		if err := repo.Insert(ctx, &event); err != nil {
			logger.Error("audit event insert failed",
				zap.String("event_id", event.ID),
				zap.Error(err))
			return err
		}
		return nil
	})
}
