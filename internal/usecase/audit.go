package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/infrastructure/metrics"
)

// AuditLogger records admin actions. Logging is best effort: a failure is
// logged and never returned to the caller.
type AuditLogger struct {
	sync    *SyncUseCase
	idGen   IDGenerator
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewAuditLogger creates a new AuditLogger.
func NewAuditLogger(sync *SyncUseCase, idGen IDGenerator, logger zerolog.Logger, metrics *metrics.Metrics) *AuditLogger {
	return &AuditLogger{sync: sync, idGen: idGen, logger: logger, metrics: metrics}
}

// Log queues an audit record of action by actor against targetAccountID.
func (a *AuditLogger) Log(ctx context.Context, actor domain.Actor, targetAccountID string, action domain.AdminActionType, description string, metadata domain.JSON) {
	if a == nil {
		return
	}

	entry := &domain.AdminActionLogEntry{
		ID:              a.idGen.Generate(),
		AdminID:         actor.ID,
		TargetAccountID: targetAccountID,
		ActionType:      action,
		Description:     description,
		Metadata:        metadata,
		CreatedAt:       time.Now().UTC(),
	}

	status := "queued"
	if err := a.sync.Submit(ctx, domain.AdminActionLogged{Entry: entry}, nil); err != nil {
		status = "failed"
		a.logger.Warn().
			Err(err).
			Str("admin_id", actor.ID).
			Str("target_account_id", targetAccountID).
			Str("action", string(action)).
			Msg("failed to record admin action")
	}

	if a.metrics != nil {
		a.metrics.AuditLogsCreated.WithLabelValues(string(action), status).Inc()
	}
}

// List returns the audit trail of an account, newest first. It needs the
// remote store.
func (a *AuditLogger) List(ctx context.Context, actor domain.Actor, accountID string, limit, offset int) ([]*domain.AdminActionLogEntry, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	limit, offset, _ = domain.ValidatePagination(limit, offset)

	var logs []*domain.AdminActionLogEntry
	err := a.sync.executor.Do(ctx, func(ctx context.Context) error {
		var err error
		logs, err = a.sync.remote.Audit.ListByAccount(ctx, accountID, limit, offset)
		return err
	})
	return logs, err
}
