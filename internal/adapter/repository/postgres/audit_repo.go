package postgres

import (
	"context"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/usecase"
)

// AuditRepository implements admin action log persistence.
type AuditRepository struct {
	db querier
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db querier) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts a new admin action log entry. A replayed insert is a no-op.
func (r *AuditRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.AdminActionLogEntry) error {
	q, err := on(r.db, tx)
	if err != nil {
		return err
	}
	metadata, err := encodeJSON(entry.Metadata)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO admin_action_logs (id, admin_id, target_account_id, action_type, description, metadata, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		entry.ID,
		entry.AdminID,
		entry.TargetAccountID,
		string(entry.ActionType),
		entry.Description,
		metadata,
		entry.CreatedAt,
	)
	return mapError("insert admin action log", err, nil)
}

// ListByAccount lists the actions that targeted an account, newest first. An
// empty accountID lists the actions without a target account.
func (r *AuditRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.AdminActionLogEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, admin_id, COALESCE(target_account_id, ''), action_type, description, metadata, created_at
		FROM admin_action_logs
		WHERE COALESCE(target_account_id, '') = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		return nil, mapError("list admin action logs", err, nil)
	}
	defer rows.Close()

	var logs []*domain.AdminActionLogEntry
	for rows.Next() {
		var (
			entry      domain.AdminActionLogEntry
			actionType string
			metadata   []byte
		)
		err := rows.Scan(&entry.ID, &entry.AdminID, &entry.TargetAccountID, &actionType, &entry.Description, &metadata, &entry.CreatedAt)
		if err != nil {
			return nil, mapError("scan admin action log", err, nil)
		}
		entry.ActionType = domain.AdminActionType(actionType)
		if entry.Metadata, err = decodeJSON(metadata); err != nil {
			return nil, err
		}
		logs = append(logs, &entry)
	}
	return logs, mapError("list admin action logs", rows.Err(), nil)
}
