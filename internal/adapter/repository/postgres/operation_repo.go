package postgres

import (
	"context"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/usecase"
)

// OperationLog records applied queue operations in applied_operations.
type OperationLog struct {
	db querier
}

// NewOperationLog creates a new OperationLog.
func NewOperationLog(db querier) *OperationLog {
	return &OperationLog{db: db}
}

// MarkApplied inserts opID. domain.ErrAlreadyApplied means a committed
// transaction already recorded it.
func (r *OperationLog) MarkApplied(ctx context.Context, tx usecase.Transaction, opID string, kind domain.MutationKind) error {
	q, err := on(r.db, tx)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `
		INSERT INTO applied_operations (op_id, kind) VALUES ($1, $2)
		ON CONFLICT (op_id) DO NOTHING`,
		opID, string(kind))
	if err != nil {
		return mapError("mark operation applied", err, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyApplied
	}
	return nil
}

// NewRemoteStore wires every repository over one pool.
func NewRemoteStore(pool DB) usecase.RemoteStore {
	return usecase.RemoteStore{
		Tx:         NewTxManager(pool),
		Accounts:   NewAccountRepository(pool),
		Entries:    NewEntryRepository(pool),
		History:    NewBalanceHistoryRepository(pool),
		Deductions: NewDeductionRepository(pool),
		Settings:   NewSettingsRepository(pool),
		Audit:      NewAuditRepository(pool),
		Operations: NewOperationLog(pool),
	}
}
