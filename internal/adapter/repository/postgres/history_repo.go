package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/usecase"
)

// BalanceHistoryRepository implements usecase.BalanceHistoryRepository.
type BalanceHistoryRepository struct {
	db querier
}

// NewBalanceHistoryRepository creates a new BalanceHistoryRepository.
func NewBalanceHistoryRepository(db querier) *BalanceHistoryRepository {
	return &BalanceHistoryRepository{db: db}
}

// ListByAccount lists an account's history, newest first.
func (r *BalanceHistoryRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.BalanceHistoryRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, account_id, amount, kind, balance_after, created_at
		FROM balance_history
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		return nil, mapError("list balance history", err, nil)
	}
	defer rows.Close()

	var records []*domain.BalanceHistoryRecord
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, mapError("scan balance history", err, nil)
		}
		records = append(records, rec)
	}
	return records, mapError("list balance history", rows.Err(), nil)
}

// Upsert stores the record. Records are immutable, so a replayed insert is a
// no-op.
func (r *BalanceHistoryRepository) Upsert(ctx context.Context, tx usecase.Transaction, rec *domain.BalanceHistoryRecord) error {
	q, err := on(r.db, tx)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO balance_history (id, account_id, amount, kind, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.AccountID, rec.Amount, string(rec.Kind), rec.BalanceAfter, rec.CreatedAt)
	return mapError("insert balance history", err, nil)
}

func scanHistory(row pgx.Row) (*domain.BalanceHistoryRecord, error) {
	var (
		rec  domain.BalanceHistoryRecord
		kind string
	)
	if err := row.Scan(&rec.ID, &rec.AccountID, &rec.Amount, &kind, &rec.BalanceAfter, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Kind = domain.HistoryKind(kind)
	return &rec, nil
}
