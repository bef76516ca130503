package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/usecase"
)

const entryColumns = `id, account_id, COALESCE(scope_id, ''), number, entry_type,
	first_amount, second_amount, COALESCE(notes, ''), created_at, updated_at`

// EntryRepository implements usecase.EntryRepository.
type EntryRepository struct {
	db querier
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(db querier) *EntryRepository {
	return &EntryRepository{db: db}
}

// GetByID retrieves an entry by ID.
func (r *EntryRepository) GetByID(ctx context.Context, id string) (*domain.Entry, error) {
	return r.get(ctx, r.db, id)
}

// GetByIDTx retrieves an entry inside tx.
func (r *EntryRepository) GetByIDTx(ctx context.Context, tx usecase.Transaction, id string) (*domain.Entry, error) {
	q, err := on(r.db, tx)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, q, id)
}

func (r *EntryRepository) get(ctx context.Context, q querier, id string) (*domain.Entry, error) {
	e, err := scanEntry(q.QueryRow(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = $1`, id))
	if err != nil {
		return nil, mapError("get entry", err, domain.ErrEntryNotFound)
	}
	return e, nil
}

// ListByAccount lists an account's entries, newest first.
func (r *EntryRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.Entry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE account_id = $1 ORDER BY created_at DESC`,
		accountID)
	if err != nil {
		return nil, mapError("list entries", err, nil)
	}
	defer rows.Close()

	var entries []*domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, mapError("scan entry", err, nil)
		}
		entries = append(entries, e)
	}
	return entries, mapError("list entries", rows.Err(), nil)
}

// SumTotalsTx sums first and second amounts over an account's entries.
func (r *EntryRepository) SumTotalsTx(ctx context.Context, tx usecase.Transaction, accountID string) (int64, error) {
	q, err := on(r.db, tx)
	if err != nil {
		return 0, err
	}
	var sum int64
	err = q.QueryRow(ctx,
		`SELECT COALESCE(SUM(first_amount + second_amount), 0)::BIGINT FROM entries WHERE account_id = $1`,
		accountID).Scan(&sum)
	return sum, mapError("sum entries", err, nil)
}

// Upsert inserts the entry or overwrites the stored one with the same id.
func (r *EntryRepository) Upsert(ctx context.Context, tx usecase.Transaction, e *domain.Entry) error {
	q, err := on(r.db, tx)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO entries (id, account_id, scope_id, number, entry_type, first_amount, second_amount, notes, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			scope_id = EXCLUDED.scope_id,
			number = EXCLUDED.number,
			entry_type = EXCLUDED.entry_type,
			first_amount = EXCLUDED.first_amount,
			second_amount = EXCLUDED.second_amount,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at`,
		e.ID, e.AccountID, e.ScopeID, e.Number, string(e.Type),
		e.FirstAmount, e.SecondAmount, e.Notes, e.CreatedAt, e.UpdatedAt)
	return mapError("upsert entry", err, nil)
}

// Delete removes an entry. Its deductions go with it.
func (r *EntryRepository) Delete(ctx context.Context, tx usecase.Transaction, id string) error {
	q, err := on(r.db, tx)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `DELETE FROM entries WHERE id = $1`, id)
	return mapError("delete entry", err, nil)
}

// DeleteByAccount removes every entry of an account.
func (r *EntryRepository) DeleteByAccount(ctx context.Context, tx usecase.Transaction, accountID string) error {
	q, err := on(r.db, tx)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `DELETE FROM entries WHERE account_id = $1`, accountID)
	return mapError("delete entries", err, nil)
}

func scanEntry(row pgx.Row) (*domain.Entry, error) {
	var (
		e         domain.Entry
		entryType string
	)
	err := row.Scan(&e.ID, &e.AccountID, &e.ScopeID, &e.Number, &entryType,
		&e.FirstAmount, &e.SecondAmount, &e.Notes, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Type = domain.EntryType(entryType)
	return &e, nil
}
