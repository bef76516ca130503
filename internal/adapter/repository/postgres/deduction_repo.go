package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/usecase"
)

// DeductionRepository implements usecase.DeductionRepository.
type DeductionRepository struct {
	db querier
}

// NewDeductionRepository creates a new DeductionRepository.
func NewDeductionRepository(db querier) *DeductionRepository {
	return &DeductionRepository{db: db}
}

// ListByAccount lists every deduction against an account's entries.
func (r *DeductionRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.AdminDeduction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, entry_id, account_id, admin_id, deducted_first, deducted_second, kind, metadata, created_at
		FROM admin_deductions
		WHERE account_id = $1
		ORDER BY created_at`,
		accountID)
	if err != nil {
		return nil, mapError("list deductions", err, nil)
	}
	defer rows.Close()

	var deductions []*domain.AdminDeduction
	for rows.Next() {
		d, err := scanDeduction(rows)
		if err != nil {
			return nil, mapError("scan deduction", err, nil)
		}
		deductions = append(deductions, d)
	}
	return deductions, mapError("list deductions", rows.Err(), nil)
}

// Upsert stores the deduction. A deduction for an entry that no longer exists
// fails with a not-found error.
func (r *DeductionRepository) Upsert(ctx context.Context, tx usecase.Transaction, d *domain.AdminDeduction) error {
	q, err := on(r.db, tx)
	if err != nil {
		return err
	}
	metadata, err := encodeJSON(d.Metadata)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO admin_deductions (id, entry_id, account_id, admin_id, deducted_first, deducted_second, kind, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			deducted_first = EXCLUDED.deducted_first,
			deducted_second = EXCLUDED.deducted_second,
			kind = EXCLUDED.kind,
			metadata = EXCLUDED.metadata`,
		d.ID, d.EntryID, d.AccountID, d.AdminID, d.DeductedFirst, d.DeductedSecond, string(d.Kind), metadata, d.CreatedAt)
	return mapError("upsert deduction", err, nil)
}

// Delete removes one deduction.
func (r *DeductionRepository) Delete(ctx context.Context, tx usecase.Transaction, id string) error {
	return r.exec(ctx, tx, "delete deduction", `DELETE FROM admin_deductions WHERE id = $1`, id)
}

// DeleteByEntry removes the deductions of one entry.
func (r *DeductionRepository) DeleteByEntry(ctx context.Context, tx usecase.Transaction, entryID string) error {
	return r.exec(ctx, tx, "delete entry deductions", `DELETE FROM admin_deductions WHERE entry_id = $1`, entryID)
}

// DeleteByAccount removes the deductions of every entry of an account.
func (r *DeductionRepository) DeleteByAccount(ctx context.Context, tx usecase.Transaction, accountID string) error {
	return r.exec(ctx, tx, "delete account deductions", `DELETE FROM admin_deductions WHERE account_id = $1`, accountID)
}

func (r *DeductionRepository) exec(ctx context.Context, tx usecase.Transaction, op, sql string, arg string) error {
	q, err := on(r.db, tx)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, sql, arg)
	return mapError(op, err, nil)
}

func scanDeduction(row pgx.Row) (*domain.AdminDeduction, error) {
	var (
		d        domain.AdminDeduction
		kind     string
		metadata []byte
	)
	err := row.Scan(&d.ID, &d.EntryID, &d.AccountID, &d.AdminID, &d.DeductedFirst, &d.DeductedSecond, &kind, &metadata, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Kind = domain.DeductionKind(kind)
	if d.Metadata, err = decodeJSON(metadata); err != nil {
		return nil, err
	}
	return &d, nil
}

// encodeJSON returns nil for empty metadata so the column stays NULL.
func encodeJSON(v domain.JSON) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return data, nil
}

func decodeJSON(data []byte) (domain.JSON, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var v domain.JSON
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return v, nil
}
