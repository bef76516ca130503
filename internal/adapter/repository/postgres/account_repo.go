package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/usecase"
)

const accountColumns = `id, balance, amount_spent, active, role, tier, version, created_at, updated_at`

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	db querier
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db querier) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.get(ctx, r.db, id, "")
}

// GetByIDTx retrieves an account inside tx, locking the row until commit.
func (r *AccountRepository) GetByIDTx(ctx context.Context, tx usecase.Transaction, id string) (*domain.Account, error) {
	q, err := on(r.db, tx)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, q, id, " FOR UPDATE")
}

func (r *AccountRepository) get(ctx context.Context, q querier, id, lock string) (*domain.Account, error) {
	row := q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`+lock, id)
	acct, err := scanAccount(row)
	if err != nil {
		return nil, mapError("get account", err, domain.ErrAccountNotFound)
	}
	return acct, nil
}

// List lists accounts with pagination.
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, mapError("list accounts", err, nil)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, mapError("scan account", err, nil)
		}
		accounts = append(accounts, acct)
	}
	return accounts, mapError("list accounts", rows.Err(), nil)
}

// CompareAndSwap writes the balance fields if the stored version still equals
// expectedVersion and bumps the version.
func (r *AccountRepository) CompareAndSwap(ctx context.Context, tx usecase.Transaction, acct *domain.Account, expectedVersion int64) error {
	q, err := on(r.db, tx)
	if err != nil {
		return err
	}

	updatedAt := acct.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	tag, err := q.Exec(ctx, `
		UPDATE accounts
		SET balance = $2, amount_spent = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $5`,
		acct.ID, acct.Balance, acct.AmountSpent, updatedAt, expectedVersion)
	if err != nil {
		return mapError("update account", err, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}

	acct.Version = expectedVersion + 1
	acct.UpdatedAt = updatedAt
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a          domain.Account
		role, tier string
	)
	if err := row.Scan(&a.ID, &a.Balance, &a.AmountSpent, &a.Active, &role, &tier, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Role = domain.Role(role)
	a.Tier = domain.Tier(tier)
	return &a, nil
}
