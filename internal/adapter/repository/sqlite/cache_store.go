// Package sqlite implements the local cache and sync queue ports on the
// embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/usecase"
)

// Collection implements usecase.Collection for one record type. Records are
// stored as JSON in cache_records, keyed by (collection, id).
type Collection[T domain.Record] struct {
	db   *sql.DB
	name string
	now  func() time.Time
}

// NewCollection creates a collection stored under name.
func NewCollection[T domain.Record](db *sql.DB, name string) *Collection[T] {
	return &Collection[T]{db: db, name: name, now: time.Now}
}

// NewLocalCache wires one collection per cached record type. Collection names
// match the remote table names.
func NewLocalCache(db *sql.DB) usecase.LocalCache {
	return usecase.LocalCache{
		Accounts:   NewCollection[*domain.Account](db, domain.CollectionAccounts),
		Entries:    NewCollection[*domain.Entry](db, domain.CollectionEntries),
		History:    NewCollection[*domain.BalanceHistoryRecord](db, domain.CollectionBalanceHistory),
		Deductions: NewCollection[*domain.AdminDeduction](db, domain.CollectionDeductions),
		Settings:   NewCollection[*domain.Setting](db, domain.CollectionSettings),
	}
}

// PutMany upserts records in a single transaction.
func (c *Collection[T]) PutMany(ctx context.Context, records []T) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cache_records (collection, id, account_id, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			account_id = excluded.account_id,
			data       = excluded.data,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare cache write: %w", err)
	}
	defer stmt.Close()

	now := c.now().UnixNano()
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", c.name, rec.RecordID(), err)
		}
		if _, err := stmt.ExecContext(ctx, c.name, rec.RecordID(), rec.RecordAccountID(), data, now); err != nil {
			return fmt.Errorf("write %s/%s: %w", c.name, rec.RecordID(), err)
		}
	}

	return tx.Commit()
}

// Get returns the record with id. The bool is false when it is not cached.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T

	var data []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT data FROM cache_records WHERE collection = ? AND id = ?`,
		c.name, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("read %s/%s: %w", c.name, id, err)
	}

	rec, err := c.decode(data)
	if err != nil {
		return zero, false, err
	}
	return rec, true, nil
}

// Query returns the records matching filter and match, ordered by id. A nil
// match accepts every record.
func (c *Collection[T]) Query(ctx context.Context, filter usecase.CacheFilter, match func(T) bool) ([]T, error) {
	query := `SELECT data FROM cache_records WHERE collection = ?`
	args := []any{c.name}
	if filter.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, filter.AccountID)
	}
	query += ` ORDER BY id`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.name, err)
	}
	defer rows.Close()

	var result []T
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c.name, err)
		}
		rec, err := c.decode(data)
		if err != nil {
			return nil, err
		}
		if match == nil || match(rec) {
			result = append(result, rec)
		}
	}
	return result, rows.Err()
}

// Delete removes the records with the given ids. Missing ids are ignored.
func (c *Collection[T]) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache delete: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cache_records WHERE collection = ? AND id = ?`, c.name, id,
		); err != nil {
			return fmt.Errorf("delete %s/%s: %w", c.name, id, err)
		}
	}
	return tx.Commit()
}

// Clear removes every record of the collection.
func (c *Collection[T]) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_records WHERE collection = ?`, c.name); err != nil {
		return fmt.Errorf("clear %s: %w", c.name, err)
	}
	return nil
}

func (c *Collection[T]) decode(data []byte) (T, error) {
	var rec T
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode %s record: %w", c.name, err)
	}
	return rec, nil
}
