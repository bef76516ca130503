package postgres

import (
	"context"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/usecase"
)

// SettingsRepository implements usecase.SettingsRepository.
type SettingsRepository struct {
	db querier
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db querier) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get retrieves one setting.
func (r *SettingsRepository) Get(ctx context.Context, key string) (*domain.Setting, error) {
	var s domain.Setting
	err := r.db.QueryRow(ctx, `SELECT key, value, updated_at FROM settings WHERE key = $1`, key).
		Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if err != nil {
		return nil, mapError("get setting", err, domain.ErrSettingNotFound)
	}
	return &s, nil
}

// List returns every setting.
func (r *SettingsRepository) List(ctx context.Context) ([]*domain.Setting, error) {
	rows, err := r.db.Query(ctx, `SELECT key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, mapError("list settings", err, nil)
	}
	defer rows.Close()

	var settings []*domain.Setting
	for rows.Next() {
		var s domain.Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, mapError("scan setting", err, nil)
		}
		settings = append(settings, &s)
	}
	return settings, mapError("list settings", rows.Err(), nil)
}

// Upsert writes a setting.
func (r *SettingsRepository) Upsert(ctx context.Context, tx usecase.Transaction, s *domain.Setting) error {
	q, err := on(r.db, tx)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		s.Key, s.Value, s.UpdatedAt)
	return mapError("upsert setting", err, nil)
}
