package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/usecase"
)

// QueueRepository implements usecase.SyncQueue.
type QueueRepository struct {
	db    *sql.DB
	idGen usecase.IDGenerator
	now   func() time.Time
}

// NewQueueRepository creates a new QueueRepository.
func NewQueueRepository(db *sql.DB, idGen usecase.IDGenerator) *QueueRepository {
	return &QueueRepository{db: db, idGen: idGen, now: time.Now}
}

// Enqueue appends m to the queue.
func (r *QueueRepository) Enqueue(ctx context.Context, m domain.Mutation) (*domain.SyncQueueItem, error) {
	payload, err := domain.EncodeMutation(m)
	if err != nil {
		return nil, err
	}

	item := &domain.SyncQueueItem{
		ID:        r.idGen.Generate(),
		Entity:    m.Entity(),
		Operation: m.Operation(),
		Kind:      m.Kind(),
		Mutation:  m,
		CreatedAt: r.now().UTC(),
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_queue (id, entity, operation, kind, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, item.ID, string(item.Entity), string(item.Operation), string(item.Kind), payload, item.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", item.Kind, err)
	}

	item.Seq, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", item.Kind, err)
	}

	return item, nil
}

// List returns every queued item in enqueue order. Items whose payload no
// longer decodes are returned with a nil Mutation.
func (r *QueueRepository) List(ctx context.Context) ([]*domain.SyncQueueItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT seq, id, entity, operation, kind, payload, created_at, attempts, last_error
		FROM sync_queue
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("list sync queue: %w", err)
	}
	defer rows.Close()

	var items []*domain.SyncQueueItem
	for rows.Next() {
		var (
			item                    domain.SyncQueueItem
			entity, operation, kind string
			payload                 []byte
			createdAt               int64
		)
		if err := rows.Scan(&item.Seq, &item.ID, &entity, &operation, &kind, &payload, &createdAt, &item.Attempts, &item.LastError); err != nil {
			return nil, fmt.Errorf("scan sync queue: %w", err)
		}
		item.Entity = domain.Entity(entity)
		item.Operation = domain.Operation(operation)
		item.Kind = domain.MutationKind(kind)
		item.CreatedAt = time.Unix(0, createdAt).UTC()

		m, err := domain.DecodeMutation(payload)
		if err != nil {
			item.LastError = err.Error()
		} else {
			item.Mutation = m
		}
		items = append(items, &item)
	}

	return items, rows.Err()
}

// Remove deletes a settled item.
func (r *QueueRepository) Remove(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove queue item %s: %w", id, err)
	}
	return nil
}

// MarkFailed records a failed replay attempt on an item that stays queued.
func (r *QueueRepository) MarkFailed(ctx context.Context, id string, lastErr string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		lastErr, id,
	); err != nil {
		return fmt.Errorf("mark queue item %s failed: %w", id, err)
	}
	return nil
}

// Count returns the queue depth.
func (r *QueueRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sync queue: %w", err)
	}
	return n, nil
}
