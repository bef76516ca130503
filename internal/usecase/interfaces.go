package usecase

import (
	"context"
	"time"

	"github.com/iho/ledgersync/internal/domain"
)

// AccountRepository defines remote data access for accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByIDTx(ctx context.Context, tx Transaction, id string) (*domain.Account, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Account, error)
	// CompareAndSwap writes balance and amount spent only if the stored version
	// still equals expectedVersion, then bumps acct.Version. It returns
	// domain.ErrVersionConflict otherwise.
	CompareAndSwap(ctx context.Context, tx Transaction, acct *domain.Account, expectedVersion int64) error
}

// EntryRepository defines remote data access for entries.
type EntryRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Entry, error)
	GetByIDTx(ctx context.Context, tx Transaction, id string) (*domain.Entry, error)
	ListByAccount(ctx context.Context, accountID string) ([]*domain.Entry, error)
	SumTotalsTx(ctx context.Context, tx Transaction, accountID string) (int64, error)
	Upsert(ctx context.Context, tx Transaction, entry *domain.Entry) error
	Delete(ctx context.Context, tx Transaction, id string) error
	DeleteByAccount(ctx context.Context, tx Transaction, accountID string) error
}

// BalanceHistoryRepository defines remote data access for balance history.
type BalanceHistoryRepository interface {
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.BalanceHistoryRecord, error)
	Upsert(ctx context.Context, tx Transaction, record *domain.BalanceHistoryRecord) error
}

// DeductionRepository defines remote data access for admin deductions.
type DeductionRepository interface {
	ListByAccount(ctx context.Context, accountID string) ([]*domain.AdminDeduction, error)
	Upsert(ctx context.Context, tx Transaction, deduction *domain.AdminDeduction) error
	Delete(ctx context.Context, tx Transaction, id string) error
	DeleteByEntry(ctx context.Context, tx Transaction, entryID string) error
	DeleteByAccount(ctx context.Context, tx Transaction, accountID string) error
}

// SettingsRepository defines remote data access for settings.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (*domain.Setting, error)
	List(ctx context.Context) ([]*domain.Setting, error)
	Upsert(ctx context.Context, tx Transaction, setting *domain.Setting) error
}

// AuditRepository defines remote data access for admin action logs.
type AuditRepository interface {
	Create(ctx context.Context, tx Transaction, entry *domain.AdminActionLogEntry) error
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.AdminActionLogEntry, error)
}

// OperationLog records which queued operations the remote has applied.
type OperationLog interface {
	// MarkApplied returns domain.ErrAlreadyApplied when opID was recorded by
	// an earlier, committed transaction.
	MarkApplied(ctx context.Context, tx Transaction, opID string, kind domain.MutationKind) error
}

// ChangeFeed streams remote row changes.
type ChangeFeed interface {
	// Subscribe calls handler for every change in collection. An empty
	// accountID receives changes for every account. The returned function
	// stops the subscription and waits for it to exit.
	Subscribe(ctx context.Context, collection, accountID string, handler func(domain.ChangeEvent)) (func(), error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier re-runs an operation that failed on a write conflict.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// RemoteStore groups the ports of the authoritative store.
type RemoteStore struct {
	Tx         TransactionManager
	Accounts   AccountRepository
	Entries    EntryRepository
	History    BalanceHistoryRepository
	Deductions DeductionRepository
	Settings   SettingsRepository
	Audit      AuditRepository
	Operations OperationLog
}

// CacheFilter narrows a cache query. An empty AccountID matches every record.
type CacheFilter struct {
	AccountID string
}

// Collection is one named collection of the local cache. Writes are
// last-write-wins per record id.
type Collection[T domain.Record] interface {
	PutMany(ctx context.Context, records []T) error
	Get(ctx context.Context, id string) (T, bool, error)
	Query(ctx context.Context, filter CacheFilter, match func(T) bool) ([]T, error)
	Delete(ctx context.Context, ids ...string) error
	Clear(ctx context.Context) error
}

// LocalCache is the durable local copy of remote state.
type LocalCache struct {
	Accounts   Collection[*domain.Account]
	Entries    Collection[*domain.Entry]
	History    Collection[*domain.BalanceHistoryRecord]
	Deductions Collection[*domain.AdminDeduction]
	Settings   Collection[*domain.Setting]
}

// SyncQueue is the durable FIFO of mutations awaiting remote confirmation.
type SyncQueue interface {
	Enqueue(ctx context.Context, m domain.Mutation) (*domain.SyncQueueItem, error)
	List(ctx context.Context) ([]*domain.SyncQueueItem, error)
	Remove(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, lastErr string) error
	Count(ctx context.Context) (int, error)
}

// RemoteExecutor runs a remote call, retrying transient failures.
type RemoteExecutor interface {
	Do(ctx context.Context, op func(ctx context.Context) error) error
}

// Connectivity reports whether the remote store is reachable.
type Connectivity interface {
	IsOnline() bool
}

// Broadcaster fans an event out to local listeners and other sessions.
type Broadcaster interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a claimed key so the request can be retried.
	Release(ctx context.Context, key string) error
}
