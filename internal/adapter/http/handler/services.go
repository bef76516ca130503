package handler

import (
	"context"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/usecase"
)

// LedgerService is the balance ledger as the handlers use it.
type LedgerService interface {
	GetAccount(ctx context.Context, actor domain.Actor, accountID string) (*domain.Account, error)
	History(ctx context.Context, actor domain.Actor, accountID string, limit int) ([]*domain.BalanceHistoryRecord, error)
	TopUp(ctx context.Context, actor domain.Actor, input usecase.AdjustBalanceInput) (*usecase.BalanceResult, error)
	Withdraw(ctx context.Context, actor domain.Actor, input usecase.AdjustBalanceInput) (*usecase.BalanceResult, error)
	ResetSpent(ctx context.Context, actor domain.Actor, accountID string) (*domain.Account, error)
	ResetHistory(ctx context.Context, actor domain.Actor, accountID string) (*domain.Account, error)
	RepairSpent(ctx context.Context, actor domain.Actor, accountID string) (*domain.Account, error)
}

// EntryService handles entry writes and reads.
type EntryService interface {
	Create(ctx context.Context, actor domain.Actor, input usecase.CreateEntryInput) (*usecase.EntryResult, error)
	Update(ctx context.Context, actor domain.Actor, input usecase.UpdateEntryInput) (*usecase.EntryResult, error)
	Delete(ctx context.Context, actor domain.Actor, id string) (*domain.Account, error)
	Get(ctx context.Context, actor domain.Actor, id string) (*domain.Entry, error)
	List(ctx context.Context, actor domain.Actor, accountID string) ([]*domain.Entry, error)
}

// DeductionService handles the admin deduction overlay.
type DeductionService interface {
	Record(ctx context.Context, actor domain.Actor, input usecase.RecordDeductionInput) (*domain.AdminDeduction, error)
	Undo(ctx context.Context, actor domain.Actor, accountID, deductionID string) error
	AdminView(ctx context.Context, actor domain.Actor, accountID string) (*domain.AdminView, error)
}

// SettingsService reads and writes shared settings.
type SettingsService interface {
	Get(ctx context.Context, key string) (*domain.Setting, error)
	All() (map[string]string, error)
	Set(ctx context.Context, actor domain.Actor, key, value string) (*domain.Setting, error)
}

// SyncService exposes the sync queue.
type SyncService interface {
	IsOnline() bool
	Pending(ctx context.Context) ([]*domain.SyncQueueItem, error)
	Drain(ctx context.Context) (domain.DrainResult, error)
}

// AuditService lists admin actions.
type AuditService interface {
	List(ctx context.Context, actor domain.Actor, accountID string, limit, offset int) ([]*domain.AdminActionLogEntry, error)
}
