package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/infrastructure/metrics"
)

// LedgerUseCase is the only writer of account balances and amount spent.
// Mutations on one account are serialized locally; the remote applies each
// one with a compare-and-swap on the account version.
type LedgerUseCase struct {
	cache   LocalCache
	remote  RemoteStore
	sync    *SyncUseCase
	audit   *AuditLogger
	idGen   IDGenerator
	metrics *metrics.Metrics
	locks   *keyedMutex
}

// NewLedgerUseCase creates a new LedgerUseCase.
func NewLedgerUseCase(
	cache LocalCache,
	remote RemoteStore,
	sync *SyncUseCase,
	audit *AuditLogger,
	idGen IDGenerator,
	metrics *metrics.Metrics,
) *LedgerUseCase {
	return &LedgerUseCase{
		cache:   cache,
		remote:  remote,
		sync:    sync,
		audit:   audit,
		idGen:   idGen,
		metrics: metrics,
		locks:   newKeyedMutex(),
	}
}

// AdjustBalanceInput is the input of TopUp and Withdraw.
type AdjustBalanceInput struct {
	AccountID string
	Amount    int64
}

// BalanceResult is returned by TopUp and Withdraw.
type BalanceResult struct {
	Account *domain.Account
	Record  *domain.BalanceHistoryRecord
}

// GetAccount returns the best-known state of an account.
func (uc *LedgerUseCase) GetAccount(ctx context.Context, actor domain.Actor, accountID string) (*domain.Account, error) {
	if !actor.CanAccess(accountID) {
		return nil, domain.ErrForbidden
	}
	return uc.loadAccount(ctx, accountID)
}

// History returns the account's balance history, newest first.
func (uc *LedgerUseCase) History(ctx context.Context, actor domain.Actor, accountID string, limit int) ([]*domain.BalanceHistoryRecord, error) {
	if !actor.CanAccess(accountID) {
		return nil, domain.ErrForbidden
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	records, err := readList(ctx, uc.sync, listRead[*domain.BalanceHistoryRecord]{
		name:       domain.CollectionBalanceHistory,
		collection: uc.cache.History,
		filter:     CacheFilter{AccountID: accountID},
		key:        func(r *domain.BalanceHistoryRecord) string { return domain.HistoryKey(r.ID) },
		remote: func(ctx context.Context) ([]*domain.BalanceHistoryRecord, error) {
			return uc.remote.History.ListByAccount(ctx, accountID, limit, 0)
		},
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// TopUp credits an account and appends a top-up history record.
func (uc *LedgerUseCase) TopUp(ctx context.Context, actor domain.Actor, input AdjustBalanceInput) (*BalanceResult, error) {
	return uc.adjustBalance(ctx, actor, input, domain.HistoryKindTopUp)
}

// Withdraw debits an account and appends a withdrawal history record. It
// fails with domain.ErrInsufficientBalance, changing nothing, when the
// best-known balance is below the amount.
func (uc *LedgerUseCase) Withdraw(ctx context.Context, actor domain.Actor, input AdjustBalanceInput) (*BalanceResult, error) {
	return uc.adjustBalance(ctx, actor, input, domain.HistoryKindWithdrawal)
}

func (uc *LedgerUseCase) adjustBalance(ctx context.Context, actor domain.Actor, input AdjustBalanceInput, kind domain.HistoryKind) (*BalanceResult, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return nil, err
	}

	amount := input.Amount
	action := domain.AdminActionTopUp
	if kind == domain.HistoryKindWithdrawal {
		amount = -amount
		action = domain.AdminActionWithdraw
	}

	record := &domain.BalanceHistoryRecord{
		ID:        uc.idGen.Generate(),
		AccountID: input.AccountID,
		Amount:    amount,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}

	acct, err := uc.commit(ctx, string(kind), input.AccountID, func(*domain.Account) (domain.AccountDelta, error) {
		return domain.BalanceAdjusted{Record: record}, nil
	})
	if err != nil {
		return nil, err
	}

	uc.audit.Log(ctx, actor, input.AccountID, action,
		fmt.Sprintf("%s of %d", kind, input.Amount),
		domain.JSON{"amount": input.Amount, "balance_after": acct.Balance, "record_id": record.ID})

	return &BalanceResult{Account: acct, Record: record}, nil
}

// ResetSpent zeroes amount spent without touching the balance.
func (uc *LedgerUseCase) ResetSpent(ctx context.Context, actor domain.Actor, accountID string) (*domain.Account, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}

	var previous int64
	acct, err := uc.commit(ctx, "reset_spent", accountID, func(acct *domain.Account) (domain.AccountDelta, error) {
		previous = acct.AmountSpent
		return domain.SpentReset{AccountID: accountID, PreviousSpent: previous}, nil
	})
	if err != nil {
		return nil, err
	}

	uc.audit.Log(ctx, actor, accountID, domain.AdminActionResetSpent, "amount spent reset",
		domain.JSON{"previous_spent": previous})
	return acct, nil
}

// ResetHistory deletes every entry of the account together with their
// deductions and re-zeroes amount spent. The balance is unchanged.
func (uc *LedgerUseCase) ResetHistory(ctx context.Context, actor domain.Actor, accountID string) (*domain.Account, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}

	var removed int
	acct, err := uc.commit(ctx, "reset_history", accountID, func(acct *domain.Account) (domain.AccountDelta, error) {
		entries, deductions, err := uc.accountEntries(ctx, accountID)
		if err != nil {
			return nil, err
		}
		removed = len(entries)
		return domain.HistoryReset{
			AccountID:     accountID,
			Entries:       entries,
			Deductions:    deductions,
			PreviousSpent: acct.AmountSpent,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	uc.audit.Log(ctx, actor, accountID, domain.AdminActionResetHistory, "entry history reset",
		domain.JSON{"entries_removed": removed})
	return acct, nil
}

// RepairSpent recomputes amount spent as the sum of the account's entry
// totals. The remote recomputes it from its own entries on replay.
func (uc *LedgerUseCase) RepairSpent(ctx context.Context, actor domain.Actor, accountID string) (*domain.Account, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}

	var previous, spent int64
	acct, err := uc.commit(ctx, "repair_spent", accountID, func(acct *domain.Account) (domain.AccountDelta, error) {
		entries, _, err := uc.accountEntries(ctx, accountID)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			spent += e.Total()
		}
		previous = acct.AmountSpent
		return domain.SpentRepaired{AccountID: accountID, Spent: spent, PreviousSpent: previous}, nil
	})
	if err != nil {
		return nil, err
	}

	uc.audit.Log(ctx, actor, accountID, domain.AdminActionRepairSpent, "amount spent recomputed",
		domain.JSON{"previous_spent": previous, "spent": spent})
	return acct, nil
}

// commit runs one ledger operation: it loads the best-known account, builds
// the mutation, applies its math to a copy, then queues the mutation and
// writes the cache. A validation failure or a failed queue write leaves cache
// and queue untouched.
func (uc *LedgerUseCase) commit(
	ctx context.Context,
	operation string,
	accountID string,
	build func(acct *domain.Account) (domain.AccountDelta, error),
) (*domain.Account, error) {
	unlock := uc.locks.Lock(accountID)
	defer unlock()

	acct, err := uc.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	m, err := build(acct)
	if err != nil {
		uc.reject(operation, err)
		return nil, err
	}

	next := acct.Clone()
	if err := m.ApplyTo(next); err != nil {
		uc.reject(operation, err)
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	if adj, ok := m.(domain.BalanceAdjusted); ok {
		adj.Record.BalanceAfter = next.Balance
	}

	err = uc.sync.Submit(ctx, m, func(ctx context.Context) error {
		if err := uc.applyLocal(ctx, next, m); err != nil {
			return err
		}
		uc.sync.publish(ctx, domain.BalanceUpdated{AccountID: next.ID, Balance: next.Balance})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.LedgerOperations.WithLabelValues(operation).Inc()
		uc.metrics.AccountBalance.WithLabelValues(next.ID).Set(float64(next.Balance))
	}
	return next, nil
}

// applyLocal writes the optimistic effects of m to the cache, records first
// and the account last.
func (uc *LedgerUseCase) applyLocal(ctx context.Context, acct *domain.Account, m domain.AccountDelta) error {
	var err error
	switch v := m.(type) {
	case domain.EntryCreated:
		err = uc.cache.Entries.PutMany(ctx, []*domain.Entry{v.Entry})
	case domain.EntryUpdated:
		err = uc.cache.Entries.PutMany(ctx, []*domain.Entry{v.Entry})
	case domain.EntryDeleted:
		err = errors.Join(
			uc.cache.Deductions.Delete(ctx, deductionIDs(v.Deductions)...),
			uc.cache.Entries.Delete(ctx, v.Entry.ID),
		)
	case domain.BalanceAdjusted:
		err = uc.cache.History.PutMany(ctx, []*domain.BalanceHistoryRecord{v.Record})
	case domain.HistoryReset:
		ids := make([]string, 0, len(v.Entries))
		for _, e := range v.Entries {
			ids = append(ids, e.ID)
		}
		err = errors.Join(
			uc.cache.Deductions.Delete(ctx, deductionIDs(v.Deductions)...),
			uc.cache.Entries.Delete(ctx, ids...),
		)
	}
	if err != nil {
		return err
	}
	return uc.cache.Accounts.PutMany(ctx, []*domain.Account{acct})
}

// loadAccount returns the best-known account.
func (uc *LedgerUseCase) loadAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	return readOne(ctx, uc.sync, oneRead[*domain.Account]{
		name:       domain.CollectionAccounts,
		collection: uc.cache.Accounts,
		id:         accountID,
		key:        domain.AccountKey(accountID),
		notFound:   domain.ErrAccountNotFound,
		remote: func(ctx context.Context) (*domain.Account, error) {
			return uc.remote.Accounts.GetByID(ctx, accountID)
		},
	})
}

// accountEntries returns the best-known entries of an account and the
// deductions that target them.
func (uc *LedgerUseCase) accountEntries(ctx context.Context, accountID string) ([]*domain.Entry, []*domain.AdminDeduction, error) {
	entries, err := listEntries(ctx, uc.sync, uc.cache, uc.remote, accountID)
	if err != nil {
		return nil, nil, err
	}
	deductions, err := listDeductions(ctx, uc.sync, uc.cache, uc.remote, accountID)
	if err != nil {
		return nil, nil, err
	}
	return entries, deductions, nil
}

func (uc *LedgerUseCase) reject(operation string, err error) {
	if uc.metrics == nil {
		return
	}
	reason := "error"
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		reason = "insufficient_balance"
	case errors.Is(err, domain.ErrValidation):
		reason = "validation"
	case errors.Is(err, domain.ErrNotFound):
		reason = "not_found"
	}
	uc.metrics.LedgerRejections.WithLabelValues(operation, reason).Inc()
}

func listEntries(ctx context.Context, s *SyncUseCase, cache LocalCache, remote RemoteStore, accountID string) ([]*domain.Entry, error) {
	return readList(ctx, s, listRead[*domain.Entry]{
		name:       domain.CollectionEntries,
		collection: cache.Entries,
		filter:     CacheFilter{AccountID: accountID},
		key:        func(e *domain.Entry) string { return domain.EntryKey(e.ID) },
		prune:      true,
		remote: func(ctx context.Context) ([]*domain.Entry, error) {
			return remote.Entries.ListByAccount(ctx, accountID)
		},
	})
}

func listDeductions(ctx context.Context, s *SyncUseCase, cache LocalCache, remote RemoteStore, accountID string) ([]*domain.AdminDeduction, error) {
	return readList(ctx, s, listRead[*domain.AdminDeduction]{
		name:       domain.CollectionDeductions,
		collection: cache.Deductions,
		filter:     CacheFilter{AccountID: accountID},
		key:        func(d *domain.AdminDeduction) string { return domain.DeductionKey(d.ID) },
		prune:      true,
		remote: func(ctx context.Context) ([]*domain.AdminDeduction, error) {
			return remote.Deductions.ListByAccount(ctx, accountID)
		},
	})
}

func deductionIDs(deductions []*domain.AdminDeduction) []string {
	ids := make([]string, 0, len(deductions))
	for _, d := range deductions {
		ids = append(ids, d.ID)
	}
	return ids
}
