package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/iho/ledgersync/internal/domain"
)

// EntryUseCase handles entry creation, edits and deletion. Each write is a
// ledger operation on the owning account.
type EntryUseCase struct {
	ledger *LedgerUseCase
}

// NewEntryUseCase creates a new EntryUseCase.
func NewEntryUseCase(ledger *LedgerUseCase) *EntryUseCase {
	return &EntryUseCase{ledger: ledger}
}

// CreateEntryInput is the input for creating an entry.
type CreateEntryInput struct {
	ID           string // optional, generated when empty
	AccountID    string
	ScopeID      string
	Number       string
	Type         domain.EntryType
	FirstAmount  int64
	SecondAmount int64
	Notes        string
}

// UpdateEntryInput is the input for editing an entry. Nil fields keep their
// current value.
type UpdateEntryInput struct {
	ID           string
	Number       *string
	Type         *domain.EntryType
	FirstAmount  *int64
	SecondAmount *int64
	Notes        *string
}

// EntryResult pairs an entry with the account state after the write.
type EntryResult struct {
	Entry   *domain.Entry
	Account *domain.Account
}

// Create stores a new entry and charges its total to the account.
func (uc *EntryUseCase) Create(ctx context.Context, actor domain.Actor, input CreateEntryInput) (*EntryResult, error) {
	if !actor.CanAccess(input.AccountID) {
		return nil, domain.ErrForbidden
	}

	now := time.Now().UTC()
	entry := &domain.Entry{
		ID:           input.ID,
		AccountID:    input.AccountID,
		ScopeID:      input.ScopeID,
		Number:       strings.TrimSpace(input.Number),
		Type:         input.Type,
		FirstAmount:  input.FirstAmount,
		SecondAmount: input.SecondAmount,
		Notes:        input.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if entry.ID == "" {
		entry.ID = uc.ledger.idGen.Generate()
	}
	if err := validateEntry(entry); err != nil {
		uc.ledger.reject("entry_create", err)
		return nil, err
	}

	acct, err := uc.ledger.commit(ctx, "entry_create", entry.AccountID, func(acct *domain.Account) (domain.AccountDelta, error) {
		if !acct.Active {
			return nil, domain.ErrAccountInactive
		}
		_, err := uc.ledger.loadEntry(ctx, entry.ID)
		switch {
		case err == nil:
			return nil, domain.ErrEntryExists
		case !errors.Is(err, domain.ErrEntryNotFound):
			return nil, err
		}
		return domain.EntryCreated{Entry: entry}, nil
	})
	if err != nil {
		return nil, err
	}
	return &EntryResult{Entry: entry, Account: acct}, nil
}

// Update edits an entry and moves the difference of the totals between
// balance and amount spent.
func (uc *EntryUseCase) Update(ctx context.Context, actor domain.Actor, input UpdateEntryInput) (*EntryResult, error) {
	current, err := uc.Get(ctx, actor, input.ID)
	if err != nil {
		return nil, err
	}

	var updated *domain.Entry
	acct, err := uc.ledger.commit(ctx, "entry_update", current.AccountID, func(*domain.Account) (domain.AccountDelta, error) {
		// Re-read under the account lock so concurrent edits chain.
		previous, err := uc.ledger.loadEntry(ctx, input.ID)
		if err != nil {
			return nil, err
		}

		updated = previous.Clone()
		if input.Number != nil {
			updated.Number = strings.TrimSpace(*input.Number)
		}
		if input.Type != nil {
			updated.Type = *input.Type
		}
		if input.FirstAmount != nil {
			updated.FirstAmount = *input.FirstAmount
		}
		if input.SecondAmount != nil {
			updated.SecondAmount = *input.SecondAmount
		}
		if input.Notes != nil {
			updated.Notes = *input.Notes
		}
		updated.UpdatedAt = time.Now().UTC()

		if err := validateEntry(updated); err != nil {
			return nil, err
		}
		return domain.EntryUpdated{Entry: updated, Previous: previous}, nil
	})
	if err != nil {
		return nil, err
	}

	if actor.Role.CanManageAccounts() && actor.ID != current.AccountID {
		uc.ledger.audit.Log(ctx, actor, current.AccountID, domain.AdminActionEntryUpdate,
			fmt.Sprintf("entry %s updated", updated.ID),
			domain.JSON{"entry_id": updated.ID, "previous_total": current.Total(), "total": updated.Total()})
	}
	return &EntryResult{Entry: updated, Account: acct}, nil
}

// Delete removes an entry, refunds its total and drops the deductions that
// targeted it.
func (uc *EntryUseCase) Delete(ctx context.Context, actor domain.Actor, id string) (*domain.Account, error) {
	current, err := uc.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	acct, err := uc.ledger.commit(ctx, "entry_delete", current.AccountID, func(*domain.Account) (domain.AccountDelta, error) {
		entry, err := uc.ledger.loadEntry(ctx, id)
		if err != nil {
			return nil, err
		}
		deductions, err := listDeductions(ctx, uc.ledger.sync, uc.ledger.cache, uc.ledger.remote, entry.AccountID)
		if err != nil {
			return nil, err
		}
		var own []*domain.AdminDeduction
		for _, d := range deductions {
			if d.EntryID == entry.ID {
				own = append(own, d)
			}
		}
		return domain.EntryDeleted{Entry: entry, Deductions: own}, nil
	})
	if err != nil {
		return nil, err
	}

	if actor.Role.CanManageAccounts() && actor.ID != current.AccountID {
		uc.ledger.audit.Log(ctx, actor, current.AccountID, domain.AdminActionEntryDelete,
			fmt.Sprintf("entry %s deleted", id),
			domain.JSON{"entry_id": id, "total": current.Total()})
	}
	return acct, nil
}

// Get returns the best-known copy of an entry.
func (uc *EntryUseCase) Get(ctx context.Context, actor domain.Actor, id string) (*domain.Entry, error) {
	entry, err := uc.ledger.loadEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(entry.AccountID) {
		return nil, domain.ErrForbidden
	}
	return entry, nil
}

// List returns the account's entries, newest first.
func (uc *EntryUseCase) List(ctx context.Context, actor domain.Actor, accountID string) ([]*domain.Entry, error) {
	if !actor.CanAccess(accountID) {
		return nil, domain.ErrForbidden
	}
	entries, err := listEntries(ctx, uc.ledger.sync, uc.ledger.cache, uc.ledger.remote, accountID)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

func (uc *LedgerUseCase) loadEntry(ctx context.Context, id string) (*domain.Entry, error) {
	return readOne(ctx, uc.sync, oneRead[*domain.Entry]{
		name:       domain.CollectionEntries,
		collection: uc.cache.Entries,
		id:         id,
		key:        domain.EntryKey(id),
		notFound:   domain.ErrEntryNotFound,
		remote: func(ctx context.Context) (*domain.Entry, error) {
			return uc.remote.Entries.GetByID(ctx, id)
		},
	})
}

func validateEntry(e *domain.Entry) error {
	if err := domain.ValidateID(e.ID); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if err := domain.ValidateEntryAmounts(e.FirstAmount, e.SecondAmount); err != nil {
		return err
	}
	return domain.ValidateNotes(e.Notes)
}
