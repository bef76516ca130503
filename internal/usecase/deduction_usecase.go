package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iho/ledgersync/internal/domain"
)

// DeductionUseCase manages the admin deduction overlay. Deductions change
// what an admin sees for an entry; stored entries and balances are never
// touched.
type DeductionUseCase struct {
	ledger *LedgerUseCase
}

// NewDeductionUseCase creates a new DeductionUseCase.
func NewDeductionUseCase(ledger *LedgerUseCase) *DeductionUseCase {
	return &DeductionUseCase{ledger: ledger}
}

// RecordDeductionInput is the input for recording a deduction.
type RecordDeductionInput struct {
	EntryID        string
	DeductedFirst  int64
	DeductedSecond int64
	Kind           domain.DeductionKind
	Metadata       domain.JSON
}

// Record stores a deduction against an entry.
func (uc *DeductionUseCase) Record(ctx context.Context, actor domain.Actor, input RecordDeductionInput) (*domain.AdminDeduction, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	if input.Kind == "" {
		input.Kind = domain.DeductionKindAdjustment
	}

	entry, err := uc.ledger.loadEntry(ctx, input.EntryID)
	if err != nil {
		return nil, err
	}

	d := &domain.AdminDeduction{
		ID:             uc.ledger.idGen.Generate(),
		EntryID:        entry.ID,
		AccountID:      entry.AccountID,
		AdminID:        actor.ID,
		DeductedFirst:  input.DeductedFirst,
		DeductedSecond: input.DeductedSecond,
		Kind:           input.Kind,
		Metadata:       input.Metadata,
		CreatedAt:      time.Now().UTC(),
	}
	if err := d.Validate(); err != nil {
		uc.ledger.reject("deduction_create", err)
		return nil, err
	}

	err = uc.ledger.sync.Submit(ctx, domain.DeductionCreated{Deduction: d}, func(ctx context.Context) error {
		return uc.ledger.cache.Deductions.PutMany(ctx, []*domain.AdminDeduction{d})
	})
	if err != nil {
		return nil, err
	}

	uc.ledger.audit.Log(ctx, actor, entry.AccountID, domain.AdminActionDeductionCreate,
		fmt.Sprintf("deduction on entry %s", entry.ID),
		domain.JSON{"deduction_id": d.ID, "entry_id": entry.ID, "first": d.DeductedFirst, "second": d.DeductedSecond})
	return d, nil
}

// Undo deletes a deduction.
func (uc *DeductionUseCase) Undo(ctx context.Context, actor domain.Actor, accountID, deductionID string) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}

	deductions, err := listDeductions(ctx, uc.ledger.sync, uc.ledger.cache, uc.ledger.remote, accountID)
	if err != nil {
		return err
	}
	var target *domain.AdminDeduction
	for _, d := range deductions {
		if d.ID == deductionID {
			target = d
			break
		}
	}
	if target == nil {
		return domain.ErrDeductionNotFound
	}

	err = uc.ledger.sync.Submit(ctx, domain.DeductionDeleted{Deduction: target}, func(ctx context.Context) error {
		return uc.ledger.cache.Deductions.Delete(ctx, target.ID)
	})
	if err != nil {
		return err
	}

	uc.ledger.audit.Log(ctx, actor, accountID, domain.AdminActionDeductionDelete,
		fmt.Sprintf("deduction %s undone", target.ID),
		domain.JSON{"deduction_id": target.ID, "entry_id": target.EntryID})
	return nil
}

// AdminView projects every entry of the account with its deductions applied.
func (uc *DeductionUseCase) AdminView(ctx context.Context, actor domain.Actor, accountID string) (*domain.AdminView, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}

	entries, deductions, err := uc.ledger.accountEntries(ctx, accountID)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	view := domain.ProjectAccount(accountID, entries, deductions)
	return &view, nil
}
