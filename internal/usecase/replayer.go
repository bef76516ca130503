package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iho/ledgersync/internal/domain"
)

// Replayer applies queued mutations to the remote store. Each mutation runs
// in one remote transaction together with a record of its operation id, so
// replaying the same queue item twice has no further effect.
type Replayer struct {
	remote  RemoteStore
	retrier Retrier
}

// NewReplayer creates a new Replayer. retrier may be nil, in which case a lost
// compare-and-swap surfaces as domain.ErrVersionConflict.
func NewReplayer(remote RemoteStore, retrier Retrier) *Replayer {
	return &Replayer{remote: remote, retrier: retrier}
}

// Apply applies m under operation id opID. For mutations that change an
// account it returns the account as committed; it returns nil when the
// operation had already been applied or touches no account.
func (r *Replayer) Apply(ctx context.Context, opID string, m domain.Mutation) (*domain.Account, error) {
	var result *domain.Account

	run := func() error {
		result = nil

		tx, err := r.remote.Tx.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if err := r.remote.Operations.MarkApplied(ctx, tx, opID, m.Kind()); err != nil {
			if errors.Is(err, domain.ErrAlreadyApplied) {
				return nil
			}
			return err
		}

		acct, err := r.apply(ctx, tx, m)
		if err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
		result = acct
		return nil
	}

	var err error
	if r.retrier != nil {
		err = r.retrier.Retry(ctx, run)
	} else {
		err = run()
	}
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", m.Kind(), err)
	}
	return result, nil
}

func (r *Replayer) apply(ctx context.Context, tx Transaction, m domain.Mutation) (*domain.Account, error) {
	switch v := m.(type) {
	case domain.EntryCreated:
		// The operation log already filters replays of this mutation, so a
		// stored row was written by another one.
		_, err := r.remote.Entries.GetByIDTx(ctx, tx, v.Entry.ID)
		switch {
		case err == nil:
			return nil, domain.ErrEntryExists
		case !errors.Is(err, domain.ErrEntryNotFound):
			return nil, err
		}
		acct, err := r.adjust(ctx, tx, v)
		if err != nil {
			return nil, err
		}
		return acct, r.remote.Entries.Upsert(ctx, tx, v.Entry)

	case domain.EntryUpdated:
		// The delta is taken against the stored entry so that an edit from
		// another session is not counted twice.
		stored, err := r.remote.Entries.GetByIDTx(ctx, tx, v.Entry.ID)
		if err != nil {
			return nil, err
		}
		acct, err := r.adjust(ctx, tx, domain.EntryUpdated{Entry: v.Entry, Previous: stored})
		if err != nil {
			return nil, err
		}
		return acct, r.remote.Entries.Upsert(ctx, tx, v.Entry)

	case domain.EntryDeleted:
		stored, err := r.remote.Entries.GetByIDTx(ctx, tx, v.Entry.ID)
		if errors.Is(err, domain.ErrEntryNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		acct, err := r.adjust(ctx, tx, domain.EntryDeleted{Entry: stored})
		if err != nil {
			return nil, err
		}
		if err := r.remote.Deductions.DeleteByEntry(ctx, tx, stored.ID); err != nil {
			return nil, err
		}
		return acct, r.remote.Entries.Delete(ctx, tx, stored.ID)

	case domain.BalanceAdjusted:
		acct, err := r.adjust(ctx, tx, v)
		if err != nil {
			return nil, err
		}
		record := *v.Record
		record.BalanceAfter = acct.Balance
		return acct, r.remote.History.Upsert(ctx, tx, &record)

	case domain.SpentReset:
		return r.adjust(ctx, tx, v)

	case domain.SpentRepaired:
		spent, err := r.remote.Entries.SumTotalsTx(ctx, tx, v.AccountID)
		if err != nil {
			return nil, err
		}
		return r.adjust(ctx, tx, domain.SpentRepaired{AccountID: v.AccountID, Spent: spent, PreviousSpent: v.PreviousSpent})

	case domain.HistoryReset:
		if err := r.remote.Deductions.DeleteByAccount(ctx, tx, v.AccountID); err != nil {
			return nil, err
		}
		if err := r.remote.Entries.DeleteByAccount(ctx, tx, v.AccountID); err != nil {
			return nil, err
		}
		return r.adjust(ctx, tx, v)

	case domain.DeductionCreated:
		return nil, r.remote.Deductions.Upsert(ctx, tx, v.Deduction)

	case domain.DeductionDeleted:
		return nil, r.remote.Deductions.Delete(ctx, tx, v.Deduction.ID)

	case domain.SettingUpdated:
		return nil, r.remote.Settings.Upsert(ctx, tx, v.Setting)

	case domain.AdminActionLogged:
		return nil, r.remote.Audit.Create(ctx, tx, v.Entry)

	default:
		return nil, fmt.Errorf("%w: %T", domain.ErrUnknownMutation, m)
	}
}

// adjust runs the ledger math of d against the stored account and writes the
// result with a compare-and-swap on its version.
func (r *Replayer) adjust(ctx context.Context, tx Transaction, d domain.AccountDelta) (*domain.Account, error) {
	stored, err := r.remote.Accounts.GetByIDTx(ctx, tx, d.TargetAccount())
	if err != nil {
		return nil, err
	}

	next := stored.Clone()
	if err := d.ApplyTo(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()

	if err := r.remote.Accounts.CompareAndSwap(ctx, tx, next, stored.Version); err != nil {
		return nil, err
	}
	return next, nil
}
