package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/infrastructure/metrics"
)

// Replay outcomes.
const (
	OutcomeApplied   = "applied"
	OutcomeFailed    = "failed"
	OutcomeDiscarded = "discarded"
)

// SyncUseCase owns the path from a locally applied mutation to the remote
// store: it queues the mutation, attempts it immediately when online, drains
// the queue, and settles every item. Items that can never succeed are
// discarded and their optimistic cache effects reverted; all other failures
// stay queued.
type SyncUseCase struct {
	queue        SyncQueue
	cache        LocalCache
	remote       RemoteStore
	replayer     *Replayer
	executor     RemoteExecutor
	connectivity Connectivity
	broadcaster  Broadcaster
	logger       zerolog.Logger
	metrics      *metrics.Metrics

	// drainMu keeps immediate attempts and drains from replaying concurrently.
	drainMu sync.Mutex
	// localMu orders queueing plus optimistic cache writes against writes of
	// remote state into the cache.
	localMu sync.Mutex
}

// SyncConfig for SyncUseCase.
type SyncConfig struct {
	Queue        SyncQueue
	Cache        LocalCache
	Remote       RemoteStore
	Replayer     *Replayer
	Executor     RemoteExecutor
	Connectivity Connectivity
	Broadcaster  Broadcaster // optional
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics // optional
}

// NewSyncUseCase creates a new SyncUseCase.
func NewSyncUseCase(cfg SyncConfig) *SyncUseCase {
	return &SyncUseCase{
		queue:        cfg.Queue,
		cache:        cfg.Cache,
		remote:       cfg.Remote,
		replayer:     cfg.Replayer,
		executor:     cfg.Executor,
		connectivity: cfg.Connectivity,
		broadcaster:  cfg.Broadcaster,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
}

// IsOnline reports the connectivity signal.
func (uc *SyncUseCase) IsOnline() bool {
	return uc.connectivity.IsOnline()
}

// Submit queues m, runs apply to write the optimistic effects of m to the
// cache, and, when online, replays it right away unless an earlier queued item
// touches the same record. Nothing is written locally when queueing fails and
// the item is withdrawn when apply fails. Apart from those, only errors that
// discard the item are returned; transient failures leave it queued for the
// sync loop.
func (uc *SyncUseCase) Submit(ctx context.Context, m domain.Mutation, apply func(ctx context.Context) error) error {
	item, err := uc.enqueue(ctx, m, apply)
	if err != nil {
		return err
	}
	uc.recordDepth(ctx)

	if !uc.connectivity.IsOnline() {
		uc.logger.Debug().
			Str("queue_item_id", item.ID).
			Str("kind", string(m.Kind())).
			Msg("offline, mutation queued")
		return nil
	}

	uc.drainMu.Lock()
	defer uc.drainMu.Unlock()

	pending, err := uc.queue.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sync queue: %w", err)
	}
	if blockedByEarlier(pending, item) {
		uc.logger.Debug().
			Str("queue_item_id", item.ID).
			Str("kind", string(m.Kind())).
			Msg("earlier mutation on the same record is pending, deferring")
		return nil
	}

	outcome, err := uc.settle(ctx, item)
	if outcome == OutcomeDiscarded {
		return err
	}
	return nil
}

func (uc *SyncUseCase) enqueue(ctx context.Context, m domain.Mutation, apply func(ctx context.Context) error) (*domain.SyncQueueItem, error) {
	uc.localMu.Lock()
	defer uc.localMu.Unlock()

	item, err := uc.queue.Enqueue(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("failed to queue %s: %w", m.Kind(), err)
	}
	if apply == nil {
		return item, nil
	}

	if err := apply(ctx); err != nil {
		if rmErr := uc.queue.Remove(ctx, item.ID); rmErr != nil {
			uc.logger.Error().Err(rmErr).Str("queue_item_id", item.ID).Msg("failed to withdraw queue item")
		}
		uc.revertRecords(ctx, m)
		return nil, fmt.Errorf("failed to write local cache: %w", err)
	}
	return item, nil
}

// UnlessPending runs write while no queued mutation touches key. Local
// mutations wait until it returns. The bool reports whether write ran.
func (uc *SyncUseCase) UnlessPending(ctx context.Context, key string, write func(ctx context.Context) error) (bool, error) {
	uc.localMu.Lock()
	defer uc.localMu.Unlock()

	keys, err := uc.PendingKeys(ctx)
	if err != nil {
		return false, err
	}
	if keys[key] {
		return false, nil
	}
	return true, write(ctx)
}

// Drain replays every queued item in order. A failed item stays queued and
// later items sharing one of its record keys are deferred to the next drain;
// unrelated items still run. Draining stops early when the connectivity
// signal drops or ctx is cancelled.
func (uc *SyncUseCase) Drain(ctx context.Context) (domain.DrainResult, error) {
	uc.drainMu.Lock()
	defer uc.drainMu.Unlock()

	var result domain.DrainResult

	items, err := uc.queue.List(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list sync queue: %w", err)
	}
	if uc.metrics != nil {
		uc.metrics.DrainRuns.Inc()
	}

	blocked := make(map[string]bool)
	for _, item := range items {
		if ctx.Err() != nil || !uc.connectivity.IsOnline() {
			break
		}

		if item.Mutation != nil && anyKey(blocked, item.Mutation.RecordKeys()) {
			result.Deferred++
			continue
		}

		outcome, _ := uc.settle(ctx, item)
		switch outcome {
		case OutcomeApplied:
			result.Applied++
		case OutcomeDiscarded:
			result.Discarded++
		default:
			result.Failed++
			if item.Mutation != nil {
				for _, key := range item.Mutation.RecordKeys() {
					blocked[key] = true
				}
			}
		}
	}

	remaining, err := uc.queue.Count(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to count sync queue: %w", err)
	}
	result.Remaining = remaining
	if uc.metrics != nil {
		uc.metrics.QueueDepth.Set(float64(remaining))
	}

	if result.Applied+result.Failed+result.Discarded > 0 {
		uc.logger.Info().
			Int("applied", result.Applied).
			Int("failed", result.Failed).
			Int("discarded", result.Discarded).
			Int("deferred", result.Deferred).
			Int("remaining", result.Remaining).
			Msg("sync queue drained")
	}

	return result, nil
}

// Pending returns the queued items in replay order.
func (uc *SyncUseCase) Pending(ctx context.Context) ([]*domain.SyncQueueItem, error) {
	return uc.queue.List(ctx)
}

// PendingKeys returns the record keys touched by queued items.
func (uc *SyncUseCase) PendingKeys(ctx context.Context) (map[string]bool, error) {
	items, err := uc.queue.List(ctx)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]bool)
	for _, item := range items {
		if item.Mutation == nil {
			continue
		}
		for _, key := range item.Mutation.RecordKeys() {
			keys[key] = true
		}
	}
	return keys, nil
}

// settle replays one item and removes, discards or retains it. The replay
// runs on a context that ignores the caller's cancellation so that a started
// replay finishes.
func (uc *SyncUseCase) settle(ctx context.Context, item *domain.SyncQueueItem) (string, error) {
	log := uc.logger.With().
		Str("queue_item_id", item.ID).
		Str("kind", string(item.Kind)).
		Int("attempts", item.Attempts).
		Logger()

	if item.Mutation == nil {
		if err := uc.queue.Remove(ctx, item.ID); err != nil {
			log.Error().Err(err).Msg("failed to remove undecodable queue item")
			return OutcomeFailed, err
		}
		log.Error().Str("last_error", item.LastError).Msg("discarded undecodable queue item")
		uc.observe(item.Kind, OutcomeDiscarded, 0)
		return OutcomeDiscarded, fmt.Errorf("%w: %s", domain.ErrUnknownMutation, item.LastError)
	}

	replayCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultReplayTimeout)
	defer cancel()

	start := time.Now()
	var acct *domain.Account
	err := uc.executor.Do(replayCtx, func(ctx context.Context) error {
		a, err := uc.replayer.Apply(ctx, item.ID, item.Mutation)
		if err != nil {
			return err
		}
		acct = a
		return nil
	})
	elapsed := time.Since(start)

	switch {
	case err == nil:
		if rmErr := uc.queue.Remove(replayCtx, item.ID); rmErr != nil {
			// The remote has the operation id, so a second replay is a no-op.
			log.Error().Err(rmErr).Msg("failed to remove applied queue item")
		}
		uc.afterApplied(replayCtx, item, acct)
		uc.observe(item.Kind, OutcomeApplied, elapsed)
		log.Debug().Dur("duration", elapsed).Msg("mutation applied")
		return OutcomeApplied, nil

	case domain.IsPermanent(err):
		if rmErr := uc.queue.Remove(replayCtx, item.ID); rmErr != nil {
			log.Error().Err(rmErr).Msg("failed to remove rejected queue item")
		}
		uc.revert(replayCtx, item.Mutation)
		uc.observe(item.Kind, OutcomeDiscarded, elapsed)
		log.Warn().Err(err).Msg("mutation rejected by remote, discarded and reverted")
		return OutcomeDiscarded, err

	default:
		if mfErr := uc.queue.MarkFailed(replayCtx, item.ID, err.Error()); mfErr != nil {
			log.Error().Err(mfErr).Msg("failed to record replay failure")
		}
		uc.observe(item.Kind, OutcomeFailed, elapsed)
		log.Warn().Err(err).Msg("mutation replay failed, keeping it queued")
		return OutcomeFailed, err
	}
}

// afterApplied folds the committed account into the cache unless other
// queued mutations on the account are still only applied locally. When the
// remote had nothing left to apply, its current copy replaces the local guess.
func (uc *SyncUseCase) afterApplied(ctx context.Context, item *domain.SyncQueueItem, acct *domain.Account) {
	uc.recordDepth(ctx)

	if acct == nil {
		d, ok := item.Mutation.(domain.AccountDelta)
		if !ok {
			return
		}
		fetched, err := uc.fetchAccount(ctx, d.TargetAccount())
		if err != nil {
			uc.logger.Warn().Err(err).Str("account_id", d.TargetAccount()).Msg("failed to refresh account after replay")
			return
		}
		uc.foldAccount(ctx, fetched)
		return
	}

	if adj, ok := item.Mutation.(domain.BalanceAdjusted); ok {
		record := *adj.Record
		record.BalanceAfter = acct.Balance
		if err := uc.cache.History.PutMany(ctx, []*domain.BalanceHistoryRecord{&record}); err != nil {
			uc.logger.Warn().Err(err).Str("record_id", record.ID).Msg("failed to cache balance history record")
		}
	}
	uc.foldAccount(ctx, acct)
}

func (uc *SyncUseCase) foldAccount(ctx context.Context, acct *domain.Account) {
	written, err := uc.UnlessPending(ctx, domain.AccountKey(acct.ID), func(ctx context.Context) error {
		return uc.cache.Accounts.PutMany(ctx, []*domain.Account{acct})
	})
	if err != nil {
		uc.logger.Warn().Err(err).Str("account_id", acct.ID).Msg("failed to cache account")
		return
	}
	if written {
		uc.publish(ctx, domain.BalanceUpdated{AccountID: acct.ID, Balance: acct.Balance})
	}
}

// revert undoes the optimistic cache effects of a discarded mutation.
func (uc *SyncUseCase) revert(ctx context.Context, m domain.Mutation) {
	uc.localMu.Lock()
	uc.revertRecords(ctx, m)
	uc.localMu.Unlock()

	if d, ok := m.(domain.AccountDelta); ok {
		uc.refreshAccount(ctx, d.TargetAccount())
	}
}

// revertRecords undoes the record writes of m. The account is left alone.
func (uc *SyncUseCase) revertRecords(ctx context.Context, m domain.Mutation) {
	var err error
	switch v := m.(type) {
	case domain.EntryCreated:
		err = uc.cache.Entries.Delete(ctx, v.Entry.ID)
	case domain.EntryUpdated:
		err = uc.cache.Entries.PutMany(ctx, []*domain.Entry{v.Previous})
	case domain.EntryDeleted:
		err = errors.Join(
			uc.cache.Entries.PutMany(ctx, []*domain.Entry{v.Entry}),
			uc.cache.Deductions.PutMany(ctx, v.Deductions),
		)
	case domain.BalanceAdjusted:
		err = uc.cache.History.Delete(ctx, v.Record.ID)
	case domain.HistoryReset:
		err = errors.Join(
			uc.cache.Entries.PutMany(ctx, v.Entries),
			uc.cache.Deductions.PutMany(ctx, v.Deductions),
		)
	case domain.DeductionCreated:
		err = uc.cache.Deductions.Delete(ctx, v.Deduction.ID)
	case domain.DeductionDeleted:
		err = uc.cache.Deductions.PutMany(ctx, []*domain.AdminDeduction{v.Deduction})
	case domain.SettingUpdated:
		if v.Previous != nil {
			err = uc.cache.Settings.PutMany(ctx, []*domain.Setting{v.Previous})
		} else {
			err = uc.cache.Settings.Delete(ctx, v.Setting.Key)
		}
		if err == nil {
			prev := ""
			if v.Previous != nil {
				prev = v.Previous.Value
			}
			uc.publish(ctx, domain.SettingsUpdated{Key: v.Setting.Key, Value: prev})
		}
	}
	if err != nil {
		uc.logger.Error().Err(err).Str("kind", string(m.Kind())).Msg("failed to revert cache")
	}
}

// refreshAccount replaces the cached account with the remote copy.
func (uc *SyncUseCase) refreshAccount(ctx context.Context, accountID string) {
	acct, err := uc.fetchAccount(ctx, accountID)
	if err != nil {
		uc.logger.Error().Err(err).Str("account_id", accountID).Msg("failed to refresh account after revert")
		return
	}

	uc.localMu.Lock()
	err = uc.cache.Accounts.PutMany(ctx, []*domain.Account{acct})
	uc.localMu.Unlock()
	if err != nil {
		uc.logger.Error().Err(err).Str("account_id", accountID).Msg("failed to cache refreshed account")
		return
	}
	uc.publish(ctx, domain.BalanceUpdated{AccountID: acct.ID, Balance: acct.Balance})
}

func (uc *SyncUseCase) fetchAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	var acct *domain.Account
	err := uc.executor.Do(ctx, func(ctx context.Context) error {
		a, err := uc.remote.Accounts.GetByID(ctx, accountID)
		if err != nil {
			return err
		}
		acct = a
		return nil
	})
	return acct, err
}

func (uc *SyncUseCase) publish(ctx context.Context, ev domain.Event) {
	if uc.broadcaster == nil {
		return
	}
	if err := uc.broadcaster.Publish(ctx, ev); err != nil {
		uc.logger.Warn().Err(err).Str("event", ev.Name()).Msg("failed to broadcast event")
	}
}

func (uc *SyncUseCase) recordDepth(ctx context.Context) {
	if uc.metrics == nil {
		return
	}
	if n, err := uc.queue.Count(ctx); err == nil {
		uc.metrics.QueueDepth.Set(float64(n))
	}
}

func (uc *SyncUseCase) observe(kind domain.MutationKind, outcome string, elapsed time.Duration) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.Replays.WithLabelValues(string(kind), outcome).Inc()
	if elapsed > 0 {
		uc.metrics.ReplayDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	}
}

// blockedByEarlier reports whether an item queued before item shares one of
// its record keys.
func blockedByEarlier(pending []*domain.SyncQueueItem, item *domain.SyncQueueItem) bool {
	keys := make(map[string]bool)
	for _, k := range item.Mutation.RecordKeys() {
		keys[k] = true
	}
	for _, p := range pending {
		if p.Seq >= item.Seq || p.Mutation == nil {
			continue
		}
		if anyKey(keys, p.Mutation.RecordKeys()) {
			return true
		}
	}
	return false
}

func anyKey(set map[string]bool, keys []string) bool {
	for _, k := range keys {
		if set[k] {
			return true
		}
	}
	return false
}
