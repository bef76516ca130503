// Package realtime folds authoritative remote change events into the local
// cache.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/infrastructure/metrics"
	"github.com/iho/ledgersync/internal/usecase"
)

// ErrMergerClosed is returned by Start after Close.
var ErrMergerClosed = errors.New("realtime merger closed")

// PendingSource runs a cache write only while no queued local mutation
// touches key, keeping local mutations out until the write is done.
type PendingSource interface {
	UnlessPending(ctx context.Context, key string, write func(ctx context.Context) error) (bool, error)
}

// Config for Merger.
type Config struct {
	Feed        usecase.ChangeFeed
	Cache       usecase.LocalCache
	Pending     PendingSource // optional
	Broadcaster usecase.Broadcaster
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics // optional
}

// Merger subscribes to the remote change feed and upserts or deletes the
// changed records in the local cache. Records with queued local mutations are
// left alone until the queue settles them.
type Merger struct {
	feed        usecase.ChangeFeed
	cache       usecase.LocalCache
	pending     PendingSource
	broadcaster usecase.Broadcaster
	logger      zerolog.Logger
	metrics     *metrics.Metrics

	mu     sync.Mutex
	stops  []func()
	closed bool
}

// New creates a Merger.
func New(cfg Config) *Merger {
	return &Merger{
		feed:        cfg.Feed,
		cache:       cfg.Cache,
		pending:     cfg.Pending,
		broadcaster: cfg.Broadcaster,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// Start subscribes to every followed collection. Account scoped collections
// are filtered to accountID; settings are global. If any subscription fails,
// the ones already made are torn down.
func (m *Merger) Start(ctx context.Context, accountID string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMergerClosed
	}
	m.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	handler := func(ev domain.ChangeEvent) { m.handle(subCtx, ev) }

	stops := make([]func(), 0, len(domain.RealtimeCollections))
	for _, collection := range domain.RealtimeCollections {
		filter := accountID
		if collection == domain.CollectionSettings {
			filter = ""
		}
		stop, err := m.feed.Subscribe(subCtx, collection, filter, handler)
		if err != nil {
			teardown(cancel, stops)
			return fmt.Errorf("failed to subscribe to %s: %w", collection, err)
		}
		stops = append(stops, stop)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		teardown(cancel, stops)
		return ErrMergerClosed
	}
	m.stops = append(m.stops, cancel)
	m.stops = append(m.stops, stops...)
	m.mu.Unlock()

	m.logger.Info().Str("account_id", accountID).Int("collections", len(stops)).Msg("realtime merge started")
	return nil
}

// Close removes every subscription. Further calls do nothing.
func (m *Merger) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	stops := m.stops
	m.stops = nil
	m.mu.Unlock()

	teardown(nil, stops)
	m.logger.Info().Msg("realtime merge stopped")
}

// teardown must run without m.mu held; stop waits for in-flight handlers.
func teardown(cancel context.CancelFunc, stops []func()) {
	if cancel != nil {
		cancel()
	}
	for _, stop := range stops {
		stop()
	}
}

func (m *Merger) handle(ctx context.Context, ev domain.ChangeEvent) {
	if ctx.Err() != nil {
		return
	}

	if err := m.Merge(ctx, ev); err != nil {
		m.logger.Warn().Err(err).
			Str("collection", ev.Collection).
			Str("id", ev.ID).
			Msg("failed to merge change event")
	}
}

// Merge applies one change event to the cache and announces it.
func (m *Merger) Merge(ctx context.Context, ev domain.ChangeEvent) error {
	key, ok := recordKey(ev)
	if !ok {
		return fmt.Errorf("unknown collection %q", ev.Collection)
	}

	var announce domain.Event
	write := func(ctx context.Context) error {
		var err error
		announce, err = m.store(ctx, ev)
		return err
	}

	if m.pending == nil {
		if err := write(ctx); err != nil {
			return err
		}
	} else {
		written, err := m.pending.UnlessPending(ctx, key, write)
		if err != nil {
			return err
		}
		if !written {
			m.logger.Debug().Str("key", key).Msg("change event skipped, local mutation pending")
			return nil
		}
	}

	if m.metrics != nil {
		m.metrics.RealtimeEvents.WithLabelValues(ev.Collection, string(ev.Op)).Inc()
	}

	m.publish(ctx, domain.CacheChanged{Collection: ev.Collection, ID: ev.ID, Op: ev.Op})
	if announce != nil {
		m.publish(ctx, announce)
	}
	return nil
}

// store writes ev to the cache and returns the event announcing it, if any.
func (m *Merger) store(ctx context.Context, ev domain.ChangeEvent) (domain.Event, error) {
	switch ev.Collection {
	case domain.CollectionAccounts:
		acct, err := mergeRecord(ctx, m.cache.Accounts, ev)
		if err != nil || acct == nil {
			return nil, err
		}
		return domain.BalanceUpdated{AccountID: acct.ID, Balance: acct.Balance}, nil
	case domain.CollectionEntries:
		_, err := mergeRecord(ctx, m.cache.Entries, ev)
		return nil, err
	case domain.CollectionBalanceHistory:
		_, err := mergeRecord(ctx, m.cache.History, ev)
		return nil, err
	case domain.CollectionDeductions:
		_, err := mergeRecord(ctx, m.cache.Deductions, ev)
		return nil, err
	case domain.CollectionSettings:
		s, err := mergeRecord(ctx, m.cache.Settings, ev)
		if err != nil || s == nil {
			return nil, err
		}
		return domain.SettingsUpdated{Key: s.Key, Value: s.Value}, nil
	}
	return nil, nil
}

func (m *Merger) publish(ctx context.Context, ev domain.Event) {
	if m.broadcaster == nil {
		return
	}
	if err := m.broadcaster.Publish(ctx, ev); err != nil {
		m.logger.Warn().Err(err).Str("event", ev.Name()).Msg("failed to broadcast event")
	}
}

// mergeRecord upserts the event's record, or deletes it by id. The returned
// record is nil for deletes.
func mergeRecord[T domain.Record](ctx context.Context, coll usecase.Collection[T], ev domain.ChangeEvent) (T, error) {
	var zero T
	if ev.Op == domain.ChangeDelete {
		if err := coll.Delete(ctx, ev.ID); err != nil {
			return zero, fmt.Errorf("failed to delete %s %s: %w", ev.Collection, ev.ID, err)
		}
		return zero, nil
	}

	if len(ev.Record) == 0 || string(ev.Record) == "null" {
		return zero, fmt.Errorf("%s change %s carries no record", ev.Collection, ev.ID)
	}
	var rec T
	if err := json.Unmarshal(ev.Record, &rec); err != nil {
		return zero, fmt.Errorf("failed to decode %s %s: %w", ev.Collection, ev.ID, err)
	}
	if rec.RecordID() == "" {
		return zero, fmt.Errorf("%s change %s carries no record", ev.Collection, ev.ID)
	}
	if err := coll.PutMany(ctx, []T{rec}); err != nil {
		return zero, fmt.Errorf("failed to store %s %s: %w", ev.Collection, ev.ID, err)
	}
	return rec, nil
}

func recordKey(ev domain.ChangeEvent) (string, bool) {
	switch ev.Collection {
	case domain.CollectionAccounts:
		return domain.AccountKey(ev.ID), true
	case domain.CollectionEntries:
		return domain.EntryKey(ev.ID), true
	case domain.CollectionBalanceHistory:
		return domain.HistoryKey(ev.ID), true
	case domain.CollectionDeductions:
		return domain.DeductionKey(ev.ID), true
	case domain.CollectionSettings:
		return domain.SettingKey(ev.ID), true
	default:
		return "", false
	}
}
