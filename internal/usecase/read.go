package usecase

import (
	"context"
	"errors"

	"github.com/iho/ledgersync/internal/domain"
)

// listRead describes a collection read that prefers the remote store and
// falls back to the local cache.
type listRead[T domain.Record] struct {
	name       string
	collection Collection[T]
	filter     CacheFilter
	match      func(T) bool
	key        func(T) string
	// prune drops cached rows the remote no longer has. Only set it when
	// remote returns the complete set for filter.
	prune  bool
	remote func(ctx context.Context) ([]T, error)
}

// readList refreshes the cache from the remote when online and returns the
// cached view. Rows with queued local mutations keep their optimistic cached
// version.
func readList[T domain.Record](ctx context.Context, s *SyncUseCase, r listRead[T]) ([]T, error) {
	if s.IsOnline() {
		if err := refreshList(ctx, s, r); err != nil {
			s.logger.Debug().Err(err).Str("collection", r.name).Msg("remote read failed, serving cache")
			if s.metrics != nil {
				s.metrics.CacheFallbacks.WithLabelValues(r.name).Inc()
			}
		}
	}
	return r.collection.Query(ctx, r.filter, r.match)
}

func refreshList[T domain.Record](ctx context.Context, s *SyncUseCase, r listRead[T]) error {
	var rows []T
	err := s.executor.Do(ctx, func(ctx context.Context) error {
		var err error
		rows, err = r.remote(ctx)
		return err
	})
	if err != nil {
		return err
	}

	s.localMu.Lock()
	defer s.localMu.Unlock()

	pending, err := s.PendingKeys(ctx)
	if err != nil {
		return err
	}

	fresh := make([]T, 0, len(rows))
	remoteIDs := make(map[string]bool, len(rows))
	for _, row := range rows {
		remoteIDs[row.RecordID()] = true
		if !pending[r.key(row)] {
			fresh = append(fresh, row)
		}
	}
	if err := r.collection.PutMany(ctx, fresh); err != nil {
		return err
	}

	if !r.prune {
		return nil
	}
	cached, err := r.collection.Query(ctx, r.filter, nil)
	if err != nil {
		return err
	}
	var stale []string
	for _, row := range cached {
		if !remoteIDs[row.RecordID()] && !pending[r.key(row)] {
			stale = append(stale, row.RecordID())
		}
	}
	return r.collection.Delete(ctx, stale...)
}

// oneRead describes a single-record read.
type oneRead[T domain.Record] struct {
	name       string
	collection Collection[T]
	id         string
	key        string
	notFound   error
	remote     func(ctx context.Context) (T, error)
}

// readOne returns the best-known copy of a record: the remote copy when online
// and no local mutation of it is queued, the cached copy otherwise.
func readOne[T domain.Record](ctx context.Context, s *SyncUseCase, r oneRead[T]) (T, error) {
	var zero T

	if s.IsOnline() {
		pending, err := s.PendingKeys(ctx)
		if err != nil {
			return zero, err
		}
		if !pending[r.key] {
			var row T
			err := s.executor.Do(ctx, func(ctx context.Context) error {
				var err error
				row, err = r.remote(ctx)
				return err
			})
			switch {
			case err == nil:
				written, err := s.UnlessPending(ctx, r.key, func(ctx context.Context) error {
					return r.collection.PutMany(ctx, []T{row})
				})
				if err != nil {
					s.logger.Warn().Err(err).Str("collection", r.name).Msg("failed to cache remote record")
				}
				if written || err != nil {
					return row, nil
				}
				// A local mutation was queued meanwhile; its cached copy wins.
			case errors.Is(err, domain.ErrNotFound):
				dropped, err := s.UnlessPending(ctx, r.key, func(ctx context.Context) error {
					return r.collection.Delete(ctx, r.id)
				})
				if err != nil {
					s.logger.Warn().Err(err).Str("collection", r.name).Msg("failed to drop stale cached record")
				}
				if dropped || err != nil {
					return zero, r.notFound
				}
			default:
				s.logger.Debug().Err(err).Str("collection", r.name).Str("id", r.id).Msg("remote read failed, serving cache")
				if s.metrics != nil {
					s.metrics.CacheFallbacks.WithLabelValues(r.name).Inc()
				}
			}
		}
	}

	row, ok, err := r.collection.Get(ctx, r.id)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, r.notFound
	}
	return row, nil
}
