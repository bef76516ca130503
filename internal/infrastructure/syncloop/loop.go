// Package syncloop drains the sync queue on a fixed interval.
package syncloop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/ledgersync/internal/domain"
)

// DefaultInterval is the tick period when Config.Interval is zero.
const DefaultInterval = 5 * time.Second

// Drainer replays the queued mutations.
type Drainer interface {
	Drain(ctx context.Context) (domain.DrainResult, error)
}

// Connectivity reports whether the remote store is reachable.
type Connectivity interface {
	IsOnline() bool
}

// Loop drains the queue once on start and then on every tick. Ticks are
// skipped while offline or while the previous drain is still running.
type Loop struct {
	drainer      Drainer
	connectivity Connectivity
	logger       zerolog.Logger
	interval     time.Duration

	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
}

// Config for Loop.
type Config struct {
	Drainer      Drainer
	Connectivity Connectivity
	Logger       zerolog.Logger
	Interval     time.Duration
}

// New creates a new Loop.
func New(cfg Config) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Loop{
		drainer:      cfg.Drainer,
		connectivity: cfg.Connectivity,
		logger:       cfg.Logger,
		interval:     cfg.Interval,
		stop:         make(chan struct{}),
	}
}

// Start runs the loop until ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info().Dur("interval", l.interval).Msg("sync loop started")

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("sync loop shutting down")
			return ctx.Err()
		case <-l.stop:
			l.logger.Info().Msg("sync loop stopped")
			return nil
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// Stop ends Start. It is safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Trigger runs one drain now unless one is already in flight. It reports
// whether a drain ran.
func (l *Loop) Trigger(ctx context.Context) bool {
	return l.tick(ctx)
}

func (l *Loop) tick(ctx context.Context) bool {
	if !l.connectivity.IsOnline() {
		l.logger.Debug().Msg("offline, skipping sync")
		return false
	}
	if !l.running.CompareAndSwap(false, true) {
		l.logger.Debug().Msg("previous sync still running, skipping")
		return false
	}
	defer l.running.Store(false)

	result, err := l.drainer.Drain(ctx)
	if err != nil {
		l.logger.Error().Err(err).Msg("sync drain failed")
		return true
	}
	if result.Remaining > 0 {
		l.logger.Debug().Int("remaining", result.Remaining).Msg("items left in sync queue")
	}
	return true
}
