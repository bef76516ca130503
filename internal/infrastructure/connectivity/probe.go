// Package connectivity tracks whether the remote store is reachable.
package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/ledgersync/internal/infrastructure/metrics"
)

// Defaults for the probe.
const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 3 * time.Second
)

// Pinger checks the remote store. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe pings the remote store on an interval and exposes the result as the
// connectivity signal.
type Probe struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	online atomic.Bool

	mu        sync.Mutex
	listeners []func(online bool)
}

// Config for Probe.
type Config struct {
	Pinger   Pinger
	Interval time.Duration
	Timeout  time.Duration
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// NewProbe creates a probe that starts out offline until the first check.
func NewProbe(cfg Config) *Probe {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Probe{
		pinger:   cfg.Pinger,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// IsOnline reports the last probe result.
func (p *Probe) IsOnline() bool {
	return p.online.Load()
}

// OnChange registers fn to run whenever the signal flips.
func (p *Probe) OnChange(fn func(online bool)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// Check pings once and updates the signal.
func (p *Probe) Check(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(pingCtx)
	online := err == nil
	if p.online.Swap(online) != online {
		if online {
			p.logger.Info().Msg("remote store reachable")
		} else {
			p.logger.Warn().Err(err).Msg("remote store unreachable")
		}
		p.notify(online)
	}
	if p.metrics != nil {
		if online {
			p.metrics.Online.Set(1)
		} else {
			p.metrics.Online.Set(0)
		}
	}
	return online
}

// Start checks immediately and then on every interval until ctx is done.
func (p *Probe) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

func (p *Probe) notify(online bool) {
	p.mu.Lock()
	listeners := append([]func(bool){}, p.listeners...)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(online)
	}
}

// Static is a fixed connectivity signal.
type Static bool

// IsOnline returns the fixed value.
func (s Static) IsOnline() bool { return bool(s) }
