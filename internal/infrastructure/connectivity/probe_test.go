package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/iho/ledgersync/internal/infrastructure/metrics"
)

type stubPinger struct {
	err atomic.Value
}

func (s *stubPinger) Ping(context.Context) error {
	if v := s.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (s *stubPinger) fail(err error) { s.err.Store(err) }

func TestProbeCheckFlipsSignal(t *testing.T) {
	pinger := &stubPinger{}
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	p := NewProbe(Config{Pinger: pinger, Logger: zerolog.Nop(), Metrics: m})

	var changes []bool
	p.OnChange(func(online bool) { changes = append(changes, online) })

	assert.False(t, p.IsOnline(), "offline until checked")

	assert.True(t, p.Check(context.Background()))
	assert.True(t, p.IsOnline())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Online))

	pinger.fail(errors.New("dial tcp: connection refused"))
	assert.False(t, p.Check(context.Background()))
	assert.False(t, p.Check(context.Background()))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Online))

	assert.Equal(t, []bool{true, false}, changes, "listeners only see transitions")
}

func TestProbeStartStopsOnCancel(t *testing.T) {
	p := NewProbe(Config{Pinger: &stubPinger{}, Interval: 5 * time.Millisecond, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("probe did not stop")
	}
	assert.True(t, p.IsOnline())
}

func TestStatic(t *testing.T) {
	assert.True(t, Static(true).IsOnline())
	assert.False(t, Static(false).IsOnline())
}
