package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/ledgersync/internal/domain"
)

// recordingTimer fires immediately and remembers every requested delay.
type recordingTimer struct {
	delays []time.Duration
	c      chan time.Time
}

func (t *recordingTimer) Start(d time.Duration) {
	t.delays = append(t.delays, d)
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *recordingTimer) Stop() {}

func (t *recordingTimer) C() <-chan time.Time { return t.c }

func newTestExecutor(timer *recordingTimer, opts ...Option) *Executor {
	opts = append(opts, withTimer(func() backoff.Timer { return timer }))
	return NewExecutor(opts...)
}

func TestExecutor_RetriesNetworkFailuresWithDoublingDelay(t *testing.T) {
	timer := &recordingTimer{}
	ex := newTestExecutor(timer)

	calls := 0
	failure := errors.New("network request failed")
	err := ex.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return failure
	})

	require.ErrorIs(t, err, failure)
	assert.Equal(t, DefaultMaxAttempts, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timer.delays)
}

func TestExecutor_DoesNotRetryValidation(t *testing.T) {
	timer := &recordingTimer{}
	ex := newTestExecutor(timer)

	calls := 0
	failure := errors.New("invalid entry type")
	err := ex.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return failure
	})

	require.ErrorIs(t, err, failure)
	assert.Equal(t, 1, calls)
	assert.Empty(t, timer.delays)
}

func TestExecutor_SucceedsAfterTransientFailure(t *testing.T) {
	timer := &recordingTimer{}
	ex := newTestExecutor(timer, WithMaxAttempts(5), WithBaseDelay(10*time.Millisecond))

	calls := 0
	got, err := Execute(context.Background(), ex, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &domain.NetworkError{Op: "read accounts", Err: errors.New("reset by peer")}
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, timer.delays)
}

func TestExecutor_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ex := NewExecutor(WithBaseDelay(time.Hour))

	calls := 0
	err := ex.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("connection refused")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "network error type", err: &domain.NetworkError{Op: "insert", Err: errors.New("boom")}, want: true},
		{name: "timeout wording", err: errors.New("request timed out"), want: true},
		{name: "fetch wording", err: errors.New("Failed to fetch"), want: true},
		{name: "dns wording", err: errors.New("lookup db: no such host"), want: true},
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), want: true},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "validation", err: domain.ErrInsufficientBalance, want: false},
		{name: "not found", err: domain.ErrEntryNotFound, want: false},
		{
			name: "configuration mentioning connection",
			err:  domain.ConfigurationError("connect", errors.New("connection to database \"x\" failed: database does not exist")),
			want: false,
		},
		{name: "plain error", err: errors.New("invalid entry type"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
