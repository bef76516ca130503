package usecase_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/infrastructure/metrics"
	"github.com/iho/ledgersync/internal/infrastructure/retry"
	"github.com/iho/ledgersync/internal/usecase"
	"github.com/iho/ledgersync/internal/usecase/mocks"
)

const testAccountID = "acct-1"

var (
	adminActor = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
	userActor  = domain.Actor{ID: testAccountID, Role: domain.RoleUser}
)

// testEnv wires every use case against in-memory fakes.
type testEnv struct {
	remote  *mocks.MemoryRemote
	cache   usecase.LocalCache
	queue   *mocks.MemoryQueue
	metrics *metrics.Metrics
	online  atomic.Bool

	mu     sync.Mutex
	events []domain.Event

	sync       *usecase.SyncUseCase
	ledger     *usecase.LedgerUseCase
	entries    *usecase.EntryUseCase
	deductions *usecase.DeductionUseCase
	settings   *usecase.SettingsCache
	audit      *usecase.AuditLogger
}

func newTestEnv(t *testing.T, balance int64) *testEnv {
	t.Helper()

	ctrl := gomock.NewController(t)
	e := &testEnv{
		remote:  mocks.NewMemoryRemote(),
		cache:   mocks.NewMemoryCache(),
		queue:   mocks.NewMemoryQueue(),
		metrics: metrics.NewWithRegisterer(prometheus.NewRegistry()),
	}
	e.online.Store(true)

	conn := mocks.NewMockConnectivity(ctrl)
	conn.EXPECT().IsOnline().DoAndReturn(func() bool { return e.online.Load() }).AnyTimes()

	bc := mocks.NewMockBroadcaster(ctrl)
	bc.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev domain.Event) error {
		e.mu.Lock()
		e.events = append(e.events, ev)
		e.mu.Unlock()
		return nil
	}).AnyTimes()

	store := e.remote.Store()
	executor := retry.NewExecutor(retry.WithMaxAttempts(2), retry.WithBaseDelay(time.Millisecond))
	idGen := mocks.NewSeqIDGenerator("id")

	e.sync = usecase.NewSyncUseCase(usecase.SyncConfig{
		Queue:        e.queue,
		Cache:        e.cache,
		Remote:       store,
		Replayer:     usecase.NewReplayer(store, nil),
		Executor:     executor,
		Connectivity: conn,
		Broadcaster:  bc,
		Logger:       zerolog.Nop(),
		Metrics:      e.metrics,
	})
	e.audit = usecase.NewAuditLogger(e.sync, idGen, zerolog.Nop(), e.metrics)
	e.ledger = usecase.NewLedgerUseCase(e.cache, store, e.sync, e.audit, idGen, e.metrics)
	e.entries = usecase.NewEntryUseCase(e.ledger)
	e.deductions = usecase.NewDeductionUseCase(e.ledger)
	e.settings = usecase.NewSettingsCache(e.ledger)

	now := time.Now().UTC()
	e.remote.SeedAccount(&domain.Account{
		ID:        testAccountID,
		Balance:   balance,
		Active:    true,
		Role:      domain.RoleUser,
		Tier:      domain.TierStandard,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return e
}

// goOffline makes the connectivity signal report offline.
func (e *testEnv) goOffline() { e.online.Store(false) }

// goOnline restores the connectivity signal.
func (e *testEnv) goOnline() { e.online.Store(true) }

// failRemote makes every remote call fail with err until the returned
// function is called.
func (e *testEnv) failRemote(err error) func() {
	e.remote.Fail = func(string) error { return err }
	return func() { e.remote.Fail = nil }
}

func (e *testEnv) cachedAccount(t *testing.T) *domain.Account {
	t.Helper()
	acct, ok, err := e.cache.Accounts.Get(context.Background(), testAccountID)
	require.NoError(t, err)
	require.True(t, ok, "account not cached")
	return acct
}

func (e *testEnv) remoteAccount(t *testing.T) *domain.Account {
	t.Helper()
	acct, ok := e.remote.Account(testAccountID)
	require.True(t, ok, "account missing remotely")
	return acct
}

func (e *testEnv) queued(t *testing.T) int {
	t.Helper()
	n, err := e.queue.Count(context.Background())
	require.NoError(t, err)
	return n
}

// queuedKinds lists the mutation kinds in the queue, skipping audit records.
func (e *testEnv) queuedKinds(t *testing.T) []domain.MutationKind {
	t.Helper()
	items, err := e.queue.List(context.Background())
	require.NoError(t, err)
	var kinds []domain.MutationKind
	for _, item := range items {
		if item.Kind != domain.KindAdminActionLogged {
			kinds = append(kinds, item.Kind)
		}
	}
	return kinds
}

func (e *testEnv) published() []domain.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Event(nil), e.events...)
}

func networkDown() error {
	return &domain.NetworkError{Op: "remote", Err: errors.New("connection refused")}
}
