package postgres

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/iho/ledgersync/internal/domain"
)

// ChangeChannel is the notification channel the schema triggers publish on.
const ChangeChannel = "ledgersync_changes"

// ChangeFeed implements usecase.ChangeFeed over LISTEN/NOTIFY. One pooled
// connection listens for every subscription; it is opened with the first
// subscription and released with the last.
type ChangeFeed struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger

	mu     sync.RWMutex
	subs   map[int]changeSub
	next   int
	cancel context.CancelFunc
	done   chan struct{}
}

type changeSub struct {
	collection string
	accountID  string
	handler    func(domain.ChangeEvent)
}

// NewChangeFeed creates a ChangeFeed.
func NewChangeFeed(pool *pgxpool.Pool, logger zerolog.Logger) *ChangeFeed {
	return &ChangeFeed{
		pool:   pool,
		logger: logger,
		subs:   make(map[int]changeSub),
	}
}

// Subscribe registers handler for collection. An empty accountID receives
// every account's changes.
func (f *ChangeFeed) Subscribe(ctx context.Context, collection, accountID string, handler func(domain.ChangeEvent)) (func(), error) {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = changeSub{collection: collection, accountID: accountID, handler: handler}
	if f.cancel == nil && f.pool != nil {
		listenCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f.cancel = cancel
		f.done = make(chan struct{})
		go f.listen(listenCtx, f.done)
	}
	f.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { f.unsubscribe(id) }) }, nil
}

func (f *ChangeFeed) unsubscribe(id int) {
	f.mu.Lock()
	delete(f.subs, id)
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)
	if len(f.subs) == 0 && f.cancel != nil {
		cancel, done = f.cancel, f.done
		f.cancel, f.done = nil, nil
	}
	f.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// listen holds a connection in LISTEN and reconnects with backoff until ctx
// is cancelled.
func (f *ChangeFeed) listen(ctx context.Context, done chan struct{}) {
	defer close(done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0

	for {
		err := f.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		wait := b.NextBackOff()
		f.logger.Warn().Err(err).Dur("retry_in", wait).Msg("change feed connection lost")

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (f *ChangeFeed) listenOnce(ctx context.Context) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return mapError("acquire listen connection", err, nil)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return mapError("listen", err, nil)
	}
	f.logger.Debug().Str("channel", ChangeChannel).Msg("change feed listening")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				// The connection state is unknown; do not hand it back to the pool.
				conn.Conn().Close(context.Background())
			}
			return mapError("wait for notification", err, nil)
		}
		f.dispatch(n.Payload)
	}
}

// dispatch decodes one notification payload and hands it to every matching
// subscription.
func (f *ChangeFeed) dispatch(payload string) {
	var ev domain.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		f.logger.Warn().Err(err).Msg("malformed change notification")
		return
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		if sub.collection != ev.Collection {
			continue
		}
		if sub.accountID != "" && sub.accountID != ev.AccountID {
			continue
		}
		sub.handler(ev)
	}
}
