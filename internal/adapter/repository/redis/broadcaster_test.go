package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/ledgersync/internal/domain"
)

func TestBroadcasterDeliversOtherSessionsOnly(t *testing.T) {
	client, _ := newTestRedisClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionA := NewBroadcaster(client, "session-a", zerolog.Nop())
	sessionB := NewBroadcaster(client, "session-b", zerolog.Nop())

	received := make(chan domain.Event, 4)
	require.NoError(t, sessionA.Listen(ctx, func(ev domain.Event) { received <- ev }))

	require.NoError(t, sessionA.Publish(ctx, domain.BalanceUpdated{AccountID: "acct-1", Balance: 1}))
	require.NoError(t, sessionB.Publish(ctx, domain.BalanceUpdated{AccountID: "acct-1", Balance: 2}))

	select {
	case ev := <-received:
		assert.Equal(t, domain.BalanceUpdated{AccountID: "acct-1", Balance: 2}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast received")
	}

	select {
	case ev := <-received:
		t.Fatalf("unexpected event %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcasterReceiveDropsMalformed(t *testing.T) {
	b := NewBroadcaster(nil, "session-a", zerolog.Nop())

	var got []domain.Event
	deliver := func(ev domain.Event) { got = append(got, ev) }

	b.receive("{", deliver)
	b.receive(`{"name":"unknown","origin":"session-b","data":{}}`, deliver)

	payload, err := domain.EncodeEvent("session-b", domain.SettingsUpdated{Key: "k", Value: "v"})
	require.NoError(t, err)
	b.receive(string(payload), deliver)

	assert.Equal(t, []domain.Event{domain.SettingsUpdated{Key: "k", Value: "v"}}, got)
}

func TestBroadcasterPublishRedisDown(t *testing.T) {
	client, mr := newTestRedisClient(t)
	mr.Close()

	err := NewBroadcaster(client, "s", zerolog.Nop()).Publish(context.Background(), domain.CacheChanged{Collection: "entries", ID: "e"})
	var netErr *domain.NetworkError
	assert.True(t, errors.As(err, &netErr))
}
