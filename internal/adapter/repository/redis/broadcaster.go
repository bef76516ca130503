package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iho/ledgersync/internal/domain"
)

// BroadcastChannel carries events between sessions.
const BroadcastChannel = "ledgersync:broadcast"

// Broadcaster publishes events to other sessions over Redis Pub/Sub and feeds
// theirs back in. Each session tags its messages with origin and ignores its
// own.
type Broadcaster struct {
	client  redis.UniversalClient
	channel string
	origin  string
	logger  zerolog.Logger
}

// NewBroadcaster creates a Broadcaster for the session named origin.
func NewBroadcaster(client redis.UniversalClient, origin string, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		client:  client,
		channel: BroadcastChannel,
		origin:  origin,
		logger:  logger,
	}
}

// Publish sends ev to every other session.
func (b *Broadcaster) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := domain.EncodeEvent(b.origin, ev)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return &domain.NetworkError{Op: "broadcast " + ev.Name(), Err: err}
	}
	return nil
}

// Listen delivers events from other sessions to deliver until ctx is done.
// It returns once the subscription is confirmed and keeps receiving in the
// background.
func (b *Broadcaster) Listen(ctx context.Context, deliver func(domain.Event)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return &domain.NetworkError{Op: "subscribe " + b.channel, Err: err}
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.receive(msg.Payload, deliver)
			}
		}
	}()
	return nil
}

func (b *Broadcaster) receive(payload string, deliver func(domain.Event)) {
	ev, origin, err := domain.DecodeEvent([]byte(payload))
	if err != nil {
		b.logger.Warn().Err(err).Msg("dropping malformed broadcast")
		return
	}
	if origin == b.origin {
		return
	}
	deliver(ev)
}
