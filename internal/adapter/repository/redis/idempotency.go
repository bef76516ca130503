package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iho/ledgersync/internal/domain"
)

// PendingResponse marks a key whose first request is still running.
const PendingResponse = "processing"

// IdempotencyStore implements usecase.IdempotencyStore using Redis.
type IdempotencyStore struct {
	client redis.UniversalClient
	prefix string
}

// NewIdempotencyStore creates a new IdempotencyStore.
func NewIdempotencyStore(client redis.UniversalClient) *IdempotencyStore {
	return &IdempotencyStore{
		client: client,
		prefix: "ledgersync:idempotency:",
	}
}

// CheckAndSet claims key with response, or with PendingResponse when response
// is nil. If the key is already claimed it returns true and the stored value.
func (s *IdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	fullKey := s.prefix + key

	var value any = PendingResponse
	if response != nil {
		value = response
	}

	set, err := s.client.SetNX(ctx, fullKey, value, ttl).Result()
	if err != nil {
		return false, nil, &domain.NetworkError{Op: "idempotency claim", Err: err}
	}
	if set {
		return false, nil, nil
	}

	existing, err := s.client.Get(ctx, fullKey).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls; the caller may proceed.
		return false, nil, nil
	}
	if err != nil {
		return false, nil, &domain.NetworkError{Op: "idempotency lookup", Err: err}
	}
	return true, existing, nil
}

// Update stores the final response for key.
func (s *IdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, response, ttl).Err(); err != nil {
		return &domain.NetworkError{Op: "idempotency update", Err: err}
	}
	return nil
}

// Release drops a claim so that the request can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return &domain.NetworkError{Op: "idempotency release", Err: err}
	}
	return nil
}
