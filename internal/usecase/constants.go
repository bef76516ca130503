package usecase

import "time"

const (
	// DefaultReplayTimeout bounds one queued mutation replay, including retries
	DefaultReplayTimeout = 30 * time.Second

	// DefaultHistoryLimit is how many balance history records a read returns
	DefaultHistoryLimit = 100

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour
)
