package domain

import "time"

// SyncQueueItem is a mutation waiting for confirmed remote application.
// Seq is assigned by the queue store and defines replay order. Mutation is nil
// when the stored payload could not be decoded.
type SyncQueueItem struct {
	ID        string       `json:"id"`
	Seq       int64        `json:"seq"`
	Entity    Entity       `json:"entity"`
	Operation Operation    `json:"operation"`
	Kind      MutationKind `json:"kind"`
	Mutation  Mutation     `json:"-"`
	CreatedAt time.Time    `json:"created_at"`
	Attempts  int          `json:"attempts"`
	LastError string       `json:"last_error,omitempty"`
}

// DrainResult summarizes one pass over the queue.
type DrainResult struct {
	Applied   int `json:"applied"`
	Failed    int `json:"failed"`
	Discarded int `json:"discarded"`
	Deferred  int `json:"deferred"`
	Remaining int `json:"remaining"`
}
