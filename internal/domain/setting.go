package domain

import "time"

// Setting is a named, globally shared configuration value.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Setting) RecordID() string        { return s.Key }
func (s *Setting) RecordAccountID() string { return "" }

// Record is anything the local cache can store: it has an id unique within its
// collection and optionally belongs to an account.
type Record interface {
	RecordID() string
	RecordAccountID() string
}
