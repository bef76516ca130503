package domain

import (
	"strings"
	"time"
	"unicode"
)

// EntryType is the closed set of entry categories.
type EntryType string

const (
	EntryTypeSingle EntryType = "single"
	EntryTypePair   EntryType = "pair"
	EntryTypeTriple EntryType = "triple"
	EntryTypePanel  EntryType = "panel"
)

var validEntryTypes = map[EntryType]bool{
	EntryTypeSingle: true,
	EntryTypePair:   true,
	EntryTypeTriple: true,
	EntryTypePanel:  true,
}

// IsValid checks if the entry type is one of the four known categories.
func (t EntryType) IsValid() bool {
	return validEntryTypes[t]
}

// Entry is a transaction owned by an account. Its Number field may encode
// several virtual sub-entries that share the amount pair.
type Entry struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	ScopeID      string    `json:"scope_id,omitempty"`
	Number       string    `json:"number"`
	Type         EntryType `json:"entry_type"`
	FirstAmount  int64     `json:"first_amount"`
	SecondAmount int64     `json:"second_amount"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (e *Entry) RecordID() string        { return e.ID }
func (e *Entry) RecordAccountID() string { return e.AccountID }

// Total is the amount charged to the account for the entry.
func (e *Entry) Total() int64 {
	return e.FirstAmount + e.SecondAmount
}

// Numbers splits Number into its virtual sub-entries. A plain number yields a
// single element.
func (e *Entry) Numbers() []string {
	return SplitNumbers(e.Number)
}

// IsBulk reports whether the entry expands into more than one sub-entry.
func (e *Entry) IsBulk() bool {
	return len(e.Numbers()) > 1
}

// Validate checks the fields a user controls.
func (e *Entry) Validate() error {
	if !e.Type.IsValid() {
		return ErrInvalidEntryType
	}
	if e.FirstAmount < 0 || e.SecondAmount < 0 {
		return ErrNegativeAmount
	}
	if len(e.Numbers()) == 0 {
		return ErrEmptyNumber
	}
	return nil
}

// Clone returns a copy of the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	return &c
}

// SplitNumbers tokenizes a comma and/or whitespace delimited list, dropping
// empty tokens.
func SplitNumbers(number string) []string {
	return strings.FieldsFunc(number, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}
