package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation errors
var (
	ErrAmountTooLarge    = newValidation("amount exceeds maximum allowed")
	ErrMetadataTooLarge  = newValidation("metadata size exceeds limit")
	ErrNotesTooLong      = newValidation("notes exceed maximum length")
	ErrInvalidIDFormat   = newValidation("invalid ID format")
	ErrInvalidSettingKey = newValidation("invalid setting key")
)

// Validation constants
const (
	MaxAmount       int64 = 1_000_000_000_000
	MaxNotesLength        = 1000
	MaxMetadataSize       = 10240 // 10KB
	MaxIDLength           = 64
)

var (
	idRegex         = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	settingKeyRegex = regexp.MustCompile(`^[a-z][a-z0-9_.]*$`)
)

// ValidateAmount validates a top-up, withdrawal or entry amount.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > MaxAmount {
		return fmt.Errorf("%w: maximum amount is %d", ErrAmountTooLarge, MaxAmount)
	}
	return nil
}

// ValidateEntryAmounts validates the amount pair of an entry. Zero is allowed
// for either field.
func ValidateEntryAmounts(first, second int64) error {
	if first < 0 || second < 0 {
		return ErrNegativeAmount
	}
	if first > MaxAmount || second > MaxAmount {
		return fmt.Errorf("%w: maximum amount is %d", ErrAmountTooLarge, MaxAmount)
	}
	return nil
}

// ValidateNotes validates free-form entry notes
func ValidateNotes(notes string) error {
	if len(notes) > MaxNotesLength {
		return fmt.Errorf("%w: %d characters", ErrNotesTooLong, MaxNotesLength)
	}
	return nil
}

// ValidateMetadata validates metadata size
func ValidateMetadata(metadata map[string]any) error {
	if metadata == nil {
		return nil
	}

	// Estimate size (rough approximation)
	size := 0
	for k, v := range metadata {
		size += len(k)
		size += len(fmt.Sprintf("%v", v))
	}

	if size > MaxMetadataSize {
		return fmt.Errorf("%w: metadata size %d bytes exceeds limit of %d bytes", ErrMetadataTooLarge, size, MaxMetadataSize)
	}

	return nil
}

// ValidateID checks a client supplied record id.
func ValidateID(id string) error {
	if id == "" || len(id) > MaxIDLength || !idRegex.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidIDFormat, id)
	}
	return nil
}

// ValidateSettingKey checks a settings key such as "display.currency".
func ValidateSettingKey(key string) error {
	key = strings.TrimSpace(key)
	if !settingKeyRegex.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidSettingKey, key)
	}
	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int, error) {
	const MaxPageSize = 1000
	const DefaultPageSize = 50

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset, nil
}
