package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every specific error below wraps exactly one of them so that
// callers can branch on the class with errors.Is.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrConfiguration = errors.New("backend misconfigured")
)

type classError struct {
	class error
	msg   string
}

func (e *classError) Error() string { return e.msg }
func (e *classError) Unwrap() error { return e.class }

func newValidation(msg string) error    { return &classError{class: ErrValidation, msg: msg} }
func newNotFound(msg string) error      { return &classError{class: ErrNotFound, msg: msg} }
func newConfiguration(msg string) error { return &classError{class: ErrConfiguration, msg: msg} }

var (
	// Ledger errors
	ErrInsufficientBalance = newValidation("insufficient balance")
	ErrInvalidAmount       = newValidation("amount must be positive")
	ErrNegativeAmount      = newValidation("amounts must not be negative")
	ErrAccountInactive     = newValidation("account is inactive")
	ErrForbidden           = newValidation("actor is not allowed to perform this operation")

	// Entry errors
	ErrInvalidEntryType = newValidation("invalid entry type")
	ErrEmptyNumber      = newValidation("entry number must not be empty")
	ErrInvalidDeduction = newValidation("deduction must reduce at least one amount")
	ErrEntryExists      = newValidation("an entry with this id already exists")

	// Sync errors
	ErrUnknownMutation = newValidation("unknown mutation kind")

	// Lookup errors
	ErrAccountNotFound   = newNotFound("account not found")
	ErrEntryNotFound     = newNotFound("entry not found")
	ErrDeductionNotFound = newNotFound("deduction not found")
	ErrSettingNotFound   = newNotFound("setting not found")

	// Backend errors
	ErrRemoteUnavailable = newConfiguration("remote store is not configured")
)

// ErrVersionConflict is returned by a compare-and-swap whose expected version
// no longer matches the stored one.
var ErrVersionConflict = errors.New("account version conflict")

// ErrAlreadyApplied is returned when an operation id has already been applied
// to the remote store.
var ErrAlreadyApplied = errors.New("operation already applied")

// NetworkError marks a failure of the transport to the remote store. It is the
// only error class the retry executor retries.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ConfigurationError wraps a backend error that retrying cannot fix.
func ConfigurationError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrConfiguration, op, err)
}

// IsPermanent reports whether err can never succeed on replay: validation
// failures and records that are absent remotely.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound)
}
