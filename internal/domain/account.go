package domain

import (
	"time"
)

// Account holds the spendable balance of one user. Balance never drops below
// zero and AmountSpent is clamped at zero; both are only changed by the
// balance ledger methods below.
type Account struct {
	ID          string    `json:"id"`
	Balance     int64     `json:"balance"`
	AmountSpent int64     `json:"amount_spent"`
	Active      bool      `json:"active"`
	Role        Role      `json:"role"`
	Tier        Tier      `json:"tier"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Tier is a service level flag carried on the account.
type Tier string

const (
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

func (a *Account) RecordID() string        { return a.ID }
func (a *Account) RecordAccountID() string { return a.ID }

// Clone returns a copy that can be mutated without touching the receiver.
func (a *Account) Clone() *Account {
	c := *a
	return &c
}

// Spend charges amount for a new entry.
func (a *Account) Spend(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Balance < amount {
		return ErrInsufficientBalance
	}
	a.Balance -= amount
	a.AmountSpent += amount
	return nil
}

// ApplyEntryEdit moves the difference between the old and new totals of an
// edited entry between balance and amount spent.
func (a *Account) ApplyEntryEdit(oldTotal, newTotal int64) error {
	balance := a.Balance + (oldTotal - newTotal)
	if balance < 0 {
		return ErrInsufficientBalance
	}
	a.Balance = balance
	a.AmountSpent = clampZero(a.AmountSpent + (newTotal - oldTotal))
	return nil
}

// Refund returns the total of a deleted entry.
func (a *Account) Refund(amount int64) error {
	if amount < 0 {
		return ErrNegativeAmount
	}
	a.Balance += amount
	a.AmountSpent = clampZero(a.AmountSpent - amount)
	return nil
}

// TopUp credits amount.
func (a *Account) TopUp(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	a.Balance += amount
	return nil
}

// Withdraw debits amount.
func (a *Account) Withdraw(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Balance < amount {
		return ErrInsufficientBalance
	}
	a.Balance -= amount
	return nil
}

// ResetSpent zeroes AmountSpent without touching the balance.
func (a *Account) ResetSpent() {
	a.AmountSpent = 0
}

// SetSpent overwrites AmountSpent with a recomputed value.
func (a *Account) SetSpent(spent int64) {
	a.AmountSpent = clampZero(spent)
}

func clampZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
