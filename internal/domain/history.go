package domain

import "time"

// HistoryKind tells an explicit balance load from a withdrawal.
type HistoryKind string

const (
	HistoryKindTopUp      HistoryKind = "top_up"
	HistoryKindWithdrawal HistoryKind = "withdrawal"
)

// BalanceHistoryRecord is an append-only trace of an explicit top-up or
// withdrawal. Amount is signed: positive for top-ups, negative for
// withdrawals.
type BalanceHistoryRecord struct {
	ID           string      `json:"id"`
	AccountID    string      `json:"account_id"`
	Amount       int64       `json:"amount"`
	Kind         HistoryKind `json:"kind"`
	BalanceAfter int64       `json:"balance_after"`
	CreatedAt    time.Time   `json:"created_at"`
}

func (r *BalanceHistoryRecord) RecordID() string        { return r.ID }
func (r *BalanceHistoryRecord) RecordAccountID() string { return r.AccountID }

// Apply runs the balance change the record describes against acct.
func (r *BalanceHistoryRecord) Apply(acct *Account) error {
	switch r.Kind {
	case HistoryKindTopUp:
		return acct.TopUp(r.Amount)
	case HistoryKindWithdrawal:
		return acct.Withdraw(-r.Amount)
	default:
		return ErrInvalidAmount
	}
}
