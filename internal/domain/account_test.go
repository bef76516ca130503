package domain

import (
	"errors"
	"testing"
)

func TestAccount_Spend(t *testing.T) {
	tests := []struct {
		name        string
		balance     int64
		spent       int64
		amount      int64
		wantErr     error
		wantBalance int64
		wantSpent   int64
	}{
		{name: "spend less than balance", balance: 1000, amount: 300, wantBalance: 700, wantSpent: 300},
		{name: "spend exact balance", balance: 300, spent: 10, amount: 300, wantBalance: 0, wantSpent: 310},
		{name: "insufficient balance", balance: 100, amount: 150, wantErr: ErrInsufficientBalance, wantBalance: 100},
		{name: "zero amount", balance: 100, amount: 0, wantErr: ErrInvalidAmount, wantBalance: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := &Account{Balance: tt.balance, AmountSpent: tt.spent}
			err := acc.Spend(tt.amount)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if acc.Balance != tt.wantBalance || acc.AmountSpent != tt.wantSpent {
				t.Fatalf("got balance=%d spent=%d, want %d/%d", acc.Balance, acc.AmountSpent, tt.wantBalance, tt.wantSpent)
			}
		})
	}
}

func TestAccount_ApplyEntryEdit(t *testing.T) {
	tests := []struct {
		name        string
		balance     int64
		spent       int64
		oldTotal    int64
		newTotal    int64
		wantErr     error
		wantBalance int64
		wantSpent   int64
	}{
		{
			name:    "decrease total refunds difference",
			balance: 850, spent: 150, oldTotal: 150, newTotal: 130,
			wantBalance: 870, wantSpent: 130,
		},
		{
			name:    "decrease floors spent at zero",
			balance: 500, spent: 5, oldTotal: 150, newTotal: 130,
			wantBalance: 520, wantSpent: 0,
		},
		{
			name:    "increase charges difference",
			balance: 100, spent: 50, oldTotal: 50, newTotal: 120,
			wantBalance: 30, wantSpent: 120,
		},
		{
			name:    "increase beyond balance",
			balance: 10, spent: 50, oldTotal: 50, newTotal: 100,
			wantErr: ErrInsufficientBalance, wantBalance: 10, wantSpent: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := &Account{Balance: tt.balance, AmountSpent: tt.spent}
			err := acc.ApplyEntryEdit(tt.oldTotal, tt.newTotal)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if acc.Balance != tt.wantBalance || acc.AmountSpent != tt.wantSpent {
				t.Fatalf("got balance=%d spent=%d, want %d/%d", acc.Balance, acc.AmountSpent, tt.wantBalance, tt.wantSpent)
			}
		})
	}
}

func TestAccount_RefundClampsSpent(t *testing.T) {
	acc := &Account{Balance: 1000, AmountSpent: 0}
	if err := acc.Refund(300); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.Balance != 1300 || acc.AmountSpent != 0 {
		t.Fatalf("got balance=%d spent=%d", acc.Balance, acc.AmountSpent)
	}
	if err := acc.Refund(-1); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
}

func TestAccount_WithdrawNeverGoesNegative(t *testing.T) {
	acc := &Account{Balance: 1000}
	if err := acc.Withdraw(5000); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if acc.Balance != 1000 {
		t.Fatalf("balance changed to %d", acc.Balance)
	}
	if err := acc.Withdraw(1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.Balance != 0 {
		t.Fatalf("expected zero balance, got %d", acc.Balance)
	}
}

func TestAccount_ResetAndSetSpent(t *testing.T) {
	acc := &Account{Balance: 50, AmountSpent: 400}
	acc.ResetSpent()
	if acc.AmountSpent != 0 || acc.Balance != 50 {
		t.Fatalf("reset touched the wrong field: %+v", acc)
	}
	acc.SetSpent(-20)
	if acc.AmountSpent != 0 {
		t.Fatalf("expected clamped spent, got %d", acc.AmountSpent)
	}
	acc.SetSpent(75)
	if acc.AmountSpent != 75 {
		t.Fatalf("expected 75, got %d", acc.AmountSpent)
	}
}

func TestBalanceHistoryRecord_Apply(t *testing.T) {
	acc := &Account{Balance: 700}
	top := &BalanceHistoryRecord{Kind: HistoryKindTopUp, Amount: 500}
	if err := top.Apply(acc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wd := &BalanceHistoryRecord{Kind: HistoryKindWithdrawal, Amount: -200}
	if err := wd.Apply(acc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.Balance != 1000 {
		t.Fatalf("expected 1000, got %d", acc.Balance)
	}
}
