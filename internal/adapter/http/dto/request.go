package dto

import (
	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/usecase"
)

// AdjustBalanceRequest is the body of top-up and withdraw requests.
type AdjustBalanceRequest struct {
	Amount int64 `json:"amount"`
}

// ToUseCaseInput converts to use case input.
func (r *AdjustBalanceRequest) ToUseCaseInput(accountID string) usecase.AdjustBalanceInput {
	return usecase.AdjustBalanceInput{AccountID: accountID, Amount: r.Amount}
}

// CreateEntryRequest represents a request to create an entry.
type CreateEntryRequest struct {
	ID           string `json:"id,omitempty"`
	AccountID    string `json:"account_id"`
	ScopeID      string `json:"scope_id,omitempty"`
	Number       string `json:"number"`
	Type         string `json:"entry_type"`
	FirstAmount  int64  `json:"first_amount"`
	SecondAmount int64  `json:"second_amount"`
	Notes        string `json:"notes,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateEntryRequest) ToUseCaseInput() usecase.CreateEntryInput {
	return usecase.CreateEntryInput{
		ID:           r.ID,
		AccountID:    r.AccountID,
		ScopeID:      r.ScopeID,
		Number:       r.Number,
		Type:         domain.EntryType(r.Type),
		FirstAmount:  r.FirstAmount,
		SecondAmount: r.SecondAmount,
		Notes:        r.Notes,
	}
}

// UpdateEntryRequest represents a partial edit. Omitted fields are kept.
type UpdateEntryRequest struct {
	Number       *string `json:"number,omitempty"`
	Type         *string `json:"entry_type,omitempty"`
	FirstAmount  *int64  `json:"first_amount,omitempty"`
	SecondAmount *int64  `json:"second_amount,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *UpdateEntryRequest) ToUseCaseInput(id string) usecase.UpdateEntryInput {
	input := usecase.UpdateEntryInput{
		ID:           id,
		Number:       r.Number,
		FirstAmount:  r.FirstAmount,
		SecondAmount: r.SecondAmount,
		Notes:        r.Notes,
	}
	if r.Type != nil {
		t := domain.EntryType(*r.Type)
		input.Type = &t
	}
	return input
}

// RecordDeductionRequest represents an admin deduction against an entry.
type RecordDeductionRequest struct {
	DeductedFirst  int64          `json:"deducted_first"`
	DeductedSecond int64          `json:"deducted_second"`
	Kind           string         `json:"kind,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *RecordDeductionRequest) ToUseCaseInput(entryID string) usecase.RecordDeductionInput {
	return usecase.RecordDeductionInput{
		EntryID:        entryID,
		DeductedFirst:  r.DeductedFirst,
		DeductedSecond: r.DeductedSecond,
		Kind:           domain.DeductionKind(r.Kind),
		Metadata:       r.Metadata,
	}
}

// SetSettingRequest is the body of a setting update.
type SetSettingRequest struct {
	Value string `json:"value"`
}
