package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/usecase"
)

func TestCreateEntryRequest_ToUseCaseInput(t *testing.T) {
	var req CreateEntryRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"account_id": "acct-1",
		"number": "12, 34",
		"entry_type": "pair",
		"first_amount": 100,
		"second_amount": 20,
		"notes": "evening"
	}`), &req))

	assert.Equal(t, usecase.CreateEntryInput{
		AccountID:    "acct-1",
		Number:       "12, 34",
		Type:         domain.EntryTypePair,
		FirstAmount:  100,
		SecondAmount: 20,
		Notes:        "evening",
	}, req.ToUseCaseInput())
}

func TestUpdateEntryRequest_ToUseCaseInput(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType *domain.EntryType
		wantAmt  *int64
	}{
		{name: "empty keeps everything", body: `{}`},
		{name: "type only", body: `{"entry_type":"panel"}`, wantType: ptr(domain.EntryTypePanel)},
		{name: "zero amount is explicit", body: `{"first_amount":0}`, wantAmt: ptr(int64(0))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req UpdateEntryRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))

			got := req.ToUseCaseInput("e-1")
			assert.Equal(t, "e-1", got.ID)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantAmt, got.FirstAmount)
			assert.Nil(t, got.Number)
		})
	}
}

func TestRecordDeductionRequest_ToUseCaseInput(t *testing.T) {
	req := RecordDeductionRequest{DeductedFirst: 30, Kind: "write_off", Metadata: map[string]any{"reason": "typo"}}

	got := req.ToUseCaseInput("e-1")
	assert.Equal(t, "e-1", got.EntryID)
	assert.Equal(t, int64(30), got.DeductedFirst)
	assert.Equal(t, domain.DeductionKindWriteOff, got.Kind)
	assert.Equal(t, domain.JSON{"reason": "typo"}, got.Metadata)
}

func TestAdjustBalanceRequest_ToUseCaseInput(t *testing.T) {
	req := AdjustBalanceRequest{Amount: 250}
	assert.Equal(t, usecase.AdjustBalanceInput{AccountID: "acct-1", Amount: 250}, req.ToUseCaseInput("acct-1"))
}

func ptr[T any](v T) *T { return &v }
