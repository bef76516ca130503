package domain

import (
	"encoding/json"
	"time"
)

// AdminActionLogEntry is an append-only audit record of an admin action.
type AdminActionLogEntry struct {
	ID              string          `json:"id"`
	AdminID         string          `json:"admin_id"`
	TargetAccountID string          `json:"target_account_id"`
	ActionType      AdminActionType `json:"action_type"`
	Description     string          `json:"description"`
	Metadata        JSON            `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (l *AdminActionLogEntry) RecordID() string        { return l.ID }
func (l *AdminActionLogEntry) RecordAccountID() string { return l.TargetAccountID }

// JSON is free-form metadata
type JSON map[string]any

// AdminActionType names an audited admin action
type AdminActionType string

const (
	// Balance actions
	AdminActionTopUp        AdminActionType = "balance.top_up"
	AdminActionWithdraw     AdminActionType = "balance.withdraw"
	AdminActionResetSpent   AdminActionType = "balance.reset_spent"
	AdminActionRepairSpent  AdminActionType = "balance.repair_spent"
	AdminActionResetHistory AdminActionType = "history.reset"

	// Entry actions taken on someone else's account
	AdminActionEntryUpdate AdminActionType = "entry.update"
	AdminActionEntryDelete AdminActionType = "entry.delete"

	// Overlay actions
	AdminActionDeductionCreate AdminActionType = "deduction.create"
	AdminActionDeductionDelete AdminActionType = "deduction.delete"

	// Settings
	AdminActionSettingUpdate AdminActionType = "setting.update"
)

// MarshalState converts a domain object to JSON for audit metadata
func MarshalState(v any) JSON {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return JSON{"error": "failed to marshal state"}
	}

	var result JSON
	if err := json.Unmarshal(data, &result); err != nil {
		return JSON{"error": "failed to unmarshal state"}
	}

	return result
}
