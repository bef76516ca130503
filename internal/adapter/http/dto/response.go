package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/usecase"
)

// AccountResponse represents an account in API responses.
type AccountResponse struct {
	ID          string    `json:"id"`
	Balance     int64     `json:"balance"`
	AmountSpent int64     `json:"amount_spent"`
	Active      bool      `json:"active"`
	Role        string    `json:"role"`
	Tier        string    `json:"tier"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AccountFromDomain converts domain account to response.
func AccountFromDomain(a *domain.Account) *AccountResponse {
	if a == nil {
		return nil
	}
	return &AccountResponse{
		ID:          a.ID,
		Balance:     a.Balance,
		AmountSpent: a.AmountSpent,
		Active:      a.Active,
		Role:        string(a.Role),
		Tier:        string(a.Tier),
		Version:     a.Version,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// EntryResponse represents an entry in API responses.
type EntryResponse struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	ScopeID      string    `json:"scope_id,omitempty"`
	Number       string    `json:"number"`
	Numbers      []string  `json:"numbers"`
	Type         string    `json:"entry_type"`
	FirstAmount  int64     `json:"first_amount"`
	SecondAmount int64     `json:"second_amount"`
	Total        int64     `json:"total"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EntryFromDomain converts domain entry to response.
func EntryFromDomain(e *domain.Entry) *EntryResponse {
	return &EntryResponse{
		ID:           e.ID,
		AccountID:    e.AccountID,
		ScopeID:      e.ScopeID,
		Number:       e.Number,
		Numbers:      e.Numbers(),
		Type:         string(e.Type),
		FirstAmount:  e.FirstAmount,
		SecondAmount: e.SecondAmount,
		Total:        e.Total(),
		Notes:        e.Notes,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

// EntriesFromDomain converts domain entries to responses.
func EntriesFromDomain(entries []*domain.Entry) []*EntryResponse {
	result := make([]*EntryResponse, len(entries))
	for i, e := range entries {
		result[i] = EntryFromDomain(e)
	}
	return result
}

// EntryResultResponse is returned by entry writes.
type EntryResultResponse struct {
	Entry   *EntryResponse   `json:"entry"`
	Account *AccountResponse `json:"account"`
}

// EntryResultFromUseCase converts a use case result to response.
func EntryResultFromUseCase(r *usecase.EntryResult) *EntryResultResponse {
	return &EntryResultResponse{
		Entry:   EntryFromDomain(r.Entry),
		Account: AccountFromDomain(r.Account),
	}
}

// HistoryResponse represents a balance history record.
type HistoryResponse struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	Amount       int64     `json:"amount"`
	Kind         string    `json:"kind"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// HistoryFromDomain converts domain history records to responses.
func HistoryFromDomain(records []*domain.BalanceHistoryRecord) []*HistoryResponse {
	result := make([]*HistoryResponse, len(records))
	for i, r := range records {
		result[i] = &HistoryResponse{
			ID:           r.ID,
			AccountID:    r.AccountID,
			Amount:       r.Amount,
			Kind:         string(r.Kind),
			BalanceAfter: r.BalanceAfter,
			CreatedAt:    r.CreatedAt,
		}
	}
	return result
}

// BalanceResultResponse is returned by top-up and withdraw.
type BalanceResultResponse struct {
	Account *AccountResponse `json:"account"`
	Record  *HistoryResponse `json:"record"`
}

// BalanceResultFromUseCase converts a use case result to response.
func BalanceResultFromUseCase(r *usecase.BalanceResult) *BalanceResultResponse {
	return &BalanceResultResponse{
		Account: AccountFromDomain(r.Account),
		Record:  HistoryFromDomain([]*domain.BalanceHistoryRecord{r.Record})[0],
	}
}

// DeductionResponse represents an admin deduction.
type DeductionResponse struct {
	ID             string         `json:"id"`
	EntryID        string         `json:"entry_id"`
	AccountID      string         `json:"account_id"`
	AdminID        string         `json:"admin_id"`
	DeductedFirst  int64          `json:"deducted_first"`
	DeductedSecond int64          `json:"deducted_second"`
	Kind           string         `json:"kind"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// DeductionFromDomain converts domain deduction to response.
func DeductionFromDomain(d *domain.AdminDeduction) *DeductionResponse {
	return &DeductionResponse{
		ID:             d.ID,
		EntryID:        d.EntryID,
		AccountID:      d.AccountID,
		AdminID:        d.AdminID,
		DeductedFirst:  d.DeductedFirst,
		DeductedSecond: d.DeductedSecond,
		Kind:           string(d.Kind),
		Metadata:       d.Metadata,
		CreatedAt:      d.CreatedAt,
	}
}

// SubEntryResponse is one virtual sub-entry in the admin view.
type SubEntryResponse struct {
	Number       string          `json:"number"`
	FirstAmount  decimal.Decimal `json:"first_amount"`
	SecondAmount decimal.Decimal `json:"second_amount"`
}

// EntryViewResponse is one entry of the admin view.
type EntryViewResponse struct {
	Entry          *EntryResponse     `json:"entry"`
	DeductedFirst  int64              `json:"deducted_first"`
	DeductedSecond int64              `json:"deducted_second"`
	SubEntries     []SubEntryResponse `json:"sub_entries"`
	DisplayFirst   decimal.Decimal    `json:"display_first"`
	DisplaySecond  decimal.Decimal    `json:"display_second"`
}

// AdminViewResponse is the deduction-adjusted view of an account.
type AdminViewResponse struct {
	AccountID      string               `json:"account_id"`
	Entries        []*EntryViewResponse `json:"entries"`
	StoredFirst    int64                `json:"stored_first"`
	StoredSecond   int64                `json:"stored_second"`
	DeductedFirst  int64                `json:"deducted_first"`
	DeductedSecond int64                `json:"deducted_second"`
	DisplayFirst   decimal.Decimal      `json:"display_first"`
	DisplaySecond  decimal.Decimal      `json:"display_second"`
}

// AdminViewFromDomain converts the admin projection to response.
func AdminViewFromDomain(v *domain.AdminView) *AdminViewResponse {
	resp := &AdminViewResponse{
		AccountID:      v.AccountID,
		Entries:        make([]*EntryViewResponse, len(v.Entries)),
		StoredFirst:    v.StoredFirst,
		StoredSecond:   v.StoredSecond,
		DeductedFirst:  v.DeductedFirst,
		DeductedSecond: v.DeductedSecond,
		DisplayFirst:   v.DisplayFirst,
		DisplaySecond:  v.DisplaySecond,
	}
	for i, ev := range v.Entries {
		subs := make([]SubEntryResponse, len(ev.SubEntries))
		for j, s := range ev.SubEntries {
			subs[j] = SubEntryResponse(s)
		}
		resp.Entries[i] = &EntryViewResponse{
			Entry:          EntryFromDomain(ev.Entry),
			DeductedFirst:  ev.Deduction.First,
			DeductedSecond: ev.Deduction.Second,
			SubEntries:     subs,
			DisplayFirst:   ev.DisplayFirst,
			DisplaySecond:  ev.DisplaySecond,
		}
	}
	return resp
}

// SettingResponse represents a setting.
type SettingResponse struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SettingFromDomain converts domain setting to response.
func SettingFromDomain(s *domain.Setting) *SettingResponse {
	return &SettingResponse{Key: s.Key, Value: s.Value, UpdatedAt: s.UpdatedAt}
}

// QueueItemResponse represents a pending sync queue item.
type QueueItemResponse struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	Entity    string    `json:"entity"`
	Operation string    `json:"operation"`
	Kind      string    `json:"kind"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// QueueFromDomain converts queue items to responses.
func QueueFromDomain(items []*domain.SyncQueueItem) []*QueueItemResponse {
	result := make([]*QueueItemResponse, len(items))
	for i, item := range items {
		result[i] = &QueueItemResponse{
			ID:        item.ID,
			Seq:       item.Seq,
			Entity:    string(item.Entity),
			Operation: string(item.Operation),
			Kind:      string(item.Kind),
			Attempts:  item.Attempts,
			LastError: item.LastError,
			CreatedAt: item.CreatedAt,
		}
	}
	return result
}

// SyncStatusResponse reports connectivity and queue depth.
type SyncStatusResponse struct {
	Online  bool `json:"online"`
	Pending int  `json:"pending"`
	Failing int  `json:"failing"`
}

// SyncStatusFromDomain summarizes the queue.
func SyncStatusFromDomain(online bool, items []*domain.SyncQueueItem) *SyncStatusResponse {
	resp := &SyncStatusResponse{Online: online, Pending: len(items)}
	for _, item := range items {
		if item.Attempts > 0 {
			resp.Failing++
		}
	}
	return resp
}

// AuditLogResponse represents an admin action log entry.
type AuditLogResponse struct {
	ID              string         `json:"id"`
	AdminID         string         `json:"admin_id"`
	TargetAccountID string         `json:"target_account_id,omitempty"`
	ActionType      string         `json:"action_type"`
	Description     string         `json:"description"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// AuditLogsFromDomain converts audit entries to responses.
func AuditLogsFromDomain(logs []*domain.AdminActionLogEntry) []*AuditLogResponse {
	result := make([]*AuditLogResponse, len(logs))
	for i, l := range logs {
		result[i] = &AuditLogResponse{
			ID:              l.ID,
			AdminID:         l.AdminID,
			TargetAccountID: l.TargetAccountID,
			ActionType:      string(l.ActionType),
			Description:     l.Description,
			Metadata:        l.Metadata,
			CreatedAt:       l.CreatedAt,
		}
	}
	return result
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
