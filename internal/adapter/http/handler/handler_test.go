package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/ledgersync/internal/adapter/http/dto"
	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/usecase"
)

var (
	admin = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
	user  = domain.Actor{ID: "u1", Role: domain.RoleUser}
)

type stubLedger struct {
	LedgerService
	accounts map[string]*domain.Account
	gotInput usecase.AdjustBalanceInput
	gotLimit int
}

func (s *stubLedger) GetAccount(_ context.Context, actor domain.Actor, id string) (*domain.Account, error) {
	if !actor.CanAccess(id) {
		return nil, domain.ErrForbidden
	}
	acct, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return acct, nil
}

func (s *stubLedger) History(_ context.Context, _ domain.Actor, id string, limit int) ([]*domain.BalanceHistoryRecord, error) {
	s.gotLimit = limit
	return []*domain.BalanceHistoryRecord{{ID: "h1", AccountID: id, Amount: 50, Kind: domain.HistoryKindTopUp, BalanceAfter: 50}}, nil
}

func (s *stubLedger) TopUp(_ context.Context, actor domain.Actor, in usecase.AdjustBalanceInput) (*usecase.BalanceResult, error) {
	s.gotInput = in
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	acct := &domain.Account{ID: in.AccountID, Balance: in.Amount, Active: true}
	return &usecase.BalanceResult{
		Account: acct,
		Record:  &domain.BalanceHistoryRecord{ID: "h1", AccountID: in.AccountID, Amount: in.Amount, Kind: domain.HistoryKindTopUp, BalanceAfter: in.Amount},
	}, nil
}

func (s *stubLedger) Withdraw(_ context.Context, _ domain.Actor, in usecase.AdjustBalanceInput) (*usecase.BalanceResult, error) {
	s.gotInput = in
	return nil, domain.ErrInsufficientBalance
}

func (s *stubLedger) ResetSpent(_ context.Context, _ domain.Actor, id string) (*domain.Account, error) {
	return &domain.Account{ID: id}, nil
}

func (s *stubLedger) RepairSpent(_ context.Context, _ domain.Actor, id string) (*domain.Account, error) {
	return &domain.Account{ID: id, AmountSpent: 30}, nil
}

func withActor(r *http.Request, actor domain.Actor) *http.Request {
	return r.WithContext(domain.ContextWithActor(r.Context(), actor))
}

func serve(t *testing.T, pattern, method, target string, body any, actor *domain.Actor, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if actor != nil {
		req = withActor(req, *actor)
	}

	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestAccountHandler_Get(t *testing.T) {
	ledger := &stubLedger{accounts: map[string]*domain.Account{
		"u1": {ID: "u1", Balance: 100, Active: true, Role: domain.RoleUser},
	}}
	h := NewAccountHandler(ledger)

	tests := []struct {
		name   string
		target string
		actor  *domain.Actor
		status int
	}{
		{"own account", "/accounts/u1", &user, http.StatusOK},
		{"admin reads any", "/accounts/u1", &admin, http.StatusOK},
		{"other account", "/accounts/u2", &user, http.StatusForbidden},
		{"missing", "/accounts/nope", &admin, http.StatusNotFound},
		{"anonymous", "/accounts/u1", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, "/accounts/{id}", http.MethodGet, tt.target, nil, tt.actor, h.Get)
			assert.Equal(t, tt.status, rr.Code)
		})
	}

	rr := serve(t, "/accounts/{id}", http.MethodGet, "/accounts/u1", nil, &user, h.Get)
	var resp dto.AccountResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, int64(100), resp.Balance)
	assert.True(t, resp.Active)
}

func TestAccountHandler_History_Limit(t *testing.T) {
	ledger := &stubLedger{}
	h := NewAccountHandler(ledger)

	rr := serve(t, "/accounts/{id}/history", http.MethodGet, "/accounts/u1/history?limit=5", nil, &user, h.History)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 5, ledger.gotLimit)

	serve(t, "/accounts/{id}/history", http.MethodGet, "/accounts/u1/history", nil, &user, h.History)
	assert.Equal(t, usecase.DefaultHistoryLimit, ledger.gotLimit)
}

func TestAccountHandler_TopUp(t *testing.T) {
	ledger := &stubLedger{}
	h := NewAccountHandler(ledger)

	rr := serve(t, "/accounts/{id}/top-up", http.MethodPost, "/accounts/u1/top-up", dto.AdjustBalanceRequest{Amount: 75}, &admin, h.TopUp)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, usecase.AdjustBalanceInput{AccountID: "u1", Amount: 75}, ledger.gotInput)

	var resp dto.BalanceResultResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, int64(75), resp.Account.Balance)
	assert.Equal(t, int64(75), resp.Record.BalanceAfter)

	rr = serve(t, "/accounts/{id}/top-up", http.MethodPost, "/accounts/u1/top-up", dto.AdjustBalanceRequest{Amount: 75}, &user, h.TopUp)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestAccountHandler_Withdraw_Insufficient(t *testing.T) {
	h := NewAccountHandler(&stubLedger{})

	rr := serve(t, "/accounts/{id}/withdraw", http.MethodPost, "/accounts/u1/withdraw", dto.AdjustBalanceRequest{Amount: 500}, &admin, h.Withdraw)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "failed to withdraw", resp.Error)
	assert.Equal(t, domain.ErrInsufficientBalance.Error(), resp.Message)
}

func TestAccountHandler_BadBody(t *testing.T) {
	h := NewAccountHandler(&stubLedger{})

	req := withActor(httptest.NewRequest(http.MethodPost, "/accounts/u1/top-up", bytes.NewBufferString("{")), admin)
	r := chi.NewRouter()
	r.Post("/accounts/{id}/top-up", h.TopUp)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAccountHandler_RepairSpent(t *testing.T) {
	h := NewAccountHandler(&stubLedger{})

	rr := serve(t, "/accounts/{id}/repair-spent", http.MethodPost, "/accounts/u1/repair-spent", nil, &admin, h.RepairSpent)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp dto.AccountResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, int64(30), resp.AmountSpent)
}

type stubEntries struct {
	EntryService
	created usecase.CreateEntryInput
	updated usecase.UpdateEntryInput
	err     error
}

func (s *stubEntries) Create(_ context.Context, _ domain.Actor, in usecase.CreateEntryInput) (*usecase.EntryResult, error) {
	s.created = in
	if s.err != nil {
		return nil, s.err
	}
	return &usecase.EntryResult{
		Entry:   &domain.Entry{ID: "e1", AccountID: in.AccountID, Number: in.Number, Type: in.Type, FirstAmount: in.FirstAmount, SecondAmount: in.SecondAmount},
		Account: &domain.Account{ID: in.AccountID, Balance: 100 - in.FirstAmount - in.SecondAmount},
	}, nil
}

func (s *stubEntries) Update(_ context.Context, _ domain.Actor, in usecase.UpdateEntryInput) (*usecase.EntryResult, error) {
	s.updated = in
	return &usecase.EntryResult{Entry: &domain.Entry{ID: in.ID}, Account: &domain.Account{ID: "u1"}}, nil
}

func (s *stubEntries) Delete(_ context.Context, _ domain.Actor, id string) (*domain.Account, error) {
	if id == "missing" {
		return nil, domain.ErrEntryNotFound
	}
	return &domain.Account{ID: "u1", Balance: 100}, nil
}

func (s *stubEntries) List(_ context.Context, _ domain.Actor, accountID string) ([]*domain.Entry, error) {
	return []*domain.Entry{
		{ID: "e2", AccountID: accountID, Number: "12, 34", Type: domain.EntryTypePair, FirstAmount: 5},
		{ID: "e1", AccountID: accountID, Number: "7", Type: domain.EntryTypeSingle, FirstAmount: 3},
	}, nil
}

func TestEntryHandler_Create(t *testing.T) {
	entries := &stubEntries{}
	h := NewEntryHandler(entries)

	body := dto.CreateEntryRequest{AccountID: "u1", Number: "12 34", Type: "pair", FirstAmount: 10, SecondAmount: 5}
	rr := serve(t, "/entries", http.MethodPost, "/entries", body, &user, h.Create)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, domain.EntryTypePair, entries.created.Type)

	var resp dto.EntryResultResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, []string{"12", "34"}, resp.Entry.Numbers)
	assert.Equal(t, int64(15), resp.Entry.Total)
	assert.Equal(t, int64(85), resp.Account.Balance)
}

func TestEntryHandler_Create_Rejected(t *testing.T) {
	h := NewEntryHandler(&stubEntries{err: domain.ErrInvalidEntryType})

	rr := serve(t, "/entries", http.MethodPost, "/entries", dto.CreateEntryRequest{AccountID: "u1", Number: "1", Type: "quad"}, &user, h.Create)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEntryHandler_UpdateUsesPathID(t *testing.T) {
	entries := &stubEntries{}
	h := NewEntryHandler(entries)

	notes := "fixed"
	rr := serve(t, "/entries/{id}", http.MethodPatch, "/entries/e9", dto.UpdateEntryRequest{Notes: &notes}, &user, h.Update)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "e9", entries.updated.ID)
}

func TestEntryHandler_Delete(t *testing.T) {
	h := NewEntryHandler(&stubEntries{})

	rr := serve(t, "/entries/{id}", http.MethodDelete, "/entries/e1", nil, &user, h.Delete)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(t, "/entries/{id}", http.MethodDelete, "/entries/missing", nil, &user, h.Delete)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestEntryHandler_ListByAccount(t *testing.T) {
	h := NewEntryHandler(&stubEntries{})

	rr := serve(t, "/accounts/{id}/entries", http.MethodGet, "/accounts/u1/entries", nil, &user, h.ListByAccount)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp []dto.EntryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "e2", resp[0].ID)
}

type stubDeductions struct {
	DeductionService
	undone [2]string
}

func (s *stubDeductions) Record(_ context.Context, actor domain.Actor, in usecase.RecordDeductionInput) (*domain.AdminDeduction, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	return &domain.AdminDeduction{ID: "d1", EntryID: in.EntryID, AccountID: "u1", AdminID: actor.ID, DeductedFirst: in.DeductedFirst}, nil
}

func (s *stubDeductions) Undo(_ context.Context, _ domain.Actor, accountID, deductionID string) error {
	s.undone = [2]string{accountID, deductionID}
	return nil
}

func TestDeductionHandler_Record(t *testing.T) {
	h := NewDeductionHandler(&stubDeductions{})

	body := dto.RecordDeductionRequest{DeductedFirst: 4}
	rr := serve(t, "/entries/{id}/deductions", http.MethodPost, "/entries/e1/deductions", body, &admin, h.Record)
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp dto.DeductionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "e1", resp.EntryID)
	assert.Equal(t, "admin-1", resp.AdminID)

	rr = serve(t, "/entries/{id}/deductions", http.MethodPost, "/entries/e1/deductions", body, &user, h.Record)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestDeductionHandler_Undo(t *testing.T) {
	deductions := &stubDeductions{}
	h := NewDeductionHandler(deductions)

	rr := serve(t, "/accounts/{id}/deductions/{deductionID}", http.MethodDelete, "/accounts/u1/deductions/d1", nil, &admin, h.Undo)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, [2]string{"u1", "d1"}, deductions.undone)
}

type stubSettings struct {
	values map[string]string
	closed bool
}

func (s *stubSettings) Get(_ context.Context, key string) (*domain.Setting, error) {
	v, ok := s.values[key]
	if !ok {
		return nil, domain.ErrSettingNotFound
	}
	return &domain.Setting{Key: key, Value: v}, nil
}

func (s *stubSettings) All() (map[string]string, error) {
	if s.closed {
		return nil, usecase.ErrSettingsClosed
	}
	return s.values, nil
}

func (s *stubSettings) Set(_ context.Context, actor domain.Actor, key, value string) (*domain.Setting, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	s.values[key] = value
	return &domain.Setting{Key: key, Value: value}, nil
}

func TestSettingsHandler(t *testing.T) {
	settings := &stubSettings{values: map[string]string{"currency": "EUR"}}
	h := NewSettingsHandler(settings)

	rr := serve(t, "/settings/{key}", http.MethodGet, "/settings/currency", nil, nil, h.Get)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(t, "/settings/{key}", http.MethodGet, "/settings/nope", nil, nil, h.Get)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(t, "/settings/{key}", http.MethodPut, "/settings/currency", dto.SetSettingRequest{Value: "USD"}, &admin, h.Set)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "USD", settings.values["currency"])

	rr = serve(t, "/settings/{key}", http.MethodPut, "/settings/currency", dto.SetSettingRequest{Value: "GBP"}, &user, h.Set)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(t, "/settings", http.MethodGet, "/settings", nil, nil, h.List)
	require.Equal(t, http.StatusOK, rr.Code)
	var all map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &all))
	assert.Equal(t, map[string]string{"currency": "USD"}, all)

	settings.closed = true
	rr = serve(t, "/settings", http.MethodGet, "/settings", nil, nil, h.List)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

type stubSync struct {
	online  bool
	items   []*domain.SyncQueueItem
	drained int
}

func (s *stubSync) IsOnline() bool { return s.online }

func (s *stubSync) Pending(context.Context) ([]*domain.SyncQueueItem, error) { return s.items, nil }

func (s *stubSync) Drain(context.Context) (domain.DrainResult, error) {
	s.drained++
	return domain.DrainResult{Applied: len(s.items)}, nil
}

func TestSyncHandler(t *testing.T) {
	sync := &stubSync{items: []*domain.SyncQueueItem{
		{ID: "q1", Seq: 1, Kind: domain.KindEntryCreated, CreatedAt: time.Unix(0, 0)},
		{ID: "q2", Seq: 2, Kind: domain.KindEntryCreated, Attempts: 2, LastError: "timeout", CreatedAt: time.Unix(0, 0)},
	}}
	h := NewSyncHandler(sync)

	rr := serve(t, "/sync/status", http.MethodGet, "/sync/status", nil, nil, h.Status)
	require.Equal(t, http.StatusOK, rr.Code)
	var status dto.SyncStatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.False(t, status.Online)
	assert.Equal(t, 2, status.Pending)
	assert.Equal(t, 1, status.Failing)

	rr = serve(t, "/sync/drain", http.MethodPost, "/sync/drain", nil, nil, h.Drain)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Zero(t, sync.drained)

	sync.online = true
	rr = serve(t, "/sync/drain", http.MethodPost, "/sync/drain", nil, nil, h.Drain)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, sync.drained)

	rr = serve(t, "/sync/queue", http.MethodGet, "/sync/queue", nil, nil, h.Queue)
	require.Equal(t, http.StatusOK, rr.Code)
	var queue []dto.QueueItemResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &queue))
	assert.Len(t, queue, 2)
}

type stubAudit struct{ limit, offset int }

func (s *stubAudit) List(_ context.Context, actor domain.Actor, accountID string, limit, offset int) ([]*domain.AdminActionLogEntry, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	s.limit, s.offset = limit, offset
	return []*domain.AdminActionLogEntry{{ID: "a1", AdminID: actor.ID, TargetAccountID: accountID, ActionType: domain.AdminActionTopUp}}, nil
}

func TestAuditHandler_ListByAccount(t *testing.T) {
	audit := &stubAudit{}
	h := NewAuditHandler(audit)

	rr := serve(t, "/accounts/{id}/audit", http.MethodGet, "/accounts/u1/audit?limit=5&offset=10", nil, &admin, h.ListByAccount)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 5, audit.limit)
	assert.Equal(t, 10, audit.offset)

	rr = serve(t, "/accounts/{id}/audit", http.MethodGet, "/accounts/u1/audit", nil, &user, h.ListByAccount)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHealthHandler(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("down") })

	h := NewHealthHandler(ok, down, nil)
	rr := httptest.NewRecorder()
	h.Readiness(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "unreachable", body["postgres"])
	assert.Equal(t, "disabled", body["redis"])

	h = NewHealthHandler(down, ok, ok)
	rr = httptest.NewRecorder()
	h.Readiness(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	h.Liveness(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
