package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/ledgersync/internal/adapter/http/dto"
	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/usecase"
)

// AccountHandler handles balance ledger requests.
type AccountHandler struct {
	ledger LedgerService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(ledger LedgerService) *AccountHandler {
	return &AccountHandler{ledger: ledger}
}

// Get returns an account.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	acct, err := h.ledger.GetAccount(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get account", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountFromDomain(acct))
}

// History lists balance history records, newest first.
func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	limit := parseIntQuery(r, "limit", usecase.DefaultHistoryLimit)
	records, err := h.ledger.History(r.Context(), actor, chi.URLParam(r, "id"), limit)
	if err != nil {
		writeDomainError(w, "failed to list balance history", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.HistoryFromDomain(records))
}

// TopUp adds to an account's balance.
func (h *AccountHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, h.ledger.TopUp, "failed to top up")
}

// Withdraw takes from an account's balance.
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, h.ledger.Withdraw, "failed to withdraw")
}

type adjustFunc func(ctx context.Context, actor domain.Actor, input usecase.AdjustBalanceInput) (*usecase.BalanceResult, error)

func (h *AccountHandler) adjust(w http.ResponseWriter, r *http.Request, fn adjustFunc, failure string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req dto.AdjustBalanceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := fn(r.Context(), actor, req.ToUseCaseInput(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, failure, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceResultFromUseCase(result))
}

// ResetSpent zeroes the amount spent.
func (h *AccountHandler) ResetSpent(w http.ResponseWriter, r *http.Request) {
	h.reset(w, r, h.ledger.ResetSpent, "failed to reset amount spent")
}

// ResetHistory removes every entry and zeroes the amount spent.
func (h *AccountHandler) ResetHistory(w http.ResponseWriter, r *http.Request) {
	h.reset(w, r, h.ledger.ResetHistory, "failed to reset history")
}

// RepairSpent recomputes the amount spent from the entries.
func (h *AccountHandler) RepairSpent(w http.ResponseWriter, r *http.Request) {
	h.reset(w, r, h.ledger.RepairSpent, "failed to repair amount spent")
}

func (h *AccountHandler) reset(w http.ResponseWriter, r *http.Request, fn func(context.Context, domain.Actor, string) (*domain.Account, error), failure string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	acct, err := fn(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, failure, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountFromDomain(acct))
}
