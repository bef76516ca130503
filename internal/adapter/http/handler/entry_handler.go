package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/ledgersync/internal/adapter/http/dto"
)

// EntryHandler handles entry-related HTTP requests.
type EntryHandler struct {
	entries EntryService
}

// NewEntryHandler creates a new EntryHandler.
func NewEntryHandler(entries EntryService) *EntryHandler {
	return &EntryHandler{entries: entries}
}

// Create stores a new entry.
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req dto.CreateEntryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.entries.Create(r.Context(), actor, req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "failed to create entry", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.EntryResultFromUseCase(result))
}

// Update edits an entry.
func (h *EntryHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req dto.UpdateEntryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.entries.Update(r.Context(), actor, req.ToUseCaseInput(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "failed to update entry", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EntryResultFromUseCase(result))
}

// Delete removes an entry and refunds its total.
func (h *EntryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	acct, err := h.entries.Delete(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to delete entry", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountFromDomain(acct))
}

// Get returns one entry.
func (h *EntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	entry, err := h.entries.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get entry", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EntryFromDomain(entry))
}

// ListByAccount lists entries for an account.
func (h *EntryHandler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	entries, err := h.entries.List(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to list entries", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EntriesFromDomain(entries))
}
