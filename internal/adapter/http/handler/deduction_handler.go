package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/ledgersync/internal/adapter/http/dto"
)

// DeductionHandler handles the admin deduction overlay.
type DeductionHandler struct {
	deductions DeductionService
}

// NewDeductionHandler creates a new DeductionHandler.
func NewDeductionHandler(deductions DeductionService) *DeductionHandler {
	return &DeductionHandler{deductions: deductions}
}

// Record stores a deduction against the entry in the path.
func (h *DeductionHandler) Record(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req dto.RecordDeductionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	d, err := h.deductions.Record(r.Context(), actor, req.ToUseCaseInput(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "failed to record deduction", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.DeductionFromDomain(d))
}

// Undo removes a deduction.
func (h *DeductionHandler) Undo(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	err := h.deductions.Undo(r.Context(), actor, chi.URLParam(r, "id"), chi.URLParam(r, "deductionID"))
	if err != nil {
		writeDomainError(w, "failed to undo deduction", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AdminView returns the deduction-adjusted view of an account.
func (h *DeductionHandler) AdminView(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	view, err := h.deductions.AdminView(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to build admin view", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AdminViewFromDomain(view))
}
