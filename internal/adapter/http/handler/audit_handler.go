package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/ledgersync/internal/adapter/http/dto"
)

// AuditHandler lists admin actions.
type AuditHandler struct {
	audit AuditService
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(audit AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// ListByAccount lists the actions that targeted an account.
func (h *AuditHandler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	limit := parseIntQuery(r, "limit", 20)
	offset := parseIntQuery(r, "offset", 0)

	logs, err := h.audit.List(r.Context(), actor, chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list admin actions", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.AuditLogsFromDomain(logs))
}
