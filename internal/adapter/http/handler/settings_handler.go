package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/ledgersync/internal/adapter/http/dto"
)

// SettingsHandler handles shared settings.
type SettingsHandler struct {
	settings SettingsService
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(settings SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// List returns every cached setting as a key/value map.
func (h *SettingsHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.settings.All()
	if err != nil {
		writeDomainError(w, "failed to list settings", err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

// Get returns one setting.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeDomainError(w, "failed to get setting", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SettingFromDomain(s))
}

// Set writes one setting.
func (h *SettingsHandler) Set(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req dto.SetSettingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s, err := h.settings.Set(r.Context(), actor, chi.URLParam(r, "key"), req.Value)
	if err != nil {
		writeDomainError(w, "failed to set setting", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SettingFromDomain(s))
}
