package handler

import (
	"net/http"

	"github.com/iho/ledgersync/internal/adapter/http/dto"
)

// SyncHandler exposes the sync queue.
type SyncHandler struct {
	sync SyncService
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(sync SyncService) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// Status reports connectivity and queue depth.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	items, err := h.sync.Pending(r.Context())
	if err != nil {
		writeDomainError(w, "failed to read sync queue", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SyncStatusFromDomain(h.sync.IsOnline(), items))
}

// Queue lists pending items in replay order.
func (h *SyncHandler) Queue(w http.ResponseWriter, r *http.Request) {
	items, err := h.sync.Pending(r.Context())
	if err != nil {
		writeDomainError(w, "failed to read sync queue", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.QueueFromDomain(items))
}

// Drain replays the queue now.
func (h *SyncHandler) Drain(w http.ResponseWriter, r *http.Request) {
	if !h.sync.IsOnline() {
		writeError(w, http.StatusServiceUnavailable, "remote store unreachable", "")
		return
	}

	result, err := h.sync.Drain(r.Context())
	if err != nil {
		writeDomainError(w, "failed to drain sync queue", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
