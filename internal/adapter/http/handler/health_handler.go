package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler handles health check requests.
type HealthHandler struct {
	local  Pinger
	remote Pinger
	redis  Pinger
}

// NewHealthHandler creates a new HealthHandler. remote and redis may be nil.
func NewHealthHandler(local, remote, redis Pinger) *HealthHandler {
	return &HealthHandler{local: local, remote: remote, redis: redis}
}

// Liveness returns 200 if the service is alive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness returns 200 once the local store answers. The remote store and
// Redis are reported but do not fail readiness: the service keeps working
// offline.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.local.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "local store unhealthy", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"local":    "ok",
		"postgres": status(ctx, h.remote),
		"redis":    status(ctx, h.redis),
	})
}

func status(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		return "unreachable"
	}
	return "ok"
}
