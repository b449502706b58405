package api

import (
	"net/http"
	"time"
)

type healthHandler struct {
	deps *Deps
}

// Liveness handles GET /health: always succeeds once the process is
// serving requests.
func (h *healthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]string{"service": "docassistant"})
}

// Readiness handles GET /health/ready: reports whether the embeddings
// backend that backs project search and the knowledge-base tools is
// reachable.
func (h *healthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.deps.Embeddings == nil {
		ok(w, map[string]string{"embeddings": "disabled"})
		return
	}

	start := time.Now()
	healthy := h.deps.Embeddings.HealthCheck(r.Context())
	latency := time.Since(start).String()

	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, Response{
			Status: "error",
			Data:   map[string]string{"embeddings": "unreachable", "latency": latency},
			Error:  "embeddings backend failed its health check",
		})
		return
	}

	ok(w, map[string]string{"embeddings": "healthy", "latency": latency})
}

type debugHandler struct {
	deps *Deps
}

// SessionStates handles GET /debug/session-states, gated on
// DebugEndpointsEnabled by the router.
func (h *debugHandler) SessionStates(w http.ResponseWriter, r *http.Request) {
	ok(w, h.deps.Sessions.AllSessionsDebug())
}
