package api

import (
	"context"
	"net/http"
	"time"

	"github.com/nerrad567/printrelay/internal/bridges/octoprint"
)

// healthCheckTimeout bounds each component check.
const healthCheckTimeout = 2 * time.Second

// bridgeStats is implemented by event sources that count what they see.
type bridgeStats interface {
	Stats() octoprint.Stats
}

// handleHealth reports server and component health. Any failing component
// turns the response into 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(s.checks))
	healthy := true
	for _, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			healthy = false
			components[c.Name] = err.Error()
			continue
		}
		components[c.Name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	body := map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
		"pending":    s.dispatcher.PendingRegistry().Len(),
		"ws_clients": s.hub.ClientCount(),
	}
	if b, ok := s.events.(bridgeStats); ok {
		body["octoprint"] = b.Stats()
	}
	writeJSON(w, code, body)
}
