package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/printrelay/internal/audit"
	"github.com/nerrad567/printrelay/internal/device"
)

// handleListPending returns every pending action.
func (s *Server) handleListPending(w http.ResponseWriter, _ *http.Request) {
	pending := s.dispatcher.Pending()
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": pending,
		"count":   len(pending),
	})
}

// handleCancelPending cancels the pending action for one device. It is not
// an error when nothing is pending.
func (s *Server) handleCancelPending(w http.ResponseWriter, r *http.Request) {
	mac := device.NormalizeMAC(chi.URLParam(r, "mac"))
	n := s.dispatcher.CancelPending(mac)
	if n > 0 {
		s.auditLog(r, audit.ActionCancel, mac, nil)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_mac": mac,
		"cancelled":  n,
	})
}
