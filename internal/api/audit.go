package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/printrelay/internal/audit"
	"github.com/nerrad567/printrelay/internal/device"
)

// auditLog records an API change in the audit trail (best-effort).
func (s *Server) auditLog(r *http.Request, action, deviceMAC string, details map[string]any) {
	if s.auditWriter == nil {
		return
	}
	// Subject is absent when auth is off.
	subject, _ := r.Context().Value(ctxKeySubject).(string)
	s.auditWriter.Record(audit.Entry{
		Action:    action,
		DeviceMAC: deviceMAC,
		Subject:   subject,
		Source:    audit.SourceAPI,
		Details:   details,
	})
}

// handleListAudit returns audit entries, newest first.
//
// Query parameters:
//   - action: e.g. register, command, action_failed
//   - device_mac: one device
//   - source: api or scheduler
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action: q.Get("action"),
		Source: q.Get("source"),
	}
	if mac := q.Get("device_mac"); mac != "" {
		filter.DeviceMAC = device.NormalizeMAC(mac)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
