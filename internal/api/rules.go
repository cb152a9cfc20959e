package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/printrelay/internal/audit"
	"github.com/nerrad567/printrelay/internal/automation"
	"github.com/nerrad567/printrelay/internal/device"
)

// handleEnums returns every accepted event and action name.
func (s *Server) handleEnums(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, automation.Enums())
}

// handleListRegistrations returns the rule table for one device.
func (s *Server) handleListRegistrations(w http.ResponseWriter, r *http.Request) {
	table, err := s.rules.ListRegistrations(r.Context(), device.NormalizeMAC(chi.URLParam(r, "mac")))
	if err != nil {
		s.writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// handleRegister stores a registration and returns the device's rule table.
// MACs are normalised so rules match the inventory.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeRequest(r, &req); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	req.DeviceMAC = device.NormalizeMAC(req.DeviceMAC)

	err := s.rules.Register(r.Context(), req.DeviceMAC, req.EventName, req.ActionName, *req.DelayMinutes)
	if err == nil {
		s.auditLog(r, audit.ActionRegister, req.DeviceMAC, map[string]any{
			"event": req.EventName, "action": req.ActionName, "delay_minutes": *req.DelayMinutes,
		})
	}
	s.respondWithTable(r.Context(), w, req.DeviceMAC, err)
}

// handleUnregister removes a registration.
func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeRequest(r, &req); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	req.DeviceMAC = device.NormalizeMAC(req.DeviceMAC)

	err := s.rules.Unregister(r.Context(), req.DeviceMAC, req.EventName, req.ActionName)
	if err == nil {
		s.auditLog(r, audit.ActionUnregister, req.DeviceMAC, req.details())
	}
	s.respondWithTable(r.Context(), w, req.DeviceMAC, err)
}

// handleAddCancel stores a cancellation rule.
func (s *Server) handleAddCancel(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeRequest(r, &req); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	req.DeviceMAC = device.NormalizeMAC(req.DeviceMAC)

	err := s.rules.AddCancel(r.Context(), req.DeviceMAC, req.EventName, req.ActionName)
	if err == nil {
		s.auditLog(r, audit.ActionAddCancel, req.DeviceMAC, req.details())
	}
	s.respondWithTable(r.Context(), w, req.DeviceMAC, err)
}

// handleRemoveCancel removes a cancellation rule.
func (s *Server) handleRemoveCancel(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeRequest(r, &req); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	req.DeviceMAC = device.NormalizeMAC(req.DeviceMAC)

	err := s.rules.RemoveCancel(r.Context(), req.DeviceMAC, req.EventName, req.ActionName)
	if err == nil {
		s.auditLog(r, audit.ActionRemoveCancel, req.DeviceMAC, req.details())
	}
	s.respondWithTable(r.Context(), w, req.DeviceMAC, err)
}

// respondWithTable reports a rule mutation result. On success the body is
// the device's rule table after the change.
func (s *Server) respondWithTable(ctx context.Context, w http.ResponseWriter, deviceMAC string, err error) {
	if err != nil {
		s.writeRuleError(w, err)
		return
	}
	table, err := s.rules.ListRegistrations(ctx, deviceMAC)
	if err != nil {
		s.writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// writeRuleError maps rule store errors to responses.
func (s *Server) writeRuleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, automation.ErrUnknownEvent),
		errors.Is(err, automation.ErrUnknownAction),
		errors.Is(err, automation.ErrInvalidDelay),
		errors.Is(err, automation.ErrInvalidDevice):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error("rule store error", "error", err)
		writeInternalError(w, "rule store unavailable")
	}
}
