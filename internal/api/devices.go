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

// deviceView is one device with its rules and pending action.
type deviceView struct {
	device.Device
	Rules   *automation.RuleTable     `json:"rules"`
	Pending *automation.PendingAction `json:"pending,omitempty"`
}

// handleListDevices returns the inventory joined with rule tables.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	tables, err := s.rules.ListAllTables(r.Context())
	if err != nil {
		s.writeRuleError(w, err)
		return
	}

	devices := s.devices.List()
	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		view := deviceView{Device: d, Rules: tables[d.MAC]}
		if view.Rules == nil {
			view.Rules = &automation.RuleTable{DeviceID: d.MAC}
		}
		if a, ok := s.dispatcher.PendingRegistry().Get(d.MAC); ok {
			snap := a.Snapshot()
			view.Pending = &snap
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleRefreshDevices reloads the inventory file.
func (s *Server) handleRefreshDevices(w http.ResponseWriter, r *http.Request) {
	n, err := s.devices.Reload(r.Context())
	if err != nil {
		s.logger.Error("device inventory reload failed", "error", err)
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": n})
}

// handleTurnOn switches a device on immediately.
func (s *Server) handleTurnOn(w http.ResponseWriter, r *http.Request) {
	s.handleCommand(w, r, automation.ActionTurnOn)
}

// handleTurnOff switches a device off immediately.
func (s *Server) handleTurnOff(w http.ResponseWriter, r *http.Request) {
	s.handleCommand(w, r, automation.ActionTurnOff)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request, action automation.ActionKind) {
	mac := chi.URLParam(r, "mac")
	c, err := s.devices.Capability(mac)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	if action == automation.ActionTurnOn {
		err = c.TurnOn(ctx)
	} else {
		err = c.TurnOff(ctx)
	}

	switch {
	case errors.Is(err, device.ErrNoPublisher):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "device bridge not connected")
		return
	case err != nil:
		s.logger.Error("direct device command failed", "device_mac", c.ID(), "action", action, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "device command failed")
		return
	}

	s.logger.Info("direct device command sent", "device_mac", c.ID(), "action", action)
	s.auditLog(r, audit.ActionCommand, c.ID(), map[string]any{"action": action.String()})
	writeJSON(w, http.StatusOK, map[string]any{
		"device_mac":  c.ID(),
		"action_name": action,
		"status":      "sent",
	})
}
