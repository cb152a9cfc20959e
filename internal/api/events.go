package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/printrelay/internal/automation"
)

// handleEvent ingests a host event posted as a webhook. Unknown names are
// accepted and reported as ignored.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	result, err := s.events.HandleEvent(r.Context(), name)
	switch {
	case errors.Is(err, automation.ErrDispatcherClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "scheduler is shutting down")
		return
	case err != nil:
		s.logger.Error("event dispatch failed", "event", name, "error", err)
		writeInternalError(w, "event partially dispatched: rule store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
