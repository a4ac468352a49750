package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListAlerts lists all open alerts.
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.alerts.ListOpen(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// handleListDeviceAlerts lists all alerts for a device, newest first.
func (s *Server) handleListDeviceAlerts(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	alerts, err := s.alerts.ListByDevice(r.Context(), deviceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// handleAcknowledgeAlert marks an alert acknowledged by the caller.
func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	if err := s.alerts.Acknowledge(r.Context(), id, claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}

	a, err := s.alerts.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
