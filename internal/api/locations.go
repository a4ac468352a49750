package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/climalink/climalink-core/internal/device"
)

// handleListLocations lists all locations, or the children of one when
// parent_id is given.
func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	var (
		locations []device.Location
		err       error
	)
	if parent := r.URL.Query().Get("parent_id"); parent != "" {
		locations, err = s.locations.ListChildren(r.Context(), parent)
	} else {
		locations, err = s.locations.ListLocations(r.Context())
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"locations": locations,
		"count":     len(locations),
	})
}

// handleGetLocation returns a location with its direct children.
func (s *Server) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	loc, err := s.locations.GetLocation(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	children, err := s.locations.ListChildren(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"location": loc,
		"children": children,
	})
}

// handleCreateLocation adds a location.
func (s *Server) handleCreateLocation(w http.ResponseWriter, r *http.Request) {
	var loc device.Location
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.locations.CreateLocation(r.Context(), &loc); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

// handleDeleteLocation removes a location. Devices assigned to it keep
// existing with their location cleared.
func (s *Server) handleDeleteLocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.locations.DeleteLocation(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}
