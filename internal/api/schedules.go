package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/climalink/climalink-core/internal/schedule"
)

// handleListDeviceSchedules lists schedules for a device.
func (s *Server) handleListDeviceSchedules(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	schedules, err := s.schedules.ListByDevice(r.Context(), deviceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schedules": schedules,
		"count":     len(schedules),
	})
}

// handleCreateSchedule adds a schedule. The first due time is computed
// from the cron expression so the runner picks it up on its next pass.
func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var sched schedule.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := sched.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	// The target device must exist.
	if _, err := s.devices.GetDevice(r.Context(), sched.DeviceID); err != nil {
		writeDomainError(w, err)
		return
	}

	next, err := sched.NextAfter(time.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	sched.NextExecution = &next

	if err := s.schedules.Create(r.Context(), &sched); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

// handleGetSchedule returns a single schedule.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.schedules.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// handleUpdateSchedule replaces a schedule's definition and recomputes its
// next due time.
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	existing, err := s.schedules.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var sched schedule.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	sched.ID = existing.ID
	sched.DeviceID = existing.DeviceID
	if err := sched.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	next, err := sched.NextAfter(time.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	sched.NextExecution = &next

	if err := s.schedules.Update(r.Context(), &sched); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// handleDeleteSchedule removes a schedule.
func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.schedules.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}
