package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/climalink/climalink-core/internal/device"
)

type createDeviceRequest struct {
	Name         string  `json:"name"`
	SerialNumber string  `json:"serial_number"`
	ModelID      string  `json:"model_id"`
	LocationID   *string `json:"location_id"`
	IPAddress    *string `json:"ip_address"`
	Simulated    bool    `json:"simulated"`
}

type updateDeviceRequest struct {
	Name       *string `json:"name"`
	LocationID *string `json:"location_id"`
	IPAddress  *string `json:"ip_address"`
	Simulated  *bool   `json:"simulated"`
}

// handleListDevices lists all devices, optionally filtered by location.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var (
		devices []device.Device
		err     error
	)
	if loc := r.URL.Query().Get("location_id"); loc != "" {
		devices, err = s.devices.ListDevicesByLocation(r.Context(), loc)
	} else {
		devices, err = s.devices.ListDevices(r.Context())
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleCreateDevice registers a new device.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev := &device.Device{
		Name:         req.Name,
		SerialNumber: req.SerialNumber,
		ModelID:      req.ModelID,
		LocationID:   req.LocationID,
		IPAddress:    req.IPAddress,
		Simulated:    req.Simulated,
		Status:       device.StatusOffline,
	}
	if err := s.devices.CreateDevice(r.Context(), dev); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}

// handleGetDevice returns a device together with its model.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dev, model, err := s.devices.GetDeviceModel(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device": dev,
		"model":  model,
	})
}

// handleUpdateDevice applies a partial update to a device.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.devices.GetDevice(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if req.Name != nil {
		dev.Name = *req.Name
	}
	if req.LocationID != nil {
		dev.LocationID = req.LocationID
	}
	if req.IPAddress != nil {
		dev.IPAddress = req.IPAddress
	}
	if req.Simulated != nil {
		dev.Simulated = *req.Simulated
	}

	if err := s.devices.UpdateDevice(r.Context(), dev); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device and its history, and tears down
// its live adapter so no broker session outlives the device.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.devices.DeleteDevice(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	if s.control != nil {
		if err := s.control.ReleaseAdapter(id); err != nil {
			s.logger.Warn("releasing adapter failed", "device_id", id, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// handleGetDeviceStatus returns the device's last known status.
func (s *Server) handleGetDeviceStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := s.devices.GetStatus(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleRefreshDeviceStatus forces an immediate adapter poll for one device
// and returns the refreshed status.
func (s *Server) handleRefreshDeviceStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.control == nil {
		writeInternalError(w, "control manager not configured")
		return
	}
	if err := s.control.RefreshDeviceStatus(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	status, err := s.devices.GetStatus(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
