package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/climalink/climalink-core/internal/command"
)

// defaultCommandListLimit caps device command history responses.
const defaultCommandListLimit = 50

type sendCommandRequest struct {
	Type   command.Type       `json:"type"`
	Params command.Parameters `json:"params"`
}

// handleSendCommand submits a command against a device and waits for the
// outcome. A command that reached the device but failed still has a
// persisted record; the response carries both the record and the error so
// the client sees the same failure the audit trail does.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	if s.control == nil {
		writeInternalError(w, "control manager not configured")
		return
	}

	var req sendCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var userID *string
	if claims := ClaimsFromContext(r.Context()); claims != nil {
		uid := claims.Subject
		userID = &uid
	}

	cmd, err := s.control.SendCommand(r.Context(), deviceID, userID, req.Type, req.Params)
	if err != nil {
		if cmd == nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"command": cmd,
			"error":   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusCreated, cmd)
}

// handleListDeviceCommands returns recent commands for a device, newest first.
func (s *Server) handleListDeviceCommands(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	if s.commands == nil {
		writeInternalError(w, "command store not configured")
		return
	}

	limit := defaultCommandListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	cmds, err := s.commands.ListByDevice(r.Context(), deviceID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"commands": cmds,
		"count":    len(cmds),
	})
}
