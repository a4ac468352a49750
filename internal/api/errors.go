package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/climalink/climalink-core/internal/adapter"
	"github.com/climalink/climalink-core/internal/alert"
	"github.com/climalink/climalink-core/internal/auth"
	"github.com/climalink/climalink-core/internal/command"
	"github.com/climalink/climalink-core/internal/device"
	"github.com/climalink/climalink-core/internal/schedule"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeNotImplemented = "not_implemented"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort write; connection may be closed
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps domain sentinel errors onto HTTP status codes.
// Unrecognised errors become 500 with a generic message so internals do
// not leak to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, device.ErrNotFound),
		errors.Is(err, command.ErrNotFound),
		errors.Is(err, schedule.ErrNotFound),
		errors.Is(err, alert.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, device.ErrInvalidDevice),
		errors.Is(err, device.ErrInvalidModel),
		errors.Is(err, command.ErrInvalidParameters),
		errors.Is(err, command.ErrUnknownCommand),
		errors.Is(err, schedule.ErrInvalidSchedule),
		errors.Is(err, auth.ErrInvalidUser):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, device.ErrDuplicateSerial),
		errors.Is(err, auth.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, device.ErrProtocolNotConfigured):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, adapter.ErrNotImplemented):
		writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented, err.Error())
	case errors.Is(err, adapter.ErrUnsupportedProtocol):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		writeUnauthorized(w, err.Error())
	case errors.Is(err, auth.ErrInactiveUser):
		writeForbidden(w, err.Error())
	default:
		writeInternalError(w, "internal server error")
	}
}
