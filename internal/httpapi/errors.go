package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rtyy/commentsd/internal/download"
	"github.com/rtyy/commentsd/internal/store"
)

// APIError carries an HTTP status plus the error body's fields, mirroring
// the original CoreException(code, msg, data).
type APIError struct {
	Status int
	Msg    string
	Data   any
}

func (e *APIError) Error() string { return e.Msg }

func validationError(msg string, dataErrors any) *APIError {
	return &APIError{Status: http.StatusBadRequest, Msg: msg, Data: dataErrors}
}

func notFoundError(msg string) *APIError {
	return &APIError{Status: http.StatusNotFound, Msg: msg}
}

func permissionError(msg string) *APIError {
	return &APIError{Status: http.StatusForbidden, Msg: msg}
}

func conflictError(msg string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Msg: msg}
}

// errorBody is the {"error": ..., "data_errors": ...} envelope.
type errorBody struct {
	Error      string `json:"error"`
	DataErrors any    `json:"data_errors,omitempty"`
}

// writeError maps err to a status code and writes the error envelope,
// matching the error handling design: ValidationError/Conflict -> 400,
// NotFound -> 404, PermissionDenied -> 403, anything else -> 500.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		writeJSONStatus(w, apiErr.Status, errorBody{Error: apiErr.Msg, DataErrors: apiErr.Data})
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSONStatus(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, store.ErrConflict):
		writeJSONStatus(w, http.StatusBadRequest, errorBody{Error: "conflict"})
	case errors.Is(err, store.ErrInvalidID):
		writeJSONStatus(w, http.StatusBadRequest, errorBody{Error: "invalid id"})
	case errors.Is(err, download.ErrBadRequest):
		writeJSONStatus(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		writeJSONStatus(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}
