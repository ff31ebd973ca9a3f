// Package httputil writes JSON responses and error envelopes.
package httputil

import (
	"encoding/json"
	"net/http"
)

// Error codes used in error envelopes.
const (
	CodeBadRequest   = "bad_request"
	CodeUnauthorized = "unauthorized"
	CodeNotFound     = "not_found"
	CodeUnavailable  = "service_unavailable"
	CodeInternal     = "internal_error"
)

var statusByCode = map[string]int{
	CodeBadRequest:   http.StatusBadRequest,
	CodeUnauthorized: http.StatusUnauthorized,
	CodeNotFound:     http.StatusNotFound,
	CodeUnavailable:  http.StatusServiceUnavailable,
	CodeInternal:     http.StatusInternalServerError,
}

// WriteJSON encodes body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError writes {"error": code, "error_description": description}.
// Internal errors never carry a description.
func WriteError(w http.ResponseWriter, code, description string) {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
		code = CodeInternal
	}
	body := map[string]string{"error": code}
	if code != CodeInternal && description != "" {
		body["error_description"] = description
	}
	WriteJSON(w, status, body)
}
