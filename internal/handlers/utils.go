package handlers

import (
	"encoding/json"
	"net/http"

	"media-forge/internal/logging"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONStatus writes v as JSON with the given status code.
func writeJSONStatus(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// ErrorResponse is the body of every failed API request.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Notices []string `json:"notices,omitempty"`
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int, notices []string) {
	writeJSONStatus(w, statusCode, ErrorResponse{Error: message, Notices: notices})
}
