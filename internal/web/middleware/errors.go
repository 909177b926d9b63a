package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// errorBody mirrors the API error shape written by the web package.
type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
	Action  string `json:"action,omitempty"`
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("middleware: encode error response", "error", err)
	}
}
