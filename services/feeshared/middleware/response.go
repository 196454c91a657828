package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

var errTooManyRequests = errors.New(http.StatusText(http.StatusTooManyRequests))

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("write response failed", slog.Any("error", err))
	}
}

// WriteError writes err as a JSON error body.
func WriteError(w http.ResponseWriter, status int, err error) {
	message := ""
	if err != nil {
		message = strings.TrimSpace(err.Error())
	}
	if message == "" {
		message = http.StatusText(status)
	}
	WriteJSON(w, status, ErrorResponse{Error: message})
}
