// Package httputil holds the small response helpers shared by handlers.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the generic JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON encodes v with the given status. Encoding errors after the header
// is written cannot be reported to the client, so they are dropped.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
