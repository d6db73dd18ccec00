package auth

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON body of every authentication or authorization
// failure.
type ErrorResponse struct {
	ErrorMessage string `json:"error_message"`
}

// Deny writes an auth failure: the message goes both in the "error" header
// and in the JSON body.
func Deny(w http.ResponseWriter, status int, message string) {
	w.Header().Set("error", message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(ErrorResponse{ErrorMessage: message})
}
