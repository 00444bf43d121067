package core

import (
	"encoding/json"
	"net/http"
)

// runErrorResponse is the body returned when a dispatch cycle cannot start,
// mirroring the success envelope's leading "success" field.
type runErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// authErrorResponse is the body for authentication failures.
type authErrorResponse struct {
	Error string `json:"error"`
}

// JSON writes a JSON response with the given status code and body.
func JSON(w http.ResponseWriter, status int, body interface{}) {
	payload, err := json.Marshal(body)
	if err != nil {
		// Marshal failure on our own response types means a programming
		// error; return a minimal hand-built envelope.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"failed to encode response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// RunError writes the 500 envelope for a dispatch cycle that could not start.
func RunError(w http.ResponseWriter, message string) {
	JSON(w, http.StatusInternalServerError, runErrorResponse{Success: false, Error: message})
}

// Unauthorized writes the 401 envelope for failed shared-secret checks.
func Unauthorized(w http.ResponseWriter) {
	JSON(w, http.StatusUnauthorized, authErrorResponse{Error: "Unauthorized"})
}
