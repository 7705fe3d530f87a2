package http

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Envelope is the response shape of the popup ajax endpoint.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// MessageData is the minimal payload of a failure envelope.
type MessageData struct {
	Message string `json:"message"`
}

// WriteSuccess writes {"success": true, "data": data} with status 200.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteEnvelope(w, http.StatusOK, true, data)
}

// WriteFailure writes {"success": false, "data": data} with the given status.
func WriteFailure(w http.ResponseWriter, statusCode int, data any) {
	WriteEnvelope(w, statusCode, false, data)
}

// WriteFailureMessage writes a failure envelope carrying only a message.
func WriteFailureMessage(w http.ResponseWriter, statusCode int, message string) {
	WriteFailure(w, statusCode, MessageData{Message: message})
}

func WriteEnvelope(w http.ResponseWriter, statusCode int, success bool, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(Envelope{Success: success, Data: data})
}

// SetRetryAfter sets the Retry-After header when seconds is positive.
func SetRetryAfter(w http.ResponseWriter, seconds int) {
	if seconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
}
