package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the error half of the response envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Envelope wraps every API payload. Exactly one of Data or Error is set.
type Envelope struct {
	Data    any        `json:"data,omitempty"`
	Message string     `json:"message,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// JSON encodes v with status. Handlers normally go through Data or JSONError.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Data writes a success envelope.
func Data(w http.ResponseWriter, status int, data any) {
	JSON(w, status, Envelope{Data: data})
}

// DataMessage writes a success envelope with a human readable message.
func DataMessage(w http.ResponseWriter, status int, message string, data any) {
	JSON(w, status, Envelope{Data: data, Message: message})
}

// JSONError writes an error envelope.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, Envelope{Error: &ErrorBody{Code: code, Message: message, Details: details}})
}
