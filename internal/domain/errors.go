package domain

import (
	"encoding/json"
	"net/http"
)

// ErrorCode represents a specific error condition.
type ErrorCode string

const (
	ErrMalformedFrame      ErrorCode = "MalformedFrame"      // inbound payload dropped, no state change
	ErrAlreadyPending      ErrorCode = "AlreadyPending"      // duplicate join request, existing one kept
	ErrNotFound            ErrorCode = "NotFound"            // decision on unknown or resolved connection, HTTP 404
	ErrInvalidAction       ErrorCode = "InvalidAction"       // decision action outside ACCEPT/REJECT, HTTP 400
	ErrNotificationFailure ErrorCode = "NotificationFailure" // approval email failed, logged only
	ErrDeliveryFailure     ErrorCode = "DeliveryFailure"     // write to one consumer failed, fan-out continues
	ErrBadRequest          ErrorCode = "BadRequest"          // HTTP 400
	ErrUnauthorized        ErrorCode = "Unauthorized"        // HTTP 401
	ErrInternal            ErrorCode = "InternalServerError" // HTTP 500
)

// ErrorResponse is the JSON error body returned by the machine facing HTTP endpoints.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// NewErrorResponse creates a new ErrorResponse struct.
func NewErrorResponse(code ErrorCode, message string, details string) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WriteJSON sends an ErrorResponse as JSON with the given HTTP status code.
func (er ErrorResponse) WriteJSON(w http.ResponseWriter, httpStatusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	json.NewEncoder(w).Encode(er) // Best effort, error from Encode is not typically handled here.
}
