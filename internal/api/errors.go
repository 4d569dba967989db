package api

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/delta-monitor/internal/errors"
	"github.com/delta-monitor/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// Common error codes
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondServiceError maps an aggregation error onto the HTTP surface.
// Categorized errors carry their own status code; anything else is treated
// as a system error and answered with a generic 500.
func respondServiceError(w http.ResponseWriter, err error) {
	var ce *apperrors.CategorizedError
	if !errors.As(err, &ce) {
		ce = apperrors.NewInternalError(err)
	}
	respondError(w, ce.StatusCode, ce.Code, ce.Message, ce.Details)
}
