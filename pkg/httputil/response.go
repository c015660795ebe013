// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error    string                 `json:"error"`
	Message  string                 `json:"message"`
	Category apperrors.Category     `json:"category"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// WriteAppError writes err using its application classification. Errors
// that carry no classification are reported as internal errors, and the
// messages of non-operational errors are not exposed.
func WriteAppError(w http.ResponseWriter, err error) {
	appErr := apperrors.FromError(err)

	resp := ErrorResponse{
		Error:    appErr.Code,
		Message:  appErr.Message,
		Category: appErr.Category,
	}
	if appErr.Operational {
		resp.Details = appErr.Context
	} else {
		resp.Message = apperrors.ErrInternal.Message
		if appErr.Code == apperrors.CodeUnavailable {
			resp.Message = apperrors.ErrUnavailable.Message
		}
	}

	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, resp)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{
		"error": message,
	})
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
