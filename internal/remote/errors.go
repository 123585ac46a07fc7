package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the platform backend. Detail carries
// the body's detail/message field when the backend provided one.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend error [%d]: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// IsUnauthorized reports a 401 from the backend.
func IsUnauthorized(err error) bool { return statusIs(err, http.StatusUnauthorized) }

// IsValidation reports a 422 from the backend.
func IsValidation(err error) bool { return statusIs(err, http.StatusUnprocessableEntity) }

// IsServerError reports a 5xx from the backend.
func IsServerError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 500
}

func statusIs(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// newAPIError mines the response body for a detail or message field, the
// shape FastAPI and the legacy backend both use.
func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			return &APIError{Status: status, Detail: payload.Detail}
		}
		if payload.Message != "" {
			return &APIError{Status: status, Detail: payload.Message}
		}
	}
	return &APIError{Status: status}
}
