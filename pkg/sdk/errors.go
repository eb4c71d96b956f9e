package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrBadRequest   = errors.New("sdk: bad request")
	ErrUnauthorized = errors.New("sdk: unauthorized")
	ErrNotFound     = errors.New("sdk: not found")
	ErrServerError  = errors.New("sdk: server error")
)

// Detail is one field-level problem reported by the server.
type Detail struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIError is returned for any non-2xx response. Use errors.Is with the
// sentinel errors above to branch on the status class.
type APIError struct {
	Op         string
	StatusCode int
	Status     string
	Message    string
	Details    []Detail
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("sdk: failed to %s: %s", e.Op, e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.StatusCode == http.StatusBadRequest
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrServerError:
		return e.StatusCode >= http.StatusInternalServerError
	}
	return false
}

func newAPIError(op string, statusCode int, status string, body []byte) *APIError {
	if strings.TrimSpace(status) == "" {
		status = fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode))
	}
	apiErr := &APIError{Op: op, StatusCode: statusCode, Status: status}

	var payload struct {
		Error   string   `json:"error"`
		Details []Detail `json:"details"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Message = payload.Error
		apiErr.Details = payload.Details
	}
	return apiErr
}
