package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	invitedomain "github.com/smallbiznis/invites/internal/invite/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors is a 400 with a route-specific message and optional
// per-field details.
type ValidationErrors struct {
	Message string
	Errors  []ValidationError
}

func (v ValidationErrors) Error() string {
	if v.Message != "" {
		return v.Message
	}
	return "validation error"
}

type errorResponse struct {
	Error   string            `json:"error"`
	Details []ValidationError `json:"details,omitempty"`
}

const (
	msgInvalidParameters     = "Invalid parameters"
	msgInvalidListParameters = "Invalid list parameters"
	msgInvalidBulkDelete     = "Invalid parameters. 'codes' array or 'all=true' required."
	msgCodeRequired          = "Invite code required"
	msgInviteNotFound        = "Invite not found"
	msgUnauthorized          = "Unauthorized"
	msgNotFound              = "Not found"
	msgInternal              = "Internal server error"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(message, field, code, detail string) error {
	return &ValidationErrors{
		Message: message,
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: detail,
			},
		},
	}
}

// withMessage rewrites domain validation failures into a ValidationErrors
// carrying the route's message. Other errors pass through unchanged.
func withMessage(err error, message string) error {
	var domainErr *invitedomain.ValidationError
	switch {
	case errors.As(err, &domainErr):
		out := &ValidationErrors{Message: message}
		for _, issue := range domainErr.Issues {
			out.Errors = append(out.Errors, ValidationError{
				Field:   issue.Field,
				Code:    issue.Code,
				Message: issue.Message,
			})
		}
		return out
	case errors.Is(err, invitedomain.ErrInvalidCursor):
		return newValidationError(message, "cursor", "invalid_cursor", "cursor is malformed or belongs to another listing")
	case errors.Is(err, invitedomain.ErrInvalidCodeOptions):
		return newValidationError(message, "alphabet", "invalid", "alphabet or size cannot generate a code")
	default:
		return err
	}
}

func mapError(err error) (int, errorResponse) {
	if err == nil {
		return http.StatusInternalServerError, errorResponse{Error: msgInternal}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		message := vErr.Message
		if message == "" {
			message = msgInvalidParameters
		}
		return http.StatusBadRequest, errorResponse{Error: message, Details: vErr.Errors}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{Error: msgUnauthorized}
	case errors.Is(err, invitedomain.ErrCodeRequired):
		return http.StatusBadRequest, errorResponse{Error: msgCodeRequired}
	case errors.Is(err, invitedomain.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: msgInviteNotFound}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: msgNotFound}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorResponse{Error: msgInvalidParameters}
	default:
		return http.StatusInternalServerError, errorResponse{Error: msgInternal}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// classifyErrorForLog returns the error type and code for request logs.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status == http.StatusBadRequest:
		code := "invalid_request"
		if len(payload.Details) > 0 {
			code = payload.Details[0].Code
		}
		return "validation_error", code
	case status == http.StatusUnauthorized:
		return "unauthorized", "unauthorized"
	case status == http.StatusNotFound:
		return "not_found", "not_found"
	case errors.Is(err, invitedomain.ErrCommitFailed),
		errors.Is(err, invitedomain.ErrBulkDeleteFailed),
		errors.Is(err, invitedomain.ErrDeleteAllFailed):
		return "conflict", "commit_failed"
	default:
		return "internal_error", "internal_error"
	}
}
