package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Issue describes one rejected field.
type Issue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError lists every rejected field of a request.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Field+": "+issue.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a single-issue error.
func NewValidationError(field, code, message string) *ValidationError {
	return &ValidationError{Issues: []Issue{{Field: field, Code: code, Message: message}}}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks v against its struct tags and returns a *ValidationError
// describing every failing field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{Issues: make([]Issue, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Issues = append(out.Issues, Issue{
			Field:   fe.Field(),
			Code:    issueCode(fe),
			Message: issueMessage(fe),
		})
	}
	return out
}

func issueCode(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min", "gte":
		return "too_small"
	case "max", "lte":
		return "too_big"
	case "required":
		return "required"
	default:
		return "invalid"
	}
}

func issueMessage(fe validator.FieldError) string {
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "min", "gte":
		return fmt.Sprintf("must be at least %s%s", fe.Param(), unit)
	case "max", "lte":
		return fmt.Sprintf("must be at most %s%s", fe.Param(), unit)
	case "required":
		return "is required"
	default:
		return "is invalid"
	}
}
