package sdk

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIErrorIs(t *testing.T) {
	cases := []struct {
		status int
		target error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusInternalServerError, ErrServerError},
		{http.StatusBadGateway, ErrServerError},
	}
	for _, tc := range cases {
		err := error(newAPIError("op", tc.status, "", nil))
		assert.True(t, errors.Is(err, tc.target), "status %d", tc.status)
	}
	assert.False(t, errors.Is(newAPIError("op", http.StatusConflict, "", nil), ErrServerError))
}

func TestNewAPIErrorParsesBody(t *testing.T) {
	err := newAPIError("create invite", 400, "400 Bad Request",
		[]byte(`{"error":"Invalid parameters","details":[{"field":"code","code":"too_small","message":"must be at least 1 characters"}]}`))

	assert.Equal(t, "Invalid parameters", err.Message)
	assert.Len(t, err.Details, 1)
	assert.Equal(t, "sdk: failed to create invite: 400 Bad Request: Invalid parameters", err.Error())
}

func TestNewAPIErrorToleratesNonJSON(t *testing.T) {
	err := newAPIError("list invites", 502, "", []byte("<html>bad gateway</html>"))
	assert.Empty(t, err.Message)
	assert.Equal(t, "sdk: failed to list invites: 502 Bad Gateway", err.Error())
}
