package context

import (
	stdcontext "context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperation(t *testing.T) {
	assert.Equal(t, "invites.create", Operation(http.MethodPost, "/v1/invites"))
	assert.Equal(t, "invites.delete", Operation(http.MethodDelete, "/v1/invites/:code"))
	assert.Equal(t, "invites.index_stats", Operation(http.MethodGet, "/v1/reindex"))
	assert.Empty(t, Operation(http.MethodPut, "/v1/invites"))
	assert.Empty(t, Operation(http.MethodGet, ""))

	assert.True(t, IsRoutine(Operation(http.MethodGet, "/health")))
	assert.False(t, IsRoutine("invites.list"))
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(stdcontext.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(stdcontext.Background()))
}
