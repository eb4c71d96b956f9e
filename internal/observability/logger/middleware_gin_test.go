package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/invites/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func withObservedGlobal(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func newRouter(cfg MiddlewareConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(cfg))
	return r
}

func TestGinMiddlewareLogsInviteOperation(t *testing.T) {
	logs := withObservedGlobal(t)

	var seen string
	r := newRouter(MiddlewareConfig{})
	r.DELETE("/v1/invites/:code", func(c *gin.Context) {
		seen = obscontext.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/invites/WELCOME", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-Id"))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "invites.delete", fields["operation"])
	assert.Equal(t, "WELCOME", fields["invite_code"])
	assert.Equal(t, "/v1/invites/:code", fields["route"])
	assert.Equal(t, int64(http.StatusNoContent), fields["status"])
	assert.Equal(t, seen, fields["request_id"])
	assert.NotContains(t, fields, "path")
}

func TestGinMiddlewareLogsCodesSetByHandlers(t *testing.T) {
	logs := withObservedGlobal(t)

	r := newRouter(MiddlewareConfig{})
	r.POST("/v1/invites", func(c *gin.Context) {
		c.Set(obscontext.KeyInviteCode, "GENERATED")
		c.Status(http.StatusCreated)
	})
	r.DELETE("/v1/invites", func(c *gin.Context) {
		c.Set(obscontext.KeyInviteCount, 3)
		c.Status(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/invites", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/v1/invites", nil))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "GENERATED", entries[0].ContextMap()["invite_code"])
	assert.Equal(t, "invites.delete_many", entries[1].ContextMap()["operation"])
	assert.Equal(t, int64(3), entries[1].ContextMap()["invite_count"])
}

func TestGinMiddlewareKeepsIncomingRequestID(t *testing.T) {
	withObservedGlobal(t)

	r := newRouter(MiddlewareConfig{})
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-Id"))
}

func TestGinMiddlewareClassifiesErrors(t *testing.T) {
	logs := withObservedGlobal(t)

	r := newRouter(MiddlewareConfig{
		Debug: true,
		ErrorClassifier: func(err error) (string, string) {
			return "internal_error", "internal_error"
		},
	})
	r.POST("/v1/reindex", func(c *gin.Context) {
		_ = c.Error(errors.New("store offline"))
		c.Status(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/reindex", nil))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "invites.reindex", fields["operation"])
	assert.Equal(t, "internal_error", fields["error_type"])
	assert.Equal(t, "store offline", fields["cause"])
}

func TestGinMiddlewareUnknownRouteKeepsPath(t *testing.T) {
	logs := withObservedGlobal(t)

	r := newRouter(MiddlewareConfig{})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/nope", entries[0].ContextMap()["path"])
	assert.NotContains(t, entries[0].ContextMap(), "operation")
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("invites.list", http.StatusInternalServerError, "internal_error"))
	assert.Equal(t, zapcore.DebugLevel, requestLevel("invites.create", http.StatusBadRequest, "validation_error"))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("invites.get", http.StatusNotFound, "not_found"))
	assert.Equal(t, zapcore.DebugLevel, requestLevel("metrics", http.StatusOK, ""))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("invites.list", http.StatusOK, ""))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	assert.Error(t, err)
}

func TestWithContextAddsOnlyKnownFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	WithContext(context.Background(), base).Info("bare")
	WithContext(obscontext.WithRequestID(context.Background(), "req-9"), base).Info("tagged")

	all := logs.All()
	require.Len(t, all, 2)
	assert.Empty(t, all[0].ContextMap())
	assert.Equal(t, map[string]interface{}{"request_id": "req-9"}, all[1].ContextMap())
}

func TestSamplingNeverDropsWarnings(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(sampleBelowWarn(core))

	for i := 0; i < 300; i++ {
		log.Info("busy")
		log.Warn("careful")
	}
	assert.Equal(t, 300, logs.FilterMessage("careful").Len())
	assert.Less(t, logs.FilterMessage("busy").Len(), 300)
}
