package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/invites/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const headerRequestID = "X-Request-Id"

type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps the last handler error to a (type, code) pair.
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware assigns a request id and writes one "http_request" entry per
// request, naming the invite operation and the invites it touched.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(headerRequestID, requestID)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		operation := obscontext.Operation(c.Request.Method, route)
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if operation != "" {
			fields = append(fields, zap.String("operation", operation))
		} else {
			fields = append(fields, zap.String("path", c.Request.URL.Path))
		}
		fields = append(fields, inviteFields(c)...)

		errorType := ""
		if last := c.Errors.Last(); last != nil && cfg.ErrorClassifier != nil {
			var errorCode string
			errorType, errorCode = cfg.ErrorClassifier(last.Err)
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
			if cfg.Debug && status >= http.StatusInternalServerError {
				fields = append(fields, zap.NamedError("cause", last.Err))
			}
		}

		log := FromContext(c.Request.Context())
		if ce := log.Check(requestLevel(operation, status, errorType), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func inviteFields(c *gin.Context) []zap.Field {
	var fields []zap.Field
	code := c.Param("code")
	if code == "" {
		code = c.GetString(obscontext.KeyInviteCode)
	}
	if code != "" {
		fields = append(fields, zap.String("invite_code", code))
	}
	if count, ok := c.Get(obscontext.KeyInviteCount); ok {
		fields = append(fields, zap.Any("invite_count", count))
	}
	return fields
}

// requestLevel logs routine traffic and rejected input at debug, server
// errors at error, and the rest at info.
func requestLevel(operation string, status int, errorType string) zapcore.Level {
	switch {
	case obscontext.IsRoutine(operation):
		return zapcore.DebugLevel
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest && errorType == "validation_error":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
