package tracing

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/invites/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/smallbiznis/invites/http"

// Span attributes. Invite codes are never recorded; a span says which
// operation ran and how many invites it touched.
const (
	attrOperation   = attribute.Key("invite.operation")
	attrInviteCount = attribute.Key("invite.count")
	attrRequestID   = attribute.Key("request_id")
	attrRoute       = attribute.Key("http.route")
	attrMethod      = attribute.Key("http.method")
	attrStatus      = attribute.Key("http.status_code")
)

var allowedSpanKeys = map[attribute.Key]struct{}{
	attrOperation:   {},
	attrInviteCount: {},
	attrRequestID:   {},
	attrRoute:       {},
	attrMethod:      {},
	attrStatus:      {},
}

// GinMiddleware opens one server span per request, continuing any trace the
// caller propagated. Spans for invite routes are named after the operation,
// e.g. "invites.create".
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		status := c.Writer.Status()
		attrs := []attribute.KeyValue{
			attrMethod.String(c.Request.Method),
			attrStatus.Int(status),
		}
		if route != "" {
			attrs = append(attrs, attrRoute.String(route))
		}
		if id := obscontext.RequestIDFromContext(c.Request.Context()); id != "" {
			attrs = append(attrs, attrRequestID.String(id))
		}
		if count, ok := c.Get(obscontext.KeyInviteCount); ok {
			if n, ok := count.(int); ok {
				attrs = append(attrs, attrInviteCount.Int(n))
			}
		}
		if op := obscontext.Operation(c.Request.Method, route); op != "" {
			span.SetName(op)
			attrs = append(attrs, attrOperation.String(op))
		} else if route != "" {
			span.SetName("HTTP " + c.Request.Method + " " + route)
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		if status >= http.StatusInternalServerError {
			if last := c.Errors.Last(); last != nil {
				if err := SafeError(last.Err); err != nil {
					span.RecordError(err)
				}
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// SafeAttributes drops every attribute outside the allow-list.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := attrs[:0:0]
	for _, attr := range attrs {
		if _, ok := allowedSpanKeys[attr.Key]; ok {
			out = append(out, attr)
		}
	}
	return out
}

// SafeError keeps the first line of err's message.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	first, _, _ := strings.Cut(err.Error(), "\n")
	if first = strings.TrimSpace(first); first == "" {
		return nil
	}
	return errors.New(first)
}
