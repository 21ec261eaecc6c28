package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/gridsim/internal/logging"
)

const (
	requestIDHeader = "X-Request-ID"
	tracerName      = "github.com/signalsfoundry/gridsim/internal/api"
)

// requestIDMiddleware ensures a request_id is present on the request
// context, taking it from X-Request-ID when the caller supplied one, and
// attaches a per-request logger annotated with method and route.
func requestIDMiddleware(base logging.Logger) gin.HandlerFunc {
	if base == nil {
		base = logging.Noop()
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if incoming := c.GetHeader(requestIDHeader); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}
		ctx, id := logging.EnsureRequestID(ctx)

		reqLog := base.With(
			logging.String("method", c.Request.Method),
			logging.String("route", c.FullPath()),
		)
		ctx = logging.ContextWithLogger(ctx, reqLog)

		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// tracingMiddleware opens a server span per request.
func tracingMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracer.Start(c.Request.Context(),
			fmt.Sprintf("HTTP %s %s", c.Request.Method, route),
			trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
		}
		if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
			attrs = append(attrs, attribute.String("request_id", reqID))
		}
		span.SetAttributes(attrs...)

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// corsMiddleware allows every origin, method and header.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		h.Set("Access-Control-Expose-Headers", requestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
