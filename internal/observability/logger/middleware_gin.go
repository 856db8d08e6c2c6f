package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/observability/obscontext"
	"github.com/smallbiznis/eventreg/pkg/telemetry/correlation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	headerRequestID     = "X-Request-Id"
	headerCorrelationID = "X-Correlation-Id"
)

type MiddlewareConfig struct {
	Debug bool
	// Classify maps a handler error to its public type and code.
	Classify func(err error) (errType, code string)
	// Expected lists error types logged at debug, such as capacity conflicts.
	Expected []string
}

// GinMiddleware seeds the request context with request, correlation and
// origin data, then writes one http_request entry per request.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	expected := make(map[string]struct{}, len(cfg.Expected))
	for _, t := range cfg.Expected {
		expected[t] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		requestID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(headerRequestID, requestID)

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		ctx = obscontext.WithIPAddress(ctx, c.ClientIP())
		ctx = obscontext.WithUserAgent(ctx, c.Request.UserAgent())
		ctx = correlation.ContextWithCorrelationID(ctx, strings.TrimSpace(c.GetHeader(headerCorrelationID)))
		ctx, correlationID := correlation.EnsureCorrelationID(ctx)
		c.Header(headerCorrelationID, correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Int64("duration_ms", sinceMillis(start)),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if key := resourceKey(route); key != "" {
			fields = append(fields, zap.String(key, c.Param("id")))
		}

		level := zapcore.InfoLevel
		if status >= http.StatusInternalServerError {
			level = zapcore.ErrorLevel
		}
		if last := c.Errors.Last(); last != nil && cfg.Classify != nil {
			errType, code := cfg.Classify(last.Err)
			fields = append(fields, zap.String("error_type", errType), zap.String("error_code", code))
			if _, ok := expected[errType]; ok && level < zapcore.ErrorLevel {
				level = zapcore.DebugLevel
			}
			if cfg.Debug && level >= zapcore.ErrorLevel {
				fields = append(fields, zap.Stack("stack"))
			}
		}
		if route == "/health" || route == "/metrics" {
			level = zapcore.DebugLevel
		}

		if ce := FromContext(c.Request.Context()).Check(level, "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

// resourceKey names the :id parameter after the collection it indexes, so
// /api/events/:id logs event_id.
func resourceKey(route string) string {
	parts := strings.Split(route, "/")
	for i := 1; i < len(parts); i++ {
		if parts[i] == ":id" {
			return strings.TrimSuffix(parts[i-1], "s") + "_id"
		}
	}
	return ""
}
