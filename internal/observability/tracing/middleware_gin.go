package tracing

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/eventreg/internal/observability/obscontext"
	"github.com/smallbiznis/eventreg/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "eventreg/http"

// GinMiddleware opens a server span per request, continuing any remote trace,
// and names it after the matched route once the handler ran.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := otel.Tracer(instrumentation).Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ctx = withRequestBaggage(ctx, span)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.request.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		}
		if id := c.Param("id"); id != "" {
			attrs = append(attrs, attribute.String("eventreg.resource_id", id))
		}
		if actorType, _ := obscontext.ActorFromContext(c.Request.Context()); actorType != "" {
			attrs = append(attrs, attribute.String("eventreg.actor_type", actorType))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		last := c.Errors.Last()
		switch {
		case status >= http.StatusInternalServerError:
			if last != nil {
				span.RecordError(SafeError(last.Err))
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		case last != nil:
			span.SetAttributes(attribute.String("error.code", SafeError(last.Err).Error()))
		}
	}
}

// withRequestBaggage tags the span with request and correlation ids and
// forwards the request id to downstream calls as baggage.
func withRequestBaggage(ctx context.Context, span trace.Span) context.Context {
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		span.SetAttributes(attribute.String("correlation_id", cid))
	}
	requestID := obscontext.RequestIDFromContext(ctx)
	if requestID == "" {
		return ctx
	}
	span.SetAttributes(attribute.String("request_id", requestID))
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
