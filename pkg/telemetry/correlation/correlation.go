// Package correlation threads one id through an HTTP request and every
// notification it publishes.
package correlation

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	HeaderCorrelationID = "correlation_id"
	HeaderPublishedAt   = "published_at"
)

type key struct{}

func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(key{}).(string)
	return id
}

// ContextWithCorrelationID stores id on ctx; an empty id leaves ctx as is.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, key{}, id)
}

// EnsureCorrelationID returns ctx carrying a correlation id, minting a ULID
// when none is present.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := ExtractCorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return ContextWithCorrelationID(ctx, id), id
}

// MessageHeaders builds broker headers from ctx: the correlation id, the
// publish time and the propagated trace context.
func MessageHeaders(ctx context.Context, publishedAt time.Time) map[string]string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	_, carrier[HeaderCorrelationID] = EnsureCorrelationID(ctx)
	carrier[HeaderPublishedAt] = publishedAt.UTC().Format(time.RFC3339)
	return carrier
}
