package obscontext

import (
	"context"
	"testing"
)

func TestContextValuesRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, " req-1 ")
	ctx = WithActor(ctx, "participant", "user:42")
	ctx = WithIPAddress(ctx, "10.0.0.1")
	ctx = WithUserAgent(ctx, "curl/8")

	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected trimmed request id, got %q", got)
	}
	actorType, actorID := ActorFromContext(ctx)
	if actorType != "participant" || actorID != "user:42" {
		t.Fatalf("unexpected actor %q %q", actorType, actorID)
	}
	if IPAddressFromContext(ctx) != "10.0.0.1" || UserAgentFromContext(ctx) != "curl/8" {
		t.Fatalf("unexpected client fields")
	}
}

func TestEmptyValuesAreIgnored(t *testing.T) {
	ctx := WithRequestID(context.Background(), "   ")
	if got := RequestIDFromContext(ctx); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
	if got := RequestIDFromContext(nil); got != "" {
		t.Fatalf("expected empty request id for nil ctx, got %q", got)
	}
}
