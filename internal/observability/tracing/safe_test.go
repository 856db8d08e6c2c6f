package tracing

import (
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/events/:id"),
		attribute.String("participant.email", "a@example.com"),
		attribute.String("webhook_secret", "whsec"),
	)
	if len(attrs) != 1 || attrs[0].Key != "http.route" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
}

func TestSafeErrorTruncates(t *testing.T) {
	if SafeError(nil) != nil {
		t.Fatalf("expected nil")
	}
	err := SafeError(errors.New("first line\nsecond line"))
	if err.Error() != "first line" {
		t.Fatalf("unexpected error text %q", err.Error())
	}
	long := SafeError(errors.New(strings.Repeat("x", 300)))
	if len(long.Error()) != 256 {
		t.Fatalf("expected truncation to 256, got %d", len(long.Error()))
	}
}
