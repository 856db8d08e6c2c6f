// Package webhook authenticates inbound payment provider callbacks.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/smallbiznis/eventreg/internal/config"
	"github.com/smallbiznis/eventreg/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Adapters *adapters.Registry
	Cfg      config.Config
}

// Verifier turns a raw provider callback into a PaymentEvent once its
// signature checks out. Adapters are built on first use per provider.
type Verifier struct {
	log      *zap.Logger
	tracer   trace.Tracer
	registry *adapters.Registry
	secrets  map[string]string

	mu    sync.Mutex
	built map[string]paymentdomain.WebhookAdapter
}

func NewVerifier(p Params) *Verifier {
	secrets := make(map[string]string, len(p.Cfg.Payments.WebhookSecrets))
	for provider, secret := range p.Cfg.Payments.WebhookSecrets {
		provider, secret = normalizeProvider(provider), strings.TrimSpace(secret)
		if provider != "" && secret != "" {
			secrets[provider] = secret
		}
	}
	return &Verifier{
		log:      p.Log.Named("payment.webhook"),
		tracer:   otel.Tracer("github.com/smallbiznis/eventreg/internal/payment/webhook"),
		registry: p.Adapters,
		secrets:  secrets,
		built:    map[string]paymentdomain.WebhookAdapter{},
	}
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

func (v *Verifier) Verify(ctx context.Context, provider string, payload []byte, headers http.Header) (*paymentdomain.PaymentEvent, error) {
	provider = normalizeProvider(provider)
	ctx, span := v.tracer.Start(ctx, "payment.webhook.verify", trace.WithAttributes(
		attribute.String("payment.provider", provider),
		attribute.Int("payment.webhook.bytes", len(payload)),
	))
	defer span.End()

	event, err := v.verify(ctx, provider, payload, headers)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			span.SetAttributes(attribute.Bool("payment.webhook.ignored", true))
		} else {
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	span.SetAttributes(
		attribute.String("payment.event_type", event.Type),
		attribute.String("payment.id", event.PaymentID.String()),
	)
	return event, nil
}

func (v *Verifier) verify(ctx context.Context, provider string, payload []byte, headers http.Header) (*paymentdomain.PaymentEvent, error) {
	if !json.Valid(payload) {
		return nil, paymentdomain.ErrInvalidPayload
	}
	adapter, err := v.adapter(provider)
	if err != nil {
		return nil, err
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return nil, err
	}

	event, err := adapter.Parse(ctx, payload)
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidPayment):
		v.log.Warn("payment webhook missing payment reference", zap.String("provider", provider))
		return nil, err
	case err != nil:
		return nil, err
	}
	if err := checkEvent(event); err != nil {
		return nil, err
	}

	event.Provider = provider
	if event.RawPayload == nil {
		event.RawPayload = payload
	}
	return event, nil
}

func (v *Verifier) adapter(provider string) (paymentdomain.WebhookAdapter, error) {
	if provider == "" || v.registry == nil || !v.registry.ProviderExists(provider) {
		return nil, paymentdomain.ErrProviderNotFound
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if a, ok := v.built[provider]; ok {
		return a, nil
	}
	secret, ok := v.secrets[provider]
	if !ok {
		v.log.Warn("payment webhook secret not configured", zap.String("provider", provider))
		return nil, paymentdomain.ErrInvalidConfig
	}
	a, err := v.registry.NewAdapter(provider, paymentdomain.AdapterConfig{
		Provider: provider,
		Config:   map[string]any{"webhook_secret": secret},
	})
	if err != nil {
		return nil, err
	}
	v.built[provider] = a
	return a, nil
}

var knownEventTypes = map[string]bool{
	paymentdomain.EventTypePaymentSucceeded: true,
	paymentdomain.EventTypePaymentFailed:    true,
	paymentdomain.EventTypeRefunded:         true,
}

// checkEvent rejects events an adapter decoded but that cannot be applied.
func checkEvent(event *paymentdomain.PaymentEvent) error {
	switch {
	case event == nil, strings.TrimSpace(event.ProviderEventID) == "":
		return paymentdomain.ErrInvalidEvent
	case event.PaymentID == 0:
		return paymentdomain.ErrInvalidPayment
	case !knownEventTypes[event.Type], event.Amount < 0:
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}
