package adapters

import (
	"strings"

	"github.com/smallbiznis/eventreg/internal/payment/domain"
)

// Registry resolves gateways and webhook adapters by provider name.
type Registry struct {
	gateways  map[string]domain.Gateway
	factories map[string]domain.AdapterFactory
}

func NewRegistry(gateways []domain.Gateway, factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{
		gateways:  map[string]domain.Gateway{},
		factories: map[string]domain.AdapterFactory{},
	}
	for _, gateway := range gateways {
		if gateway == nil {
			continue
		}
		provider := normalize(gateway.Provider())
		if provider == "" {
			continue
		}
		registry.gateways[provider] = gateway
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := normalize(factory.Provider())
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	return registry
}

func (r *Registry) Gateway(provider string) (domain.Gateway, error) {
	if r == nil {
		return nil, domain.ErrGatewayNotConfigured
	}
	gateway, ok := r.gateways[normalize(provider)]
	if !ok {
		return nil, domain.ErrGatewayNotConfigured
	}
	return gateway, nil
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[normalize(provider)]
	return ok
}

func (r *Registry) NewAdapter(provider string, cfg domain.AdapterConfig) (domain.WebhookAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	factory, ok := r.factories[normalize(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return factory.NewAdapter(cfg)
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
