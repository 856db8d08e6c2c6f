package payment

import (
	"github.com/smallbiznis/eventreg/internal/config"
	"github.com/smallbiznis/eventreg/internal/payment/adapters"
	"github.com/smallbiznis/eventreg/internal/payment/adapters/mock"
	"github.com/smallbiznis/eventreg/internal/payment/adapters/offline"
	"github.com/smallbiznis/eventreg/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"github.com/smallbiznis/eventreg/internal/payment/repository"
	paymentservice "github.com/smallbiznis/eventreg/internal/payment/service"
	"github.com/smallbiznis/eventreg/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) *adapters.Registry {
		return adapters.NewRegistry(
			[]paymentdomain.Gateway{
				mock.NewGateway(),
				offline.NewGateway(),
				stripe.NewGateway(cfg.Payments.StripeAPIKey, cfg.Payments.StripeBaseURL, nil),
			},
			mock.NewFactory(),
			stripe.NewFactory(),
		)
	}),
	fx.Provide(webhook.NewVerifier),
	fx.Provide(paymentservice.NewService),
)
