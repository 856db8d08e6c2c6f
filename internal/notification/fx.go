package notification

import (
	"context"
	"io"

	"github.com/smallbiznis/eventreg/internal/config"
	"github.com/smallbiznis/eventreg/internal/notification/domain"
	"github.com/smallbiznis/eventreg/internal/notification/sender"
	"github.com/smallbiznis/eventreg/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type sendersResult struct {
	fx.Out

	Senders []domain.Sender `group:"notification.senders,flatten"`
}

// newSenders builds one sender per configured transport.
func newSenders(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, provider email.Provider) sendersResult {
	var senders []domain.Sender
	for _, transport := range cfg.Notify.Transports {
		switch transport {
		case "log":
			senders = append(senders, sender.NewLog(log))
		case "email":
			senders = append(senders, sender.NewEmail(provider))
		case "amqp":
			senders = append(senders, sender.NewAMQP(cfg.Notify.RabbitMQURL, cfg.Notify.AMQPQueue))
		case "kafka":
			senders = append(senders, sender.NewKafka(cfg.Notify.KafkaBroker, cfg.Notify.KafkaTopic))
		default:
			log.Warn("unknown notification transport", zap.String("transport", transport))
		}
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			for _, s := range senders {
				if closer, ok := s.(io.Closer); ok {
					_ = closer.Close()
				}
			}
			return nil
		},
	})
	return sendersResult{Senders: senders}
}

var Module = fx.Module("notification",
	email.Module,
	fx.Provide(newSenders),
	fx.Provide(NewDispatcher),
	fx.Provide(func(d *Dispatcher) domain.Sink { return d }),
	fx.Invoke(func(lc fx.Lifecycle, d *Dispatcher) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go d.Run()
				return nil
			},
			OnStop: d.Stop,
		})
	}),
)
