package sender

import (
	"context"

	"github.com/smallbiznis/eventreg/internal/notification/domain"
	"go.uber.org/zap"
)

type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	return &Log{log: log.Named("notification.log")}
}

func (s *Log) Name() string { return "log" }

func (s *Log) Send(ctx context.Context, n domain.Notification) error {
	s.log.Info("notification",
		zap.String("kind", string(n.Kind)),
		zap.String("participant", n.Participant.String()),
		zap.String("event_id", n.EventID.String()),
		zap.String("registration_id", n.RegistrationID.String()),
		zap.String("message", n.Message),
	)
	return nil
}
