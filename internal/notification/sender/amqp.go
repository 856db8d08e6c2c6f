package sender

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smallbiznis/eventreg/internal/notification/domain"
	"github.com/smallbiznis/eventreg/pkg/telemetry/correlation"
)

// AMQP publishes notifications to a durable RabbitMQ queue. The connection
// is opened on first use and reopened after it drops.
type AMQP struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQP(url, queue string) *AMQP {
	return &AMQP{url: url, queue: queue}
}

func (s *AMQP) Name() string { return "amqp" }

func (s *AMQP) Send(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	headers, correlationID := publishHeaders(ctx, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx,
		"",
		s.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			Timestamp:     time.Now().UTC(),
			Type:          string(n.Kind),
			CorrelationId: correlationID,
			Headers:       headers,
			Body:          body,
		},
	)
	if err != nil {
		s.reset()
	}
	return err
}

func publishHeaders(ctx context.Context, now time.Time) (amqp.Table, string) {
	raw := correlation.MessageHeaders(ctx, now)
	headers := make(amqp.Table, len(raw))
	for k, v := range raw {
		headers[k] = v
	}
	return headers, raw[correlation.HeaderCorrelationID]
}

func (s *AMQP) channel() (*amqp.Channel, error) {
	if s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}
	s.reset()

	conn, err := amqp.Dial(s.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(s.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	s.conn = conn
	s.ch = ch
	return ch, nil
}

func (s *AMQP) reset() {
	if s.ch != nil {
		_ = s.ch.Close()
		s.ch = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *AMQP) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}
