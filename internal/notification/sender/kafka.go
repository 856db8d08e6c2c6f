package sender

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/smallbiznis/eventreg/internal/notification/domain"
	"github.com/smallbiznis/eventreg/pkg/telemetry/correlation"
)

type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

func (s *Kafka) Name() string { return "kafka" }

func (s *Kafka) Send(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	headers := []kafka.Header{{Key: "kind", Value: []byte(n.Kind)}}
	for k, v := range correlation.MessageHeaders(ctx, time.Now()) {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	// keyed by event so one event's notifications stay ordered on a partition
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(n.EventID.String()),
		Value:   body,
		Headers: headers,
	})
}

func (s *Kafka) Close() error {
	return s.writer.Close()
}
