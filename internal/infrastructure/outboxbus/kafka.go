package outboxbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/storefront-go/storefront/internal/domain/outbox"
	"github.com/storefront-go/storefront/internal/observability"
)

// KafkaMirror forwards domain events to a Kafka topic for consumers outside
// this process. It is registered as a bus subscriber, so delivery shares the
// bus's at-most-once semantics.
type KafkaMirror struct {
	writer *kafka.Writer
	log    observability.Logger
}

func NewKafkaMirror(brokers []string, topic string, logger observability.Logger) *KafkaMirror {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &KafkaMirror{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		log: logger.With(observability.F("component", "kafka_mirror")),
	}
}

// Register mirrors the given event names onto the topic.
func (m *KafkaMirror) Register(sub outbox.Subscriber, eventNames ...string) {
	for _, name := range eventNames {
		sub.Subscribe(name, m.handle)
	}
}

func (m *KafkaMirror) handle(ctx context.Context, e outbox.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("kafka mirror: encode %s: %w", e.EventName(), err)
	}
	msg := kafka.Message{
		Key:   []byte(e.EventName()),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(e.EventName())},
		},
	}
	if err := m.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka mirror: write %s: %w", e.EventName(), err)
	}
	m.log.Debug("event_mirrored", observability.F("event", e.EventName()))
	return nil
}

func (m *KafkaMirror) Close() error {
	return m.writer.Close()
}
