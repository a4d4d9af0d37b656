package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/vitos/crypto_bot_engine/internal/domain"
	"github.com/vitos/crypto_bot_engine/internal/events"
)

// Writer defines the subset of kafka.Writer used by the sink.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes every event to one topic keyed by bot id, so a bot's
// events stay ordered within a partition.
type KafkaSink struct {
	writer Writer
	now    func() time.Time
}

func NewKafkaWriter(brokers []string, topic string) (*kafka.Writer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}, nil
}

func NewKafkaSink(w Writer) *KafkaSink {
	return &KafkaSink{writer: w, now: time.Now}
}

// WithNow overrides the time provider for testing purposes.
func (s *KafkaSink) WithNow(now func() time.Time) *KafkaSink {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Send(ctx context.Context, ev domain.Event) error {
	value, err := events.Encode(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.Bot()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type())},
		},
		Time: s.now(),
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
