package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures a KafkaSink.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer used by KafkaSink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events as JSON messages keyed by exchange or party id,
// so all events for one exchange land on the same partition in order.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

// NewKafkaSink creates a sink writing to cfg.Topic on cfg.Brokers.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink: no topic configured")
	}
	batch := cfg.BatchTimeout
	if batch <= 0 {
		batch = 10 * time.Millisecond
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: batch,
	}
	return &KafkaSink{writer: w, topic: cfg.Topic}, nil
}

func newKafkaSinkWithWriter(w messageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: w, topic: topic}
}

// Publish writes one message per event. Headers carry the event type so
// consumers can route without decoding the body.
func (k *KafkaSink) Publish(ctx context.Context, ev Event) error {
	body, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("kafka sink: marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Key()),
		Value: body,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka sink: write to %s: %w", k.topic, err)
	}
	return nil
}

// Close flushes pending writes and releases the connection.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
