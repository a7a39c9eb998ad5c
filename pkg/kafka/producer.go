package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/config"
)

const contentTypeJSON = "application/json"

// Event is one message to publish. Key picks the partition; Value is
// encoded as JSON; Headers are copied onto the message as-is.
type Event struct {
	Key     string
	Value   any
	Headers map[string]string
}

func (e Event) message(now time.Time) (kafka.Message, error) {
	value, err := json.Marshal(e.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding value for key %q: %w", e.Key, err)
	}
	headers := make([]kafka.Header, 0, len(e.Headers)+1)
	headers = append(headers, kafka.Header{Key: "content-type", Value: []byte(contentTypeJSON)})
	for k, v := range e.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{Key: []byte(e.Key), Value: value, Headers: headers, Time: now}, nil
}

// Writer is the part of *kafka.Writer the producer needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer Writer
	logger *slog.Logger
}

// NewProducer writes to topic with key-hash partitioning so every message
// for one job lands on the same partition.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return NewProducerWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
	}, topic)
}

func NewProducerWithWriter(w Writer, topic string) *Producer {
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish encodes the events and writes them in one synchronous batch.
func (p *Producer) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	now := time.Now()
	msgs := make([]kafka.Message, len(events))
	for i, e := range events {
		m, err := e.message(now)
		if err != nil {
			return err
		}
		msgs[i] = m
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("publish failed", "messages", len(msgs), "first_key", events[0].Key, "error", err)
		return fmt.Errorf("publishing %d message(s): %w", len(msgs), err)
	}
	p.logger.Debug("published", "messages", len(msgs), "first_key", events[0].Key)
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
