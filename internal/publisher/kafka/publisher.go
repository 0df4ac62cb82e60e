// Package kafka publishes job completion messages to Kafka topics.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

//go:generate mockgen -source=publisher.go -destination=../../mocks/kafka_mock.go -package=mocks

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Keyed payloads choose their partition key; other payloads are unkeyed.
type Keyed interface {
	MessageKey() string
}

// Config selects the brokers to write to.
type Config struct {
	Brokers      []string
	BatchTimeout time.Duration
}

// Publisher writes JSON payloads; the topic is chosen per message.
type Publisher struct {
	writer MessageWriter
	now    func() time.Time
}

// New builds a Publisher backed by a kafka.Writer. Topics must already exist.
func New(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	return NewWithWriter(&kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Balancer:               &kafkago.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: false,
	}), nil
}

// NewWithWriter wraps a custom writer (tests).
func NewWithWriter(w MessageWriter) *Publisher {
	return &Publisher{writer: w, now: func() time.Time { return time.Now().UTC() }}
}

// Publish writes payload to topic. Kafka assigns no message IDs, so the
// returned ID is "<topic>@<unix nanos>".
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("kafka topic is required")
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	at := p.now()
	msg := kafkago.Message{Topic: topic, Value: value, Time: at}
	if k, ok := payload.(Keyed); ok {
		msg.Key = []byte(k.MessageKey())
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("write kafka message: %w", err)
	}
	return topic + "@" + strconv.FormatInt(at.UnixNano(), 10), nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}
