// Package kafkasink publishes clinicauth audit events to a Kafka topic.
package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/MrEthical07/clinicauth"
)

// DefaultTopic is used when Config.Topic is empty.
const DefaultTopic = "clinicauth.audit"

type Config struct {
	Brokers []string
	Topic   string
}

// Sink is a clinicauth.AuditSink backed by a sarama.SyncProducer. Publish
// failures are logged and counted, never returned to the Engine.
type Sink struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
	failed   atomic.Uint64
}

var _ clinicauth.AuditSink = (*Sink)(nil)

// New dials brokers with an idempotent, all-acks producer.
func New(cfg Config, logger *slog.Logger) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V3_7_0_0
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Producer.Retry.Max = 5
	sc.Producer.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewWithProducer(producer, cfg.Topic, logger), nil
}

// NewWithProducer wraps an existing producer.
func NewWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *Sink {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{producer: producer, topic: topic, logger: logger}
}

// Emit publishes event as JSON keyed by user id, so one principal's events
// stay ordered within a partition.
func (s *Sink) Emit(_ context.Context, event clinicauth.AuditEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.failed.Add(1)
		s.logger.Error("audit event marshal failed", "event_type", event.EventType, "error", err)
		return
	}

	key := event.UserID
	if key == "" {
		key = event.ID
	}
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.EventType)},
		},
	}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		s.failed.Add(1)
		s.logger.Error("audit publish failed", "topic", s.topic, "event_type", event.EventType, "error", err)
	}
}

// Failed counts events that could not be published.
func (s *Sink) Failed() uint64 {
	return s.failed.Load()
}

func (s *Sink) Close() error {
	if s.producer == nil {
		return nil
	}
	return s.producer.Close()
}
