package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one audit record.
type Event struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	EventType     string         `json:"event_type"`
	UserID        string         `json:"user_id,omitempty"`
	IP            string         `json:"ip,omitempty"`
	UserAgent     string         `json:"user_agent,omitempty"`
	Success       bool           `json:"success"`
	Error         string         `json:"error,omitempty"`
	RedactionMode string         `json:"redaction_mode,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Sink receives events from the dispatcher worker. Emit must not retain
// event.Metadata beyond the call unless it copies it.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line. Marshal and write
// failures are logged and counted, never returned.
type JSONWriterSink struct {
	writer io.Writer
	logger *slog.Logger
	mu     sync.Mutex
	failed atomic.Uint64
}

// NewJSONWriterSink writes to w. A nil logger uses slog.Default.
func NewJSONWriterSink(w io.Writer, logger *slog.Logger) *JSONWriterSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONWriterSink{
		writer: w,
		logger: logger,
	}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.failed.Add(1)
		s.logger.Error("audit event marshal failed", "event_type", event.EventType, "error", err)
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writer.Write(data); err != nil {
		s.failed.Add(1)
		s.logger.Error("audit write failed", "event_type", event.EventType, "error", err)
	}
}

// Failed counts events that could not be encoded or written.
func (s *JSONWriterSink) Failed() uint64 {
	return s.failed.Load()
}

// SlogSink logs each event at info level (warn for failures) under the
// "audit" message.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Emit(ctx context.Context, event Event) {
	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("event_id", event.ID),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.Time("timestamp", event.Timestamp),
	}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.IP != "" {
		attrs = append(attrs, slog.String("ip", event.IP))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", event.Metadata))
	}
	s.logger.LogAttrs(ctx, level, "audit", attrs...)
}
