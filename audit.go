package clinicauth

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/clinicauth/internal/audit"
)

// AuditEvent is one audit record. Metadata is redacted before any sink sees it.
type AuditEvent = audit.Event

// AuditSink receives audit events from the Engine's dispatcher goroutine.
// Sinks must swallow their own failures.
type AuditSink = audit.Sink

// NoOpSink drops every event.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers events in a channel; useful in tests.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// SlogSink logs events through a slog.Logger.
type SlogSink = audit.SlogSink

// Redaction modes for AuditConfig.Redaction.
const (
	RedactionNone   = audit.RedactionNone
	RedactionStrict = audit.RedactionStrict
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer, logger *slog.Logger) *JSONWriterSink {
	return audit.NewJSONWriterSink(w, logger)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return audit.NewSlogSink(logger)
}
