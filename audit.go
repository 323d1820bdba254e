package tokengate

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditEvent describes one security-relevant engine outcome.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	TokenID   string            `json:"token_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Event type names emitted by the Engine.
const (
	EventRegisterSuccess  = "register_success"
	EventRegisterFailure  = "register_failure"
	EventLoginSuccess     = "login_success"
	EventLoginFailure     = "login_failure"
	EventLoginRateLimited = "login_rate_limited"
	EventRefreshSuccess   = "refresh_success"
	EventRefreshFailure   = "refresh_failure"
	EventLogout           = "logout"
	// EventPersistAnomaly marks a freshly minted pair whose refresh record
	// could not be persisted. The pair is withheld and the operation fails,
	// so the client never holds a token the store would reject.
	EventPersistAnomaly = "persist_anomaly"
)

// AuditSink receives engine audit events.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards all events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink delivers events to a buffered channel for custom consumers.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON line per event.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
