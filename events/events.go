// Package events publishes session lifecycle events to NATS for external
// monitoring. Publishing is best-effort and optional: a nil publisher is
// valid and silently discards events, so the data path never depends on a
// broker being reachable.
package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// EventType identifies a session lifecycle transition.
type EventType string

const (
	// SessionStarted is published when a session's pipeline activates.
	SessionStarted EventType = "session.started"
	// SessionCompleted is published on graceful session close.
	SessionCompleted EventType = "session.completed"
	// SessionFailed is published when a session is torn down on error.
	SessionFailed EventType = "session.failed"
)

// Event is the JSON payload published per lifecycle transition.
type Event struct {
	Timestamp  string    `json:"timestamp"` // RFC3339 format
	Type       EventType `json:"type"`
	SessionID  string    `json:"session_id"`
	Remote     string    `json:"remote,omitempty"`
	ErrorClass string    `json:"error_class,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Publisher publishes session events to a NATS subject. It wraps a plain
// core-NATS connection; events are fire-and-forget.
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// Connect dials NATS and returns a publisher for the given subject.
func Connect(url, subject string, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, subject: subject, logger: logger}, nil
}

// Publish sends one event. A nil publisher discards the event; publish
// failures are logged and never surfaced to the session.
func (p *Publisher) Publish(ev Event) {
	if p == nil {
		return
	}
	ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("Failed to marshal session event", "error", err)
		return
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		p.logger.Error("Failed to publish session event", "error", err, "subject", p.subject)
	}
}

// Close drains and closes the NATS connection. Safe on a nil publisher.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.nc.Close()
}
