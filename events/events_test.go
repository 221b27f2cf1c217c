package events_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casemr/gadgetron/events"
)

func TestNilPublisher_IsSafe(t *testing.T) {
	var p *events.Publisher

	// The data path never depends on a broker; a nil publisher discards.
	p.Publish(events.Event{Type: events.SessionStarted, SessionID: "abc"})
	p.Close()
}

func TestEvent_JSONShape(t *testing.T) {
	ev := events.Event{
		Timestamp:  "2026-01-02T03:04:05Z",
		Type:       events.SessionFailed,
		SessionID:  "abc",
		Remote:     "10.0.0.1:51234",
		ErrorClass: "protocol",
		Error:      "unknown tag",
	}

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "session.failed", decoded["type"])
	assert.Equal(t, "abc", decoded["session_id"])
	assert.Equal(t, "protocol", decoded["error_class"])

	// Optional fields stay off the wire when empty.
	minimal, err := json.Marshal(events.Event{Type: events.SessionStarted, SessionID: "x"})
	require.NoError(t, err)
	assert.NotContains(t, string(minimal), "error_class")
	assert.NotContains(t, string(minimal), "remote")
}
