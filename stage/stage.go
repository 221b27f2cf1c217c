// Package stage defines the processing stage contract, the name-to-factory
// registry used at pipeline assembly, and the worker runner that gives each
// stage its dedicated goroutine.
//
// A stage owns private mutable state scoped to one session (calibration
// data cached across messages, accumulation buffers). That state is touched
// only by the stage's own worker goroutine, never concurrently - the only
// structures crossing goroutine boundaries are the queues between stages.
package stage

import (
	"encoding/json"

	"github.com/casemr/gadgetron/message"
)

// Stage is a named processing unit in a reconstruction chain.
//
// Configure is called exactly once before activation; a failure aborts
// pipeline assembly before any data flows. Process is called by the
// stage's own worker for each dequeued message and may emit zero or one
// downstream message: (msg, nil) emits, (nil, nil) legitimately emits
// nothing (buffering stages), and a non-nil error signals failure, which
// tears down the whole session.
type Stage interface {
	// Name returns the stable stage type name used in chain descriptors.
	Name() string

	// Configure validates parameters and allocates per-session state.
	Configure(params json.RawMessage) error

	// Process consumes one message the stage now owns and may emit one.
	Process(m *message.Message) (*message.Message, error)
}

// Typed is optionally implemented by stages that can describe the segment
// kinds they consume and produce. Pipeline assembly uses it for a
// best-effort compatibility check between adjacent stages; payload typing
// is dynamic by design, so a mismatch is only ever a logged warning.
type Typed interface {
	InputKinds() []message.Kind
	OutputKinds() []message.Kind
}
