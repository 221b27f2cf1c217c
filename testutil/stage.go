package testutil

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/casemr/gadgetron/message"
	"github.com/casemr/gadgetron/stage"
)

// FuncStage adapts a function to the stage contract. The zero ProcessFunc
// forwards messages unchanged.
type FuncStage struct {
	StageName     string
	ConfigureFunc func(params json.RawMessage) error
	ProcessFunc   func(m *message.Message) (*message.Message, error)

	mu    sync.Mutex
	calls int
}

var _ stage.Stage = (*FuncStage)(nil)

// Name implements stage.Stage
func (s *FuncStage) Name() string {
	if s.StageName == "" {
		return "func-stage"
	}
	return s.StageName
}

// Configure implements stage.Stage
func (s *FuncStage) Configure(params json.RawMessage) error {
	if s.ConfigureFunc != nil {
		return s.ConfigureFunc(params)
	}
	return nil
}

// Process implements stage.Stage
func (s *FuncStage) Process(m *message.Message) (*message.Message, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.ProcessFunc != nil {
		return s.ProcessFunc(m)
	}
	return m, nil
}

// Calls returns how many times Process has run.
func (s *FuncStage) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// CollectEmitter records every emitted message for later assertions.
type CollectEmitter struct {
	mu       sync.Mutex
	messages []*message.Message
}

var _ stage.Emitter = (*CollectEmitter)(nil)

// Emit implements stage.Emitter
func (e *CollectEmitter) Emit(m *message.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, m)
	return nil
}

// Messages returns a snapshot of everything emitted so far.
func (e *CollectEmitter) Messages() []*message.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*message.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// Len returns the number of messages emitted so far.
func (e *CollectEmitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.messages)
}

// WaitFor polls until at least n messages have been emitted or the timeout
// elapses. Returns whether the count was reached.
func (e *CollectEmitter) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if e.Len() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return e.Len() >= n
}
