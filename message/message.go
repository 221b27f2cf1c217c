package message

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/casemr/gadgetron/errors"
)

// Message is a non-empty ordered chain of typed payload segments. It is
// move-only in effect: handing a Message to a queue transfers exclusive
// ownership, and the previous owner must not read or mutate it afterward.
// The in-flight marker enforces this at runtime - every accessor fails with
// ErrMessageMoved while the message sits in a queue.
type Message struct {
	id       string
	segments []Segment
	inFlight atomic.Bool
}

// New creates a message from the given segments in order.
func New(segments ...Segment) *Message {
	m := &Message{
		id:       uuid.NewString(),
		segments: make([]Segment, 0, len(segments)),
	}
	m.segments = append(m.segments, segments...)
	return m
}

// ID returns the unique identifier of this message instance.
func (m *Message) ID() string { return m.id }

// Len returns the number of segments in the chain.
func (m *Message) Len() int { return len(m.segments) }

// Kinds returns the segment kinds in chain order. Used for codec matching
// and best-effort type compatibility checks at pipeline assembly.
func (m *Message) Kinds() []Kind {
	kinds := make([]Kind, len(m.segments))
	for i, s := range m.segments {
		kinds[i] = s.Kind()
	}
	return kinds
}

// Append adds a typed segment to the tail of the chain.
func (m *Message) Append(s Segment) error {
	if err := m.checkOwned("Append"); err != nil {
		return err
	}
	if s == nil {
		return errors.WrapProcessing(errors.ErrTypeMismatch, "Message", "Append", "nil segment")
	}
	m.segments = append(m.segments, s)
	return nil
}

// DetachHead removes and returns the head segment.
func (m *Message) DetachHead() (Segment, error) {
	if err := m.checkOwned("DetachHead"); err != nil {
		return nil, err
	}
	if len(m.segments) == 0 {
		return nil, errors.WrapProcessing(errors.ErrEmptyMessage, "Message", "DetachHead", "detach")
	}
	head := m.segments[0]
	m.segments = m.segments[1:]
	return head, nil
}

// Segment returns the segment at index i without removing it.
func (m *Message) Segment(i int) (Segment, error) {
	if err := m.checkOwned("Segment"); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(m.segments) {
		return nil, errors.WrapProcessing(
			fmt.Errorf("segment index %d out of range [0,%d)", i, len(m.segments)),
			"Message", "Segment", "index")
	}
	return m.segments[i], nil
}

// BeginTransfer marks the message as handed off to a new owner. Called by
// the queue on enqueue. While in flight, every accessor on the message
// fails, which is what makes ownership transfer observable to a component
// that wrongly keeps using its old handle.
func (m *Message) BeginTransfer() error {
	if !m.inFlight.CompareAndSwap(false, true) {
		return errors.WrapProcessing(errors.ErrMessageMoved, "Message", "BeginTransfer", "transfer")
	}
	return nil
}

// EndTransfer completes the hand-off, making the message usable by its new
// owner. Called by the queue on dequeue or discard.
func (m *Message) EndTransfer() {
	m.inFlight.Store(false)
}

func (m *Message) checkOwned(op string) error {
	if m.inFlight.Load() {
		return errors.WrapProcessing(errors.ErrMessageMoved, "Message", op, "ownership check")
	}
	return nil
}

// At returns the segment at index i asserted to concrete type T, failing
// with a type-mismatch error if the stored segment differs.
func At[T Segment](m *Message, i int) (T, error) {
	var zero T
	seg, err := m.Segment(i)
	if err != nil {
		return zero, err
	}
	typed, ok := seg.(T)
	if !ok {
		return zero, errors.WrapProcessing(
			fmt.Errorf("%w: segment %d is %s", errors.ErrTypeMismatch, i, seg.Kind()),
			"Message", "At", "typed access")
	}
	return typed, nil
}

// First returns the head segment asserted to concrete type T.
func First[T Segment](m *Message) (T, error) {
	return At[T](m, 0)
}
