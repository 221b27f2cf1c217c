// Package queue provides the bounded FIFO that links adjacent pipeline
// stages. Push blocks while the queue is full - this is the backpressure
// mechanism, and it intentionally propagates upstream all the way to the
// socket read when a downstream stage is slow. Pop blocks while the queue
// is empty. A two-mode shutdown signal unblocks any waiter: graceful
// shutdown lets the consumer drain already-queued messages before exiting,
// aborting shutdown discards them immediately.
package queue

import (
	"sync"

	"github.com/casemr/gadgetron/errors"
	"github.com/casemr/gadgetron/message"
)

// DefaultCapacity is the queue capacity used when a chain entry does not
// configure one.
const DefaultCapacity = 32

type closeState int

const (
	open closeState = iota
	closedGraceful
	closedAbort
)

// Queue is a bounded, thread-safe FIFO of messages with blocking push/pop.
// The design assumes exactly one consumer; multiple producers are tolerated
// but not required.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	items    []*message.Message
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position

	state closeState
}

// New creates a queue with the given capacity. Capacities below one are
// clamped to one so that Push can always make progress eventually.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	q := &Queue{
		items:    make([]*message.Message, capacity),
		capacity: capacity,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Capacity returns the maximum number of messages the queue can hold.
func (q *Queue) Capacity() int { return q.capacity }

// Len returns the current number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Push enqueues a message, transferring ownership to the queue. It suspends
// the caller while the queue is full and returns ErrQueueClosed or
// ErrQueueAborted once shutdown has been signalled.
func (q *Queue) Push(m *message.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == q.capacity && q.state == open {
		q.notFull.Wait()
	}
	if err := q.closedErr("Push"); err != nil {
		return err
	}

	if err := m.BeginTransfer(); err != nil {
		return err
	}
	q.items[q.head] = m
	q.head = (q.head + 1) % q.capacity
	q.size++
	q.notEmpty.Signal()
	return nil
}

// Pop dequeues the oldest message, transferring ownership to the caller.
// It suspends the caller while the queue is empty. After a graceful
// shutdown Pop keeps returning the already-queued messages until the queue
// is drained, then reports ErrQueueClosed; after an aborting shutdown it
// reports ErrQueueAborted immediately.
func (q *Queue) Pop() (*message.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 && q.state == open {
		q.notEmpty.Wait()
	}
	if q.state == closedAbort {
		return nil, errors.WrapProcessing(errors.ErrQueueAborted, "Queue", "Pop", "dequeue")
	}
	if q.size == 0 {
		// Graceful close with nothing left to drain.
		return nil, errors.WrapProcessing(errors.ErrQueueClosed, "Queue", "Pop", "dequeue")
	}

	m := q.items[q.tail]
	q.items[q.tail] = nil
	q.tail = (q.tail + 1) % q.capacity
	q.size--
	q.notFull.Signal()

	m.EndTransfer()
	return m, nil
}

// Close signals graceful shutdown: blocked pushers are released with an
// error, and the consumer drains any already-queued messages before Pop
// reports closed. Safe to call more than once; an earlier abort wins.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != open {
		return
	}
	q.state = closedGraceful
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Abort signals aborting shutdown: blocked pushers and poppers are released
// with an error and every already-queued message is discarded immediately.
// Abort overrides a previous graceful Close.
func (q *Queue) Abort() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == closedAbort {
		return
	}
	q.state = closedAbort

	// Discard queued messages. EndTransfer so teardown code holding the
	// producer-side handle does not see them stuck in flight forever.
	for q.size > 0 {
		m := q.items[q.tail]
		q.items[q.tail] = nil
		q.tail = (q.tail + 1) % q.capacity
		q.size--
		m.EndTransfer()
	}

	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

func (q *Queue) closedErr(op string) error {
	switch q.state {
	case closedGraceful:
		return errors.WrapProcessing(errors.ErrQueueClosed, "Queue", op, "enqueue")
	case closedAbort:
		return errors.WrapProcessing(errors.ErrQueueAborted, "Queue", op, "enqueue")
	default:
		return nil
	}
}
