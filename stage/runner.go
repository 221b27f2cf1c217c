package stage

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/casemr/gadgetron/errors"
	"github.com/casemr/gadgetron/message"
	"github.com/casemr/gadgetron/metric"
	"github.com/casemr/gadgetron/queue"
)

// Emitter is a stage's single downstream target: the next stage's queue,
// or the session's egress path for the terminal stage.
type Emitter interface {
	Emit(m *message.Message) error
}

// QueueEmitter adapts a queue into an Emitter, so stages wire
// queue-to-queue without knowing about queues.
type QueueEmitter struct {
	Queue *queue.Queue
}

// Emit pushes the message into the wrapped queue, blocking while it is
// full. This is where backpressure propagates upstream.
func (e QueueEmitter) Emit(m *message.Message) error {
	return e.Queue.Push(m)
}

// FailureFunc is invoked at most once when a stage's Process signals
// failure. The session controller uses it to trigger aborting teardown.
type FailureFunc func(stageName string, err error)

// Runner binds a stage to its inbound queue and downstream target and runs
// the stage's dedicated worker goroutine: pop, process, emit, repeat. The
// stage's private state is only ever touched from this goroutine.
type Runner struct {
	stage   Stage
	name    string // instance name, unique within the pipeline
	in      *queue.Queue
	out     Emitter
	onFail  FailureFunc
	logger  *slog.Logger
	metrics *metric.Metrics

	started atomic.Bool
	done    chan struct{}
}

// NewRunner creates a runner for the given configured stage. metrics may
// be nil; onFail must not be.
func NewRunner(
	s Stage,
	instanceName string,
	in *queue.Queue,
	out Emitter,
	onFail FailureFunc,
	logger *slog.Logger,
	metrics *metric.Metrics,
) *Runner {
	return &Runner{
		stage:   s,
		name:    instanceName,
		in:      in,
		out:     out,
		onFail:  onFail,
		logger:  logger.With("stage", instanceName),
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

// Name returns the runner's instance name.
func (r *Runner) Name() string { return r.name }

// Queue returns the runner's inbound queue.
func (r *Runner) Queue() *queue.Queue { return r.in }

// Start launches the worker goroutine. A runner starts at most once.
func (r *Runner) Start() error {
	if !r.started.CompareAndSwap(false, true) {
		return errors.WrapProcessing(errors.ErrAlreadyStarted, "Runner", "Start", r.name)
	}
	go r.run()
	return nil
}

// Join blocks until the worker goroutine has exited. The queue must have
// been closed or aborted first, otherwise Join blocks indefinitely.
func (r *Runner) Join() {
	<-r.done
}

// run is the worker loop. It exits when the inbound queue reports closed
// (graceful, after draining) or aborted, or when the stage signals failure.
func (r *Runner) run() {
	defer close(r.done)

	for {
		m, err := r.in.Pop()
		if err != nil {
			// Shutdown signal, not a failure.
			r.logger.Debug("worker exiting", "reason", err)
			return
		}
		if r.metrics != nil {
			r.metrics.SetQueueDepth(r.name, r.in.Len())
		}

		start := time.Now()
		out, perr := r.stage.Process(m)
		if r.metrics != nil {
			r.metrics.ObserveStageDuration(r.name, time.Since(start).Seconds())
		}

		if perr != nil {
			if r.metrics != nil {
				r.metrics.RecordStageProcessed(r.name, "failed")
			}
			r.logger.Error("stage processing failed", "error", perr)
			r.onFail(r.name, errors.WrapProcessing(perr, "Runner", "run", r.name))
			return
		}

		if r.metrics != nil {
			r.metrics.RecordStageProcessed(r.name, "ok")
		}

		if out == nil {
			// Buffering stages legitimately emit nothing.
			continue
		}

		if err := r.out.Emit(out); err != nil {
			if errors.Is(err, errors.ErrQueueAborted) || errors.Is(err, errors.ErrQueueClosed) {
				// Teardown already in progress downstream.
				r.logger.Debug("worker exiting on closed downstream", "reason", err)
				return
			}
			r.logger.Error("emit to downstream failed", "error", err)
			r.onFail(r.name, err)
			return
		}
	}
}
