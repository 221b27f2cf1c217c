// Package session implements the controller that owns one network
// connection, one codec registry snapshot and one pipeline instance. The
// controller drives the ingest read loop and the egress write path, and
// coordinates teardown: graceful on peer disconnect or an explicit close
// frame, aborting on the first stage failure, protocol error or I/O error.
// A session is consumed exactly once and never reused across connections.
package session

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/casemr/gadgetron/config"
	"github.com/casemr/gadgetron/errors"
	"github.com/casemr/gadgetron/events"
	"github.com/casemr/gadgetron/message"
	"github.com/casemr/gadgetron/metric"
	"github.com/casemr/gadgetron/pipeline"
	"github.com/casemr/gadgetron/stage"
	"github.com/casemr/gadgetron/wire"
)

// Dependencies carries the collaborators a session needs. Codecs and
// Stages must be fully registered before New is called; the session treats
// both as read-only snapshots. Metrics and Events may be nil.
type Dependencies struct {
	Codecs  *wire.Registry
	Stages  *stage.Registry
	Logger  *slog.Logger
	Metrics *metric.Metrics
	Events  *events.Publisher
}

type failure struct {
	stageName string
	err       error
}

// Controller owns one connection and the pipeline serving it.
type Controller struct {
	id     string
	conn   io.ReadWriteCloser
	remote string
	codecs *wire.Registry
	pipe   *pipeline.Pipeline

	logger  *slog.Logger
	metrics *metric.Metrics
	events  *events.Publisher

	writeMu   sync.Mutex
	failc     chan failure
	consumed  atomic.Bool
	closeOnce sync.Once
}

// New assembles the pipeline for one connection and returns the session
// controller. Assembly or configuration failures abort here, before any
// data flows - the session never starts.
func New(conn io.ReadWriteCloser, remote string, chain config.ChainConfig, deps Dependencies) (*Controller, error) {
	id := uuid.NewString()
	logger := deps.Logger.With("session", id, "remote", remote)

	c := &Controller{
		id:      id,
		conn:    conn,
		remote:  remote,
		codecs:  deps.Codecs,
		logger:  logger,
		metrics: deps.Metrics,
		events:  deps.Events,
		failc:   make(chan failure, 1),
	}

	pipe, err := pipeline.Assemble(deps.Stages, chain, egress{c}, c.signalFailure, logger, deps.Metrics)
	if err != nil {
		return nil, err
	}
	c.pipe = pipe
	return c, nil
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// Run activates the pipeline and drives the session until the connection
// closes or the first unrecoverable error. It returns nil on graceful
// close and the terminal error otherwise. A controller runs at most once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.consumed.CompareAndSwap(false, true) {
		return errors.WrapProcessing(errors.ErrSessionConsumed, "Controller", "Run", "session reuse")
	}

	if c.metrics != nil {
		c.metrics.RecordSessionStarted()
	}
	c.events.Publish(events.Event{Type: events.SessionStarted, SessionID: c.id, Remote: c.remote})
	c.logger.Info("session started", "stages", c.pipe.StageNames())

	if err := c.pipe.Activate(); err != nil {
		c.closeConn()
		c.pipe.Abort()
		c.recordFailure(err)
		return err
	}

	ingestc := make(chan error, 1)
	go func() { ingestc <- c.ingest() }()

	// Server shutdown cancels ctx; closing the connection unblocks the
	// ingest read so the session winds down through the normal path.
	stopWatch := context.AfterFunc(ctx, c.closeConn)
	defer stopWatch()

	select {
	case f := <-c.failc:
		c.teardownAbort(f.err)
		<-ingestc // ingest exits once the conn is closed and queues aborted
		return f.err

	case err := <-ingestc:
		if err == nil || ctx.Err() != nil {
			c.teardownGraceful()
			return nil
		}
		c.teardownAbort(err)
		return err
	}
}

// ingest is the read loop: read a tagged frame, decode it into a message,
// push it into the first stage's queue. Returns nil when the peer
// disconnects cleanly or sends an explicit close frame.
func (c *Controller) ingest() error {
	first := c.pipe.First()
	for {
		m, tag, err := c.codecs.ReadFrame(c.conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil // peer disconnect at a frame boundary
			}
			if errors.IsProtocol(err) {
				return err
			}
			return errors.WrapIO(err, "Controller", "ingest", "read frame")
		}
		if tag == wire.TagClose {
			c.logger.Debug("close frame received")
			return nil
		}

		if c.metrics != nil {
			c.metrics.RecordMessageReceived(tagLabel(tag))
		}

		// Blocks while the first queue is full: backpressure propagates
		// here and intentionally stalls the socket read.
		if err := first.Push(m); err != nil {
			if errors.Is(err, errors.ErrQueueClosed) || errors.Is(err, errors.ErrQueueAborted) {
				return nil // teardown already in progress
			}
			return err
		}
	}
}

// signalFailure is invoked from stage worker goroutines. First failure
// wins; it must not block and must not join workers.
func (c *Controller) signalFailure(stageName string, err error) {
	select {
	case c.failc <- failure{stageName: stageName, err: err}:
	default:
	}
}

// teardownGraceful drains every queue in order, joins all workers, then
// answers the peer's close and disconnects.
func (c *Controller) teardownGraceful() {
	c.pipe.GracefulStop()

	c.writeMu.Lock()
	if err := c.codecs.WriteClose(c.conn); err != nil {
		c.logger.Debug("close frame write failed", "error", err)
	}
	c.writeMu.Unlock()
	c.closeConn()

	if c.metrics != nil {
		c.metrics.RecordSessionCompleted()
	}
	c.events.Publish(events.Event{Type: events.SessionCompleted, SessionID: c.id, Remote: c.remote})
	c.logger.Info("session completed")
}

// teardownAbort closes the connection first so blocked reads and writes
// fail fast, then aborts every queue, discarding queued messages, and
// joins all workers.
func (c *Controller) teardownAbort(err error) {
	c.closeConn()
	c.pipe.Abort()
	c.recordFailure(err)
}

func (c *Controller) recordFailure(err error) {
	class := errors.Classify(err).String()
	if c.metrics != nil {
		c.metrics.RecordSessionFailed(class)
	}
	c.events.Publish(events.Event{
		Type:       events.SessionFailed,
		SessionID:  c.id,
		Remote:     c.remote,
		ErrorClass: class,
		Error:      err.Error(),
	})
	c.logger.Error("session failed", "class", class, "error", err)
}

func (c *Controller) closeConn() {
	c.closeOnce.Do(func() {
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("connection close failed", "error", err)
		}
	})
}

// egress is the terminal emitter: whenever the last stage emits a message,
// encode it via the registry and write it to the connection. The mutex
// serializes writes so no two encodings interleave their bytes.
type egress struct {
	c *Controller
}

// Emit implements stage.Emitter
func (e egress) Emit(m *message.Message) error {
	e.c.writeMu.Lock()
	defer e.c.writeMu.Unlock()

	if err := e.c.codecs.WriteFrame(e.c.conn, m); err != nil {
		return err
	}
	if e.c.metrics != nil {
		e.c.metrics.RecordMessageSent("egress")
	}
	return nil
}

func tagLabel(tag wire.Tag) string {
	return strconv.Itoa(int(tag))
}
