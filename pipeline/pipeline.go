// Package pipeline assembles an ordered chain of stages into a running
// pipeline: one bounded queue and one worker per stage, wired queue to
// queue, with the terminal stage's output wired to the session's egress
// path. A pipeline is built once per session, immutable while active, and
// torn down exactly once - gracefully on connection close, aborting on the
// first unrecoverable error.
package pipeline

import (
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/casemr/gadgetron/config"
	"github.com/casemr/gadgetron/errors"
	"github.com/casemr/gadgetron/message"
	"github.com/casemr/gadgetron/metric"
	"github.com/casemr/gadgetron/queue"
	"github.com/casemr/gadgetron/stage"
)

// Pipeline is an ordered, immutable-after-assembly list of stage runners.
type Pipeline struct {
	runners []*stage.Runner
	logger  *slog.Logger

	activated atomic.Bool
	torndown  atomic.Bool
}

// Assemble builds a pipeline from the chain descriptor. For each entry it
// resolves the stage factory, constructs and configures the stage, and
// wires its output to the next entry's queue; the last entry emits to
// terminal. Configuration failures abort assembly before any data flows.
//
// onFail is forwarded to every runner; it must be safe to call from a
// worker goroutine and must not join workers itself (the session does the
// joining from its own goroutine).
func Assemble(
	registry *stage.Registry,
	chain config.ChainConfig,
	terminal stage.Emitter,
	onFail stage.FailureFunc,
	logger *slog.Logger,
	metrics *metric.Metrics,
) (*Pipeline, error) {
	if len(chain.Stages) == 0 {
		return nil, errors.WrapConfig(
			fmt.Errorf("%w: empty chain", errors.ErrInvalidConfig),
			"Pipeline", "Assemble", "chain validation")
	}

	stages := make([]stage.Stage, len(chain.Stages))
	for i, spec := range chain.Stages {
		factory, err := registry.Lookup(spec.Type)
		if err != nil {
			return nil, err
		}
		s := factory()
		if err := s.Configure(spec.Params); err != nil {
			return nil, errors.WrapConfig(err, "Pipeline", "Assemble",
				fmt.Sprintf("configure stage %d (%s)", i, spec.Type))
		}
		stages[i] = s
	}

	warnTypeMismatches(stages, chain, logger)

	// Wire back to front so each runner's emitter can point at the next
	// runner's queue.
	runners := make([]*stage.Runner, len(stages))
	downstream := terminal
	for i := len(stages) - 1; i >= 0; i-- {
		spec := chain.Stages[i]
		capacity := spec.QueueCapacity
		if capacity == 0 {
			capacity = chain.QueueCapacity
		}
		if capacity == 0 {
			capacity = queue.DefaultCapacity
		}

		instanceName := fmt.Sprintf("%s-%d", spec.Type, i)
		q := queue.New(capacity)
		runners[i] = stage.NewRunner(stages[i], instanceName, q, downstream, onFail, logger, metrics)
		downstream = stage.QueueEmitter{Queue: q}
	}

	return &Pipeline{runners: runners, logger: logger}, nil
}

// First returns the queue feeding the first stage; the session's ingest
// loop pushes decoded messages here.
func (p *Pipeline) First() *queue.Queue {
	return p.runners[0].Queue()
}

// StageNames returns the instance names of the runners in chain order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.runners))
	for i, r := range p.runners {
		names[i] = r.Name()
	}
	return names
}

// Activate starts every stage worker. A pipeline activates at most once.
func (p *Pipeline) Activate() error {
	if !p.activated.CompareAndSwap(false, true) {
		return errors.WrapProcessing(errors.ErrAlreadyStarted, "Pipeline", "Activate", "activation")
	}
	for _, r := range p.runners {
		if err := r.Start(); err != nil {
			return err
		}
	}
	return nil
}

// GracefulStop signals graceful shutdown to every queue in chain order,
// joining each worker before closing the next queue so that every message
// already in flight drains all the way to the terminal emitter.
func (p *Pipeline) GracefulStop() {
	if !p.torndown.CompareAndSwap(false, true) {
		return
	}
	for _, r := range p.runners {
		r.Queue().Close()
		if p.activated.Load() {
			r.Join()
		}
	}
}

// Abort signals aborting shutdown to every queue at once, discarding
// queued messages, then joins all workers. Used for error teardown; no
// stage continues processing messages already queued for it.
func (p *Pipeline) Abort() {
	if !p.torndown.CompareAndSwap(false, true) {
		return
	}
	for _, r := range p.runners {
		r.Queue().Abort()
	}
	if !p.activated.Load() {
		return
	}
	for _, r := range p.runners {
		r.Join()
	}
}

// warnTypeMismatches performs the best-effort type compatibility check
// between adjacent stages. Payload typing is dynamic by design, so a
// mismatch is logged, never fatal.
func warnTypeMismatches(stages []stage.Stage, chain config.ChainConfig, logger *slog.Logger) {
	for i := 0; i < len(stages)-1; i++ {
		up, upOK := stages[i].(stage.Typed)
		down, downOK := stages[i+1].(stage.Typed)
		if !upOK || !downOK {
			continue
		}
		out := up.OutputKinds()
		in := down.InputKinds()
		if len(out) == 0 || len(in) == 0 {
			continue
		}
		if !kindsOverlap(out, in) {
			logger.Warn("adjacent stages declare incompatible segment kinds",
				"upstream", chain.Stages[i].Type,
				"downstream", chain.Stages[i+1].Type,
				"produces", out,
				"consumes", in)
		}
	}
}

func kindsOverlap(out, in []message.Kind) bool {
	for _, k := range out {
		if slices.Contains(in, k) {
			return true
		}
	}
	return false
}
