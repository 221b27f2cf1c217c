package pipeline_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casemr/gadgetron/config"
	"github.com/casemr/gadgetron/errors"
	"github.com/casemr/gadgetron/message"
	"github.com/casemr/gadgetron/pipeline"
	"github.com/casemr/gadgetron/stage"
	"github.com/casemr/gadgetron/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// registryWith builds a stage registry whose named factories produce the
// given stages, one instance per assembly.
func registryWith(t *testing.T, factories map[string]func() stage.Stage) *stage.Registry {
	t.Helper()
	r := stage.NewRegistry()
	for name, f := range factories {
		require.NoError(t, r.Register(stage.Registration{Name: name, Factory: f}))
	}
	return r
}

func forwardChain(n int) config.ChainConfig {
	specs := make([]config.StageSpec, n)
	for i := range specs {
		specs[i] = config.StageSpec{Type: "forward"}
	}
	return config.ChainConfig{Stages: specs}
}

func TestAssemble_UnknownStage(t *testing.T) {
	r := registryWith(t, nil)
	_, err := pipeline.Assemble(r, config.ChainConfig{Stages: []config.StageSpec{{Type: "nope"}}},
		&testutil.CollectEmitter{}, func(string, error) {}, testLogger(), nil)
	assert.ErrorIs(t, err, errors.ErrUnknownStage)
}

func TestAssemble_EmptyChain(t *testing.T) {
	r := registryWith(t, nil)
	_, err := pipeline.Assemble(r, config.ChainConfig{},
		&testutil.CollectEmitter{}, func(string, error) {}, testLogger(), nil)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestAssemble_ConfigureFailureAborts(t *testing.T) {
	r := registryWith(t, map[string]func() stage.Stage{
		"picky": func() stage.Stage {
			return &testutil.FuncStage{ConfigureFunc: func(json.RawMessage) error {
				return fmt.Errorf("bad params")
			}}
		},
	})
	_, err := pipeline.Assemble(r, config.ChainConfig{Stages: []config.StageSpec{{Type: "picky"}}},
		&testutil.CollectEmitter{}, func(string, error) {}, testLogger(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestAssemble_InstanceNames(t *testing.T) {
	r := registryWith(t, map[string]func() stage.Stage{
		"forward": func() stage.Stage { return &testutil.FuncStage{} },
	})
	p, err := pipeline.Assemble(r, forwardChain(3),
		&testutil.CollectEmitter{}, func(string, error) {}, testLogger(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"forward-0", "forward-1", "forward-2"}, p.StageNames())
	p.Abort()
}

func TestPipeline_OrderPreserved(t *testing.T) {
	r := registryWith(t, map[string]func() stage.Stage{
		"forward": func() stage.Stage { return &testutil.FuncStage{} },
	})
	sink := &testutil.CollectEmitter{}
	p, err := pipeline.Assemble(r, forwardChain(3), sink, func(string, error) {}, testLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Activate())

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, p.First().Push(testutil.Acquisition(uint16(i), 0, 2, 1)))
	}

	require.True(t, sink.WaitFor(n, 5*time.Second))
	p.GracefulStop()

	msgs := sink.Messages()
	require.Len(t, msgs, n)
	for i, m := range msgs {
		h, err := message.First[*message.AcquisitionHeader](m)
		require.NoError(t, err)
		assert.Equal(t, uint16(i), h.Line, "arrival order must match send order")
	}
}

func TestPipeline_GracefulStopDrains(t *testing.T) {
	r := registryWith(t, map[string]func() stage.Stage{
		"slow": func() stage.Stage {
			return &testutil.FuncStage{ProcessFunc: func(m *message.Message) (*message.Message, error) {
				time.Sleep(5 * time.Millisecond)
				return m, nil
			}}
		},
	})
	sink := &testutil.CollectEmitter{}
	chain := config.ChainConfig{Stages: []config.StageSpec{{Type: "slow"}, {Type: "slow"}}}
	p, err := pipeline.Assemble(r, chain, sink, func(string, error) {}, testLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Activate())

	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, p.First().Push(testutil.Acquisition(uint16(i), 0, 2, 1)))
	}

	// Stop immediately: everything already accepted must still drain
	// through both stages to the sink.
	p.GracefulStop()
	assert.Equal(t, n, sink.Len())
}

func TestPipeline_FailFast(t *testing.T) {
	const failAt = 5

	var mu sync.Mutex
	var seenLines []uint16

	r := registryWith(t, map[string]func() stage.Stage{
		"forward": func() stage.Stage { return &testutil.FuncStage{} },
		"faulty": func() stage.Stage {
			return &testutil.FuncStage{ProcessFunc: func(m *message.Message) (*message.Message, error) {
				h, err := message.First[*message.AcquisitionHeader](m)
				if err != nil {
					return nil, err
				}
				if h.Line == failAt {
					return nil, fmt.Errorf("corrupt readout %d", h.Line)
				}
				return m, nil
			}}
		},
		"recorder": func() stage.Stage {
			return &testutil.FuncStage{ProcessFunc: func(m *message.Message) (*message.Message, error) {
				h, err := message.First[*message.AcquisitionHeader](m)
				if err != nil {
					return nil, err
				}
				mu.Lock()
				seenLines = append(seenLines, h.Line)
				mu.Unlock()
				return m, nil
			}}
		},
	})

	sink := &testutil.CollectEmitter{}
	failc := make(chan error, 1)
	onFail := func(_ string, err error) {
		select {
		case failc <- err:
		default:
		}
	}

	chain := config.ChainConfig{Stages: []config.StageSpec{
		{Type: "forward"}, {Type: "faulty"}, {Type: "recorder"},
	}}
	p, err := pipeline.Assemble(r, chain, sink, onFail, testLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Activate())

	for i := 0; i < 20; i++ {
		err := p.First().Push(testutil.Acquisition(uint16(i), 0, 2, 1))
		if err != nil {
			// Abort may race ahead of the producer; acceptable.
			assert.ErrorIs(t, err, errors.ErrQueueAborted)
			break
		}
	}

	select {
	case ferr := <-failc:
		assert.Contains(t, ferr.Error(), "corrupt readout")
	case <-time.After(5 * time.Second):
		t.Fatal("stage failure never signalled")
	}

	// The session controller reacts to the signal by aborting; emulate it.
	p.Abort()

	// Nothing at or after the failing message may reach the stage behind
	// the failure.
	mu.Lock()
	defer mu.Unlock()
	for _, line := range seenLines {
		assert.Less(t, line, uint16(failAt))
	}

	// Further pushes fail immediately, no deadlock and no blocked queue.
	err = p.First().Push(testutil.Acquisition(99, 0, 2, 1))
	assert.ErrorIs(t, err, errors.ErrQueueAborted)
}

func TestPipeline_CapacityOnePropagatesBackpressure(t *testing.T) {
	release := make(chan struct{})
	r := registryWith(t, map[string]func() stage.Stage{
		"gate": func() stage.Stage {
			return &testutil.FuncStage{ProcessFunc: func(m *message.Message) (*message.Message, error) {
				<-release
				return m, nil
			}}
		},
	})
	sink := &testutil.CollectEmitter{}
	chain := config.ChainConfig{
		QueueCapacity: 1,
		Stages:        []config.StageSpec{{Type: "gate"}},
	}
	p, err := pipeline.Assemble(r, chain, sink, func(string, error) {}, testLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Activate())

	// First message is popped by the worker, second fills the queue; the
	// third push must block until the stage releases.
	require.NoError(t, p.First().Push(testutil.Acquisition(0, 0, 2, 1)))
	require.NoError(t, p.First().Push(testutil.Acquisition(1, 0, 2, 1)))

	pushed := make(chan error, 1)
	go func() { pushed <- p.First().Push(testutil.Acquisition(2, 0, 2, 1)) }()

	select {
	case <-pushed:
		t.Fatal("push succeeded past a full capacity-1 queue")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-pushed)

	require.True(t, sink.WaitFor(3, 5*time.Second))
	p.GracefulStop()
}

func TestPipeline_StagesRunConcurrently(t *testing.T) {
	const (
		stages   = 3
		msgs     = 10
		perStage = 10 * time.Millisecond
	)

	r := registryWith(t, map[string]func() stage.Stage{
		"slow": func() stage.Stage {
			return &testutil.FuncStage{ProcessFunc: func(m *message.Message) (*message.Message, error) {
				time.Sleep(perStage)
				return m, nil
			}}
		},
	})
	sink := &testutil.CollectEmitter{}
	chain := config.ChainConfig{Stages: []config.StageSpec{{Type: "slow"}, {Type: "slow"}, {Type: "slow"}}}
	p, err := pipeline.Assemble(r, chain, sink, func(string, error) {}, testLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Activate())

	start := time.Now()
	for i := 0; i < msgs; i++ {
		require.NoError(t, p.First().Push(testutil.Acquisition(uint16(i), 0, 2, 1)))
	}
	require.True(t, sink.WaitFor(msgs, 10*time.Second))
	elapsed := time.Since(start)
	p.GracefulStop()

	// Serial execution would take stages*msgs*perStage = 300ms. Pipelined
	// execution approaches (msgs+stages-1)*perStage = 120ms. The generous
	// threshold only asserts that the stages overlapped at all.
	serial := time.Duration(stages*msgs) * perStage
	assert.Less(t, elapsed, serial*3/4,
		"chain of %d stages showed no pipeline parallelism: %v", stages, elapsed)
}

func TestPipeline_ActivateTwiceFails(t *testing.T) {
	r := registryWith(t, map[string]func() stage.Stage{
		"forward": func() stage.Stage { return &testutil.FuncStage{} },
	})
	p, err := pipeline.Assemble(r, forwardChain(1), &testutil.CollectEmitter{},
		func(string, error) {}, testLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Activate())
	assert.ErrorIs(t, p.Activate(), errors.ErrAlreadyStarted)
	p.GracefulStop()
}

func TestPipeline_TeardownIdempotent(t *testing.T) {
	r := registryWith(t, map[string]func() stage.Stage{
		"forward": func() stage.Stage { return &testutil.FuncStage{} },
	})
	p, err := pipeline.Assemble(r, forwardChain(2), &testutil.CollectEmitter{},
		func(string, error) {}, testLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Activate())

	p.GracefulStop()
	p.GracefulStop() // second call is a no-op
	p.Abort()        // after graceful stop, also a no-op
}
