// Package passthrough provides the identity stage. It forwards every
// message unchanged and exists for chain scaffolding, soak testing and
// latency experiments (via the optional per-message delay).
package passthrough

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/casemr/gadgetron/errors"
	"github.com/casemr/gadgetron/message"
	"github.com/casemr/gadgetron/stage"
)

// Name is the stage type name used in chain descriptors.
const Name = "passthrough"

// Config holds passthrough parameters.
type Config struct {
	// DelayMS artificially delays each message by the given number of
	// milliseconds. Zero disables the delay.
	DelayMS int `json:"delay_ms,omitempty"`
}

// Gadget forwards messages unchanged.
type Gadget struct {
	delay time.Duration
}

var _ stage.Stage = (*Gadget)(nil)

// New creates an unconfigured passthrough stage.
func New() stage.Stage {
	return &Gadget{}
}

// Register adds the passthrough factory to the registry.
func Register(r *stage.Registry) error {
	return r.Register(stage.Registration{
		Name:        Name,
		Description: "Forwards messages unchanged, with an optional per-message delay",
		Factory:     New,
	})
}

// Name implements stage.Stage
func (g *Gadget) Name() string { return Name }

// Configure implements stage.Stage
func (g *Gadget) Configure(params json.RawMessage) error {
	if len(params) == 0 {
		return nil
	}
	var cfg Config
	if err := json.Unmarshal(params, &cfg); err != nil {
		return errors.WrapConfig(err, "passthrough", "Configure", "decode params")
	}
	if cfg.DelayMS < 0 {
		return errors.WrapConfig(
			fmt.Errorf("%w: delay_ms must not be negative", errors.ErrInvalidConfig),
			"passthrough", "Configure", "delay validation")
	}
	g.delay = time.Duration(cfg.DelayMS) * time.Millisecond
	return nil
}

// Process implements stage.Stage
func (g *Gadget) Process(m *message.Message) (*message.Message, error) {
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	return m, nil
}
