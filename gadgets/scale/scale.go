// Package scale provides the stage that multiplies float32 image pixels
// by a configured factor, typically for display windowing downstream.
package scale

import (
	"encoding/json"
	"fmt"

	"github.com/casemr/gadgetron/errors"
	"github.com/casemr/gadgetron/message"
	"github.com/casemr/gadgetron/stage"
)

// Name is the stage type name used in chain descriptors.
const Name = "scale"

// Config holds scaling parameters.
type Config struct {
	// Factor multiplies every pixel. Required and must be positive.
	Factor float64 `json:"factor"`
}

// Gadget scales float32 image data in place.
type Gadget struct {
	factor float32
}

var (
	_ stage.Stage = (*Gadget)(nil)
	_ stage.Typed = (*Gadget)(nil)
)

// New creates an unconfigured scale stage.
func New() stage.Stage {
	return &Gadget{}
}

// Register adds the scale factory to the registry.
func Register(r *stage.Registry) error {
	return r.Register(stage.Registration{
		Name:        Name,
		Description: "Multiplies float32 image pixels by a configured factor",
		Factory:     New,
	})
}

// Name implements stage.Stage
func (g *Gadget) Name() string { return Name }

// Configure implements stage.Stage
func (g *Gadget) Configure(params json.RawMessage) error {
	var cfg Config
	if len(params) == 0 {
		return errors.WrapConfig(
			fmt.Errorf("%w: factor is required", errors.ErrMissingConfig),
			Name, "Configure", "params")
	}
	if err := json.Unmarshal(params, &cfg); err != nil {
		return errors.WrapConfig(err, Name, "Configure", "decode params")
	}
	if cfg.Factor <= 0 {
		return errors.WrapConfig(
			fmt.Errorf("%w: factor must be positive", errors.ErrInvalidConfig),
			Name, "Configure", "factor validation")
	}
	g.factor = float32(cfg.Factor)
	return nil
}

// InputKinds implements stage.Typed
func (g *Gadget) InputKinds() []message.Kind {
	return []message.Kind{message.KindImageHeader}
}

// OutputKinds implements stage.Typed
func (g *Gadget) OutputKinds() []message.Kind {
	return []message.Kind{message.KindImageHeader}
}

// Process implements stage.Stage
func (g *Gadget) Process(m *message.Message) (*message.Message, error) {
	h, err := message.First[*message.ImageHeader](m)
	if err != nil {
		return nil, err
	}
	data, err := message.At[*message.SampleData](m, 1)
	if err != nil {
		return nil, err
	}
	if data.ElementSize != 4 {
		return nil, errors.WrapProcessing(
			fmt.Errorf("%w: scale requires float32 image data", errors.ErrTypeMismatch),
			Name, "Process", "element size check")
	}
	if data.Elements() != h.Elements() {
		return nil, errors.WrapProcessing(
			fmt.Errorf("%w: header declares %d pixels, buffer holds %d",
				errors.ErrLengthMismatch, h.Elements(), data.Elements()),
			Name, "Process", "length check")
	}

	for i, n := 0, data.Elements(); i < n; i++ {
		data.SetFloat32At(i, data.Float32At(i)*g.factor)
	}
	return m, nil
}
