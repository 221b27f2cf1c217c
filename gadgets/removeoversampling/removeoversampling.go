// Package removeoversampling provides the stage that drops the
// oversampled portions of each readout. Scanners typically sample the
// readout dimension at twice the requested resolution; this stage keeps
// the centered 1/factor window of every channel's readout and rewrites
// the header accordingly. The frequency-domain filtering kernel of the
// full reconstruction is an external collaborator; this stage performs
// the sample-domain center crop.
package removeoversampling

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/casemr/gadgetron/errors"
	"github.com/casemr/gadgetron/message"
	"github.com/casemr/gadgetron/stage"
)

// Name is the stage type name used in chain descriptors.
const Name = "remove-oversampling"

// Config holds oversampling removal parameters.
type Config struct {
	// Factor is the oversampling factor to remove. Must divide the
	// readout length. Default 2.
	Factor int `json:"factor,omitempty"`
	// ConstantNoiseVariance rescales kept samples so the noise variance
	// is unchanged by the crop.
	ConstantNoiseVariance bool `json:"constant_noise_variance,omitempty"`
}

// Gadget crops the readout dimension of acquisition messages.
type Gadget struct {
	factor        int
	constantNoise bool
}

var (
	_ stage.Stage = (*Gadget)(nil)
	_ stage.Typed = (*Gadget)(nil)
)

// New creates an unconfigured remove-oversampling stage.
func New() stage.Stage {
	return &Gadget{}
}

// Register adds the remove-oversampling factory to the registry.
func Register(r *stage.Registry) error {
	return r.Register(stage.Registration{
		Name:        Name,
		Description: "Crops the centered 1/factor window of every readout",
		Factory:     New,
	})
}

// Name implements stage.Stage
func (g *Gadget) Name() string { return Name }

// Configure implements stage.Stage
func (g *Gadget) Configure(params json.RawMessage) error {
	cfg := Config{Factor: 2}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return errors.WrapConfig(err, Name, "Configure", "decode params")
		}
		if cfg.Factor == 0 {
			cfg.Factor = 2
		}
	}
	if cfg.Factor < 1 {
		return errors.WrapConfig(
			fmt.Errorf("%w: factor must be at least 1", errors.ErrInvalidConfig),
			Name, "Configure", "factor validation")
	}
	g.factor = cfg.Factor
	g.constantNoise = cfg.ConstantNoiseVariance
	return nil
}

// InputKinds implements stage.Typed
func (g *Gadget) InputKinds() []message.Kind {
	return []message.Kind{message.KindAcquisitionHeader}
}

// OutputKinds implements stage.Typed
func (g *Gadget) OutputKinds() []message.Kind {
	return []message.Kind{message.KindAcquisitionHeader}
}

// Process implements stage.Stage. Data layout is channel-major: each
// channel's readout is contiguous.
func (g *Gadget) Process(m *message.Message) (*message.Message, error) {
	h, err := message.First[*message.AcquisitionHeader](m)
	if err != nil {
		return nil, err
	}
	data, err := message.At[*message.SampleData](m, 1)
	if err != nil {
		return nil, err
	}
	if data.ElementSize != 8 {
		return nil, errors.WrapProcessing(
			fmt.Errorf("%w: acquisition data must be complex64", errors.ErrTypeMismatch),
			Name, "Process", "element size check")
	}
	if data.Elements() != h.Elements() {
		return nil, errors.WrapProcessing(
			fmt.Errorf("%w: header declares %d samples, buffer holds %d",
				errors.ErrLengthMismatch, h.Elements(), data.Elements()),
			Name, "Process", "length check")
	}

	if g.factor == 1 {
		return m, nil
	}

	total := int(h.Samples)
	if total%g.factor != 0 {
		return nil, errors.WrapProcessing(
			fmt.Errorf("readout of %d samples not divisible by factor %d", total, g.factor),
			Name, "Process", "readout check")
	}
	kept := total / g.factor
	start := (total - kept) / 2

	// Keeping 1/factor of the samples reduces the summed noise power by
	// the same ratio; the sqrt rescale undoes that.
	gain := float32(1)
	if g.constantNoise {
		gain = float32(math.Sqrt(float64(g.factor)))
	}

	cropped := message.NewComplex64Data(kept * int(h.Channels))
	for ch := 0; ch < int(h.Channels); ch++ {
		for i := 0; i < kept; i++ {
			v := data.Complex64At(ch*total + start + i)
			cropped.SetComplex64At(ch*kept+i, v*complex(gain, 0))
		}
	}

	out := *h
	out.Samples = uint16(kept)
	if int(h.CenterSample) >= start {
		out.CenterSample = uint16(int(h.CenterSample) - start)
	} else {
		out.CenterSample = 0
	}

	return message.New(&out, cropped), nil
}
