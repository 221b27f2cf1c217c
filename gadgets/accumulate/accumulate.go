// Package accumulate provides the buffering stage that collects the
// acquisitions of one slice and emits a magnitude image when the slice is
// complete. Channels are combined by root-sum-of-squares. The stage emits
// nothing while a slice is still filling, so it is also the canonical
// example of a stage whose Process legitimately returns no output.
package accumulate

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/casemr/gadgetron/errors"
	"github.com/casemr/gadgetron/message"
	"github.com/casemr/gadgetron/stage"
)

// Name is the stage type name used in chain descriptors.
const Name = "accumulate"

// Config holds accumulation parameters.
type Config struct {
	// Lines is the number of phase-encode lines per image. Required.
	Lines int `json:"lines"`
	// SeriesIndex is stamped onto every emitted image header.
	SeriesIndex int `json:"series_index,omitempty"`
}

// Gadget buffers acquisitions per slice until each slice is complete.
type Gadget struct {
	lines  int
	series uint16

	slices     map[uint16]*sliceBuffer
	imageIndex uint16
}

type sliceBuffer struct {
	samples  int
	channels int
	seen     map[uint16]bool
	// magnitude accumulates sum of |z|^2 per pixel across channels,
	// indexed line-major: [line][sample].
	magnitude []float64
}

var (
	_ stage.Stage = (*Gadget)(nil)
	_ stage.Typed = (*Gadget)(nil)
)

// New creates an unconfigured accumulate stage.
func New() stage.Stage {
	return &Gadget{slices: make(map[uint16]*sliceBuffer)}
}

// Register adds the accumulate factory to the registry.
func Register(r *stage.Registry) error {
	return r.Register(stage.Registration{
		Name:        Name,
		Description: "Buffers acquisitions per slice and emits a root-sum-of-squares magnitude image",
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
			fmt.Errorf("%w: lines is required", errors.ErrMissingConfig),
			Name, "Configure", "params")
	}
	if err := json.Unmarshal(params, &cfg); err != nil {
		return errors.WrapConfig(err, Name, "Configure", "decode params")
	}
	if cfg.Lines < 1 {
		return errors.WrapConfig(
			fmt.Errorf("%w: lines must be at least 1", errors.ErrInvalidConfig),
			Name, "Configure", "lines validation")
	}
	if cfg.SeriesIndex < 0 || cfg.SeriesIndex > math.MaxUint16 {
		return errors.WrapConfig(
			fmt.Errorf("%w: series_index out of range", errors.ErrInvalidConfig),
			Name, "Configure", "series validation")
	}
	g.lines = cfg.Lines
	g.series = uint16(cfg.SeriesIndex)
	return nil
}

// InputKinds implements stage.Typed
func (g *Gadget) InputKinds() []message.Kind {
	return []message.Kind{message.KindAcquisitionHeader}
}

// OutputKinds implements stage.Typed
func (g *Gadget) OutputKinds() []message.Kind {
	return []message.Kind{message.KindImageHeader}
}

// Process implements stage.Stage. Acquisition data is channel-major; the
// accumulated image is line-major.
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
	if int(h.Line) >= g.lines {
		return nil, errors.WrapProcessing(
			fmt.Errorf("line %d outside configured image of %d lines", h.Line, g.lines),
			Name, "Process", "line check")
	}

	buf := g.slices[h.Slice]
	if buf == nil {
		buf = &sliceBuffer{
			samples:   int(h.Samples),
			channels:  int(h.Channels),
			seen:      make(map[uint16]bool, g.lines),
			magnitude: make([]float64, int(h.Samples)*g.lines),
		}
		g.slices[h.Slice] = buf
	}
	if int(h.Samples) != buf.samples || int(h.Channels) != buf.channels {
		return nil, errors.WrapProcessing(
			fmt.Errorf("acquisition geometry %dx%d differs from slice buffer %dx%d",
				h.Samples, h.Channels, buf.samples, buf.channels),
			Name, "Process", "geometry check")
	}

	// A repeated line overwrites its previous contribution.
	if buf.seen[h.Line] {
		base := int(h.Line) * buf.samples
		for i := 0; i < buf.samples; i++ {
			buf.magnitude[base+i] = 0
		}
	}
	buf.seen[h.Line] = true

	base := int(h.Line) * buf.samples
	for ch := 0; ch < buf.channels; ch++ {
		for i := 0; i < buf.samples; i++ {
			v := data.Complex64At(ch*buf.samples + i)
			re, im := float64(real(v)), float64(imag(v))
			buf.magnitude[base+i] += re*re + im*im
		}
	}

	if len(buf.seen) < g.lines {
		return nil, nil
	}

	// Slice complete: emit the root-sum-of-squares magnitude image.
	delete(g.slices, h.Slice)
	g.imageIndex++

	pixels := message.NewFloat32Data(len(buf.magnitude))
	for i, p := range buf.magnitude {
		pixels.SetFloat32At(i, float32(math.Sqrt(p)))
	}

	img := &message.ImageHeader{
		Version:          h.Version,
		MatrixSize:       [3]uint16{uint16(buf.samples), uint16(g.lines), 1},
		Channels:         1,
		Slice:            h.Slice,
		ImageIndex:       g.imageIndex,
		ImageSeriesIndex: g.series,
	}
	return message.New(img, pixels), nil
}
