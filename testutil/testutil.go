// Package testutil provides test helpers shared across packages: message
// builders with deterministic sample data, a function-backed stage, and a
// collecting emitter for pipeline assertions.
package testutil

import (
	"github.com/casemr/gadgetron/message"
)

// Acquisition builds an acquisition message with deterministic complex64
// sample data: element i of channel ch holds (ch*1000+i, line) so tests can
// assert on exact values after a stage transforms them.
func Acquisition(line, slice uint16, samples, channels int) *message.Message {
	h := &message.AcquisitionHeader{
		Version:      1,
		ScanCounter:  uint32(line) + 1,
		Samples:      uint16(samples),
		Channels:     uint16(channels),
		CenterSample: uint16(samples / 2),
		Line:         line,
		Slice:        slice,
	}
	data := message.NewComplex64Data(samples * channels)
	for ch := 0; ch < channels; ch++ {
		for i := 0; i < samples; i++ {
			data.SetComplex64At(ch*samples+i, complex(float32(ch*1000+i), float32(line)))
		}
	}
	return message.New(h, data)
}

// Image builds a float32 image message where pixel i holds float32(i).
func Image(x, y uint16) *message.Message {
	h := &message.ImageHeader{
		Version:    1,
		MatrixSize: [3]uint16{x, y, 1},
		Channels:   1,
		ImageIndex: 1,
	}
	n := int(x) * int(y)
	data := message.NewFloat32Data(n)
	for i := 0; i < n; i++ {
		data.SetFloat32At(i, float32(i))
	}
	return message.New(h, data)
}
