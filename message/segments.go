package message

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Kind identifies the type of a payload segment. Typed access to segments
// is recovered by matching on the kind rather than by runtime downcasting.
type Kind string

const (
	// KindAcquisitionHeader is the fixed-layout header of one k-space readout.
	KindAcquisitionHeader Kind = "acquisition-header"
	// KindImageHeader is the fixed-layout header of a reconstructed image.
	KindImageHeader Kind = "image-header"
	// KindSampleData is a raw numeric buffer (k-space samples or image pixels).
	KindSampleData Kind = "sample-data"
)

// Segment is one typed component of a Message.
type Segment interface {
	Kind() Kind
}

// AcquisitionHeader describes one k-space readout line. The field order is
// the wire layout; see the wire package for the byte-exact encoding.
type AcquisitionHeader struct {
	Version        uint16
	Flags          uint64
	MeasurementUID uint32
	ScanCounter    uint32
	Timestamp      uint32
	Samples        uint16 // samples along the readout dimension
	Channels       uint16 // active receiver channels
	CenterSample   uint16 // echo center within the readout
	Line           uint16 // phase-encode line index
	Slice          uint16
	Repetition     uint16
}

// Kind implements Segment
func (h *AcquisitionHeader) Kind() Kind { return KindAcquisitionHeader }

// Elements returns the total sample count declared by the header
// (readout samples times active channels).
func (h *AcquisitionHeader) Elements() int {
	return int(h.Samples) * int(h.Channels)
}

// Validate checks the header for internal consistency.
func (h *AcquisitionHeader) Validate() error {
	if h.Samples > 0 && h.CenterSample >= h.Samples {
		return fmt.Errorf("center sample %d outside readout of %d samples",
			h.CenterSample, h.Samples)
	}
	return nil
}

// ImageHeader describes a reconstructed image volume. MatrixSize declares
// the element count along each of the three spatial dimensions; the data
// segment that follows must hold exactly product(MatrixSize) elements.
type ImageHeader struct {
	Version          uint16
	Flags            uint64
	MatrixSize       [3]uint16
	Channels         uint16
	Slice            uint16
	ImageIndex       uint16
	ImageSeriesIndex uint16
}

// Kind implements Segment
func (h *ImageHeader) Kind() Kind { return KindImageHeader }

// Elements returns the total element count declared by the matrix size.
// A zero along any dimension yields zero total elements, which is valid.
func (h *ImageHeader) Elements() int {
	return int(h.MatrixSize[0]) * int(h.MatrixSize[1]) * int(h.MatrixSize[2])
}

// SampleData is a raw numeric buffer. ElementSize is the width of one
// element in bytes (2 for uint16, 4 for float32, 8 for complex64); the
// buffer itself carries no internal length prefix, so len(Data) must equal
// ElementSize times the element count declared by the preceding header.
type SampleData struct {
	ElementSize int
	Data        []byte
}

// Kind implements Segment
func (d *SampleData) Kind() Kind { return KindSampleData }

// Elements returns the number of elements held by the buffer.
func (d *SampleData) Elements() int {
	if d.ElementSize <= 0 {
		return 0
	}
	return len(d.Data) / d.ElementSize
}

// Validate checks that the buffer length is a whole number of elements.
func (d *SampleData) Validate() error {
	if d.ElementSize <= 0 {
		return fmt.Errorf("invalid element size %d", d.ElementSize)
	}
	if len(d.Data)%d.ElementSize != 0 {
		return fmt.Errorf("buffer of %d bytes is not a whole number of %d-byte elements",
			len(d.Data), d.ElementSize)
	}
	return nil
}

// Float32At returns the float32 element at index i. The buffer is
// little-endian, matching the wire format.
func (d *SampleData) Float32At(i int) float32 {
	off := i * 4
	return math.Float32frombits(binary.LittleEndian.Uint32(d.Data[off : off+4]))
}

// SetFloat32At stores a float32 element at index i.
func (d *SampleData) SetFloat32At(i int, v float32) {
	off := i * 4
	binary.LittleEndian.PutUint32(d.Data[off:off+4], math.Float32bits(v))
}

// Complex64At returns the complex64 element at index i (real then
// imaginary float32, little-endian).
func (d *SampleData) Complex64At(i int) complex64 {
	off := i * 8
	re := math.Float32frombits(binary.LittleEndian.Uint32(d.Data[off : off+4]))
	im := math.Float32frombits(binary.LittleEndian.Uint32(d.Data[off+4 : off+8]))
	return complex(re, im)
}

// SetComplex64At stores a complex64 element at index i.
func (d *SampleData) SetComplex64At(i int, v complex64) {
	off := i * 8
	binary.LittleEndian.PutUint32(d.Data[off:off+4], math.Float32bits(real(v)))
	binary.LittleEndian.PutUint32(d.Data[off+4:off+8], math.Float32bits(imag(v)))
}

// NewFloat32Data allocates a float32 buffer for n elements.
func NewFloat32Data(n int) *SampleData {
	return &SampleData{ElementSize: 4, Data: make([]byte, n*4)}
}

// NewComplex64Data allocates a complex64 buffer for n elements.
func NewComplex64Data(n int) *SampleData {
	return &SampleData{ElementSize: 8, Data: make([]byte, n*8)}
}

// NewUint16Data allocates a uint16 buffer for n elements.
func NewUint16Data(n int) *SampleData {
	return &SampleData{ElementSize: 2, Data: make([]byte, n*2)}
}
