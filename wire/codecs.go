package wire

import (
	"fmt"
	"io"

	"github.com/casemr/gadgetron/errors"
	"github.com/casemr/gadgetron/message"
)

// Default returns a registry preloaded with the standard codecs:
// complex64 k-space acquisitions and the uint16/float32/complex64 image
// family. Static table registration; sessions snapshot the result.
func Default() (*Registry, error) {
	r := NewRegistry()
	if err := r.Register(TagAcquisition, AcquisitionCodec()); err != nil {
		return nil, err
	}
	if err := r.Register(TagImageUint16, ImageCodec(2)); err != nil {
		return nil, err
	}
	if err := r.Register(TagImageFloat32, ImageCodec(4)); err != nil {
		return nil, err
	}
	if err := r.Register(TagImageComplex64, ImageCodec(8)); err != nil {
		return nil, err
	}
	return r, nil
}

// AcquisitionCodec returns the codec for one k-space readout: a fixed
// acquisition header followed by samples x channels complex64 values.
func AcquisitionCodec() Codec {
	const elementSize = 8

	return Codec{
		Decode: func(r io.Reader) (*message.Message, error) {
			h, err := decodeAcquisitionHeader(r)
			if err != nil {
				return nil, err
			}
			data, err := readDeclaredData(r, h.Elements(), elementSize, "acquisition data")
			if err != nil {
				return nil, err
			}
			return message.New(h, data), nil
		},
		Encode: func(w io.Writer, m *message.Message) error {
			h, err := message.First[*message.AcquisitionHeader](m)
			if err != nil {
				return err
			}
			data, err := message.At[*message.SampleData](m, 1)
			if err != nil {
				return err
			}
			if err := checkDeclared(h.Elements(), data, elementSize); err != nil {
				return err
			}
			if _, err := w.Write(encodeAcquisitionHeader(h)); err != nil {
				return errors.WrapIO(err, "AcquisitionCodec", "Encode", "write header")
			}
			return writeData(w, data, "AcquisitionCodec")
		},
		Matches: func(m *message.Message) bool {
			return matchesHeaderData[*message.AcquisitionHeader](m, elementSize)
		},
	}
}

// ImageCodec returns the codec for an image frame with the given element
// size: a fixed image header followed by product(MatrixSize) elements.
func ImageCodec(elementSize int) Codec {
	return Codec{
		Decode: func(r io.Reader) (*message.Message, error) {
			h, err := decodeImageHeader(r)
			if err != nil {
				return nil, err
			}
			data, err := readDeclaredData(r, h.Elements(), elementSize, "image data")
			if err != nil {
				return nil, err
			}
			return message.New(h, data), nil
		},
		Encode: func(w io.Writer, m *message.Message) error {
			h, err := message.First[*message.ImageHeader](m)
			if err != nil {
				return err
			}
			data, err := message.At[*message.SampleData](m, 1)
			if err != nil {
				return err
			}
			if err := checkDeclared(h.Elements(), data, elementSize); err != nil {
				return err
			}
			if _, err := w.Write(encodeImageHeader(h)); err != nil {
				return errors.WrapIO(err, "ImageCodec", "Encode", "write header")
			}
			return writeData(w, data, "ImageCodec")
		},
		Matches: func(m *message.Message) bool {
			return matchesHeaderData[*message.ImageHeader](m, elementSize)
		},
	}
}

// readDeclaredData reads exactly elements x elementSize bytes, the buffer
// length recomputed from the header's declared dimensions. Zero declared
// elements is valid and yields an empty data segment.
func readDeclaredData(r io.Reader, elements, elementSize int, what string) (*message.SampleData, error) {
	if elements < 0 {
		return nil, errors.WrapProtocol(
			fmt.Errorf("%w: negative element count", errors.ErrLengthMismatch),
			"Registry", "ReadFrame", "element count")
	}
	n := elements * elementSize
	if n > MaxDataBytes {
		return nil, errors.WrapProtocol(
			fmt.Errorf("%w: declared %d bytes exceeds limit %d", errors.ErrLengthMismatch, n, MaxDataBytes),
			"Registry", "ReadFrame", "size limit")
	}

	data := &message.SampleData{ElementSize: elementSize, Data: make([]byte, n)}
	if n == 0 {
		return data, nil
	}
	if _, err := io.ReadFull(r, data.Data); err != nil {
		return nil, truncated(err, what)
	}
	return data, nil
}

// checkDeclared verifies header/data consistency before any bytes hit the
// wire, mirroring the decode-side recomputation.
func checkDeclared(elements int, data *message.SampleData, elementSize int) error {
	if data.ElementSize != elementSize {
		return errors.WrapProtocol(
			fmt.Errorf("%w: element size %d, codec expects %d",
				errors.ErrLengthMismatch, data.ElementSize, elementSize),
			"Registry", "WriteFrame", "element size check")
	}
	if len(data.Data) != elements*elementSize {
		return errors.WrapProtocol(
			fmt.Errorf("%w: header declares %d elements, buffer holds %d bytes",
				errors.ErrLengthMismatch, elements, len(data.Data)),
			"Registry", "WriteFrame", "length check")
	}
	return nil
}

func writeData(w io.Writer, data *message.SampleData, component string) error {
	if len(data.Data) == 0 {
		return nil
	}
	if _, err := w.Write(data.Data); err != nil {
		return errors.WrapIO(err, component, "Encode", "write data")
	}
	return nil
}

// matchesHeaderData reports whether the message is exactly a header of
// type H followed by a data segment of the given element size.
func matchesHeaderData[H message.Segment](m *message.Message, elementSize int) bool {
	if m.Len() != 2 {
		return false
	}
	if _, err := message.First[H](m); err != nil {
		return false
	}
	data, err := message.At[*message.SampleData](m, 1)
	if err != nil {
		return false
	}
	return data.ElementSize == elementSize
}
