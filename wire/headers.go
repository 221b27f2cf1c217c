package wire

import (
	"encoding/binary"
	"io"

	"github.com/casemr/gadgetron/message"
)

// Fixed header record sizes in bytes. Headers are written field by field;
// Go struct layout never touches the wire.
const (
	acquisitionHeaderSize = 34
	imageHeaderSize       = 24
)

func encodeAcquisitionHeader(h *message.AcquisitionHeader) []byte {
	buf := make([]byte, acquisitionHeaderSize)
	le := binary.LittleEndian
	le.PutUint16(buf[0:2], h.Version)
	le.PutUint64(buf[2:10], h.Flags)
	le.PutUint32(buf[10:14], h.MeasurementUID)
	le.PutUint32(buf[14:18], h.ScanCounter)
	le.PutUint32(buf[18:22], h.Timestamp)
	le.PutUint16(buf[22:24], h.Samples)
	le.PutUint16(buf[24:26], h.Channels)
	le.PutUint16(buf[26:28], h.CenterSample)
	le.PutUint16(buf[28:30], h.Line)
	le.PutUint16(buf[30:32], h.Slice)
	le.PutUint16(buf[32:34], h.Repetition)
	return buf
}

func decodeAcquisitionHeader(r io.Reader) (*message.AcquisitionHeader, error) {
	buf := make([]byte, acquisitionHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, truncated(err, "acquisition header")
	}
	le := binary.LittleEndian
	return &message.AcquisitionHeader{
		Version:        le.Uint16(buf[0:2]),
		Flags:          le.Uint64(buf[2:10]),
		MeasurementUID: le.Uint32(buf[10:14]),
		ScanCounter:    le.Uint32(buf[14:18]),
		Timestamp:      le.Uint32(buf[18:22]),
		Samples:        le.Uint16(buf[22:24]),
		Channels:       le.Uint16(buf[24:26]),
		CenterSample:   le.Uint16(buf[26:28]),
		Line:           le.Uint16(buf[28:30]),
		Slice:          le.Uint16(buf[30:32]),
		Repetition:     le.Uint16(buf[32:34]),
	}, nil
}

func encodeImageHeader(h *message.ImageHeader) []byte {
	buf := make([]byte, imageHeaderSize)
	le := binary.LittleEndian
	le.PutUint16(buf[0:2], h.Version)
	le.PutUint64(buf[2:10], h.Flags)
	le.PutUint16(buf[10:12], h.MatrixSize[0])
	le.PutUint16(buf[12:14], h.MatrixSize[1])
	le.PutUint16(buf[14:16], h.MatrixSize[2])
	le.PutUint16(buf[16:18], h.Channels)
	le.PutUint16(buf[18:20], h.Slice)
	le.PutUint16(buf[20:22], h.ImageIndex)
	le.PutUint16(buf[22:24], h.ImageSeriesIndex)
	return buf
}

func decodeImageHeader(r io.Reader) (*message.ImageHeader, error) {
	buf := make([]byte, imageHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, truncated(err, "image header")
	}
	le := binary.LittleEndian
	h := &message.ImageHeader{
		Version:          le.Uint16(buf[0:2]),
		Flags:            le.Uint64(buf[2:10]),
		Channels:         le.Uint16(buf[16:18]),
		Slice:            le.Uint16(buf[18:20]),
		ImageIndex:       le.Uint16(buf[20:22]),
		ImageSeriesIndex: le.Uint16(buf[22:24]),
	}
	h.MatrixSize[0] = le.Uint16(buf[10:12])
	h.MatrixSize[1] = le.Uint16(buf[12:14])
	h.MatrixSize[2] = le.Uint16(buf[14:16])
	return h, nil
}
