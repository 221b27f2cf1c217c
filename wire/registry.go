package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/casemr/gadgetron/errors"
	"github.com/casemr/gadgetron/message"
)

// Tag is the fixed-width type identifier prefixed to every frame.
type Tag uint16

// Well-known frame tags. TagClose carries no body and signals end of
// stream; the remaining tags carry the header+buffer message family with
// element sizes 8 (complex64 k-space), 2 (uint16 image), 4 (float32 image)
// and 8 (complex64 image).
const (
	TagClose          Tag = 4
	TagAcquisition    Tag = 1008
	TagImageUint16    Tag = 1022
	TagImageFloat32   Tag = 1023
	TagImageComplex64 Tag = 1024
)

// MaxDataBytes bounds the data buffer a single frame may declare. Headers
// declaring more are rejected as protocol errors before any allocation.
const MaxDataBytes = 1 << 30

// Codec is the encode/decode function pair bound to a type tag.
// Decode reads exactly one body from the reader and produces a message;
// Encode writes one body for the given message. Matches reports whether
// Encode can serialize the message, which is how the egress path selects a
// codec without messages carrying wire tags around the pipeline.
type Codec struct {
	Decode  func(io.Reader) (*message.Message, error)
	Encode  func(io.Writer, *message.Message) error
	Matches func(*message.Message) bool
}

// Registry maps type tags to codecs. Registration must complete before a
// session's ingest loop starts; after that the registry is a read-only
// snapshot shared by the ingest and egress paths.
type Registry struct {
	mu     sync.RWMutex
	codecs map[Tag]Codec
}

// NewRegistry creates an empty codec registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[Tag]Codec)}
}

// Register binds a codec to a tag. Registering the same tag twice is an
// error; there is no silent overwrite.
func (r *Registry) Register(tag Tag, c Codec) error {
	if c.Decode == nil || c.Encode == nil || c.Matches == nil {
		return errors.WrapConfig(errors.ErrInvalidConfig, "Registry", "Register", "codec completeness")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.codecs[tag]; exists {
		return errors.WrapConfig(
			fmt.Errorf("%w: tag %d", errors.ErrDuplicateTag, tag),
			"Registry", "Register", "duplicate tag check")
	}
	r.codecs[tag] = c
	return nil
}

// ReadFrame reads one frame from the reader. It returns the decoded message
// for data frames, or (nil, TagClose, nil) for a close frame. A clean EOF
// exactly at a frame boundary is returned as io.EOF; an EOF anywhere else
// is a truncated-frame protocol error.
func (r *Registry) ReadFrame(rd io.Reader) (*message.Message, Tag, error) {
	var tagBuf [2]byte
	if _, err := io.ReadFull(rd, tagBuf[:]); err != nil {
		if err == io.EOF {
			return nil, 0, io.EOF
		}
		return nil, 0, truncated(err, "type tag")
	}
	tag := Tag(binary.LittleEndian.Uint16(tagBuf[:]))

	if tag == TagClose {
		return nil, TagClose, nil
	}

	r.mu.RLock()
	codec, exists := r.codecs[tag]
	r.mu.RUnlock()
	if !exists {
		return nil, tag, errors.WrapProtocol(
			fmt.Errorf("%w: tag %d", errors.ErrUnknownTag, tag),
			"Registry", "ReadFrame", "codec lookup")
	}

	m, err := codec.Decode(rd)
	if err != nil {
		return nil, tag, err
	}
	return m, tag, nil
}

// WriteFrame encodes the message with the first registered codec that
// matches it (lowest tag wins, deterministically) and writes the tagged
// frame. Callers are responsible for serializing concurrent writes.
func (r *Registry) WriteFrame(w io.Writer, m *message.Message) error {
	r.mu.RLock()
	tags := make([]Tag, 0, len(r.codecs))
	for tag := range r.codecs {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	var (
		selected Tag
		codec    Codec
		found    bool
	)
	for _, tag := range tags {
		if r.codecs[tag].Matches(m) {
			selected, codec, found = tag, r.codecs[tag], true
			break
		}
	}
	r.mu.RUnlock()

	if !found {
		return errors.WrapProtocol(
			fmt.Errorf("%w: segments %v", errors.ErrNoEncoder, m.Kinds()),
			"Registry", "WriteFrame", "encoder selection")
	}

	if err := writeTag(w, selected); err != nil {
		return err
	}
	return codec.Encode(w, m)
}

// WriteClose writes a tag-only close frame.
func (r *Registry) WriteClose(w io.Writer) error {
	return writeTag(w, TagClose)
}

func writeTag(w io.Writer, tag Tag) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(tag))
	if _, err := w.Write(buf[:]); err != nil {
		return errors.WrapIO(err, "Registry", "WriteFrame", "write tag")
	}
	return nil
}

// truncated classifies a short read as a truncated-frame protocol error.
func truncated(err error, what string) error {
	return errors.WrapProtocol(
		fmt.Errorf("%w: %s: %v", errors.ErrTruncatedFrame, what, err),
		"Registry", "ReadFrame", "read "+what)
}
