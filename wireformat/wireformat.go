// Package wireformat defines the control channel frames exchanged between a
// client and the host daemon. A frame is a 4-byte big-endian body length
// followed by a canonical CBOR body. These types define the protocol and
// must stay backward compatible.
package wireformat

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cervus-dev/cervus/domain/entities"
	"github.com/fxamacker/cbor/v2"
)

const (
	// HeaderSize is the length prefix size.
	HeaderSize = 4

	// DefaultMaxFrameSize bounds a frame body when no limit is configured.
	DefaultMaxFrameSize = 64 << 20
)

// Stream indexes, as listed in RequestWire.Streams.
const (
	StreamStdin  int32 = 0
	StreamStdout int32 = 1
	StreamStderr int32 = 2
)

var (
	// ErrFrameTooLarge is returned when a frame body exceeds the read limit.
	ErrFrameTooLarge = errors.New("wireformat: frame too large")

	// ErrEmptyFrame is returned for a zero-length body.
	ErrEmptyFrame = errors.New("wireformat: empty frame")
)

// RequestWire is the command frame a client sends. Exactly one request is
// sent per connection.
type RequestWire struct {
	// Streams names, in order, the standard streams whose descriptors ride
	// along with the frame as SCM_RIGHTS. Empty when none were passed.
	Streams []int32 `cbor:"3,keyasint,omitempty" json:"streams,omitempty"`

	Request entities.Request `cbor:"2,keyasint" json:"request"`
	Command uint32           `cbor:"1,keyasint" json:"command"`
}

// ResponseWire is the host's answer to a RequestWire.
type ResponseWire struct {
	Error    *entities.ErrorDetail `cbor:"3,keyasint,omitempty" json:"error,omitempty"`
	WorkerID uint64                `cbor:"2,keyasint,omitempty" json:"worker_id,omitempty"`
	ExitCode int32                 `cbor:"1,keyasint" json:"exit_code"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wireformat: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// EncodeFrame returns v as a complete frame, header included, so it can be
// written in one call.
func EncodeFrame(v any) ([]byte, error) {
	body, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wireformat: marshal: %w", err)
	}
	frame := make([]byte, HeaderSize, HeaderSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body))) //nolint:gosec // G115: CBOR of bounded frames
	return append(frame, body...), nil
}

// WriteFrame encodes v and writes it as a single frame.
func WriteFrame(w io.Writer, v any) error {
	frame, err := EncodeFrame(v)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// BodySize parses a frame header and checks it against limit.
func BodySize(header []byte, limit uint32) (uint32, error) {
	if len(header) < HeaderSize {
		return 0, io.ErrUnexpectedEOF
	}
	n := binary.BigEndian.Uint32(header)
	switch {
	case n == 0:
		return 0, ErrEmptyFrame
	case n > limit:
		return 0, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, n, limit)
	}
	return n, nil
}

// ReadBody reads a body of n bytes from r and decodes it into v.
func ReadBody(r io.Reader, n uint32, v any) error {
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("wireformat: read body: %w", err)
	}
	if err := cbor.Unmarshal(body, v); err != nil {
		return fmt.Errorf("wireformat: unmarshal: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r and decodes it into v.
func ReadFrame(r io.Reader, limit uint32, v any) error {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("wireformat: read header: %w", err)
	}
	n, err := BodySize(header[:], limit)
	if err != nil {
		return err
	}
	return ReadBody(r, n, v)
}
