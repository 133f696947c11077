package discord

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ///////////////////////////////////////////////
// Opcodes
// ///////////////////////////////////////////////

// Opcode identifies the kind of an IPC frame.
type Opcode uint32

const (
	OpHandshake Opcode = 0
	OpFrame     Opcode = 1
	OpClose     Opcode = 2
	OpPing      Opcode = 3
	OpPong      Opcode = 4
)

func (o Opcode) String() string {
	switch o {
	case OpHandshake:
		return "HANDSHAKE"
	case OpFrame:
		return "FRAME"
	case OpClose:
		return "CLOSE"
	case OpPing:
		return "PING"
	case OpPong:
		return "PONG"
	}
	return fmt.Sprintf("OPCODE(%d)", uint32(o))
}

const (
	// headerSize is the little-endian opcode and payload length.
	headerSize = 8

	// MaxPayloadSize bounds a frame payload in either direction.
	MaxPayloadSize = 1 << 20

	// maxIPCSlots is the number of socket slots Discord may listen on (0-9).
	maxIPCSlots = 10
)

// ErrPayloadTooLarge is returned for frames over [MaxPayloadSize].
var ErrPayloadTooLarge = errors.New("payload too large")

// ErrIPCNotAvailable is returned when no Discord IPC socket can be reached.
var ErrIPCNotAvailable = errors.New("discord IPC not available")

// ///////////////////////////////////////////////
// Frame
// ///////////////////////////////////////////////

// Frame is one IPC message: an opcode and a JSON payload.
type Frame struct {
	Op      Opcode
	Payload []byte
}

// MarshalBinary returns the wire form of f.
func (f Frame) MarshalBinary() ([]byte, error) {
	if len(f.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(f.Payload), MaxPayloadSize)
	}
	buf := make([]byte, headerSize+len(f.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(f.Op))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(f.Payload)))
	copy(buf[headerSize:], f.Payload)
	return buf, nil
}

// Decode unmarshals the payload into v.
func (f Frame) Decode(v any) error {
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", f.Op, err)
	}
	return nil
}

// ReadFrame reads one frame from r. Short reads are retried.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("reading frame header: %w", err)
	}
	op := Opcode(binary.LittleEndian.Uint32(header[0:4]))
	n := binary.LittleEndian.Uint32(header[4:8])
	if n > MaxPayloadSize {
		return Frame{}, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, n, MaxPayloadSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("reading frame payload: %w", err)
	}
	return Frame{Op: op, Payload: payload}, nil
}

// WriteFrame encodes v as JSON and writes it as a single frame.
func WriteFrame(w io.Writer, op Opcode, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", op, err)
	}
	buf, err := Frame{Op: op, Payload: payload}.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing %s frame: %w", op, err)
	}
	return nil
}
