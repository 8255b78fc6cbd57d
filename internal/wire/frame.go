package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Type identifies the kind of a frame's payload.
type Type byte

const (
	TypeHello             Type = 0x01
	TypeHelloAck          Type = 0x02
	TypeChallengeResponse Type = 0x03
	TypeReady             Type = 0x04
	TypeText              Type = 0x05
	TypeFile              Type = 0x06
	TypeHeartbeat         Type = 0x07
	TypeRekeyRequest      Type = 0x08
	TypeRekeyAck          Type = 0x09
	TypeBye               Type = 0x0A
)

func (t Type) String() string {
	switch t {
	case TypeHello:
		return "HELLO"
	case TypeHelloAck:
		return "HELLO_ACK"
	case TypeChallengeResponse:
		return "CHALLENGE_RESPONSE"
	case TypeReady:
		return "READY"
	case TypeText:
		return "TEXT"
	case TypeFile:
		return "FILE"
	case TypeHeartbeat:
		return "HEARTBEAT"
	case TypeRekeyRequest:
		return "REKEY_REQUEST"
	case TypeRekeyAck:
		return "REKEY_ACK"
	case TypeBye:
		return "BYE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(t))
	}
}

// Frame is length(4,BE) || type(1) || payload(length-1) decoded into its
// parts; Payload excludes the type byte.
type Frame struct {
	Type    Type
	Payload []byte
}

// headerLen is the length field's own width; it is not counted in the
// length value, which per spec §4.C covers type+payload only.
const headerLen = 4

// ErrFrameTooLarge is returned when a frame's declared length exceeds the
// configured cap. Per spec §4.C this terminates the connection.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// Encode serializes f as length(4,BE) || type(1) || payload.
func Encode(f Frame) []byte {
	out := make([]byte, headerLen+1+len(f.Payload))
	binary.BigEndian.PutUint32(out[0:headerLen], uint32(1+len(f.Payload)))
	out[headerLen] = byte(f.Type)
	copy(out[headerLen+1:], f.Payload)
	return out
}

// ReadFrame reads one frame from r, rejecting declared lengths above
// maxFrameBytes before allocating a buffer for the payload.
func ReadFrame(r io.Reader, maxFrameBytes uint32) (Frame, error) {
	var lenBuf [headerLen]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Frame{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return Frame{}, fmt.Errorf("wire: zero-length frame")
	}
	if length > maxFrameBytes {
		return Frame{}, ErrFrameTooLarge
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}
	return Frame{Type: Type(body[0]), Payload: body[1:]}, nil
}

// WriteFrame encodes and writes f to w in one call.
func WriteFrame(w io.Writer, f Frame) error {
	_, err := w.Write(Encode(f))
	return err
}
