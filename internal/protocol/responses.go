package protocol

import "fmt"

// ResponseKind classifies a raw device response by shape. The device
// guarantees no framing, so the classification is a pure function over
// length thresholds; callers needing a different split use PayloadAt.
type ResponseKind int

const (
	// ResponseEmpty is a zero-byte response: "no data", never an error
	// by itself.
	ResponseEmpty ResponseKind = iota

	// ResponseShortAck is a 2-4 byte response, usually an echoed opcode
	// with a status byte or two.
	ResponseShortAck

	// ResponseHeadered is a response of at least 8 bytes whose payload
	// starts at HeaderedPayloadOffset, after an echoed opcode + header +
	// address + length + status.
	ResponseHeadered

	// ResponseRaw is any other shape; the payload occupies the whole
	// buffer.
	ResponseRaw
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseEmpty:
		return "empty"
	case ResponseShortAck:
		return "short-ack"
	case ResponseHeadered:
		return "headered"
	case ResponseRaw:
		return "raw"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Classify sorts a raw response into its probable shape.
func Classify(raw []byte) ResponseKind {
	switch n := len(raw); {
	case n == 0:
		return ResponseEmpty
	case n >= 2 && n <= 4:
		return ResponseShortAck
	case n >= HeaderedPayloadOffset:
		return ResponseHeadered
	default:
		return ResponseRaw
	}
}

// Payload returns the probable data bytes of a response according to its
// classification: headered responses lose their first 8 bytes, short
// acks and raw responses are returned whole, empty responses yield nil.
func Payload(raw []byte) []byte {
	switch Classify(raw) {
	case ResponseEmpty:
		return nil
	case ResponseHeadered:
		return raw[HeaderedPayloadOffset:]
	default:
		return raw
	}
}

// PayloadAt returns the response bytes from the given offset, or nil if
// the response is too short. Probing callers use offsets 0, 2, 4 and 8.
func PayloadAt(raw []byte, offset int) []byte {
	if offset < 0 || offset >= len(raw) {
		return nil
	}
	return raw[offset:]
}

// EchoedOpcode returns the first response byte, which headered and
// short-ack responses use to echo the command opcode.
func EchoedOpcode(raw []byte) (byte, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	return raw[0], true
}

// Acknowledges reports whether raw confirms a write of op: the device
// either echoes the opcode or answers with the acknowledge byte.
func Acknowledges(raw []byte, op byte) bool {
	return len(raw) > 0 && (raw[0] == op || raw[0] == OpAck)
}
