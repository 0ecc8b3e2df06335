package frame

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// HeaderSize is the fixed size of the wire header in bytes:
// message id (4) + send timestamp (8) + payload length (4).
const HeaderSize = 16

var (
	// ErrMalformedHeader indicates fewer than HeaderSize bytes or a
	// negative declared payload length.
	ErrMalformedHeader = errors.New("frame: malformed header")

	// ErrTruncatedPayload indicates fewer payload bytes than the header
	// declared.
	ErrTruncatedPayload = errors.New("frame: truncated payload")
)

// Encode builds a frame for the given message id and payload, stamping the
// current wall-clock time into the header. It returns the frame bytes and
// the stamped send time (seconds since epoch).
func Encode(msgID uint32, payload []byte) ([]byte, float64) {
	sendTime := Now()
	return EncodeAt(msgID, sendTime, payload), sendTime
}

// EncodeAt builds a frame with an explicit send timestamp. All header
// fields are little-endian.
func EncodeAt(msgID uint32, sendTime float64, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], msgID)
	binary.LittleEndian.PutUint64(buf[4:12], math.Float64bits(sendTime))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(int32(len(payload))))
	copy(buf[HeaderSize:], payload)
	return buf
}

// DecodeHeader parses the 16-byte header from b.
func DecodeHeader(b []byte) (msgID uint32, sendTime float64, payloadLen int32, err error) {
	if len(b) < HeaderSize {
		return 0, 0, 0, ErrMalformedHeader
	}

	msgID = binary.LittleEndian.Uint32(b[0:4])
	sendTime = math.Float64frombits(binary.LittleEndian.Uint64(b[4:12]))
	payloadLen = int32(binary.LittleEndian.Uint32(b[12:16]))

	if payloadLen < 0 {
		return 0, 0, 0, ErrMalformedHeader
	}

	return msgID, sendTime, payloadLen, nil
}

// Decode parses a complete frame (header + payload) from b.
func Decode(b []byte) (msgID uint32, sendTime float64, payload []byte, err error) {
	msgID, sendTime, payloadLen, err := DecodeHeader(b)
	if err != nil {
		return 0, 0, nil, err
	}

	if len(b) < HeaderSize+int(payloadLen) {
		return 0, 0, nil, ErrTruncatedPayload
	}

	return msgID, sendTime, b[HeaderSize : HeaderSize+int(payloadLen)], nil
}

// Now returns the current wall-clock time as float seconds since epoch,
// the timestamp representation used on the wire.
func Now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
