package frame

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		msgID   uint32
		payload []byte
	}{
		{"small payload", 1, []byte("hello")},
		{"empty payload", 42, []byte{}},
		{"binary payload", 4294967295, []byte{0x00, 0xff, 0x7f, 0x80}},
		{"large payload", 1000, bytes.Repeat([]byte("a"), 65536)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, sendTime := Encode(tc.msgID, tc.payload)
			require.Len(t, data, HeaderSize+len(tc.payload))

			msgID, decodedTime, payload, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tc.msgID, msgID)
			assert.Equal(t, sendTime, decodedTime)
			assert.Equal(t, tc.payload, []byte(payload))
		})
	}
}

func TestHeaderLayout(t *testing.T) {
	// Offsets and byte order are part of the wire contract.
	data := EncodeAt(0x01020304, 1.5, []byte("xyz"))

	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, data[0:4])

	bits := binary.LittleEndian.Uint64(data[4:12])
	assert.Equal(t, 1.5, math.Float64frombits(bits))

	assert.Equal(t, int32(3), int32(binary.LittleEndian.Uint32(data[12:16])))
	assert.Equal(t, []byte("xyz"), data[16:])
}

func TestDecodeHeaderTooShort(t *testing.T) {
	_, _, _, err := DecodeHeader(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestDecodeHeaderNegativeLength(t *testing.T) {
	data := EncodeAt(1, 0, nil)
	binary.LittleEndian.PutUint32(data[12:16], uint32(0xffffffff)) // -1

	_, _, _, err := DecodeHeader(data)
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestDecodeTruncatedPayload(t *testing.T) {
	data := EncodeAt(7, 0, []byte("abcdef"))

	_, _, _, err := Decode(data[:HeaderSize+3])
	assert.ErrorIs(t, err, ErrTruncatedPayload)
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	data := EncodeAt(9, 0, []byte("ab"))
	data = append(data, []byte("trailing")...)

	msgID, _, payload, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), msgID)
	assert.Equal(t, []byte("ab"), []byte(payload))
}
