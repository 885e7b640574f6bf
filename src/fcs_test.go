package vwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestCRCKnownValue(t *testing.T) {
	// Standard check value for this CRC (reflected 0x1021, init 0xffff).
	assert.Equal(t, uint16(0x6f91), crc_ccitt([]byte("123456789")))
}

func TestCRCEmpty(t *testing.T) {
	assert.Equal(t, uint16(0xffff), crc_ccitt(nil))
}

// appendFCS adds the ones-complemented CRC, low byte first, the way the
// transmitter encodes it onto the air.
func appendFCS(frame []byte) []byte {
	var crc = ^crc_ccitt(frame)
	return append(frame, byte(crc), byte(crc>>8))
}

func TestFrameCheckResidue(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var frame = rapid.SliceOfN(rapid.Byte(), 1, MESSAGE_MAX-2).Draw(t, "frame")

		assert.True(t, frame_check(appendFCS(frame)),
			"intact frame with FCS should always leave the residue")
	})
}

func TestFrameCheckSingleBitFlip(t *testing.T) {
	// A CRC-16 catches every single-bit error, anywhere in the frame
	// including inside the FCS itself.
	rapid.Check(t, func(t *rapid.T) {
		var frame = appendFCS(rapid.SliceOfN(rapid.Byte(), 1, MESSAGE_MAX-2).Draw(t, "frame"))
		var pos = rapid.IntRange(0, len(frame)-1).Draw(t, "pos")
		var bit = rapid.IntRange(0, 7).Draw(t, "bit")

		frame[pos] ^= 1 << bit

		assert.False(t, frame_check(frame), "corrupted frame must fail the check")
	})
}
