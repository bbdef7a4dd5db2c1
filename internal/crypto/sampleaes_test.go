package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTSPacket builds one synthetic 188-byte TS packet with the given PID,
// PUSI flag, and payload (padded with stuffing bytes 0xFF to fill the
// packet).
func buildTSPacket(pid uint16, pusi bool, payload []byte) []byte {
	pkt := make([]byte, tsPacketSize)
	pkt[0] = tsSyncByte
	pkt[1] = byte(pid >> 8 & 0x1f)
	if pusi {
		pkt[1] |= 0x40
	}
	pkt[2] = byte(pid & 0xff)
	pkt[3] = 0x10 | 0x01 // payload only, continuity counter 1
	n := copy(pkt[4:], payload)
	for i := 4 + n; i < tsPacketSize; i++ {
		pkt[i] = 0xFF
	}
	return pkt
}

// buildPESWithAnnexB builds a minimal PES payload wrapping one Annex-B IDR
// NAL unit of the given body length (filled with a recognizable pattern).
func buildPESWithAnnexB(bodyLen int) []byte {
	pes := []byte{0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x80, 0x00, 0x00}
	nal := make([]byte, 1+bodyLen)
	nal[0] = 0x65 // nal_ref_idc + type 5 (IDR)
	for i := 1; i < len(nal); i++ {
		nal[i] = byte(i)
	}
	es := append([]byte{0, 0, 0, 1}, nal...)
	return append(pes, es...)
}

func TestSampleAESTransform_SizeInvariant(t *testing.T) {
	videoPID := uint16(0x100)
	payload := buildPESWithAnnexB(200)

	var packets [][]byte
	chunk := 184 // first packet payloadStart=4
	for i := 0; i < len(payload); i += chunk {
		end := i + chunk
		if end > len(payload) {
			end = len(payload)
		}
		packets = append(packets, buildTSPacket(videoPID, i == 0, payload[i:end]))
	}
	// Trailing packet on another PID, which the transform leaves untouched.
	packets = append(packets, buildTSPacket(0x101, true, []byte{0}))

	var segment []byte
	for _, p := range packets {
		segment = append(segment, p...)
	}

	key := make([]byte, KeySize)
	iv := make([]byte, IVSize)
	for i := range key {
		key[i] = byte(i)
		iv[i] = byte(i * 2)
	}

	encrypted, err := SampleAESTransform(segment, key, iv, videoPID, 0x1FFF, true)
	require.NoError(t, err)
	assert.Equal(t, len(segment), len(encrypted))

	decrypted, err := SampleAESTransform(encrypted, key, iv, videoPID, 0x1FFF, false)
	require.NoError(t, err)
	assert.Equal(t, len(segment), len(decrypted))
	assert.Equal(t, segment, decrypted)
}

func TestSampleAESTransform_NonTSAlignedPassthrough(t *testing.T) {
	data := []byte{1, 2, 3}
	out, err := SampleAESTransform(data, make([]byte, KeySize), make([]byte, IVSize), 0x100, 0x101, true)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestTransformADTS_SkipsShortTrailer(t *testing.T) {
	// 7-byte ADTS header + 16 unencrypted bytes + 10 trailing bytes (<16, left untouched).
	frameLen := 7 + 16 + 10
	data := make([]byte, frameLen)
	data[0] = 0xFF
	data[1] = 0xF0
	data[3] = byte((frameLen >> 11) & 0x03)
	data[4] = byte((frameLen >> 3) & 0xFF)
	data[5] = byte((frameLen & 0x07) << 5)
	for i := 7; i < frameLen; i++ {
		data[i] = byte(i)
	}

	key := make([]byte, KeySize)
	iv := make([]byte, IVSize)
	out, err := transformADTS(data, key, iv, true)
	require.NoError(t, err)
	assert.Equal(t, data[:23], out[:23], "header and first 16 audio bytes untouched")
	assert.Equal(t, data[23:], out[23:], "trailing <16 bytes untouched since no full block available")
}
