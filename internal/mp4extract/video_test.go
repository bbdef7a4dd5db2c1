package mp4extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildBox(boxType string, payload []byte) []byte {
	size := 8 + len(payload)
	out := make([]byte, 4)
	out[0] = byte(size >> 24)
	out[1] = byte(size >> 16)
	out[2] = byte(size >> 8)
	out[3] = byte(size)
	out = append(out, []byte(boxType)...)
	out = append(out, payload...)
	return out
}

func buildAVCC(sps, pps []byte) []byte {
	payload := []byte{1, 0x64, 0x00, 0x1f, 0xff}
	payload = append(payload, 0xe1, byte(len(sps)>>8), byte(len(sps)))
	payload = append(payload, sps...)
	payload = append(payload, 1, byte(len(pps)>>8), byte(len(pps)))
	payload = append(payload, pps...)
	return payload
}

func TestExtractAVCConfig(t *testing.T) {
	sps := []byte{0x67, 0x64, 0x00, 0x1f, 0xaa, 0xbb}
	pps := []byte{0x68, 0xee, 0x3c, 0x80}
	avcC := buildBox("avcC", buildAVCC(sps, pps))

	entry := make([]byte, visualSampleEntryFixedSize)
	entry = append(entry, avcC...)

	gotSPS, gotPPS, err := ExtractAVCConfig(entry)
	require.NoError(t, err)
	require.Len(t, gotSPS, 1)
	require.Len(t, gotPPS, 1)
	assert.Equal(t, sps, gotSPS[0])
	assert.Equal(t, pps, gotPPS[0])
}

func TestExtractAVCConfig_MissingBox(t *testing.T) {
	entry := make([]byte, visualSampleEntryFixedSize)
	_, _, err := ExtractAVCConfig(entry)
	require.Error(t, err)
}

func buildHVCC(vps, sps, pps []byte) []byte {
	payload := make([]byte, 22)
	payload[0] = 1
	payload = append(payload, 3) // numOfArrays

	appendArray := func(nalType byte, nal []byte) {
		payload = append(payload, nalType&0x3f)
		payload = append(payload, 0, 1) // numNalus = 1
		payload = append(payload, byte(len(nal)>>8), byte(len(nal)))
		payload = append(payload, nal...)
	}
	appendArray(hevcNALTypeVPS, vps)
	appendArray(hevcNALTypeSPS, sps)
	appendArray(hevcNALTypePPS, pps)
	return payload
}

func TestExtractHEVCConfig(t *testing.T) {
	vps := []byte{0x40, 0x01, 0x0c}
	sps := []byte{0x42, 0x01, 0x01, 0x02}
	pps := []byte{0x44, 0x01}
	hvcC := buildBox("hvcC", buildHVCC(vps, sps, pps))

	entry := make([]byte, visualSampleEntryFixedSize)
	entry = append(entry, hvcC...)

	gotVPS, gotSPS, gotPPS, err := ExtractHEVCConfig(entry)
	require.NoError(t, err)
	require.Len(t, gotVPS, 1)
	require.Len(t, gotSPS, 1)
	require.Len(t, gotPPS, 1)
	assert.Equal(t, vps, gotVPS[0])
	assert.Equal(t, sps, gotSPS[0])
	assert.Equal(t, pps, gotPPS[0])
}
