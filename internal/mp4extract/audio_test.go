package mp4extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDescriptor(tag byte, body []byte) []byte {
	out := []byte{tag}
	n := len(body)
	// Single-byte length encoding (no continuation bit needed for test sizes).
	out = append(out, byte(n))
	out = append(out, body...)
	return out
}

func buildESDS(asc []byte) []byte {
	dsi := writeDescriptor(descTagDecoderSpecific, asc)

	dcdBody := make([]byte, 13)
	dcdBody[0] = 0x40 // objectTypeIndication = AAC
	dcd := writeDescriptor(descTagDecoderConfig, append(dcdBody, dsi...))

	esBody := []byte{0, 1, 0} // ES_ID(2) + flags(1, all clear)
	es := writeDescriptor(descTagES, append(esBody, dcd...))

	payload := []byte{0, 0, 0, 0} // version+flags
	payload = append(payload, es...)
	return payload
}

func TestExtractAACConfig_Direct(t *testing.T) {
	asc := []byte{0x12, 0x10} // AAC-LC, 44100Hz stereo
	esds := buildBox("esds", buildESDS(asc))

	entry := make([]byte, audioSampleEntryBaseSize)
	entry = append(entry, esds...)

	got, err := ExtractAACConfig(entry, 0)
	require.NoError(t, err)
	assert.Equal(t, asc, got)
}

func TestExtractAACConfig_NestedUnderWave(t *testing.T) {
	asc := []byte{0x11, 0x90}
	esds := buildBox("esds", buildESDS(asc))
	wave := buildBox("wave", esds)

	entry := make([]byte, audioSampleEntryBaseSize+audioSampleEntryExtraSize(1))
	entry = append(entry, wave...)

	got, err := ExtractAACConfig(entry, 1)
	require.NoError(t, err)
	assert.Equal(t, asc, got)
}

func TestExtractAACConfig_MissingBox(t *testing.T) {
	entry := make([]byte, audioSampleEntryBaseSize)
	_, err := ExtractAACConfig(entry, 0)
	require.Error(t, err)
}
