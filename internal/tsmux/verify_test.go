package tsmux

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullshard/hlspackager/pkg/hlstypes"
)

func TestVerifySegment_RoundTripsVideoAndAudio(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, Config{
		VideoPID:        PIDVideo,
		AudioPID:        PIDAudio,
		VideoStreamType: hlstypes.VideoStreamTypeH264,
	})

	header, err := w.Header()
	require.NoError(t, err)
	buf.Write(header)

	sps := []byte{0x67, 0x64, 0x00, 0x1f}
	pps := []byte{0x68, 0xee}
	idr := annexB(sps, pps, []byte{0x65, 0x01, 0x02, 0x03})

	require.NoError(t, w.WriteVideo(0, 0, idr, true))
	require.NoError(t, w.WriteVideo(3000, 3000, annexB([]byte{0x61, 0x01}), false))

	report, err := VerifySegment(buf.Bytes(), PIDVideo, PIDAudio)
	require.NoError(t, err)
	assert.Greater(t, report.PacketCounts[PIDVideo], 0)
	assert.True(t, report.HasVideoPTS())
	assert.Equal(t, int64(0), report.FirstVideoPTS)
}
