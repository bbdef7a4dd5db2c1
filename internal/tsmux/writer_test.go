package tsmux

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullshard/hlspackager/pkg/hlstypes"
)

func annexB(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		out = append(out, 0, 0, 0, 1)
		out = append(out, n...)
	}
	return out
}

func TestWriter_HeaderHasFourPackets(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, Config{VideoStreamType: hlstypes.VideoStreamTypeH264})
	header, err := w.Header()
	require.NoError(t, err)
	assert.Equal(t, 0, len(header)%PacketSize)
	assert.GreaterOrEqual(t, len(header)/PacketSize, 4)
	assert.Equal(t, byte(SyncByte), header[0])
}

func TestWriter_WriteVideoPrependsParamSetsOnKeyframe(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, Config{VideoStreamType: hlstypes.VideoStreamTypeH264})

	sps := []byte{0x67, 0x64, 0x00, 0x1f}
	pps := []byte{0x68, 0xee}
	idr := []byte{0x65, 0x01, 0x02, 0x03}

	// First write establishes SPS/PPS without a keyframe.
	err := w.WriteVideo(0, 0, annexB(sps, pps), false)
	require.NoError(t, err)

	// Second write is a keyframe with no inline params; store should prepend.
	err = w.WriteVideo(1000, 1000, annexB(idr), true)
	require.NoError(t, err)

	assert.True(t, buf.Len() > 0)
	assert.NotNil(t, w.VideoTrack())
}

func TestWriter_AudioRequiresAACStreamType(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, Config{VideoStreamType: hlstypes.VideoStreamTypeH264})
	err := w.WriteAudio(0, []byte{1, 2, 3})
	require.Error(t, err)
}

func TestParamSetStore_ExtractAndPrepend(t *testing.T) {
	store := NewParamSetStore()
	sps := []byte{0x67, 0xAA}
	pps := []byte{0x68, 0xBB}

	changed := store.ExtractFromNALUs([][]byte{sps, pps}, false)
	assert.True(t, changed)

	idr := []byte{0x65, 0x01}
	out := store.PrependToKeyframe([][]byte{idr}, false)
	require.Len(t, out, 3)
	assert.Equal(t, sps, out[0])
	assert.Equal(t, pps, out[1])
	assert.Equal(t, idr, out[2])

	// Already-present params should not be duplicated.
	out2 := store.PrependToKeyframe([][]byte{sps, pps, idr}, false)
	assert.Equal(t, [][]byte{sps, pps, idr}, out2)
}
