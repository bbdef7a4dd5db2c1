package fmp4mux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_FlushIncrementsSequenceNumber(t *testing.T) {
	w := NewWriter(1, 2)
	w.AddVideoSample(0, 2000, 0, true, []byte{1, 2, 3})

	first, err := w.Flush()
	require.NoError(t, err)
	assert.Contains(t, string(first[4:8]), "styp")

	w.AddVideoSample(2000, 2000, 0, true, []byte{4, 5, 6})
	second, err := w.Flush()
	require.NoError(t, err)
	assert.NotEmpty(t, second)
	assert.Equal(t, uint32(2), w.seq)

	video, audio := w.Pending()
	assert.Equal(t, 0, video)
	assert.Equal(t, 0, audio)
}

func TestWriter_FlushWithNoSamplesErrors(t *testing.T) {
	w := NewWriter(1, 2)
	_, err := w.Flush()
	require.Error(t, err)
}

func TestByteRangeRecorder_TracksOffsets(t *testing.T) {
	var r ByteRangeRecorder
	off1, len1 := r.Append([]byte{1, 2, 3, 4})
	off2, len2 := r.Append([]byte{5, 6})

	assert.Equal(t, int64(0), off1)
	assert.Equal(t, int64(4), len1)
	assert.Equal(t, int64(4), off2)
	assert.Equal(t, int64(2), len2)
	assert.Equal(t, 6, len(r.Data()))
	assert.Equal(t, 2, r.Count())
}
