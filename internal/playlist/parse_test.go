package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullshard/hlspackager/pkg/hlserrors"
)

func TestParseMedia_MissingHeader(t *testing.T) {
	_, err := ParseMedia("#EXT-X-VERSION:3\n#EXTINF:1,\nseg.ts\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, hlserrors.ErrMissingHeader)
}

func TestParseMedia_EmptyManifest(t *testing.T) {
	_, err := ParseMedia("")
	require.Error(t, err)
	assert.ErrorIs(t, err, hlserrors.ErrEmptyManifest)
}

func TestParseMaster_MissingURIAfterStreamInf(t *testing.T) {
	_, err := ParseMaster("#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=100\n")
	require.Error(t, err)
	var missing *hlserrors.MissingURIError
	assert.ErrorAs(t, err, &missing)
}

func TestParse_AmbiguousPlaylistType(t *testing.T) {
	_, _, err := Parse("#EXTM3U\n#EXT-X-VERSION:3\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, hlserrors.ErrAmbiguousPlaylistType)
}

func TestParseMedia_InvalidDuration(t *testing.T) {
	_, err := ParseMedia("#EXTM3U\n#EXT-X-TARGETDURATION:6\n#EXTINF:notanumber,\nseg.ts\n")
	require.Error(t, err)
	var invalid *hlserrors.InvalidDurationError
	assert.ErrorAs(t, err, &invalid)
}

func TestParseMedia_KeyAndByteRangeAccumulateIntoSegment(t *testing.T) {
	data := "#EXTM3U\n" +
		"#EXT-X-TARGETDURATION:6\n" +
		"#EXT-X-KEY:METHOD=AES-128,URI=\"key.bin\",IV=0x0000000000000000000000000000002a\n" +
		"#EXT-X-BYTERANGE:1000@0\n" +
		"#EXTINF:6.0,\n" +
		"seg0.ts\n"
	p, err := ParseMedia(data)
	require.NoError(t, err)
	require.Len(t, p.Segments, 1)
	require.NotNil(t, p.Segments[0].Key)
	assert.Equal(t, "key.bin", p.Segments[0].Key.URI)
	require.NotNil(t, p.Segments[0].ByteRange)
	assert.Equal(t, int64(1000), p.Segments[0].ByteRange.Length)
}

func TestDetectKind(t *testing.T) {
	isMedia, isMaster := DetectKind("#EXTM3U\n#EXT-X-TARGETDURATION:6\n#EXTINF:6,\nseg.ts\n")
	assert.True(t, isMedia)
	assert.False(t, isMaster)

	isMedia, isMaster = DetectKind("#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\nx.m3u8\n")
	assert.False(t, isMedia)
	assert.True(t, isMaster)
}
