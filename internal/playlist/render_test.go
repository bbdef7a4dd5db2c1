package playlist

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullshard/hlspackager/pkg/hlstypes"
)

func TestRenderMedia_Basic(t *testing.T) {
	p := &hlstypes.MediaPlaylist{
		Version:        7,
		TargetDuration: 6,
		MediaSequence:  0,
		Segments: []hlstypes.Segment{
			{Duration: 6.0, URI: "seg0.mp4", Map: &hlstypes.MediaInitSection{URI: "init.mp4"}},
			{Duration: 6.0, URI: "seg1.mp4"},
		},
	}
	out := RenderMedia(p)
	assert.Contains(t, out, "#EXTM3U\n")
	assert.Contains(t, out, "#EXT-X-VERSION:7\n")
	assert.Contains(t, out, "#EXT-X-TARGETDURATION:6\n")
	assert.Contains(t, out, "#EXT-X-MAP:URI=\"init.mp4\"\n#EXTINF:6.00000,\nseg0.mp4\n")
	assert.Contains(t, out, "#EXTINF:6.00000,\nseg1.mp4\n")
}

func TestRenderMedia_LLHLSPartsAndPreloadHint(t *testing.T) {
	ind := true
	p := &hlstypes.MediaPlaylist{
		Version:        9,
		TargetDuration: 2,
		Segments: []hlstypes.Segment{
			{
				Duration: 1.33336,
				URI:      "seg0.mp4",
				Partials: []hlstypes.PartialSegment{
					{Duration: 0.33334, URI: "seg0.0.mp4", Independent: ind},
					{Duration: 0.33334, URI: "seg0.1.mp4", Independent: ind},
					{Duration: 0.33334, URI: "seg0.2.mp4", Independent: ind},
					{Duration: 0.33334, URI: "seg0.3.mp4", Independent: ind},
				},
			},
		},
		PreloadHints: []hlstypes.PreloadHint{{Type: "PART", URI: "seg1.0.mp4"}},
	}
	out := RenderMedia(p)
	assert.Contains(t, out, "#EXT-X-PART:DURATION=0.33334,URI=\"seg0.0.mp4\",INDEPENDENT=YES\n")
	assert.Contains(t, out, "#EXTINF:1.33336,\nseg0.mp4\n")
	assert.Contains(t, out, "#EXT-X-PRELOAD-HINT:TYPE=PART,URI=\"seg1.0.mp4\"\n")

	// Ordering matters: a completed segment's own parts must precede its
	// EXTINF line, not follow it.
	expected := "#EXT-X-PART:DURATION=0.33334,URI=\"seg0.0.mp4\",INDEPENDENT=YES\n" +
		"#EXT-X-PART:DURATION=0.33334,URI=\"seg0.1.mp4\",INDEPENDENT=YES\n" +
		"#EXT-X-PART:DURATION=0.33334,URI=\"seg0.2.mp4\",INDEPENDENT=YES\n" +
		"#EXT-X-PART:DURATION=0.33334,URI=\"seg0.3.mp4\",INDEPENDENT=YES\n" +
		"#EXTINF:1.33336,\nseg0.mp4\n"
	assert.Contains(t, out, expected)
	lastPartIdx := strings.Index(out, "seg0.3.mp4")
	extinfIdx := strings.Index(out, "#EXTINF:1.33336")
	require.True(t, lastPartIdx >= 0 && extinfIdx >= 0 && lastPartIdx < extinfIdx,
		"expected seg0's parts to render before its EXTINF line")
}

func TestRenderMedia_ServerControlOrder(t *testing.T) {
	hb := 6.0
	phb := 1.0
	csu := 12.0
	p := &hlstypes.MediaPlaylist{
		Version:        9,
		TargetDuration: 2,
		ServerControl: &hlstypes.ServerControlConfig{
			CanBlockReload: true,
			HoldBack:       &hb,
			PartHoldBack:   &phb,
			CanSkipUntil:   &csu,
		},
	}
	out := RenderMedia(p)
	assert.Contains(t, out, "#EXT-X-SERVER-CONTROL:CAN-BLOCK-RELOAD=YES,HOLD-BACK=6.0,PART-HOLD-BACK=1.0,CAN-SKIP-UNTIL=12.0\n")
}

func TestRenderMaster_StreamInf(t *testing.T) {
	p := &hlstypes.MasterPlaylist{
		Version: 7,
		Variants: []hlstypes.Variant{
			{URI: "stream.m3u8", Bandwidth: 200000, Codecs: "avc1.42001f,mp4a.40.2"},
		},
	}
	out := RenderMaster(p)
	assert.Contains(t, out, "#EXT-X-STREAM-INF:BANDWIDTH=200000,CODECS=\"avc1.42001f,mp4a.40.2\"\nstream.m3u8\n")
}

func TestRenderThenParse_MediaRoundTrip(t *testing.T) {
	pdt := hlstypes.MediaPlaylist{
		Version:        4,
		TargetDuration: 6,
		MediaSequence:  3,
		Segments: []hlstypes.Segment{
			{Duration: 6.0, URI: "seg3.ts"},
			{Duration: 5.5, URI: "seg4.ts", Discontinuity: true},
		},
		HasEndlist: true,
	}
	rendered := RenderMedia(&pdt)
	parsed, err := ParseMedia(rendered)
	require.NoError(t, err)
	assert.Equal(t, pdt.Version, parsed.Version)
	assert.Equal(t, pdt.TargetDuration, parsed.TargetDuration)
	assert.Equal(t, pdt.MediaSequence, parsed.MediaSequence)
	assert.True(t, parsed.HasEndlist)
	require.Len(t, parsed.Segments, 2)
	assert.Equal(t, "seg3.ts", parsed.Segments[0].URI)
	assert.InDelta(t, 6.0, parsed.Segments[0].Duration, 0.00001)
	assert.True(t, parsed.Segments[1].Discontinuity)
}
