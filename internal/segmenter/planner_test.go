package segmenter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullshard/hlspackager/pkg/hlstypes"
)

func sample(dts, duration int64, sync bool) hlstypes.Sample {
	return hlstypes.Sample{DTS: dts, PTS: dts, Duration: duration, IsSync: sync}
}

func TestPlan_TwoSecondTarget(t *testing.T) {
	const timescale = 1000
	var samples []hlstypes.Sample
	var dts int64
	for i := 0; i < 24; i++ {
		samples = append(samples, sample(dts, 1000, i%2 == 0))
		dts += 1000
	}

	segs := Plan(samples, timescale, 2.0)
	require.NotEmpty(t, segs)

	total := 0
	for i, seg := range segs {
		if i < len(segs)-1 {
			first := samples[seg.FirstSample]
			assert.True(t, first.IsSync, "segment %d must start on sync sample", i)
			assert.GreaterOrEqual(t, seg.Duration, 2.0)
		}
		total += seg.SampleCount
	}
	assert.Equal(t, len(samples), total, "segments must densely cover every sample")
}

func TestPlan_Empty(t *testing.T) {
	assert.Nil(t, Plan(nil, 1000, 2.0))
}

func TestAlignAudio_CoversVideoSegment(t *testing.T) {
	// Video segment covers ticks [0, 2000) in a 1000 timescale (2s).
	// Audio runs in a 48000 timescale with 1024-sample frames (~21.3ms).
	const audioTimescale = 48000
	const videoTimescale = 1000
	frame := int64(1024)

	var audio []hlstypes.Sample
	var dts int64
	for i := 0; i < 200; i++ {
		audio = append(audio, sample(dts, frame, true))
		dts += frame
	}

	videoEndTicks := int64(2 * videoTimescale)
	n := AlignAudio(audio, 0, audioTimescale, videoTimescale, videoEndTicks)
	require.Greater(t, n, 0)

	last := audio[n-1]
	lastEndTicks := scaleTicks(last.DTS+last.Duration, audioTimescale, videoTimescale)
	assert.GreaterOrEqual(t, lastEndTicks, videoEndTicks)

	if n > 1 {
		secondLast := audio[n-2]
		secondLastEndTicks := scaleTicks(secondLast.DTS+secondLast.Duration, audioTimescale, videoTimescale)
		assert.Less(t, secondLastEndTicks, videoEndTicks, "should be the smallest covering prefix")
	}
}
