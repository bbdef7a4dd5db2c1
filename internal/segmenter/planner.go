// Package segmenter groups an ordered sample sequence into segments bounded
// by sync samples and a target duration, and aligns a secondary (audio)
// track to the boundaries chosen for a primary (video) track.
package segmenter

import (
	"github.com/nullshard/hlspackager/pkg/hlstypes"
)

// Plan groups samples into segments such that every segment except possibly
// the last begins at a sync sample, each segment's duration is at least
// targetDuration unless it is the final tail, and segments are dense and
// cover every sample. A sync sample landing exactly at targetDuration closes
// the current segment (ties close, they do not extend it).
//
// samples must be ordered by DTS and timescale is the unit Duration/DTS are
// expressed in (ticks per second).
func Plan(samples []hlstypes.Sample, timescale uint32, targetDuration float64) []hlstypes.SegmentInfo {
	if len(samples) == 0 {
		return nil
	}

	targetTicks := int64(targetDuration * float64(timescale))

	var segments []hlstypes.SegmentInfo
	segStart := 0
	segStartDTS := samples[0].DTS
	var accumulated int64

	flush := func(end int) {
		if end <= segStart {
			return
		}
		dur := accumulated
		segments = append(segments, hlstypes.SegmentInfo{
			FirstSample: segStart,
			SampleCount: end - segStart,
			Duration:    float64(dur) / float64(timescale),
		})
		segStart = end
		accumulated = 0
	}

	for i, s := range samples {
		accumulated += s.Duration

		isLast := i == len(samples)-1
		if isLast {
			flush(i + 1)
			break
		}

		next := samples[i+1]
		elapsed := (next.DTS - segStartDTS)
		if next.IsSync && elapsed >= targetTicks {
			flush(i + 1)
			segStartDTS = next.DTS
		}
	}

	return segments
}

// AlignAudio returns the smallest prefix length of audioSamples (starting at
// audioStart) whose DTS, expressed in the video timescale, fully covers the
// half-open video segment [videoStartTicks, videoEndTicks).
//
// audioSamples' DTS values are in the audio timescale; they are converted to
// video-timescale units for comparison. The returned count is the number of
// audio samples consumed, so callers can advance audioStart for the next
// call.
func AlignAudio(audioSamples []hlstypes.Sample, audioStart int, audioTimescale uint32, videoTimescale uint32, videoEndTicks int64) int {
	count := 0
	for i := audioStart; i < len(audioSamples); i++ {
		s := audioSamples[i]
		endTicksVideoTS := scaleTicks(s.DTS+s.Duration, audioTimescale, videoTimescale)
		count = i - audioStart + 1
		if endTicksVideoTS >= videoEndTicks {
			break
		}
	}
	return count
}

func scaleTicks(ticks int64, from, to uint32) int64 {
	if from == to || from == 0 {
		return ticks
	}
	return ticks * int64(to) / int64(from)
}
