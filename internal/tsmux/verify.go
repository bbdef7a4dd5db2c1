package tsmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/asticode/go-astits"
)

// VerifyReport summarizes one MPEG-TS segment's demuxed PES packets, per
// elementary PID, as an independent cross-check on the writer's own
// framing: it demuxes with a wholly separate parser rather than asserting
// against the writer's internal state.
type VerifyReport struct {
	PacketCounts  map[uint16]int
	MissingPTS    int
	FirstVideoPTS int64
	FirstAudioPTS int64
	sawVideoPTS   bool
	sawAudioPTS   bool
}

// HasVideoPTS reports whether at least one video PES carried a PTS.
func (r VerifyReport) HasVideoPTS() bool { return r.sawVideoPTS }

// HasAudioPTS reports whether at least one audio PES carried a PTS.
func (r VerifyReport) HasAudioPTS() bool { return r.sawAudioPTS }

// VerifySegment demuxes a muxed segment with an independent MPEG-TS parser
// and reports per-PID PES counts and PTS presence, so a pipeline or test can
// catch a writer regression (dropped PES, missing timestamps) that would
// otherwise only surface as a player-side symptom.
func VerifySegment(data []byte, videoPID, audioPID uint16) (VerifyReport, error) {
	report := VerifyReport{PacketCounts: make(map[uint16]int)}

	dem := astits.NewDemuxer(context.Background(), bytes.NewReader(data))
	for {
		d, err := dem.NextData()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) {
				return report, nil
			}
			if strings.HasPrefix(err.Error(), "astits: parsing PES data failed") {
				continue
			}
			return report, fmt.Errorf("verifying ts segment: %w", err)
		}

		if d.PES == nil {
			continue
		}
		report.PacketCounts[d.PID]++

		oh := d.PES.Header.OptionalHeader
		if oh == nil ||
			oh.PTSDTSIndicator == astits.PTSDTSIndicatorNoPTSOrDTS ||
			oh.PTSDTSIndicator == astits.PTSDTSIndicatorIsForbidden {
			report.MissingPTS++
			continue
		}

		switch d.PID {
		case videoPID:
			if !report.sawVideoPTS {
				report.FirstVideoPTS = oh.PTS.Base
				report.sawVideoPTS = true
			}
		case audioPID:
			if !report.sawAudioPTS {
				report.FirstAudioPTS = oh.PTS.Base
				report.sawAudioPTS = true
			}
		}
	}
}
