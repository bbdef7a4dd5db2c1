// Package fmp4mux implements the fragmented-MP4 segment writer: one init
// segment (ftyp+moov) per session, one media segment (styp+moof+mdat) per
// packaging interval, with video and audio sharing a single mdat as two traf
// fragments. Box construction is delegated to github.com/Eyevinn/mp4ff; this
// package owns only per-sample bookkeeping (size/duration/flags/CTS) and the
// segment-boundary/byte-range logic layered on top of it.
package fmp4mux

import (
	"bytes"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/nullshard/hlspackager/pkg/hlserrors"
	"github.com/nullshard/hlspackager/pkg/hlstypes"
)

// VideoConfig describes the video track to initialize.
type VideoConfig struct {
	Timescale  uint32
	StreamType hlstypes.VideoStreamType
	SPS, PPS   [][]byte // H.264
	VPS        [][]byte // H.265 (VPS, SPS, PPS all required together)
}

// AudioConfig describes the audio track to initialize. A zero-value
// SampleRate means no audio track.
type AudioConfig struct {
	Timescale  uint32
	SampleRate int
	Channels   int
	ASC        []byte // raw AudioSpecificConfig
}

// Config configures a Writer for one session's lifetime.
type Config struct {
	Video VideoConfig
	Audio AudioConfig
}

// BuildInitSegment constructs the ftyp+moov init segment and returns the
// track IDs assigned to video and audio (0 if no audio track).
func BuildInitSegment(cfg Config) (data []byte, videoTrackID, audioTrackID uint32, err error) {
	init := mp4.CreateEmptyInit()

	videoTrak := mp4.CreateEmptyTrak(1, cfg.Video.Timescale, "video", "und")
	init.Moov.AddChild(videoTrak)
	init.Moov.Mvex.AddChild(mp4.CreateTrex(1))
	init.Moov.Mvhd.NextTrackID = 2

	switch cfg.Video.StreamType {
	case hlstypes.VideoStreamTypeH265:
		if len(cfg.Video.VPS) == 0 || len(cfg.Video.SPS) == 0 || len(cfg.Video.PPS) == 0 {
			return nil, 0, 0, &hlserrors.InvalidMP4Error{Message: "H.265 init requires VPS, SPS and PPS"}
		}
		if err := videoTrak.SetHEVCDescriptor("hvc1", cfg.Video.VPS, cfg.Video.SPS, cfg.Video.PPS, nil, true); err != nil {
			return nil, 0, 0, &hlserrors.InvalidMP4Error{Message: "building hvcC descriptor: " + err.Error()}
		}
	default:
		if len(cfg.Video.SPS) == 0 || len(cfg.Video.PPS) == 0 {
			return nil, 0, 0, &hlserrors.InvalidMP4Error{Message: "H.264 init requires SPS and PPS"}
		}
		if err := videoTrak.SetAVCDescriptor("avc1", cfg.Video.SPS, cfg.Video.PPS, true); err != nil {
			return nil, 0, 0, &hlserrors.InvalidMP4Error{Message: "building avcC descriptor: " + err.Error()}
		}
	}
	videoTrackID = videoTrak.Tkhd.TrackID

	if cfg.Audio.SampleRate > 0 {
		audioTrak := mp4.CreateEmptyTrak(2, cfg.Audio.Timescale, "audio", "und")
		init.Moov.AddChild(audioTrak)
		init.Moov.Mvex.AddChild(mp4.CreateTrex(2))
		init.Moov.Mvhd.NextTrackID = 3

		channels := cfg.Audio.Channels
		if channels == 0 {
			channels = 2
		}
		esds := mp4.CreateEsdsBox(cfg.Audio.ASC)
		mp4a := mp4.CreateAudioSampleEntryBox("mp4a", uint16(channels), 16, uint16(cfg.Audio.SampleRate), esds)
		audioTrak.Mdia.Minf.Stbl.Stsd.AddChild(mp4a)
		audioTrackID = audioTrak.Tkhd.TrackID
	}

	var buf bytes.Buffer
	if err := init.Encode(&buf); err != nil {
		return nil, 0, 0, &hlserrors.InvalidMP4Error{Message: "encoding init segment: " + err.Error()}
	}
	return buf.Bytes(), videoTrackID, audioTrackID, nil
}
