// Package tsmux implements the MPEG-TS segment writer: a single program
// (PAT on PID 0x00, PMT on a fixed PID, video and audio on configured PIDs)
// built on top of bluenviron/mediacommon's mpegts writer, with parameter-set
// persistence so every keyframe carries SPS/PPS (and VPS for HEVC) even
// after the source buffer that produced them has been evicted.
package tsmux

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"github.com/nullshard/hlspackager/pkg/hlserrors"
	"github.com/nullshard/hlspackager/pkg/hlstypes"
)

// Default PID assignments for the single-program layout this writer emits.
const (
	PacketSize = 188
	SyncByte   = 0x47

	PIDPAT   = 0x0000
	PIDPMT   = 0x1000
	PIDVideo = 0x0100
	PIDAudio = 0x0101
)

// Config configures a Writer.
type Config struct {
	VideoPID uint16
	AudioPID uint16
	Logger   *slog.Logger

	VideoStreamType hlstypes.VideoStreamType
	AudioStreamType hlstypes.AudioStreamType

	AACConfig *mpeg4audio.Config

	// ParamSets persists SPS/PPS/VPS across segments sharing one Writer
	// lifetime. A fresh one is created if nil.
	ParamSets *ParamSetStore
}

// Writer muxes elementary-stream access units into MPEG-TS.
type Writer struct {
	w      io.Writer
	config Config

	muxer      *mpegts.Writer
	videoTrack *mpegts.Track
	audioTrack *mpegts.Track

	videoStreamType hlstypes.VideoStreamType
	audioStreamType hlstypes.AudioStreamType
	params          *ParamSetStore

	mu          sync.Mutex
	initialized bool
	tracks      []*mpegts.Track
}

// New creates a Writer bound to w. The PAT/PMT and track definitions are
// emitted lazily on the first WriteVideo/WriteAudio call, or eagerly via
// Header.
func New(w io.Writer, config Config) *Writer {
	if config.VideoPID == 0 {
		config.VideoPID = PIDVideo
	}
	if config.AudioPID == 0 {
		config.AudioPID = PIDAudio
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.VideoStreamType == "" {
		config.VideoStreamType = hlstypes.VideoStreamTypeH264
	}
	params := config.ParamSets
	if params == nil {
		params = NewParamSetStore()
	}

	return &Writer{
		w:               w,
		config:          config,
		videoStreamType: config.VideoStreamType,
		audioStreamType: config.AudioStreamType,
		params:          params,
	}
}

func mpegtsVideoCodec(streamType hlstypes.VideoStreamType) mpegts.Codec {
	if streamType == hlstypes.VideoStreamTypeH265 {
		return &mpegts.CodecH265{}
	}
	return &mpegts.CodecH264{}
}

func (w *Writer) initialize() error {
	if w.initialized {
		return nil
	}

	w.videoTrack = &mpegts.Track{PID: w.config.VideoPID, Codec: mpegtsVideoCodec(w.videoStreamType)}
	w.tracks = append(w.tracks, w.videoTrack)

	if w.audioStreamType == hlstypes.AudioStreamTypeAAC {
		aacConfig := w.config.AACConfig
		if aacConfig == nil {
			aacConfig = &mpeg4audio.Config{Type: mpeg4audio.ObjectTypeAACLC, SampleRate: 48000, ChannelCount: 2}
		}
		w.audioTrack = &mpegts.Track{PID: w.config.AudioPID, Codec: &mpegts.CodecMPEG4Audio{Config: *aacConfig}}
		w.tracks = append(w.tracks, w.audioTrack)
	}

	w.muxer = &mpegts.Writer{W: w.w, Tracks: w.tracks}
	if err := w.muxer.Initialize(); err != nil {
		return fmt.Errorf("initializing mpegts writer: %w", err)
	}

	w.initialized = true
	w.config.Logger.Debug("ts writer initialized",
		slog.String("video_stream_type", string(w.videoStreamType)),
		slog.String("audio_stream_type", string(w.audioStreamType)))
	return nil
}

// WriteVideo writes one video access unit (AVCC, Annex-B, or a single raw NAL
// unit; all three are auto-detected). Keyframes get SPS/PPS (and VPS for
// HEVC) prepended from the persisted parameter-set store when the unit
// doesn't already carry them.
func (w *Writer) WriteVideo(pts, dts int64, data []byte, isKeyframe bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.initialized {
		if err := w.initialize(); err != nil {
			return err
		}
	}

	au := toAccessUnit(data)
	if len(au) == 0 {
		return nil
	}

	isH265 := w.videoStreamType == hlstypes.VideoStreamTypeH265
	w.params.ExtractFromNALUs(au, isH265)
	if isKeyframe {
		au = w.params.PrependToKeyframe(au, isH265)
	}

	if isH265 {
		return w.muxer.WriteH265(w.videoTrack, pts, dts, au)
	}
	return w.muxer.WriteH264(w.videoTrack, pts, dts, au)
}

// WriteAudio writes one AAC access unit (ADTS-framed or raw).
func (w *Writer) WriteAudio(pts int64, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.audioStreamType != hlstypes.AudioStreamTypeAAC {
		return &hlserrors.UnsupportedCodecError{FourCC: string(w.audioStreamType)}
	}
	if !w.initialized {
		if err := w.initialize(); err != nil {
			return err
		}
	}
	if len(data) == 0 {
		return nil
	}

	aus := extractAACFrames(data)
	if len(aus) == 0 {
		return nil
	}
	return w.muxer.WriteMPEG4Audio(w.audioTrack, pts, aus)
}

// Header forces initialization and returns the PAT/PMT bytes padded with
// null packets (PID 0x1FFF) to at least four TS packets, since demuxers
// commonly require three consecutive sync bytes 188 bytes apart before they
// trust the stream.
func (w *Writer) Header() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.initialized {
		if err := w.initialize(); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	tmp := &mpegts.Writer{W: &buf, Tracks: w.tracks}
	if err := tmp.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing header muxer: %w", err)
	}
	if _, err := tmp.WriteTables(); err != nil {
		return nil, fmt.Errorf("writing PAT/PMT tables: %w", err)
	}

	patPMT := buf.Bytes()
	const minPackets = 4
	packetsNeeded := minPackets - len(patPMT)/PacketSize
	if packetsNeeded <= 0 {
		return patPMT, nil
	}

	null := make([]byte, PacketSize)
	null[0] = SyncByte
	null[1] = 0x1F
	null[2] = 0xFF
	null[3] = 0x10
	for i := 4; i < PacketSize; i++ {
		null[i] = 0xFF
	}

	out := make([]byte, len(patPMT)+packetsNeeded*PacketSize)
	copy(out, patPMT)
	for i := 0; i < packetsNeeded; i++ {
		copy(out[len(patPMT)+i*PacketSize:], null)
	}
	return out, nil
}

// Reset clears all per-segment muxer state so the Writer can be reused for
// the next segment while keeping its ParamSetStore (parameter sets persist
// across segment boundaries by design).
func (w *Writer) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.initialized = false
	w.muxer = nil
	w.videoTrack = nil
	w.audioTrack = nil
	w.tracks = nil
}

// toAccessUnit splits raw video data into NAL units, auto-detecting Annex-B
// start codes, AVCC length prefixes, or a single raw NAL unit.
func toAccessUnit(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	if len(data) >= 4 && data[0] == 0x00 && data[1] == 0x00 &&
		(data[2] == 0x01 || (data[2] == 0x00 && data[3] == 0x01)) {
		var au h264.AnnexB
		if err := au.Unmarshal(data); err == nil {
			return au
		}
		return [][]byte{data}
	}
	if len(data) >= 4 {
		var au h264.AVCC
		if err := au.Unmarshal(data); err == nil && len(au) > 0 {
			return au
		}
	}
	return [][]byte{data}
}

// extractAACFrames strips ADTS framing if present; mediacommon's
// WriteMPEG4Audio expects raw access units.
func extractAACFrames(data []byte) [][]byte {
	if len(data) >= 7 && data[0] == 0xFF && (data[1]&0xF0) == 0xF0 {
		return extractADTSFrames(data)
	}
	return [][]byte{data}
}

func extractADTSFrames(data []byte) [][]byte {
	var frames [][]byte
	offset := 0
	for offset+7 <= len(data) {
		if data[offset] != 0xFF || (data[offset+1]&0xF0) != 0xF0 {
			break
		}
		protectionAbsent := data[offset+1]&0x01 != 0
		headerSize := 7
		if !protectionAbsent {
			headerSize = 9
		}
		frameLen := int(data[offset+3]&0x03)<<11 | int(data[offset+4])<<3 | int(data[offset+5]>>5)
		if frameLen < headerSize || offset+frameLen > len(data) {
			break
		}
		if raw := data[offset+headerSize : offset+frameLen]; len(raw) > 0 {
			frames = append(frames, raw)
		}
		offset += frameLen
	}
	return frames
}

// VideoTrack returns the active video track, or nil before the first write.
func (w *Writer) VideoTrack() *mpegts.Track { return w.videoTrack }

// AudioTrack returns the active audio track, or nil if there is no audio or
// before the first write.
func (w *Writer) AudioTrack() *mpegts.Track { return w.audioTrack }
