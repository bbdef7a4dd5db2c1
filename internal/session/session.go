package session

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/oklog/ulid/v2"

	"github.com/nullshard/hlspackager/internal/crypto"
	"github.com/nullshard/hlspackager/internal/fmp4mux"
	"github.com/nullshard/hlspackager/internal/llhls"
	"github.com/nullshard/hlspackager/internal/mp4extract"
	"github.com/nullshard/hlspackager/internal/playlist"
	"github.com/nullshard/hlspackager/internal/push"
	"github.com/nullshard/hlspackager/internal/segmenter"
	"github.com/nullshard/hlspackager/internal/tsmux"
	"github.com/nullshard/hlspackager/pkg/hlstypes"
)

// session drives one SPEC-level stream end to end: pull samples from the
// oracle, plan segments, mux, optionally encrypt, hand off to the LL-HLS
// manager or a static playlist, and push everything to every destination.
// Every session runs its pipeline on its own goroutine; state is only ever
// mutated from that goroutine, except the fields guarded by mu which the
// supervisor reads for status snapshots.
type session struct {
	id     string
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mp  *push.MultiPusher
	llm *llhls.Manager // non-nil only for ModeLive

	mu         sync.Mutex
	state      State
	startedAt  time.Time
	finishedAt *time.Time
	segments   int
	bytesOut   uint64
	lastErr    error
	vodList    hlstypes.MediaPlaylist
	lastText   string

	artifacts      map[string][]byte
	artifactOrder  []string
	maxArtifacts   int
}

func newSession(cfg Config, logger *slog.Logger) (*session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	dests := make([]push.Destination, 0, len(cfg.Destinations))
	for id, p := range cfg.Destinations {
		dests = append(dests, push.Destination{ID: id, Pusher: p})
	}

	maxArtifacts := 2 * cfg.LLHLS.MaxRetainedSegments
	if maxArtifacts <= 0 {
		maxArtifacts = 12
	}

	s := &session{
		id:           ulid.Make().String(),
		cfg:          cfg,
		logger:       logger.With(slog.String("session", cfg.Name), slog.String("mode", cfg.Mode.String())),
		ctx:          ctx,
		cancel:       cancel,
		mp:           push.NewMultiPusher(dests, cfg.AggregationPolicy, cfg.PrimaryDestinationID),
		state:        StateStarting,
		artifacts:    make(map[string][]byte),
		maxArtifacts: maxArtifacts,
	}

	if cfg.Mode == ModeLive {
		llcfg := cfg.LLHLS
		if llcfg.SegmentTargetDuration == 0 {
			llcfg.SegmentTargetDuration = cfg.SegmentTargetDuration
		}
		s.llm = llhls.New(llcfg)
	}

	return s, nil
}

func (s *session) start() {
	s.wg.Add(1)
	go s.run()
}

// stop cancels the session's context and waits for its pipeline goroutine
// to return.
func (s *session) stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *session) fail(err error) {
	s.logger.Error("session pipeline failed", slog.String("error", err.Error()))
	now := time.Now()
	s.mu.Lock()
	s.state = StateFailed
	s.lastErr = err
	s.finishedAt = &now
	s.mu.Unlock()
}

func (s *session) run() {
	defer s.wg.Done()

	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()
	s.setState(StateRunning)

	if results := s.mp.Connect(s.ctx); hasFailure(results) {
		s.logger.Warn("one or more push destinations failed to connect", slog.Any("results", results))
	}

	if err := s.pipeline(); err != nil {
		s.fail(err)
		s.mp.Disconnect(context.Background())
		return
	}

	now := time.Now()
	s.mu.Lock()
	s.state = StateStopped
	s.finishedAt = &now
	s.mu.Unlock()

	s.mp.Disconnect(context.Background())
}

func hasFailure(results []push.Result) bool {
	for _, r := range results {
		if r.Err != nil {
			return true
		}
	}
	return false
}

func (s *session) pipeline() error {
	tracks := s.cfg.Oracle.Tracks()

	videoTrack, ok := findTrack(tracks, s.cfg.VideoTrackID)
	if !ok {
		return fmt.Errorf("session %q: video track %d not found", s.cfg.Name, s.cfg.VideoTrackID)
	}

	hasAudio := s.cfg.AudioTrackID != 0
	var audioTrack hlstypes.TrackInfo
	if hasAudio {
		audioTrack, ok = findTrack(tracks, s.cfg.AudioTrackID)
		if !ok {
			return fmt.Errorf("session %q: audio track %d not found", s.cfg.Name, s.cfg.AudioTrackID)
		}
	}

	videoSamples := s.cfg.Oracle.SamplesFor(videoTrack.TrackID)
	if len(videoSamples) == 0 {
		return fmt.Errorf("session %q: video track %d has no samples", s.cfg.Name, videoTrack.TrackID)
	}
	var audioSamples []hlstypes.Sample
	if hasAudio {
		audioSamples = s.cfg.Oracle.SamplesFor(audioTrack.TrackID)
	}

	switch s.cfg.ContainerFormat {
	case hlstypes.ContainerFormatFMP4:
		return s.runFMP4(videoTrack, audioTrack, hasAudio, videoSamples, audioSamples)
	case hlstypes.ContainerFormatMPEGTS:
		return s.runMPEGTS(videoTrack, audioTrack, hasAudio, videoSamples, audioSamples)
	default:
		return fmt.Errorf("session %q: unsupported container format %q", s.cfg.Name, s.cfg.ContainerFormat)
	}
}

func findTrack(tracks []hlstypes.TrackInfo, id uint32) (hlstypes.TrackInfo, bool) {
	for _, t := range tracks {
		if t.TrackID == id {
			return t, true
		}
	}
	return hlstypes.TrackInfo{}, false
}

// aacSampleRates indexes MPEG-4 audio's samplingFrequencyIndex table.
var aacSampleRates = [...]int{96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350}

// decodeASC pulls sample rate and channel count out of a 2-byte
// AudioSpecificConfig. Only AAC-LC, the profile the rest of the pipeline
// muxes, is handled; the object-type field is otherwise ignored.
func decodeASC(asc []byte) (sampleRate, channels int, err error) {
	if len(asc) < 2 {
		return 0, 0, fmt.Errorf("audio specific config too short: %d bytes", len(asc))
	}
	freqIdx := ((asc[0] & 0x07) << 1) | (asc[1] >> 7)
	channelConfig := (asc[1] >> 3) & 0x0f
	if int(freqIdx) >= len(aacSampleRates) {
		return 0, 0, fmt.Errorf("invalid AAC sampling frequency index %d", freqIdx)
	}
	return aacSampleRates[freqIdx], int(channelConfig), nil
}

func (s *session) runFMP4(videoTrack, audioTrack hlstypes.TrackInfo, hasAudio bool, videoSamples, audioSamples []hlstypes.Sample) error {
	streamType := hlstypes.VideoStreamTypeH264
	var sps, pps, vps [][]byte
	var err error
	if videoTrack.CodecID == "hvc1" || videoTrack.CodecID == "hev1" {
		streamType = hlstypes.VideoStreamTypeH265
		vps, sps, pps, err = mp4extract.ExtractHEVCConfig(videoTrack.SampleDescription)
	} else {
		sps, pps, err = mp4extract.ExtractAVCConfig(videoTrack.SampleDescription)
	}
	if err != nil {
		return fmt.Errorf("session %q: extracting video codec config: %w", s.cfg.Name, err)
	}

	initCfg := fmp4mux.Config{
		Video: fmp4mux.VideoConfig{Timescale: videoTrack.Timescale, StreamType: streamType, SPS: sps, PPS: pps, VPS: vps},
	}
	if hasAudio {
		asc, err := mp4extract.ExtractAACConfig(audioTrack.SampleDescription, 0)
		if err != nil {
			return fmt.Errorf("session %q: extracting audio codec config: %w", s.cfg.Name, err)
		}
		sampleRate, channels, err := decodeASC(asc)
		if err != nil {
			return fmt.Errorf("session %q: %w", s.cfg.Name, err)
		}
		initCfg.Audio = fmp4mux.AudioConfig{Timescale: audioTrack.Timescale, SampleRate: sampleRate, Channels: channels, ASC: asc}
	}

	initData, videoTrackID, audioTrackID, err := fmp4mux.BuildInitSegment(initCfg)
	if err != nil {
		return fmt.Errorf("session %q: building init segment: %w", s.cfg.Name, err)
	}
	s.pushInit(initData, "init.mp4")

	writer := fmp4mux.NewWriter(videoTrackID, audioTrackID)

	plan := segmenter.Plan(videoSamples, videoTrack.Timescale, s.cfg.SegmentTargetDuration)
	if len(plan) == 0 {
		return fmt.Errorf("session %q: no segments planned", s.cfg.Name)
	}

	audioCursor := 0
	var sequence uint64
	for i, seg := range plan {
		for j := 0; j < seg.SampleCount; j++ {
			idx := seg.FirstSample + j
			vs := videoSamples[idx]
			data, err := s.cfg.Oracle.ReadSample(vs)
			if err != nil {
				return fmt.Errorf("session %q: reading video sample %d: %w", s.cfg.Name, idx, err)
			}
			writer.AddVideoSample(uint64(vs.DTS), uint32(vs.Duration), int32(vs.PTS-vs.DTS), vs.IsSync, data)
		}

		if hasAudio {
			last := videoSamples[seg.FirstSample+seg.SampleCount-1]
			videoEndTicks := last.DTS + last.Duration
			n := segmenter.AlignAudio(audioSamples, audioCursor, audioTrack.Timescale, videoTrack.Timescale, videoEndTicks)
			for j := 0; j < n; j++ {
				as := audioSamples[audioCursor+j]
				data, err := s.cfg.Oracle.ReadSample(as)
				if err != nil {
					return fmt.Errorf("session %q: reading audio sample %d: %w", s.cfg.Name, audioCursor+j, err)
				}
				writer.AddAudioSample(uint64(as.DTS), uint32(as.Duration), data)
			}
			audioCursor += n
		}

		segData, err := writer.Flush()
		if err != nil {
			return fmt.Errorf("session %q: flushing segment %d: %w", s.cfg.Name, i, err)
		}

		if err := s.emitSegment(i, seg.Duration, segData, sequence, "m4s"); err != nil {
			return err
		}
		sequence++

		if err := s.checkCancelled(); err != nil {
			return err
		}
	}

	return s.finish()
}

func (s *session) runMPEGTS(videoTrack, audioTrack hlstypes.TrackInfo, hasAudio bool, videoSamples, audioSamples []hlstypes.Sample) error {
	videoStreamType := hlstypes.VideoStreamTypeH264
	if videoTrack.CodecID == "hvc1" || videoTrack.CodecID == "hev1" {
		videoStreamType = hlstypes.VideoStreamTypeH265
	}

	audioStreamType := hlstypes.AudioStreamTypeNone
	var aacConfig *mpeg4audio.Config
	if hasAudio {
		audioStreamType = hlstypes.AudioStreamTypeAAC
		asc, err := mp4extract.ExtractAACConfig(audioTrack.SampleDescription, 0)
		if err != nil {
			return fmt.Errorf("session %q: extracting audio codec config: %w", s.cfg.Name, err)
		}
		sampleRate, channels, err := decodeASC(asc)
		if err != nil {
			return fmt.Errorf("session %q: %w", s.cfg.Name, err)
		}
		aacConfig = &mpeg4audio.Config{Type: mpeg4audio.ObjectTypeAACLC, SampleRate: sampleRate, ChannelCount: channels}
	}

	videoPID := s.cfg.Encryption.VideoPID
	if videoPID == 0 {
		videoPID = tsmux.PIDVideo
	}
	audioPID := s.cfg.Encryption.AudioPID
	if audioPID == 0 {
		audioPID = tsmux.PIDAudio
	}
	paramSets := tsmux.NewParamSetStore()

	plan := segmenter.Plan(videoSamples, videoTrack.Timescale, s.cfg.SegmentTargetDuration)
	if len(plan) == 0 {
		return fmt.Errorf("session %q: no segments planned", s.cfg.Name)
	}

	audioCursor := 0
	var sequence uint64
	for i, seg := range plan {
		var buf bytes.Buffer
		writer := tsmux.New(&buf, tsmux.Config{
			VideoPID:        videoPID,
			AudioPID:        audioPID,
			Logger:          s.logger,
			VideoStreamType: videoStreamType,
			AudioStreamType: audioStreamType,
			AACConfig:       aacConfig,
			ParamSets:       paramSets,
		})

		for j := 0; j < seg.SampleCount; j++ {
			idx := seg.FirstSample + j
			vs := videoSamples[idx]
			data, err := s.cfg.Oracle.ReadSample(vs)
			if err != nil {
				return fmt.Errorf("session %q: reading video sample %d: %w", s.cfg.Name, idx, err)
			}
			if err := writer.WriteVideo(vs.PTS, vs.DTS, data, vs.IsSync); err != nil {
				return fmt.Errorf("session %q: writing video sample %d: %w", s.cfg.Name, idx, err)
			}
		}

		if hasAudio {
			last := videoSamples[seg.FirstSample+seg.SampleCount-1]
			videoEndTicks := last.DTS + last.Duration
			n := segmenter.AlignAudio(audioSamples, audioCursor, audioTrack.Timescale, videoTrack.Timescale, videoEndTicks)
			for j := 0; j < n; j++ {
				as := audioSamples[audioCursor+j]
				data, err := s.cfg.Oracle.ReadSample(as)
				if err != nil {
					return fmt.Errorf("session %q: reading audio sample %d: %w", s.cfg.Name, audioCursor+j, err)
				}
				if err := writer.WriteAudio(as.PTS, data); err != nil {
					return fmt.Errorf("session %q: writing audio sample %d: %w", s.cfg.Name, audioCursor+j, err)
				}
			}
			audioCursor += n
		}

		if i == 0 {
			s.verifyFirstSegment(buf.Bytes(), videoPID, audioPID, hasAudio)
		}

		if err := s.emitSegment(i, seg.Duration, buf.Bytes(), sequence, "ts"); err != nil {
			return err
		}
		sequence++

		if err := s.checkCancelled(); err != nil {
			return err
		}
	}

	return s.finish()
}

// verifyFirstSegment demuxes the first MPEG-TS segment of a session with an
// independent parser as a one-time startup sanity check: a writer
// misconfiguration (wrong PID, dropped PTS) shows up here in the log
// instead of only as a player-side symptom much later.
func (s *session) verifyFirstSegment(data []byte, videoPID, audioPID uint16, hasAudio bool) {
	report, err := tsmux.VerifySegment(data, videoPID, audioPID)
	if err != nil {
		s.logger.Warn("first segment verification failed", slog.String("error", err.Error()))
		return
	}
	if !report.HasVideoPTS() {
		s.logger.Warn("first segment verification: no video PTS observed", slog.Int("video_packets", report.PacketCounts[videoPID]))
	}
	if hasAudio && !report.HasAudioPTS() {
		s.logger.Warn("first segment verification: no audio PTS observed", slog.Int("audio_packets", report.PacketCounts[audioPID]))
	}
}

func (s *session) checkCancelled() error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return nil
	}
}

func (s *session) pushInit(data []byte, filename string) {
	if ok, results := s.mp.PushInitSegment(s.ctx, data, filename); !ok {
		s.logger.Warn("push init segment failed", slog.Any("results", results))
	}
	s.remember(filename, data)
}

// remember retains a copy of a pushed artifact so the HTTP layer can serve
// it locally without round-tripping through a destination, evicting the
// oldest entry once maxArtifacts is exceeded (init.mp4 and playlist.m3u8
// are re-keyed in place and never evicted by this FIFO).
func (s *session) remember(filename string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.artifacts[filename]; !exists {
		s.artifactOrder = append(s.artifactOrder, filename)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.artifacts[filename] = cp

	for len(s.artifactOrder) > s.maxArtifacts {
		oldest := s.artifactOrder[0]
		s.artifactOrder = s.artifactOrder[1:]
		if oldest == "init.mp4" || oldest == "playlist.m3u8" {
			continue
		}
		delete(s.artifacts, oldest)
	}
}

// Artifact returns a retained segment, partial, or init segment's bytes.
func (s *session) Artifact(filename string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.artifacts[filename]
	return data, ok
}

// Playlist returns the most recently rendered media playlist text.
func (s *session) Playlist() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastText
}

// IsLive reports whether the session drives an LL-HLS manager, i.e.
// whether blocking-reload requests are meaningful for it.
func (s *session) IsLive() bool {
	return s.llm != nil
}

// AwaitPlaylist proxies to the session's LL-HLS manager for live sessions.
func (s *session) AwaitPlaylist(ctx context.Context, req llhls.BlockingRequest, skip *llhls.SkipRequest) (string, error) {
	if s.llm == nil {
		return "", fmt.Errorf("session %q: not a live session", s.cfg.Name)
	}
	return s.llm.AwaitPlaylist(ctx, req, skip)
}

// emitSegment encrypts (if configured), pushes, and records one completed
// segment, then either drives the live LL-HLS manager or appends to the
// accumulating VOD playlist.
//
// This path emits one full segment at a time; true sub-segment parts would
// require muxing as samples arrive from the oracle rather than once the
// whole segment's samples are known, which this batch pipeline does not do.
func (s *session) emitSegment(index int, duration float64, data []byte, sequence uint64, ext string) error {
	var key *hlstypes.EncryptionKey

	switch s.cfg.Encryption.Method {
	case hlstypes.EncryptionMethodAES128:
		iv := crypto.DeriveIV(sequence)
		enc, err := crypto.EncryptAES128CBC(data, s.cfg.Encryption.Key, iv[:])
		if err != nil {
			return fmt.Errorf("session %q: encrypting segment %d: %w", s.cfg.Name, index, err)
		}
		data = enc
		key = &hlstypes.EncryptionKey{Method: hlstypes.EncryptionMethodAES128, URI: s.cfg.Encryption.KeyURI, IV: iv[:]}

	case hlstypes.EncryptionMethodSampleAES, hlstypes.EncryptionMethodSampleAESCTR:
		if s.cfg.ContainerFormat != hlstypes.ContainerFormatMPEGTS {
			return fmt.Errorf("session %q: %s requires the mpegts container", s.cfg.Name, s.cfg.Encryption.Method)
		}
		iv := crypto.DeriveIV(sequence)
		enc, err := crypto.SampleAESTransform(data, s.cfg.Encryption.Key, iv[:], s.cfg.Encryption.VideoPID, s.cfg.Encryption.AudioPID, true)
		if err != nil {
			return fmt.Errorf("session %q: sample-aes encrypting segment %d: %w", s.cfg.Name, index, err)
		}
		data = enc
		key = &hlstypes.EncryptionKey{Method: s.cfg.Encryption.Method, URI: s.cfg.Encryption.KeyURI, IV: iv[:]}
	}

	var uri string
	if s.llm != nil {
		uri = s.cfg.LLHLS.URITemplate.Render(index, 0, ext)
	} else {
		uri = fmt.Sprintf("segment%d.%s", index, ext)
	}

	if ok, results := s.mp.PushSegment(s.ctx, data, uri); !ok {
		s.logger.Warn("push segment failed", slog.Int("segment", index), slog.Any("results", results))
	}
	s.remember(uri, data)

	s.mu.Lock()
	s.segments++
	s.bytesOut += uint64(len(data))
	s.mu.Unlock()

	now := time.Now()
	if s.llm != nil {
		if err := s.llm.CompleteSegment(s.ctx, duration, uri, false, &now); err != nil {
			return fmt.Errorf("session %q: completing live segment %d: %w", s.cfg.Name, index, err)
		}
		text, err := s.llm.RenderPlaylist(s.ctx)
		if err != nil {
			return fmt.Errorf("session %q: rendering playlist: %w", s.cfg.Name, err)
		}
		s.mu.Lock()
		s.lastText = text
		s.mu.Unlock()
		s.remember("playlist.m3u8", []byte(text))
		if ok, results := s.mp.PushPlaylist(s.ctx, text, "playlist.m3u8"); !ok {
			s.logger.Warn("push playlist failed", slog.Any("results", results))
		}
		return nil
	}

	seg := hlstypes.Segment{Duration: duration, URI: uri, Key: key, ProgramDateTime: &now}
	s.mu.Lock()
	s.vodList.Segments = append(s.vodList.Segments, seg)
	if d := int(duration) + 1; d > s.vodList.TargetDuration {
		s.vodList.TargetDuration = d
	}
	s.mu.Unlock()
	return nil
}

func (s *session) finish() error {
	if s.llm != nil {
		if err := s.llm.EndStream(s.ctx); err != nil {
			return fmt.Errorf("session %q: ending stream: %w", s.cfg.Name, err)
		}
		s.llm.Stop()
		return nil
	}

	s.mu.Lock()
	vt := hlstypes.PlaylistTypeVOD
	s.vodList.PlaylistType = &vt
	s.vodList.HasEndlist = true
	s.vodList.IndependentSegments = true
	text := playlist.RenderMedia(&s.vodList)
	s.lastText = text
	s.mu.Unlock()
	s.remember("playlist.m3u8", []byte(text))

	if ok, results := s.mp.PushPlaylist(s.ctx, text, "playlist.m3u8"); !ok {
		s.logger.Warn("push final playlist failed", slog.Any("results", results))
	}
	return nil
}

func (s *session) status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		ID:               s.id,
		Name:             s.cfg.Name,
		Mode:             s.cfg.Mode.String(),
		State:            s.state.String(),
		StartedAt:        s.startedAt,
		FinishedAt:       s.finishedAt,
		SegmentsProduced: s.segments,
		BytesProduced:    s.bytesOut,
		PlaylistText:     s.lastText,
		PushStats:        make(map[string]push.Stats, len(s.cfg.Destinations)),
	}
	if s.lastErr != nil {
		st.Err = s.lastErr.Error()
	}
	for id, p := range s.cfg.Destinations {
		st.PushStats[id] = p.Stats()
	}
	return st
}
