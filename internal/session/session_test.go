package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullshard/hlspackager/internal/config"
	"github.com/nullshard/hlspackager/internal/push"
	"github.com/nullshard/hlspackager/pkg/hlstypes"
)

// --- fixture builders, mirroring internal/mp4extract's own test fixtures ---

func buildBox(boxType string, payload []byte) []byte {
	size := 8 + len(payload)
	out := []byte{byte(size >> 24), byte(size >> 16), byte(size >> 8), byte(size)}
	out = append(out, []byte(boxType)...)
	return append(out, payload...)
}

func buildAVCC(sps, pps []byte) []byte {
	payload := []byte{1, 0x64, 0x00, 0x1f, 0xff}
	payload = append(payload, 0xe1, byte(len(sps)>>8), byte(len(sps)))
	payload = append(payload, sps...)
	payload = append(payload, 1, byte(len(pps)>>8), byte(len(pps)))
	payload = append(payload, pps...)
	return payload
}

func writeDescriptor(tag byte, body []byte) []byte {
	out := []byte{tag, byte(len(body))}
	return append(out, body...)
}

func buildESDS(asc []byte) []byte {
	dsi := writeDescriptor(0x05, asc)
	dcdBody := make([]byte, 13)
	dcdBody[0] = 0x40
	dcd := writeDescriptor(0x04, append(dcdBody, dsi...))
	esBody := []byte{0, 1, 0}
	es := writeDescriptor(0x03, append(esBody, dcd...))
	payload := []byte{0, 0, 0, 0}
	return append(payload, es...)
}

func videoSampleEntry(sps, pps []byte) []byte {
	entry := make([]byte, 78)
	return append(entry, buildBox("avcC", buildAVCC(sps, pps))...)
}

func audioSampleEntry(asc []byte) []byte {
	entry := make([]byte, 28)
	return append(entry, buildBox("esds", buildESDS(asc))...)
}

// --- fake TrackOracle ---

type fakeOracle struct {
	tracks       []hlstypes.TrackInfo
	videoSamples []hlstypes.Sample
	audioSamples []hlstypes.Sample
	data         map[int64][]byte
}

func (f *fakeOracle) Tracks() []hlstypes.TrackInfo { return f.tracks }

func (f *fakeOracle) SamplesFor(trackID uint32) []hlstypes.Sample {
	if trackID == f.tracks[0].TrackID {
		return f.videoSamples
	}
	return f.audioSamples
}

func (f *fakeOracle) ReadSample(s hlstypes.Sample) ([]byte, error) {
	return f.data[s.FileOffset], nil
}

// newFixtureOracle builds 2 seconds of 30fps H.264 video with a keyframe
// every second, so every 1-second planned segment starts on one, plus an
// AAC track.
func newFixtureOracle() *fakeOracle {
	sps := []byte{0x67, 0x64, 0x00, 0x1f, 0xaa, 0xbb}
	pps := []byte{0x68, 0xee, 0x3c, 0x80}
	asc := []byte{0x12, 0x10} // AAC-LC, 44100Hz stereo

	tracks := []hlstypes.TrackInfo{
		{TrackID: 1, Timescale: 30000, CodecID: "avc1", SampleDescription: videoSampleEntry(sps, pps)},
		{TrackID: 2, Timescale: 44100, CodecID: "mp4a", SampleDescription: audioSampleEntry(asc)},
	}

	data := make(map[int64][]byte)
	var videoSamples []hlstypes.Sample
	for i := int64(0); i < 60; i++ {
		off := i * 100
		data[off] = []byte{0x65, 0x00, 0x00, 0x00} // fake NAL, IDR-ish marker
		videoSamples = append(videoSamples, hlstypes.Sample{
			FileOffset: off,
			Size:       4,
			DTS:        i * 1000,
			PTS:        i * 1000,
			Duration:   1000,
			IsSync:     i%30 == 0,
		})
	}

	var audioSamples []hlstypes.Sample
	for i := int64(0); i < 90; i++ {
		off := 100000 + i*100
		data[off] = []byte{0xff, 0xf1, 0x50, 0x80, 0x00, 0x1f, 0xfc}
		audioSamples = append(audioSamples, hlstypes.Sample{
			FileOffset: off,
			Size:       7,
			DTS:        i * 1470,
			PTS:        i * 1470,
			Duration:   1470,
			IsSync:     true,
		})
	}

	return &fakeOracle{tracks: tracks, videoSamples: videoSamples, audioSamples: audioSamples, data: data}
}

// --- fake Pusher ---

type fakePusher struct {
	segments  int
	inits     int
	playlists int
	lastText  string
}

func (f *fakePusher) Connect(ctx context.Context) error    { return nil }
func (f *fakePusher) Disconnect(ctx context.Context) error { return nil }
func (f *fakePusher) ConnectionState() push.ConnectionState {
	return push.StateConnected
}
func (f *fakePusher) Stats() push.Stats { return push.Stats{} }
func (f *fakePusher) PushInitSegment(ctx context.Context, data []byte, filename string) error {
	f.inits++
	return nil
}
func (f *fakePusher) PushSegment(ctx context.Context, data []byte, filename string) error {
	f.segments++
	return nil
}
func (f *fakePusher) PushPartial(ctx context.Context, data []byte, filename string) error {
	return nil
}
func (f *fakePusher) PushPlaylist(ctx context.Context, text, filename string) error {
	f.playlists++
	f.lastText = text
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{RetentionSweepCron: "0 */5 * * * *", RetentionAge: time.Hour}
}

func waitForState(t *testing.T, s *session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := s.status()
		if st.State == want.String() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session did not reach state %s, got %s", want, s.status().State)
}

func TestSession_VOD_FMP4(t *testing.T) {
	oracle := newFixtureOracle()
	dest := &fakePusher{}

	cfg := Config{
		Name:                  "vod-fmp4",
		Mode:                  ModeVOD,
		Oracle:                oracle,
		VideoTrackID:          1,
		AudioTrackID:          2,
		SegmentTargetDuration: 1.0,
		ContainerFormat:       hlstypes.ContainerFormatFMP4,
		Destinations:          map[string]push.Pusher{"primary": dest},
		AggregationPolicy:     push.ContinueOnFailure,
	}

	sess, err := newSession(cfg, testLogger())
	require.NoError(t, err)
	sess.start()
	waitForState(t, sess, StateStopped)

	st := sess.status()
	assert.Empty(t, st.Err)
	assert.Greater(t, st.SegmentsProduced, 0)
	assert.Greater(t, st.BytesProduced, uint64(0))
	assert.Equal(t, 1, dest.inits)
	assert.Equal(t, st.SegmentsProduced, dest.segments)
	assert.Equal(t, 1, dest.playlists)
	assert.Contains(t, dest.lastText, "#EXT-X-ENDLIST")
}

func TestSession_VOD_MPEGTS(t *testing.T) {
	oracle := newFixtureOracle()
	dest := &fakePusher{}

	cfg := Config{
		Name:                  "vod-ts",
		Mode:                  ModeVOD,
		Oracle:                oracle,
		VideoTrackID:          1,
		AudioTrackID:          2,
		SegmentTargetDuration: 1.0,
		ContainerFormat:       hlstypes.ContainerFormatMPEGTS,
		Destinations:          map[string]push.Pusher{"primary": dest},
		AggregationPolicy:     push.ContinueOnFailure,
	}

	sess, err := newSession(cfg, testLogger())
	require.NoError(t, err)
	sess.start()
	waitForState(t, sess, StateStopped)

	st := sess.status()
	assert.Empty(t, st.Err)
	assert.Greater(t, st.SegmentsProduced, 0)
	assert.Equal(t, 0, dest.inits) // mpegts carries no separate init segment
	assert.Equal(t, st.SegmentsProduced, dest.segments)
}

func TestSession_MissingVideoTrack(t *testing.T) {
	oracle := newFixtureOracle()
	cfg := Config{
		Name:                  "bad-track",
		Mode:                  ModeVOD,
		Oracle:                oracle,
		VideoTrackID:          99,
		SegmentTargetDuration: 1.0,
		ContainerFormat:       hlstypes.ContainerFormatFMP4,
	}

	sess, err := newSession(cfg, testLogger())
	require.NoError(t, err)
	sess.start()
	waitForState(t, sess, StateFailed)

	st := sess.status()
	assert.Contains(t, st.Err, "video track")
}

func TestSupervisor_StartStopLifecycle(t *testing.T) {
	oracle := newFixtureOracle()
	dest := &fakePusher{}

	sup, err := NewSupervisor(testSessionConfig(), testLogger())
	require.NoError(t, err)
	defer func() { _ = sup.Shutdown(context.Background()) }()

	cfg := Config{
		Mode:                  ModeVOD,
		Oracle:                oracle,
		VideoTrackID:          1,
		AudioTrackID:          2,
		SegmentTargetDuration: 1.0,
		ContainerFormat:       hlstypes.ContainerFormatFMP4,
		Destinations:          map[string]push.Pusher{"primary": dest},
	}

	_, err = sup.Start("stream-a", cfg)
	require.NoError(t, err)

	_, err = sup.Start("stream-a", cfg)
	assert.ErrorIs(t, err, ErrSessionExists)

	require.Eventually(t, func() bool {
		st, err := sup.Status("stream-a")
		return err == nil && st.State == StateStopped.String()
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sup.Stop("stream-a"))

	err = sup.Stop("no-such-stream")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	list := sup.List()
	assert.Len(t, list, 1)
}
