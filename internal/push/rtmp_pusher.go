package push

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nullshard/hlspackager/pkg/hlserrors"
)

// FLV tag type bytes, per the FLV container spec.
const (
	flvTagAudio  byte = 8
	flvTagVideo  byte = 9
	flvTagScript byte = 18
)

// RTMPTransport is the connection contract an RTMP pusher drives. No
// library here implements a production RTMP client; this interface is a
// pluggable collaborator, with a concrete implementation left to the
// deployment (a wrapped ffmpeg process, a vendored client, or similar).
type RTMPTransport interface {
	Connect(ctx context.Context, url string) error
	Disconnect(ctx context.Context) error
	Send(ctx context.Context, data []byte, timestampMS int64, tagType byte) error
}

// RTMPPusherConfig configures an RTMPPusher.
type RTMPPusherConfig struct {
	ServerURL string
	StreamKey string
	Transport RTMPTransport
}

// RTMPPusher implements Pusher over an FLV-tagged RTMP transport.
// Timestamps accumulate per pusher across segments, starting at zero.
type RTMPPusher struct {
	cfg RTMPPusherConfig

	mu              sync.Mutex
	state           ConnectionState
	nextTimestampMS int64

	stats statAccumulator
}

// NewRTMPPusher constructs an RTMPPusher in the Disconnected state.
func NewRTMPPusher(cfg RTMPPusherConfig) *RTMPPusher {
	return &RTMPPusher{cfg: cfg, state: StateDisconnected}
}

func (p *RTMPPusher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = StateConnecting
	url := strings.TrimRight(p.cfg.ServerURL, "/") + "/" + p.cfg.StreamKey
	if err := p.cfg.Transport.Connect(ctx, url); err != nil {
		p.state = StateFailed
		return &hlserrors.ConnectionFailedError{Cause: err}
	}
	p.state = StateConnected
	p.nextTimestampMS = 0
	return nil
}

func (p *RTMPPusher) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateDisconnected
	return p.cfg.Transport.Disconnect(ctx)
}

func (p *RTMPPusher) ConnectionState() ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *RTMPPusher) Stats() Stats {
	return p.stats.snapshot(false)
}

func (p *RTMPPusher) pushTag(ctx context.Context, data []byte, tagType byte, advanceMS int64) error {
	if p.ConnectionState() != StateConnected {
		return hlserrors.ErrNotConnected
	}

	p.mu.Lock()
	ts := p.nextTimestampMS
	p.nextTimestampMS += advanceMS
	p.mu.Unlock()

	start := time.Now()
	if err := p.cfg.Transport.Send(ctx, data, ts, tagType); err != nil {
		p.stats.recordFailure()
		if ctx.Err() != nil {
			return hlserrors.ErrCancelled
		}
		return &hlserrors.IOError{Message: "rtmp send", Cause: err}
	}
	p.stats.recordSuccess(int64(len(data)), time.Since(start))
	return nil
}

// PushSegmentWithDuration pushes a media segment and advances the running
// RTMP timestamp by its duration in milliseconds. Duration is not part of
// the Pusher interface; PushSegment leaves the timestamp where it is.
func (p *RTMPPusher) PushSegmentWithDuration(ctx context.Context, data []byte, durationSeconds float64) error {
	return p.pushTag(ctx, data, flvTagVideo, int64(durationSeconds*1000))
}

func (p *RTMPPusher) PushSegment(ctx context.Context, data []byte, filename string) error {
	return p.pushTag(ctx, data, flvTagVideo, 0)
}

func (p *RTMPPusher) PushPartial(ctx context.Context, data []byte, filename string) error {
	return p.pushTag(ctx, data, flvTagVideo, 0)
}

func (p *RTMPPusher) PushInitSegment(ctx context.Context, data []byte, filename string) error {
	return p.pushTag(ctx, data, flvTagScript, 0)
}

// PushPlaylist is a no-op for RTMP: the protocol has no manifest concept.
func (p *RTMPPusher) PushPlaylist(ctx context.Context, text, filename string) error {
	return nil
}
