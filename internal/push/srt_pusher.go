package push

import (
	"context"
	"sync"
	"time"

	"github.com/nullshard/hlspackager/pkg/hlserrors"
)

// SRTOptions configures an SRT connection.
type SRTOptions struct {
	LatencyMS    int
	Passphrase   string // key length must be 128, 192, or 256 bits if set
	MaxBandwidth int64
	StreamID     string
}

// SRTNetworkStats mirrors the transport's network_stats contract.
type SRTNetworkStats struct {
	RTTMs             float64
	BandwidthBps       float64
	PacketLossRate     float64
	RetransmitRate     float64
}

// SRTTransport is the connection contract an SRT pusher drives. As with
// RTMP, no library here implements a concrete SRT client; this interface
// is a pluggable collaborator left for a caller to supply.
type SRTTransport interface {
	Connect(ctx context.Context, host string, port int, opts SRTOptions) error
	Disconnect(ctx context.Context) error
	Send(ctx context.Context, data []byte) error
	NetworkStats(ctx context.Context) (SRTNetworkStats, error)
}

// SRTPusherConfig configures an SRTPusher.
type SRTPusherConfig struct {
	Host      string
	Port      int
	Options   SRTOptions
	Transport SRTTransport
}

// SRTPusher implements Pusher by sending every pushed artifact as a raw
// byte buffer over an SRT transport. All push kinds serialize to bytes
// and call send; there is no filename or framing concept at this layer.
type SRTPusher struct {
	cfg SRTPusherConfig

	mu    sync.Mutex
	state ConnectionState

	stats statAccumulator
}

// NewSRTPusher constructs an SRTPusher in the Disconnected state.
func NewSRTPusher(cfg SRTPusherConfig) *SRTPusher {
	return &SRTPusher{cfg: cfg, state: StateDisconnected}
}

func (p *SRTPusher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = StateConnecting
	if err := p.cfg.Transport.Connect(ctx, p.cfg.Host, p.cfg.Port, p.cfg.Options); err != nil {
		p.state = StateFailed
		return &hlserrors.ConnectionFailedError{Cause: err}
	}
	p.state = StateConnected
	return nil
}

func (p *SRTPusher) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateDisconnected
	return p.cfg.Transport.Disconnect(ctx)
}

func (p *SRTPusher) ConnectionState() ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *SRTPusher) Stats() Stats {
	return p.stats.snapshot(false)
}

func (p *SRTPusher) send(ctx context.Context, data []byte) error {
	if p.ConnectionState() != StateConnected {
		return hlserrors.ErrNotConnected
	}
	start := time.Now()
	if err := p.cfg.Transport.Send(ctx, data); err != nil {
		p.stats.recordFailure()
		if ctx.Err() != nil {
			return hlserrors.ErrCancelled
		}
		return &hlserrors.IOError{Message: "srt send", Cause: err}
	}
	p.stats.recordSuccess(int64(len(data)), time.Since(start))
	return nil
}

func (p *SRTPusher) PushSegment(ctx context.Context, data []byte, filename string) error {
	return p.send(ctx, data)
}

func (p *SRTPusher) PushPartial(ctx context.Context, data []byte, filename string) error {
	return p.send(ctx, data)
}

func (p *SRTPusher) PushInitSegment(ctx context.Context, data []byte, filename string) error {
	return p.send(ctx, data)
}

func (p *SRTPusher) PushPlaylist(ctx context.Context, text, filename string) error {
	return p.send(ctx, []byte(text))
}
