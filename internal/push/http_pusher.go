package push

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/nullshard/hlspackager/pkg/hlserrors"
	"github.com/nullshard/hlspackager/pkg/httpclient"
)

// HTTPPusherConfig configures an HTTPPusher.
type HTTPPusherConfig struct {
	BaseURL           string
	Method            string // defaults to PUT
	Headers           map[string]string
	CompressPlaylists bool // brotli-compress playlist pushes

	Client       *httpclient.Client // if nil, built from ClientConfig/ServiceName
	ClientConfig httpclient.Config

	// ServiceName, if set, names this destination's circuit breaker in
	// Factory (or httpclient.DefaultFactory if Factory is nil) and
	// registers the resulting client in httpclient.DefaultRegistry under
	// that name, so its breaker state is observable via the HTTP API.
	// Ignored when Client is set directly.
	ServiceName string
	Factory     *httpclient.ClientFactory
}

// HTTPPusher implements Pusher by pushing each artifact as an HTTP request
// to base_url/filename, wrapping pkg/httpclient's retry and circuit-breaker
// client rather than reimplementing that machinery.
type HTTPPusher struct {
	cfg    HTTPPusherConfig
	client *httpclient.Client

	mu    sync.Mutex
	state ConnectionState

	stats statAccumulator
}

// NewHTTPPusher constructs an HTTPPusher in the Disconnected state.
func NewHTTPPusher(cfg HTTPPusherConfig) *HTTPPusher {
	if cfg.Method == "" {
		cfg.Method = http.MethodPut
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	client := cfg.Client
	if client == nil {
		if cfg.ServiceName != "" {
			factory := cfg.Factory
			if factory == nil {
				factory = httpclient.DefaultFactory
			}
			client = factory.CreateClientWithConfig(cfg.ServiceName, cfg.ClientConfig)
			httpclient.DefaultRegistry.Register(cfg.ServiceName, client)
		} else {
			client = httpclient.New(cfg.ClientConfig)
		}
	}

	return &HTTPPusher{cfg: cfg, client: client, state: StateDisconnected}
}

func (p *HTTPPusher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateConnecting
	p.state = StateConnected
	return nil
}

func (p *HTTPPusher) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateDisconnected
	p.client.ResetCircuit()
	return nil
}

func (p *HTTPPusher) ConnectionState() ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats reports the pusher's running statistics. RetryCount is read from
// the wrapped client's circuit breaker total-failure counter (every
// retried attempt records a breaker failure before the call eventually
// succeeds or is exhausted), approximating "retry attempts beyond the
// first" without a second counter duplicating state the client already
// owns.
func (p *HTTPPusher) Stats() Stats {
	st := p.stats.snapshot(p.client.CircuitState() == httpclient.CircuitOpen)
	st.RetryCount = p.client.BreakerStats().TotalFailures - st.FailureCount
	if st.RetryCount < 0 {
		st.RetryCount = 0
	}
	return st
}

func (p *HTTPPusher) PushSegment(ctx context.Context, data []byte, filename string) error {
	return p.push(ctx, data, filename, false)
}

func (p *HTTPPusher) PushPartial(ctx context.Context, data []byte, filename string) error {
	return p.push(ctx, data, filename, false)
}

func (p *HTTPPusher) PushInitSegment(ctx context.Context, data []byte, filename string) error {
	return p.push(ctx, data, filename, false)
}

func (p *HTTPPusher) PushPlaylist(ctx context.Context, text, filename string) error {
	data := []byte(text)
	return p.push(ctx, data, filename, p.cfg.CompressPlaylists)
}

func (p *HTTPPusher) push(ctx context.Context, data []byte, filename string, compress bool) error {
	if p.ConnectionState() != StateConnected {
		return hlserrors.ErrNotConnected
	}

	body := data
	encoding := ""
	if compress {
		var buf bytes.Buffer
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(data); err == nil && w.Close() == nil {
			body = buf.Bytes()
			encoding = "br"
		}
	}

	url := p.cfg.BaseURL + "/" + filename
	req, err := http.NewRequestWithContext(ctx, p.cfg.Method, url, bytes.NewReader(body))
	if err != nil {
		return &hlserrors.IOError{Message: "building push request", Cause: err}
	}
	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	req.ContentLength = int64(len(body))

	start := time.Now()
	resp, err := p.client.DoWithContext(ctx, req)
	latency := time.Since(start)

	if err != nil {
		return p.classifyError(ctx, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		p.stats.recordFailure()
		return &hlserrors.HTTPError{Status: resp.StatusCode}
	}

	p.stats.recordSuccess(int64(len(body)), latency)
	return nil
}

func (p *HTTPPusher) classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return hlserrors.ErrCancelled
	}
	p.stats.recordFailure()
	if p.client.CircuitState() == httpclient.CircuitOpen {
		return &hlserrors.CircuitBreakerOpenError{Failures: int(p.stats.failureCountSnapshot())}
	}
	return &hlserrors.RetriesExhaustedError{Attempts: p.cfg.ClientConfig.RetryAttempts + 1, LastErr: err}
}
