package push

import (
	"github.com/nullshard/hlspackager/internal/config"
	"github.com/nullshard/hlspackager/pkg/httpclient"
)

// BuildHTTPDestinations constructs the Pusher set for every http-typed
// destination in cfg. Each destination gets its own named circuit breaker
// from factory (httpclient.DefaultFactory if nil), sharing the manager's
// global retry/circuit policy, and is registered in
// httpclient.DefaultRegistry under its destination ID so its breaker state
// is observable through the HTTP API.
//
// rtmp and srt destinations are skipped: this package has no concrete
// transport for either (see RTMPTransport/SRTTransport), so building those
// is left to a caller that supplies one, merged into the returned map.
func BuildHTTPDestinations(cfg config.PushConfig, factory *httpclient.ClientFactory) map[string]Pusher {
	if factory == nil {
		factory = httpclient.DefaultFactory
	}

	clientCfg := httpclient.Config{
		RetryAttempts:     cfg.Retry.Attempts,
		RetryDelay:        cfg.Retry.Delay,
		RetryMaxDelay:     cfg.Retry.MaxDelay,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		Timeout:           cfg.Retry.Timeout,
		CircuitThreshold:  cfg.Retry.CircuitThreshold,
		CircuitTimeout:    cfg.Retry.CircuitTimeout,
	}

	dests := make(map[string]Pusher)
	for _, d := range cfg.Destinations {
		if d.Type != "http" {
			continue
		}
		dests[d.ID] = NewHTTPPusher(HTTPPusherConfig{
			BaseURL:           d.URL,
			CompressPlaylists: d.CompressPlaylists,
			ServiceName:       d.ID,
			Factory:           factory,
			ClientConfig:      clientCfg,
		})
	}
	return dests
}
