package push

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullshard/hlspackager/internal/config"
	"github.com/nullshard/hlspackager/pkg/httpclient"
)

func TestBuildHTTPDestinations_SkipsNonHTTPAndRegisters(t *testing.T) {
	factory := httpclient.NewClientFactory(httpclient.NewCircuitBreakerManager(nil))

	cfg := config.PushConfig{
		Destinations: []config.PushDestinationConfig{
			{ID: "cdn-a", Type: "http", URL: "http://cdn-a.invalid"},
			{ID: "rtmp-out", Type: "rtmp", URL: "rtmp://live.invalid/app"},
		},
		Retry: config.PushRetryConfig{Attempts: 2, CircuitThreshold: 3},
	}

	dests := BuildHTTPDestinations(cfg, factory)
	require.Len(t, dests, 1)
	_, ok := dests["cdn-a"]
	assert.True(t, ok)
	_, ok = dests["rtmp-out"]
	assert.False(t, ok)

	client := httpclient.DefaultRegistry.Get("cdn-a")
	require.NotNil(t, client)
}
