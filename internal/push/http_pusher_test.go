package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nullshard/hlspackager/pkg/hlserrors"
	"github.com/nullshard/hlspackager/pkg/httpclient"
)

func TestHTTPPusher_RetryThenSucceed(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPPusher(HTTPPusherConfig{
		BaseURL: srv.URL,
		ClientConfig: httpclient.Config{
			Timeout:           time.Second,
			RetryAttempts:     2,
			RetryDelay:        time.Millisecond,
			RetryMaxDelay:     10 * time.Millisecond,
			BackoffMultiplier: 1.0,
			CircuitThreshold:  10,
			CircuitTimeout:    time.Second,
		},
	})
	require.NoError(t, p.Connect(context.Background()))

	err := p.PushSegment(context.Background(), []byte("segment-bytes"), "seg0.mp4")
	require.NoError(t, err)
	require.EqualValues(t, 3, calls)

	stats := p.Stats()
	require.EqualValues(t, 1, stats.SuccessCount)
	require.EqualValues(t, 0, stats.FailureCount)
}

func TestHTTPPusher_NotConnectedBeforeConnect(t *testing.T) {
	p := NewHTTPPusher(HTTPPusherConfig{BaseURL: "http://example.invalid"})
	err := p.PushSegment(context.Background(), []byte("x"), "seg0.mp4")
	require.ErrorIs(t, err, hlserrors.ErrNotConnected)
}

func TestHTTPPusher_NonRetryable4xxFailsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewHTTPPusher(HTTPPusherConfig{
		BaseURL: srv.URL,
		ClientConfig: httpclient.Config{
			Timeout:           time.Second,
			RetryAttempts:     2,
			RetryDelay:        time.Millisecond,
			RetryMaxDelay:     10 * time.Millisecond,
			BackoffMultiplier: 1.0,
			CircuitThreshold:  10,
			CircuitTimeout:    time.Second,
		},
	})
	require.NoError(t, p.Connect(context.Background()))

	var httpErr *hlserrors.HTTPError
	err := p.PushSegment(context.Background(), []byte("x"), "seg0.mp4")
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusForbidden, httpErr.Status)
	require.EqualValues(t, 1, calls)
}

func TestHTTPPusher_URLComposition(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPPusher(HTTPPusherConfig{BaseURL: srv.URL + "/", ClientConfig: httpclient.DefaultConfig()})
	require.NoError(t, p.Connect(context.Background()))
	require.NoError(t, p.PushSegment(context.Background(), []byte("x"), "seg3.mp4"))
	require.Equal(t, "/seg3.mp4", gotPath)
}
