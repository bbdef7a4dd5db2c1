// Package push implements the multi-destination push engine: per-destination
// pusher actors (HTTP, RTMP, SRT), a fan-out multi-pusher, and a bandwidth
// monitor used to gate push behavior on available outbound capacity.
package push

import (
	"context"
	"sync"
	"time"
)

// ConnectionState is a pusher's position in the connection state machine:
// Disconnected -> Connecting -> Connected <-> Reconnecting -> Failed (terminal
// until another Connect call transitions out).
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stats is the statistics surface every pusher exposes.
type Stats struct {
	TotalBytesPushed    int64
	SuccessCount        int64
	FailureCount        int64
	RetryCount          int64
	AverageLatency      time.Duration
	LastLatency         time.Duration
	EstimatedBandwidth  float64 // bytes/second, derived from bytes/last_latency
	LastSuccessTime     *time.Time
	LastFailureTime     *time.Time
	CircuitBreakerOpen  bool
}

// statAccumulator is the mutex-guarded running-stats state shared by every
// pusher implementation in this package: a guarded struct rather than an
// actor goroutine, matching the bandwidth tracker and circuit breaker's
// own shape.
type statAccumulator struct {
	mu sync.Mutex

	totalBytes      int64
	successCount    int64
	failureCount    int64
	retryCount      int64
	latencySum      time.Duration
	latencyCount    int64
	lastLatency     time.Duration
	lastSuccessTime *time.Time
	lastFailureTime *time.Time
}

func (s *statAccumulator) recordSuccess(bytes int64, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.totalBytes += bytes
	s.successCount++
	s.latencySum += latency
	s.latencyCount++
	s.lastLatency = latency
	s.lastSuccessTime = &now
}

func (s *statAccumulator) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.failureCount++
	s.lastFailureTime = &now
}

func (s *statAccumulator) failureCountSnapshot() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failureCount
}

func (s *statAccumulator) recordRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryCount++
}

func (s *statAccumulator) snapshot(circuitOpen bool) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		TotalBytesPushed:   s.totalBytes,
		SuccessCount:       s.successCount,
		FailureCount:       s.failureCount,
		RetryCount:         s.retryCount,
		LastLatency:        s.lastLatency,
		LastSuccessTime:    s.lastSuccessTime,
		LastFailureTime:    s.lastFailureTime,
		CircuitBreakerOpen: circuitOpen,
	}
	if s.latencyCount > 0 {
		st.AverageLatency = s.latencySum / time.Duration(s.latencyCount)
	}
	if s.lastLatency > 0 {
		st.EstimatedBandwidth = float64(s.totalBytes) / s.lastLatency.Seconds()
	}
	return st
}

// Pusher is the capability every push destination implements.
// push_* calls before a successful Connect fail with hlserrors.ErrNotConnected.
type Pusher interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	PushSegment(ctx context.Context, data []byte, filename string) error
	PushPartial(ctx context.Context, data []byte, filename string) error
	PushPlaylist(ctx context.Context, text, filename string) error
	PushInitSegment(ctx context.Context, data []byte, filename string) error
	ConnectionState() ConnectionState
	Stats() Stats
}
