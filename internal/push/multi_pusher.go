package push

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// FanOutPolicy determines how MultiPusher aggregates per-destination
// outcomes into a single success/failure verdict.
type FanOutPolicy int

const (
	// ContinueOnFailure succeeds if at least one destination succeeds.
	ContinueOnFailure FanOutPolicy = iota
	// FailOnPrimary succeeds iff the designated primary destination
	// succeeds; other failures are recorded but not surfaced.
	FailOnPrimary
	// RequireAll succeeds iff every destination succeeds.
	RequireAll
)

// Destination is one named push target in a MultiPusher.
type Destination struct {
	ID     string
	Pusher Pusher
}

// MultiPusher fans a push out to an ordered set of destinations in
// parallel and aggregates their outcomes per the configured policy.
type MultiPusher struct {
	destinations []Destination
	policy       FanOutPolicy
	primaryID    string
}

// NewMultiPusher constructs a MultiPusher. primaryID is only consulted
// under FailOnPrimary.
func NewMultiPusher(destinations []Destination, policy FanOutPolicy, primaryID string) *MultiPusher {
	return &MultiPusher{destinations: destinations, policy: policy, primaryID: primaryID}
}

// Result is one destination's outcome from a fan-out call.
type Result struct {
	ID  string
	Err error
}

// Connect connects every destination in parallel, returning per-destination
// results; the call itself never fails — callers inspect the result slice.
func (m *MultiPusher) Connect(ctx context.Context) []Result {
	return m.fanOutOp(ctx, func(ctx context.Context, p Pusher) error { return p.Connect(ctx) })
}

// Disconnect disconnects every destination in parallel.
func (m *MultiPusher) Disconnect(ctx context.Context) []Result {
	return m.fanOutOp(ctx, func(ctx context.Context, p Pusher) error { return p.Disconnect(ctx) })
}

// PushSegment fans a segment push out to every destination and applies the
// configured aggregation policy.
func (m *MultiPusher) PushSegment(ctx context.Context, data []byte, filename string) (bool, []Result) {
	results := m.fanOutOp(ctx, func(ctx context.Context, p Pusher) error {
		return p.PushSegment(ctx, data, filename)
	})
	return m.aggregate(results), results
}

// PushPartial fans a partial-segment push out to every destination.
func (m *MultiPusher) PushPartial(ctx context.Context, data []byte, filename string) (bool, []Result) {
	results := m.fanOutOp(ctx, func(ctx context.Context, p Pusher) error {
		return p.PushPartial(ctx, data, filename)
	})
	return m.aggregate(results), results
}

// PushPlaylist fans a playlist push out to every destination.
func (m *MultiPusher) PushPlaylist(ctx context.Context, text, filename string) (bool, []Result) {
	results := m.fanOutOp(ctx, func(ctx context.Context, p Pusher) error {
		return p.PushPlaylist(ctx, text, filename)
	})
	return m.aggregate(results), results
}

// PushInitSegment fans an init-segment push out to every destination.
func (m *MultiPusher) PushInitSegment(ctx context.Context, data []byte, filename string) (bool, []Result) {
	results := m.fanOutOp(ctx, func(ctx context.Context, p Pusher) error {
		return p.PushInitSegment(ctx, data, filename)
	})
	return m.aggregate(results), results
}

// ConnectionState aggregates child states: Connected if any child is
// connected, Disconnected only when all are.
func (m *MultiPusher) ConnectionState() ConnectionState {
	anyConnected := false
	allDisconnected := true
	for _, d := range m.destinations {
		s := d.Pusher.ConnectionState()
		if s == StateConnected {
			anyConnected = true
		}
		if s != StateDisconnected {
			allDisconnected = false
		}
	}
	if anyConnected {
		return StateConnected
	}
	if allDisconnected {
		return StateDisconnected
	}
	return StateReconnecting
}

// fanOutOp dispatches op to every destination in parallel via errgroup.
// Each goroutine always returns nil from g.Go so one destination's failure
// never cancels the others' in-flight
// calls; per-destination outcomes are collected into a fixed-size slice
// indexed by position, needing no additional synchronization since each
// goroutine only ever writes its own slot.
func (m *MultiPusher) fanOutOp(ctx context.Context, op func(context.Context, Pusher) error) []Result {
	results := make([]Result, len(m.destinations))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range m.destinations {
		i, d := i, d
		g.Go(func() error {
			results[i] = Result{ID: d.ID, Err: op(gctx, d.Pusher)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (m *MultiPusher) aggregate(results []Result) bool {
	switch m.policy {
	case RequireAll:
		for _, r := range results {
			if r.Err != nil {
				return false
			}
		}
		return true
	case FailOnPrimary:
		for _, r := range results {
			if r.ID == m.primaryID {
				return r.Err == nil
			}
		}
		return false
	default: // ContinueOnFailure
		for _, r := range results {
			if r.Err == nil {
				return true
			}
		}
		return len(results) == 0
	}
}
