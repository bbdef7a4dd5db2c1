package push

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePusher struct {
	failSegment bool
	calls       int
	state       ConnectionState
}

func (f *fakePusher) Connect(ctx context.Context) error    { f.state = StateConnected; return nil }
func (f *fakePusher) Disconnect(ctx context.Context) error { f.state = StateDisconnected; return nil }
func (f *fakePusher) ConnectionState() ConnectionState     { return f.state }
func (f *fakePusher) Stats() Stats                         { return Stats{} }
func (f *fakePusher) PushPartial(ctx context.Context, data []byte, filename string) error {
	return nil
}
func (f *fakePusher) PushPlaylist(ctx context.Context, text, filename string) error { return nil }
func (f *fakePusher) PushInitSegment(ctx context.Context, data []byte, filename string) error {
	return nil
}
func (f *fakePusher) PushSegment(ctx context.Context, data []byte, filename string) error {
	f.calls++
	if f.failSegment {
		return errors.New("destination unreachable")
	}
	return nil
}

func TestMultiPusher_ContinueOnFailure(t *testing.T) {
	ok := &fakePusher{}
	bad := &fakePusher{failSegment: true}
	mp := NewMultiPusher([]Destination{{ID: "ok", Pusher: ok}, {ID: "bad", Pusher: bad}}, ContinueOnFailure, "")

	succeeded, results := mp.PushSegment(context.Background(), []byte("x"), "seg.mp4")
	require.True(t, succeeded)
	require.Len(t, results, 2)
	require.Equal(t, 1, ok.calls)
	require.Equal(t, 1, bad.calls)
}

func TestMultiPusher_RequireAllFailsOnOneFailure(t *testing.T) {
	ok := &fakePusher{}
	bad := &fakePusher{failSegment: true}
	mp := NewMultiPusher([]Destination{{ID: "ok", Pusher: ok}, {ID: "bad", Pusher: bad}}, RequireAll, "")

	succeeded, _ := mp.PushSegment(context.Background(), []byte("x"), "seg.mp4")
	require.False(t, succeeded)
}

func TestMultiPusher_FailOnPrimary(t *testing.T) {
	primary := &fakePusher{}
	secondary := &fakePusher{failSegment: true}
	mp := NewMultiPusher([]Destination{{ID: "primary", Pusher: primary}, {ID: "secondary", Pusher: secondary}}, FailOnPrimary, "primary")

	succeeded, _ := mp.PushSegment(context.Background(), []byte("x"), "seg.mp4")
	require.True(t, succeeded, "only the primary's outcome should matter under FailOnPrimary")
}

func TestMultiPusher_ConnectionStateAggregation(t *testing.T) {
	a := &fakePusher{state: StateDisconnected}
	b := &fakePusher{state: StateDisconnected}
	mp := NewMultiPusher([]Destination{{ID: "a", Pusher: a}, {ID: "b", Pusher: b}}, ContinueOnFailure, "")
	require.Equal(t, StateDisconnected, mp.ConnectionState())

	a.state = StateConnected
	require.Equal(t, StateConnected, mp.ConnectionState())
}
