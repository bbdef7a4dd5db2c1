package llhls

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nullshard/hlspackager/pkg/hlserrors"
)

func newTestManager(t *testing.T) *Manager {
	m := New(Config{
		SegmentTargetDuration: 6,
		PartTargetDuration:    0.34,
		MaxRetainedSegments:   6,
		MaxPartialsPerSegment: 4,
		URITemplate:           URITemplate("seg{segment}.{part}.{ext}"),
		BlockingTimeout:       200 * time.Millisecond,
		Version:               9,
	})
	t.Cleanup(m.Stop)
	return m
}

func TestManager_LLHLSRender(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _, err := m.AddPartial(ctx, 0.33334, true, false)
		require.NoError(t, err)
	}
	require.NoError(t, m.CompleteSegment(ctx, 1.33336, "seg0.mp4", false, nil))

	body, err := m.RenderPlaylist(ctx)
	require.NoError(t, err)

	require.Equal(t, 4, strings.Count(body, `#EXT-X-PART:DURATION=0.33334,URI="seg0.0.mp4",INDEPENDENT=YES`))
	require.Contains(t, body, "#EXTINF:1.33336,\nseg0.mp4")
	require.Contains(t, body, `#EXT-X-PRELOAD-HINT:TYPE=PART,URI="seg1.0.mp4"`)

	// A segment's own completed parts must precede its EXTINF line.
	lastPartIdx := strings.Index(body, `URI="seg0.3.mp4"`)
	extinfIdx := strings.Index(body, "#EXTINF:1.33336")
	require.True(t, lastPartIdx >= 0 && extinfIdx >= 0 && lastPartIdx < extinfIdx,
		"expected seg0's parts to render before its EXTINF line")
}

func TestManager_BlockingReloadTimeout(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, m.CompleteSegment(ctx, 6, "seg.mp4", false, nil))
	}

	part := 2
	start := time.Now()
	_, err := m.AwaitPlaylist(ctx, BlockingRequest{MSN: 10, Part: &part}, nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	var timeoutErr *hlserrors.RequestTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, 10, timeoutErr.MSN)
	require.Equal(t, 2, *timeoutErr.Part)
	require.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	require.Less(t, elapsed, 400*time.Millisecond)
}

func TestManager_BlockingReloadSatisfiedImmediately(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.CompleteSegment(ctx, 6, "seg0.mp4", false, nil))

	body, err := m.AwaitPlaylist(ctx, BlockingRequest{MSN: 0}, nil)
	require.NoError(t, err)
	require.Contains(t, body, "seg0.mp4")
}

func TestManager_BlockingReloadWakesOnCompletion(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		_, err := m.AwaitPlaylist(ctx, BlockingRequest{MSN: 0}, nil)
		require.NoError(t, err)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.CompleteSegment(ctx, 6, "seg0.mp4", false, nil))

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("waiter was not woken by segment completion")
	}
}

func TestManager_EndStreamResumesWaiters(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := m.AwaitPlaylist(ctx, BlockingRequest{MSN: 3}, nil)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.EndStream(ctx))

	select {
	case err := <-done:
		require.ErrorIs(t, err, hlserrors.ErrStreamAlreadyEnded)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("waiter was not resumed by end_stream")
	}

	_, err := m.AddPartial(ctx, 0.1, true, false)
	require.ErrorIs(t, err, hlserrors.ErrStreamAlreadyEnded)
}

func TestManager_CheckWaitersResumesInRegistrationOrder(t *testing.T) {
	m := newTestManager(t)

	const n = 5
	var mu sync.Mutex
	var resumeOrder []int

	// Register n blocking waiters, all satisfied by the same MSN, using
	// unbuffered resp channels directly on the actor's chBlocking input.
	// Because chBlocking delivery and resp sends both happen on the single
	// actor goroutine, an unbuffered resp channel forces the actor to block
	// on waiter i's send until waiter i's reader goroutine has received it,
	// so resumeOrder can only grow in the order checkWaiters visits
	// waiterOrder — exactly what would break under an unordered map range.
	for i := 0; i < n; i++ {
		resp := make(chan blockingResp)
		m.chBlocking <- blockingReq{req: BlockingRequest{MSN: 5}, resp: resp}
		go func(idx int, resp chan blockingResp) {
			<-resp
			mu.Lock()
			resumeOrder = append(resumeOrder, idx)
			mu.Unlock()
		}(i, resp)
	}

	require.NoError(t, m.CompleteSegment(context.Background(), 6, "seg0.mp4", false, nil))
	require.NoError(t, m.CompleteSegment(context.Background(), 6, "seg1.mp4", false, nil))
	require.NoError(t, m.CompleteSegment(context.Background(), 6, "seg2.mp4", false, nil))
	require.NoError(t, m.CompleteSegment(context.Background(), 6, "seg3.mp4", false, nil))
	require.NoError(t, m.CompleteSegment(context.Background(), 6, "seg4.mp4", false, nil))
	require.NoError(t, m.CompleteSegment(context.Background(), 6, "seg5.mp4", false, nil))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(resumeOrder) == n
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	expected := make([]int, n)
	for i := range expected {
		expected[i] = i
	}
	require.Equal(t, expected, resumeOrder)
}

func TestManager_FirstPartialMustBeIndependent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, _, err := m.AddPartial(ctx, 0.33334, false, false)
	require.ErrorIs(t, err, hlserrors.ErrFirstPartialMustBeIndependent)
}

func TestSkippableSegmentCount(t *testing.T) {
	segs := []*SegmentRecord{
		{Index: 0, Duration: 6},
		{Index: 1, Duration: 6},
		{Index: 2, Duration: 6},
		{Index: 3, Duration: 6},
	}
	require.Equal(t, 2, skippableSegmentCount(segs, 12))
	require.Equal(t, 0, skippableSegmentCount(segs, 24))
	require.Equal(t, 3, skippableSegmentCount(segs, 6))
}
