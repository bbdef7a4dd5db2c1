package llhls

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/nullshard/hlspackager/pkg/hlserrors"
	"github.com/nullshard/hlspackager/pkg/hlstypes"
	"github.com/nullshard/hlspackager/internal/playlist"
)

// Config configures a Manager for one live stream.
type Config struct {
	SegmentTargetDuration float64
	PartTargetDuration    float64
	MaxRetainedSegments   int
	MaxPartialsPerSegment int
	URITemplate           URITemplate
	CanSkipUntil          *float64
	BlockingTimeout       time.Duration
	Version               int
}

// Manager runs one actor goroutine owning all LL-HLS state for a single
// live stream: the partial manager, the media/discontinuity sequence
// counters, and the blocking-playlist waiter set. All public methods are
// safe for concurrent use; they communicate with the actor over channels.
type Manager struct {
	cfg Config
	pm  *partialManager

	mediaSequence         int
	discontinuitySequence int
	ended                 bool
	preloadHint           PreloadHint

	latestMSN  int
	latestPart *int

	events chan Event

	chAddPartial      chan addPartialReq
	chCompleteSegment chan completeSegmentReq
	chRender          chan renderReq
	chRenderDelta     chan renderDeltaReq
	chEndStream       chan endStreamReq
	chBlocking        chan blockingReq
	chTimeout         chan string
	chStop            chan struct{}

	waiters map[string]*waiterEntry
	// waiterOrder tracks waiter registration order. Map iteration order is
	// randomized, so checkWaiters walks this slice instead of ranging over
	// waiters directly, to resume waiters satisfied by the same notify call
	// in the order they blocked.
	waiterOrder []string
}

type waiterEntry struct {
	req  BlockingRequest
	skip *SkipRequest
	resp chan blockingResp
}

type blockingResp struct {
	body string
	err  error
}

type addPartialReq struct {
	duration    float64
	independent bool
	isGap       bool
	resp        chan addPartialResp
}

type addPartialResp struct {
	partial Partial
	hint    PreloadHint
	err     error
}

type completeSegmentReq struct {
	duration      float64
	uri           string
	discontinuity bool
	pdt           *time.Time
	resp          chan error
}

type renderReq struct {
	resp chan renderResp
}

type renderResp struct {
	body string
	err  error
}

type renderDeltaReq struct {
	skip SkipRequest
	resp chan renderResp
}

type endStreamReq struct {
	resp chan struct{}
}

type blockingReq struct {
	req  BlockingRequest
	skip *SkipRequest
	resp chan blockingResp
}

// New creates a Manager and starts its actor goroutine.
func New(cfg Config) *Manager {
	if cfg.MaxPartialsPerSegment <= 0 {
		cfg.MaxPartialsPerSegment = 1
	}
	m := &Manager{
		cfg:        cfg,
		pm:         newPartialManager(cfg.URITemplate, cfg.PartTargetDuration, cfg.MaxPartialsPerSegment, cfg.MaxRetainedSegments),
		latestMSN:  -1,
		events:     make(chan Event, 64),
		chAddPartial:      make(chan addPartialReq),
		chCompleteSegment: make(chan completeSegmentReq),
		chRender:          make(chan renderReq),
		chRenderDelta:     make(chan renderDeltaReq),
		chEndStream:       make(chan endStreamReq),
		chBlocking:        make(chan blockingReq),
		chTimeout:         make(chan string),
		chStop:            make(chan struct{}),
		waiters:           make(map[string]*waiterEntry),
	}
	go m.loop()
	return m
}

// Stop terminates the actor goroutine. Pending waiters are not resumed.
func (m *Manager) Stop() {
	close(m.chStop)
}

// Events returns the manager's event stream.
func (m *Manager) Events() <-chan Event {
	return m.events
}

func (m *Manager) loop() {
	for {
		select {
		case <-m.chStop:
			return

		case req := <-m.chAddPartial:
			if m.ended {
				req.resp <- addPartialResp{err: hlserrors.ErrStreamAlreadyEnded}
				continue
			}
			segIdx := m.pm.currentSegment
			partial, hint, violation := m.pm.addPartial(req.duration, req.independent, req.isGap)
			if violation != nil {
				var target *hlserrors.PartialDurationExceedsTargetError
				if !asPartialViolation(violation, &target) {
					req.resp <- addPartialResp{err: violation}
					continue
				}
			}
			partIdx := partial.Index
			m.latestMSN = segIdx
			m.latestPart = &partIdx
			m.preloadHint = hint
			m.emit(Event{Kind: EventPartialAdded, Segment: segIdx, Partial: partIdx})
			m.emit(Event{Kind: EventPreloadHintUpdated, Segment: hint.SegmentIndex, Partial: hint.PartialIndex})
			m.checkWaiters()
			req.resp <- addPartialResp{partial: partial, hint: hint, err: violation}

		case req := <-m.chCompleteSegment:
			if m.ended {
				req.resp <- hlserrors.ErrStreamAlreadyEnded
				continue
			}
			segIdx := m.pm.currentSegment
			evicted := m.pm.completeSegment(req.duration, req.uri, req.discontinuity, req.pdt)
			m.mediaSequence += len(evicted)
			if req.discontinuity {
				m.discontinuitySequence++
			}
			m.latestMSN = segIdx
			m.latestPart = nil
			m.emit(Event{Kind: EventSegmentCompleted, Segment: segIdx})
			m.checkWaiters()
			req.resp <- nil

		case req := <-m.chRender:
			req.resp <- renderResp{body: m.renderFull(nil)}

		case req := <-m.chRenderDelta:
			req.resp <- renderResp{body: m.renderDelta(req.skip)}

		case req := <-m.chEndStream:
			m.ended = true
			m.emit(Event{Kind: EventStreamEnded})
			for _, id := range m.waiterOrder {
				m.waiters[id].resp <- blockingResp{err: hlserrors.ErrStreamAlreadyEnded}
			}
			m.waiters = make(map[string]*waiterEntry)
			m.waiterOrder = nil
			close(req.resp)

		case req := <-m.chBlocking:
			if m.satisfied(req.req) {
				req.resp <- blockingResp{body: m.renderRequested(req.skip)}
				continue
			}
			if m.ended {
				req.resp <- blockingResp{err: hlserrors.ErrStreamAlreadyEnded}
				continue
			}
			id := uuid.NewString()
			m.waiters[id] = &waiterEntry{req: req.req, skip: req.skip, resp: req.resp}
			m.waiterOrder = append(m.waiterOrder, id)
			timeout := m.cfg.BlockingTimeout
			if timeout <= 0 {
				timeout = 6 * time.Second
			}
			go func(waiterID string, d time.Duration) {
				timer := time.NewTimer(d)
				defer timer.Stop()
				select {
				case <-timer.C:
					select {
					case m.chTimeout <- waiterID:
					case <-m.chStop:
					}
				case <-m.chStop:
				}
			}(id, timeout)

		case id := <-m.chTimeout:
			w, ok := m.waiters[id]
			if !ok {
				continue
			}
			m.removeWaiter(id)
			w.resp <- blockingResp{err: &hlserrors.RequestTimeoutError{MSN: w.req.MSN, Part: w.req.Part, Timeout: m.cfg.BlockingTimeout.Seconds()}}
		}
	}
}

func asPartialViolation(err error, target **hlserrors.PartialDurationExceedsTargetError) bool {
	v, ok := err.(*hlserrors.PartialDurationExceedsTargetError)
	if ok {
		*target = v
	}
	return ok
}

func (m *Manager) emit(e Event) {
	select {
	case m.events <- e:
	default:
	}
}

// satisfied reports whether the manager's current playlist state already
// covers the requested MSN and part.
func (m *Manager) satisfied(req BlockingRequest) bool {
	if m.latestMSN < 0 {
		return false
	}
	if req.MSN > m.latestMSN {
		return false
	}
	if req.MSN == m.latestMSN && req.Part != nil && m.latestPart != nil {
		return *req.Part <= *m.latestPart
	}
	return true
}

// checkWaiters resumes every waiter satisfied by the manager's current
// state, in the order they started blocking.
func (m *Manager) checkWaiters() {
	for _, id := range append([]string(nil), m.waiterOrder...) {
		w, ok := m.waiters[id]
		if !ok {
			continue
		}
		if m.satisfied(w.req) {
			m.removeWaiter(id)
			w.resp <- blockingResp{body: m.renderRequested(w.skip)}
		}
	}
}

// removeWaiter deletes id from both waiters and waiterOrder.
func (m *Manager) removeWaiter(id string) {
	delete(m.waiters, id)
	for i, wid := range m.waiterOrder {
		if wid == id {
			m.waiterOrder = append(m.waiterOrder[:i], m.waiterOrder[i+1:]...)
			break
		}
	}
}

func (m *Manager) renderRequested(skip *SkipRequest) string {
	if skip != nil {
		if body := m.tryRenderDelta(*skip); body != "" {
			return body
		}
	}
	return m.renderFull(nil)
}

func (m *Manager) renderFull(skip *hlstypes.SkipInfo) string {
	p := m.buildPlaylist(skip)
	return playlist.RenderMedia(p)
}

// tryRenderDelta returns "" when delta rendering is not enabled, so callers
// can fall back to a full render.
func (m *Manager) tryRenderDelta(req SkipRequest) string {
	if m.cfg.CanSkipUntil == nil {
		return ""
	}
	segments := m.pm.orderedSegments()
	n := skippableSegmentCount(segments, *m.cfg.CanSkipUntil)
	if n == 0 {
		return m.renderFull(nil)
	}
	return m.renderFull(&hlstypes.SkipInfo{SkippedSegments: n})
}

func (m *Manager) renderDelta(req SkipRequest) string {
	if body := m.tryRenderDelta(req); body != "" {
		return body
	}
	return m.renderFull(nil)
}

func (m *Manager) buildPlaylist(skip *hlstypes.SkipInfo) *hlstypes.MediaPlaylist {
	segments := m.pm.orderedSegments()

	target := m.cfg.SegmentTargetDuration
	for _, s := range segments {
		if s.Duration > target {
			target = s.Duration
		}
	}

	p := &hlstypes.MediaPlaylist{
		Version:               m.cfg.Version,
		TargetDuration:        int(math.Ceil(target)),
		MediaSequence:         m.mediaSequence,
		DiscontinuitySequence: m.discontinuitySequence,
		HasEndlist:            m.ended,
		PartTargetDuration:    &m.cfg.PartTargetDuration,
		ServerControl: &hlstypes.ServerControlConfig{
			CanBlockReload: true,
			PartHoldBack:   float64Ptr(3 * m.cfg.PartTargetDuration),
			CanSkipUntil:   m.cfg.CanSkipUntil,
		},
		Skip: skip,
	}

	start := 0
	if skip != nil {
		start = skip.SkippedSegments
	}
	for i := start; i < len(segments); i++ {
		s := segments[i]
		seg := hlstypes.Segment{
			Duration:        s.Duration,
			URI:             s.URI,
			Discontinuity:   s.Discontinuity,
			ProgramDateTime: s.ProgramDateTime,
		}
		if i >= len(segments)-2 {
			for _, part := range s.Partials {
				seg.Partials = append(seg.Partials, hlstypes.PartialSegment{
					URI: part.URI, Duration: part.Duration, Independent: part.Independent, IsGap: part.IsGap,
				})
			}
		}
		p.Segments = append(p.Segments, seg)
	}
	for _, part := range m.pm.currentPartials {
		p.PartialSegments = append(p.PartialSegments, hlstypes.PartialSegment{
			URI: part.URI, Duration: part.Duration, Independent: part.Independent, IsGap: part.IsGap,
		})
	}
	if !m.ended {
		p.PreloadHints = append(p.PreloadHints, hlstypes.PreloadHint{Type: "PART", URI: m.preloadHint.URI})
	}
	return p
}

func float64Ptr(v float64) *float64 { return &v }

// AddPartial adds a new partial segment to the in-progress segment.
func (m *Manager) AddPartial(ctx context.Context, duration float64, independent bool, isGap bool) (Partial, PreloadHint, error) {
	resp := make(chan addPartialResp, 1)
	select {
	case m.chAddPartial <- addPartialReq{duration: duration, independent: independent, isGap: isGap, resp: resp}:
	case <-ctx.Done():
		return Partial{}, PreloadHint{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.partial, r.hint, r.err
	case <-ctx.Done():
		return Partial{}, PreloadHint{}, ctx.Err()
	}
}

// CompleteSegment finalizes the in-progress segment.
func (m *Manager) CompleteSegment(ctx context.Context, duration float64, uri string, discontinuity bool, pdt *time.Time) error {
	resp := make(chan error, 1)
	select {
	case m.chCompleteSegment <- completeSegmentReq{duration: duration, uri: uri, discontinuity: discontinuity, pdt: pdt, resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RenderPlaylist renders the current full media playlist.
func (m *Manager) RenderPlaylist(ctx context.Context) (string, error) {
	resp := make(chan renderResp, 1)
	select {
	case m.chRender <- renderReq{resp: resp}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-resp:
		return r.body, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// RenderDeltaPlaylist renders a delta-update playlist when delta updates
// are enabled, falling back to a full render otherwise.
func (m *Manager) RenderDeltaPlaylist(ctx context.Context, skip SkipRequest) (string, error) {
	resp := make(chan renderResp, 1)
	select {
	case m.chRenderDelta <- renderDeltaReq{skip: skip, resp: resp}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-resp:
		return r.body, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// EndStream marks the stream as ended, emits StreamEnded, and resumes all
// pending blocking-reload waiters with StreamAlreadyEnded.
func (m *Manager) EndStream(ctx context.Context) error {
	resp := make(chan struct{})
	select {
	case m.chEndStream <- endStreamReq{resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-resp
	return nil
}

// AwaitPlaylist implements the LL-HLS blocking playlist reload protocol: if
// the request is already satisfied it returns immediately; otherwise it
// parks until satisfied, the stream ends, or the blocking timeout elapses.
func (m *Manager) AwaitPlaylist(ctx context.Context, req BlockingRequest, skip *SkipRequest) (string, error) {
	resp := make(chan blockingResp, 1)
	select {
	case m.chBlocking <- blockingReq{req: req, skip: skip, resp: resp}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-resp:
		return r.body, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
