// Package llhls implements the low-latency HLS orchestration layer: the
// partial-segment manager, the manager actor aggregating it with a media
// sequence tracker and delta-update generator, and the blocking-playlist
// handler that parks reload requests until they become satisfiable.
//
// Every stateful piece here runs inside one goroutine per live stream,
// driven by a select loop over typed request channels — never a mutex
// guarding shared maps — following the actor discipline the retrieval
// pack's HLS playlist manager uses for the same problem.
package llhls

import (
	"strconv"
	"strings"
	"time"
)

// Partial is one completed or in-progress partial segment.
type Partial struct {
	Index       int
	Duration    float64
	Independent bool
	URI         string
	IsGap       bool
}

// SegmentRecord is one retained, completed segment and its partials.
type SegmentRecord struct {
	Index           int
	Duration        float64
	URI             string
	Discontinuity   bool
	ProgramDateTime *time.Time
	Partials        []Partial
}

// PreloadHint is the URI of the next partial expected after the most
// recently added one.
type PreloadHint struct {
	SegmentIndex int
	PartialIndex int
	URI          string
}

// EventKind enumerates the LL-HLS manager's event stream.
type EventKind int

const (
	EventPartialAdded EventKind = iota
	EventSegmentCompleted
	EventPreloadHintUpdated
	EventStreamEnded
)

// Event is one item on the manager's event stream.
type Event struct {
	Kind    EventKind
	Segment int
	Partial int
}

// BlockingRequest is a parsed _HLS_msn/_HLS_part/_HLS_skip query.
type BlockingRequest struct {
	MSN        int
	Part       *int
	SkipDeltaV2 bool
	HasSkip    bool
}

// SkipRequest requests a delta playlist render.
type SkipRequest struct {
	V2 bool
}

// URITemplate renders a segment/partial filename from a template containing
// {segment}, {part}, and {ext} placeholders.
type URITemplate string

func (t URITemplate) Render(segment, part int, ext string) string {
	r := strings.NewReplacer(
		"{segment}", strconv.Itoa(segment),
		"{part}", strconv.Itoa(part),
		"{ext}", ext,
	)
	return r.Replace(string(t))
}
