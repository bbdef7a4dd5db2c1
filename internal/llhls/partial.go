package llhls

import (
	"time"

	"github.com/nullshard/hlspackager/pkg/hlserrors"
)

// partialManager owns the current in-progress segment's partials, the
// retained map of recently completed segments, and their FIFO eviction
// order. It has no internal locking: every method is called only from
// within the owning Manager's single actor goroutine.
type partialManager struct {
	uriTemplate   URITemplate
	partTarget    float64
	maxPerSegment int
	maxRetained   int

	currentSegment  int
	currentPartials []Partial

	retained      map[int]*SegmentRecord
	retainedOrder []int
}

func newPartialManager(uriTemplate URITemplate, partTarget float64, maxPerSegment, maxRetained int) *partialManager {
	return &partialManager{
		uriTemplate:   uriTemplate,
		partTarget:    partTarget,
		maxPerSegment: maxPerSegment,
		maxRetained:   maxRetained,
		retained:      make(map[int]*SegmentRecord),
	}
}

// addPartial appends a partial to the in-progress segment. It returns the
// added partial, the resulting preload hint, and a non-fatal violation
// error if the duration exceeds 1.5x the part target (the partial is still
// added).
func (pm *partialManager) addPartial(duration float64, independent bool, isGap bool) (Partial, PreloadHint, error) {
	index := len(pm.currentPartials)
	if index == 0 && !independent {
		return Partial{}, PreloadHint{}, hlserrors.ErrFirstPartialMustBeIndependent
	}

	part := Partial{
		Index:       index,
		Duration:    duration,
		Independent: independent,
		IsGap:       isGap,
		URI:         pm.uriTemplate.Render(pm.currentSegment, index, "mp4"),
	}
	pm.currentPartials = append(pm.currentPartials, part)

	hint := pm.nextPreloadHint()

	var violation error
	if duration > 1.5*pm.partTarget {
		violation = &hlserrors.PartialDurationExceedsTargetError{Actual: duration, Target: pm.partTarget}
	}
	return part, hint, violation
}

func (pm *partialManager) nextPreloadHint() PreloadHint {
	if len(pm.currentPartials) < pm.maxPerSegment {
		idx := len(pm.currentPartials)
		return PreloadHint{
			SegmentIndex: pm.currentSegment,
			PartialIndex: idx,
			URI:          pm.uriTemplate.Render(pm.currentSegment, idx, "mp4"),
		}
	}
	return PreloadHint{
		SegmentIndex: pm.currentSegment + 1,
		PartialIndex: 0,
		URI:          pm.uriTemplate.Render(pm.currentSegment+1, 0, "mp4"),
	}
}

// completeSegment promotes the in-progress partials to the retained map,
// advances to the next segment index, and evicts the oldest retained
// segment(s) while over capacity. It returns the index of every evicted
// segment, in eviction order.
func (pm *partialManager) completeSegment(duration float64, uri string, discontinuity bool, pdt *time.Time) []int {
	rec := &SegmentRecord{
		Index:           pm.currentSegment,
		Duration:        duration,
		URI:             uri,
		Discontinuity:   discontinuity,
		ProgramDateTime: pdt,
		Partials:        pm.currentPartials,
	}
	pm.retained[rec.Index] = rec
	pm.retainedOrder = append(pm.retainedOrder, rec.Index)

	pm.currentSegment++
	pm.currentPartials = nil

	var evicted []int
	for pm.maxRetained > 0 && len(pm.retainedOrder) > pm.maxRetained {
		oldest := pm.retainedOrder[0]
		pm.retainedOrder = pm.retainedOrder[1:]
		delete(pm.retained, oldest)
		evicted = append(evicted, oldest)
	}
	return evicted
}

// orderedSegments returns retained segment records in ascending index order.
func (pm *partialManager) orderedSegments() []*SegmentRecord {
	out := make([]*SegmentRecord, 0, len(pm.retainedOrder))
	for _, idx := range pm.retainedOrder {
		out = append(out, pm.retained[idx])
	}
	return out
}
