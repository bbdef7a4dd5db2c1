package hlstypes

// Sample is one decode unit from the MP4 sample-table oracle. The oracle
// (an external collaborator, not part of this module's core) exposes these
// per track in file order; the segment planner groups them into segments.
type Sample struct {
	FileOffset int64
	Size       int64
	DTS        int64
	PTS        int64
	Duration   int64
	IsSync     bool
}

// TrackInfo describes one track as exposed by the sample-table oracle.
type TrackInfo struct {
	TrackID   uint32
	Timescale uint32
	CodecID   string
	SampleDescription []byte
}

// SegmentInfo is the segment planner's output: a span of samples to be
// emitted as one media segment.
type SegmentInfo struct {
	FirstSample int
	SampleCount int
	Duration    float64
}
