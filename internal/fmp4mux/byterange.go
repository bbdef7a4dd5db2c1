package fmp4mux

// ByteRangeRecorder appends fMP4 media segments to a single concatenated
// file and records the (offset, length) each occupies, for byte-range HLS
// delivery (EXT-X-BYTERANGE against one shared media file).
type ByteRangeRecorder struct {
	data    []byte
	offsets []int64
	lengths []int64
}

// Append adds segment to the concatenated output and returns its
// (offset, length).
func (r *ByteRangeRecorder) Append(segment []byte) (offset, length int64) {
	offset = int64(len(r.data))
	length = int64(len(segment))
	r.data = append(r.data, segment...)
	r.offsets = append(r.offsets, offset)
	r.lengths = append(r.lengths, length)
	return offset, length
}

// Data returns the full concatenated byte stream so far.
func (r *ByteRangeRecorder) Data() []byte {
	return r.data
}

// Range returns the (offset, length) of the segment at the given index.
func (r *ByteRangeRecorder) Range(index int) (offset, length int64, ok bool) {
	if index < 0 || index >= len(r.offsets) {
		return 0, 0, false
	}
	return r.offsets[index], r.lengths[index], true
}

// Count returns the number of segments recorded so far.
func (r *ByteRangeRecorder) Count() int {
	return len(r.offsets)
}
