package tsmux

import "sync"

// H.264 NAL unit types relevant to parameter-set tracking.
const (
	h264NALTypeSlice = 1
	h264NALTypeIDR   = 5
	h264NALTypeSPS   = 7
	h264NALTypePPS   = 8
)

// H.265 NAL unit types relevant to parameter-set tracking.
const (
	h265NALTypeBLAWLP   = 16
	h265NALTypeCRANUT   = 21
	h265NALTypeVPS      = 32
	h265NALTypeSPS      = 33
	h265NALTypePPS      = 34
)

// ParamSetStore remembers the most recently seen SPS/PPS (H.264) or
// VPS/SPS/PPS (H.265) so they can be prepended to every keyframe access
// unit, even ones that don't carry them inline.
type ParamSetStore struct {
	mu sync.RWMutex

	h264SPS, h264PPS []byte
	h265VPS, h265SPS, h265PPS []byte
}

// NewParamSetStore creates an empty store.
func NewParamSetStore() *ParamSetStore {
	return &ParamSetStore{}
}

// ExtractFromNALUs scans nalus for parameter sets and stores any it finds.
// Returns true if the stored sets changed.
func (s *ParamSetStore) ExtractFromNALUs(nalus [][]byte, isH265 bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		if isH265 {
			switch (nalu[0] >> 1) & 0x3F {
			case h265NALTypeVPS:
				if !bytesEqual(s.h265VPS, nalu) {
					s.h265VPS = cloneBytes(nalu)
					changed = true
				}
			case h265NALTypeSPS:
				if !bytesEqual(s.h265SPS, nalu) {
					s.h265SPS = cloneBytes(nalu)
					changed = true
				}
			case h265NALTypePPS:
				if !bytesEqual(s.h265PPS, nalu) {
					s.h265PPS = cloneBytes(nalu)
					changed = true
				}
			}
			continue
		}
		switch nalu[0] & 0x1F {
		case h264NALTypeSPS:
			if !bytesEqual(s.h264SPS, nalu) {
				s.h264SPS = cloneBytes(nalu)
				changed = true
			}
		case h264NALTypePPS:
			if !bytesEqual(s.h264PPS, nalu) {
				s.h264PPS = cloneBytes(nalu)
				changed = true
			}
		}
	}
	return changed
}

// PrependToKeyframe prepends the stored parameter sets to nalus if nalus
// contains a keyframe slice and doesn't already carry its own parameter
// sets. Returns nalus unchanged otherwise.
func (s *ParamSetStore) PrependToKeyframe(nalus [][]byte, isH265 bool) [][]byte {
	if !containsKeyframe(nalus, isH265) {
		return nalus
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if isH265 {
		if s.h265VPS == nil || s.h265SPS == nil || s.h265PPS == nil {
			return nalus
		}
		if hasH265Params(nalus) {
			return nalus
		}
		out := make([][]byte, 0, len(nalus)+3)
		out = append(out, cloneBytes(s.h265VPS), cloneBytes(s.h265SPS), cloneBytes(s.h265PPS))
		return append(out, nalus...)
	}

	if s.h264SPS == nil || s.h264PPS == nil {
		return nalus
	}
	if hasH264Params(nalus) {
		return nalus
	}
	out := make([][]byte, 0, len(nalus)+2)
	out = append(out, cloneBytes(s.h264SPS), cloneBytes(s.h264PPS))
	return append(out, nalus...)
}

func containsKeyframe(nalus [][]byte, isH265 bool) bool {
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		if isH265 {
			t := (nalu[0] >> 1) & 0x3F
			if t >= h265NALTypeBLAWLP && t <= h265NALTypeCRANUT {
				return true
			}
			continue
		}
		if nalu[0]&0x1F == h264NALTypeIDR {
			return true
		}
	}
	return false
}

func hasH265Params(nalus [][]byte) bool {
	var vps, sps, pps bool
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		switch (nalu[0] >> 1) & 0x3F {
		case h265NALTypeVPS:
			vps = true
		case h265NALTypeSPS:
			sps = true
		case h265NALTypePPS:
			pps = true
		}
	}
	return vps && sps && pps
}

func hasH264Params(nalus [][]byte) bool {
	var sps, pps bool
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		switch nalu[0] & 0x1F {
		case h264NALTypeSPS:
			sps = true
		case h264NALTypePPS:
			pps = true
		}
	}
	return sps && pps
}

func cloneBytes(data []byte) []byte {
	if data == nil {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
