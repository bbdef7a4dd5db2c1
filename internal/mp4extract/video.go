package mp4extract

import (
	"github.com/nullshard/hlspackager/pkg/hlserrors"
)

// visualSampleEntryFixedSize is the length of the fixed-layout fields at the
// head of a VisualSampleEntry (reserved/pre_defined/width/height/resolution/
// frame_count/compressorname/depth/pre_defined) before any child boxes begin.
const visualSampleEntryFixedSize = 78

// ExtractAVCConfig locates the avcC box inside a VisualSampleEntry payload
// (the bytes of the stsd entry after its own box header) and returns the
// decoded SPS and PPS parameter sets.
func ExtractAVCConfig(sampleEntry []byte) (sps, pps [][]byte, err error) {
	if len(sampleEntry) < visualSampleEntryFixedSize {
		return nil, nil, &hlserrors.InvalidAVCConfigError{Message: "sample entry shorter than fixed visual header"}
	}
	payload, ok := findChildBox(sampleEntry[visualSampleEntryFixedSize:], "avcC")
	if !ok {
		return nil, nil, &hlserrors.InvalidAVCConfigError{Message: "avcC box not found"}
	}
	return parseAVCDecoderConfig(payload)
}

// parseAVCDecoderConfig parses an AVCDecoderConfigurationRecord.
func parseAVCDecoderConfig(data []byte) (sps, pps [][]byte, err error) {
	// configurationVersion(1) + profile(1) + compatibility(1) + level(1) +
	// reserved/lengthSizeMinusOne(1) = 5 bytes before numOfSPS.
	if len(data) < 6 {
		return nil, nil, &hlserrors.InvalidAVCConfigError{Message: "avcC record truncated"}
	}
	offset := 5
	numSPS := int(data[offset] & 0x1f)
	offset++

	for i := 0; i < numSPS; i++ {
		nal, next, ok := readLengthPrefixed(data, offset)
		if !ok {
			return nil, nil, &hlserrors.InvalidAVCConfigError{Message: "truncated SPS entry"}
		}
		sps = append(sps, nal)
		offset = next
	}

	if offset >= len(data) {
		return nil, nil, &hlserrors.InvalidAVCConfigError{Message: "avcC record truncated before PPS count"}
	}
	numPPS := int(data[offset])
	offset++
	for i := 0; i < numPPS; i++ {
		nal, next, ok := readLengthPrefixed(data, offset)
		if !ok {
			return nil, nil, &hlserrors.InvalidAVCConfigError{Message: "truncated PPS entry"}
		}
		pps = append(pps, nal)
		offset = next
	}

	if len(sps) == 0 || len(pps) == 0 {
		return nil, nil, &hlserrors.InvalidAVCConfigError{Message: "avcC record has no SPS/PPS"}
	}
	return sps, pps, nil
}

// ExtractHEVCConfig locates the hvcC box inside a VisualSampleEntry payload
// and returns the decoded VPS, SPS and PPS parameter sets.
func ExtractHEVCConfig(sampleEntry []byte) (vps, sps, pps [][]byte, err error) {
	if len(sampleEntry) < visualSampleEntryFixedSize {
		return nil, nil, nil, &hlserrors.InvalidAVCConfigError{Message: "sample entry shorter than fixed visual header"}
	}
	payload, ok := findChildBox(sampleEntry[visualSampleEntryFixedSize:], "hvcC")
	if !ok {
		return nil, nil, nil, &hlserrors.InvalidAVCConfigError{Message: "hvcC box not found"}
	}
	return parseHEVCDecoderConfig(payload)
}

const (
	hevcNALTypeVPS = 32
	hevcNALTypeSPS = 33
	hevcNALTypePPS = 34
)

// parseHEVCDecoderConfig parses an HEVCDecoderConfigurationRecord: a 22-byte
// fixed header followed by numOfArrays NAL-unit arrays.
func parseHEVCDecoderConfig(data []byte) (vps, sps, pps [][]byte, err error) {
	const fixedHeaderLen = 22
	if len(data) < fixedHeaderLen+1 {
		return nil, nil, nil, &hlserrors.InvalidAVCConfigError{Message: "hvcC record truncated"}
	}
	numArrays := int(data[fixedHeaderLen])
	offset := fixedHeaderLen + 1

	for a := 0; a < numArrays; a++ {
		if offset+3 > len(data) {
			return nil, nil, nil, &hlserrors.InvalidAVCConfigError{Message: "hvcC array header truncated"}
		}
		nalType := data[offset] & 0x3f
		numNalus := int(data[offset+1])<<8 | int(data[offset+2])
		offset += 3

		for n := 0; n < numNalus; n++ {
			nal, next, ok := readLengthPrefixed(data, offset)
			if !ok {
				return nil, nil, nil, &hlserrors.InvalidAVCConfigError{Message: "truncated hvcC NAL entry"}
			}
			switch nalType {
			case hevcNALTypeVPS:
				vps = append(vps, nal)
			case hevcNALTypeSPS:
				sps = append(sps, nal)
			case hevcNALTypePPS:
				pps = append(pps, nal)
			}
			offset = next
		}
	}

	if len(vps) == 0 || len(sps) == 0 || len(pps) == 0 {
		return nil, nil, nil, &hlserrors.InvalidAVCConfigError{Message: "hvcC record missing VPS/SPS/PPS"}
	}
	return vps, sps, pps, nil
}

// readLengthPrefixed reads a 2-byte big-endian length followed by that many
// bytes, starting at offset. Returns the slice, the offset just past it, and
// whether the read stayed in bounds.
func readLengthPrefixed(data []byte, offset int) ([]byte, int, bool) {
	if offset+2 > len(data) {
		return nil, offset, false
	}
	length := int(data[offset])<<8 | int(data[offset+1])
	start := offset + 2
	end := start + length
	if end > len(data) {
		return nil, offset, false
	}
	return data[start:end], end, true
}
