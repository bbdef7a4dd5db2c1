package mp4extract

import (
	"github.com/nullshard/hlspackager/pkg/hlserrors"
)

// audioSampleEntryBaseSize is the length of the fixed QuickTime/ISO audio
// sample entry fields (reserved, channelcount, samplesize, pre_defined,
// reserved, samplerate) before any version-specific extension or child boxes.
const audioSampleEntryBaseSize = 28

// audioSampleEntryExtraSize returns the number of version-specific bytes
// that follow the base fields, per QuickTime sound sample description
// versioning (v0=0, v1=16, v2=36).
func audioSampleEntryExtraSize(version int) int {
	switch version {
	case 1:
		return 16
	case 2:
		return 36
	default:
		return 0
	}
}

// ExtractAACConfig locates the esds box inside an AudioSampleEntry payload
// (directly, or nested one level under a wave box) and returns the raw AAC
// AudioSpecificConfig bytes (the DecoderSpecificInfo of the ES descriptor).
func ExtractAACConfig(sampleEntry []byte, version int) ([]byte, error) {
	skip := audioSampleEntryBaseSize + audioSampleEntryExtraSize(version)
	if len(sampleEntry) < skip {
		return nil, &hlserrors.InvalidAudioConfigError{Message: "sample entry shorter than fixed audio header"}
	}
	rest := sampleEntry[skip:]

	if payload, ok := findChildBox(rest, "esds"); ok {
		return parseESDSConfig(payload)
	}
	if wave, ok := findChildBox(rest, "wave"); ok {
		if payload, ok := findChildBox(wave, "esds"); ok {
			return parseESDSConfig(payload)
		}
	}
	return nil, &hlserrors.InvalidAudioConfigError{Message: "esds box not found"}
}

const (
	descTagES             = 0x03
	descTagDecoderConfig  = 0x04
	descTagDecoderSpecific = 0x05
)

// parseESDSConfig parses an esds FullBox payload and returns the
// DecoderSpecificInfo bytes nested inside the ES_Descriptor's
// DecoderConfigDescriptor.
func parseESDSConfig(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, &hlserrors.InvalidAudioConfigError{Message: "esds box truncated"}
	}
	offset := 4 // version(1) + flags(3)

	tag, body, next, ok := readDescriptor(data, offset)
	if !ok || tag != descTagES {
		return nil, &hlserrors.InvalidAudioConfigError{Message: "ES_Descriptor not found"}
	}
	_ = next

	// ES_Descriptor body: ES_ID(2) + flags(1), then optional fields depending
	// on flags, then child descriptors. Only streamDependenceFlag/URL_Flag/
	// OCRstreamFlag gate extra fields; assume the common case (all clear)
	// used by every encoder in the pack, but bounds-check regardless.
	if len(body) < 3 {
		return nil, &hlserrors.InvalidAudioConfigError{Message: "ES_Descriptor body truncated"}
	}
	flags := body[2]
	pos := 3
	if flags&0x80 != 0 { // streamDependenceFlag
		pos += 2
	}
	if flags&0x40 != 0 { // URL_Flag
		if pos >= len(body) {
			return nil, &hlserrors.InvalidAudioConfigError{Message: "ES_Descriptor URL flag truncated"}
		}
		urlLen := int(body[pos])
		pos += 1 + urlLen
	}
	if flags&0x20 != 0 { // OCRstreamFlag
		pos += 2
	}
	if pos > len(body) {
		return nil, &hlserrors.InvalidAudioConfigError{Message: "ES_Descriptor truncated before DecoderConfigDescriptor"}
	}

	dtag, dbody, _, ok := readDescriptor(body, pos)
	if !ok || dtag != descTagDecoderConfig {
		return nil, &hlserrors.InvalidAudioConfigError{Message: "DecoderConfigDescriptor not found"}
	}
	// objectTypeIndication(1) + streamType/upStream/reserved(1) +
	// bufferSizeDB(3) + maxBitrate(4) + avgBitrate(4) = 13 bytes fixed.
	if len(dbody) < 13 {
		return nil, &hlserrors.InvalidAudioConfigError{Message: "DecoderConfigDescriptor truncated"}
	}
	stag, sbody, _, ok := readDescriptor(dbody, 13)
	if !ok || stag != descTagDecoderSpecific {
		return nil, &hlserrors.InvalidAudioConfigError{Message: "DecoderSpecificInfo not found"}
	}
	return sbody, nil
}

// readDescriptor reads an MPEG-4 descriptor (tag byte, then a variable-length
// size using the continuation-bit encoding) starting at offset in data.
// Returns the tag, the descriptor's body slice, the offset just past it, and
// whether the read stayed in bounds.
func readDescriptor(data []byte, offset int) (tag byte, body []byte, next int, ok bool) {
	if offset >= len(data) {
		return 0, nil, offset, false
	}
	tag = data[offset]
	pos := offset + 1

	size := 0
	for i := 0; i < 4; i++ {
		if pos >= len(data) {
			return 0, nil, offset, false
		}
		b := data[pos]
		pos++
		size = (size << 7) | int(b&0x7f)
		if b&0x80 == 0 {
			break
		}
	}

	end := pos + size
	if end > len(data) || end < pos {
		return 0, nil, offset, false
	}
	return tag, data[pos:end], end, true
}
