// Package mp4extract walks the stsd-child boxes of an MP4 sample description
// (avcC, hvcC, esds, wave) and extracts the codec configuration records a TS
// writer needs: SPS/PPS/VPS parameter sets and the AAC AudioSpecificConfig.
//
// It deliberately does not parse a full MP4 tree. The caller already has a
// sample-table oracle for box offsets; this package only walks the small,
// bounded set of boxes nested under one stsd entry.
package mp4extract

import (
	"encoding/binary"

	"github.com/nullshard/hlspackager/pkg/hlserrors"
)

type boxHeader struct {
	size     uint64
	boxType  string
	extended bool
}

// peekBoxHeader reads a box header at the start of data without consuming it.
func peekBoxHeader(data []byte) (boxHeader, error) {
	if len(data) < 8 {
		return boxHeader{}, &hlserrors.InvalidMP4Error{Message: "box header truncated"}
	}
	size := binary.BigEndian.Uint32(data[0:4])
	h := boxHeader{size: uint64(size), boxType: string(data[4:8])}
	if size == 1 {
		if len(data) < 16 {
			return boxHeader{}, &hlserrors.InvalidMP4Error{Message: "extended box header truncated"}
		}
		h.size = binary.BigEndian.Uint64(data[8:16])
		h.extended = true
	} else if size == 0 {
		return boxHeader{}, &hlserrors.InvalidMP4Error{Message: "box extends to end of file, unsupported"}
	}
	return h, nil
}

// headerLen returns the number of bytes the header itself occupies.
func (h boxHeader) headerLen() int {
	if h.extended {
		return 16
	}
	return 8
}

// findChildBox scans data for a direct child box of the given type, returning
// its payload (the bytes after the box header, sized per the box's own
// length). Every offset computed is bounds-checked against len(data).
func findChildBox(data []byte, boxType string) ([]byte, bool) {
	offset := 0
	for offset+8 <= len(data) {
		h, err := peekBoxHeader(data[offset:])
		if err != nil || h.size == 0 {
			return nil, false
		}
		end := offset + int(h.size)
		if end > len(data) || end < offset {
			return nil, false
		}
		if h.boxType == boxType {
			return data[offset+h.headerLen() : end], true
		}
		offset = end
	}
	return nil, false
}
