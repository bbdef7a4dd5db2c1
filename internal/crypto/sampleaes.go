package crypto

const (
	tsPacketSize = 188
	tsSyncByte   = 0x47
)

// pesUnit is a PES payload assembled from consecutive TS packets on one PID,
// remembered by the packet range it occupies so the transformed bytes can be
// written back in place.
type pesUnit struct {
	startPacket int // inclusive, index into the packet slice
	endPacket   int // exclusive
	payload     []byte
	// payloadOffsets[i] is the byte offset within payload at which packet
	// startPacket+i's payload begins.
	payloadOffsets []int
}

// SampleAESTransform encrypts or decrypts a complete MPEG-TS segment in
// place using SAMPLE-AES, preserving the segment's total length and every
// byte outside the defined encrypted regions (packet headers, adaptation
// fields, PES headers, ADTS headers, NAL start codes and type bytes).
//
// videoPID and audioPID select which PIDs carry H.264 Annex-B video and AAC
// ADTS audio respectively; pass 0x1FFF (the null PID) to disable a track.
func SampleAESTransform(segment []byte, key, iv []byte, videoPID, audioPID uint16, encrypt bool) ([]byte, error) {
	out := make([]byte, len(segment))
	copy(out, segment)

	if len(out)%tsPacketSize != 0 {
		// Non-TS-aligned input is passed through untouched; the writer never
		// produces this, but a defensive caller should not crash on it.
		return out, nil
	}

	numPackets := len(out) / tsPacketSize
	videoUnits := collectPESUnits(out, numPackets, videoPID)
	audioUnits := collectPESUnits(out, numPackets, audioPID)

	for _, u := range videoUnits {
		transformed, err := transformVideoPayload(u.payload, key, iv, encrypt)
		if err != nil {
			return nil, err
		}
		writeBackPayload(out, numPackets, u, transformed)
	}
	for _, u := range audioUnits {
		transformed, err := transformAudioPayload(u.payload, key, iv, encrypt)
		if err != nil {
			return nil, err
		}
		writeBackPayload(out, numPackets, u, transformed)
	}

	return out, nil
}

// collectPESUnits scans packets belonging to pid and assembles PES units
// bounded by payload_unit_start_indicator (PUSI) transitions. Packets seen
// before the first PUSI belong to a PES unit that began in an earlier
// segment (it spans the segment boundary) and are left untouched; the last
// unit started in the segment is closed at the end of the segment.
func collectPESUnits(data []byte, numPackets int, pid uint16) []pesUnit {
	var units []pesUnit
	var cur *pesUnit

	for i := 0; i < numPackets; i++ {
		pkt := data[i*tsPacketSize : (i+1)*tsPacketSize]
		if pkt[0] != tsSyncByte {
			continue
		}
		pktPID := (uint16(pkt[1]&0x1f) << 8) | uint16(pkt[2])
		if pktPID != pid {
			continue
		}
		pusi := pkt[1]&0x40 != 0
		hasAdaptation := pkt[3]&0x20 != 0
		hasPayload := pkt[3]&0x10 != 0
		if !hasPayload {
			continue
		}

		payloadStart := 4
		if hasAdaptation {
			adaptLen := int(pkt[4])
			payloadStart = 5 + adaptLen
			if payloadStart > tsPacketSize {
				continue
			}
		}

		if pusi {
			if cur != nil {
				units = append(units, *cur)
			}
			cur = &pesUnit{startPacket: i}
		}
		if cur == nil {
			continue
		}
		cur.endPacket = i + 1
		cur.payloadOffsets = append(cur.payloadOffsets, len(cur.payload))
		cur.payload = append(cur.payload, pkt[payloadStart:]...)
	}
	// The last unit whose start was seen ends with the segment.
	if cur != nil {
		units = append(units, *cur)
	}
	return units
}

// writeBackPayload writes transformed (same length as the unit's original
// payload) back into the TS packets the unit occupies, preserving every
// packet header and adaptation field.
func writeBackPayload(data []byte, numPackets int, u pesUnit, transformed []byte) {
	packetIdx := 0
	for pi := u.startPacket; pi < u.endPacket; pi++ {
		pkt := data[pi*tsPacketSize : (pi+1)*tsPacketSize]
		hasAdaptation := pkt[3]&0x20 != 0
		payloadStart := 4
		if hasAdaptation {
			adaptLen := int(pkt[4])
			payloadStart = 5 + adaptLen
			if payloadStart > tsPacketSize {
				packetIdx++
				continue
			}
		}
		n := tsPacketSize - payloadStart
		start := u.payloadOffsets[packetIdx]
		end := start + n
		if end > len(transformed) {
			end = len(transformed)
		}
		copy(pkt[payloadStart:], transformed[start:end])
		packetIdx++
	}
}

// pesHeaderLen returns the length of the PES header prefix (start code,
// stream id, PES packet length, flags, header data length, and the optional
// fields themselves) so the elementary-stream payload that follows can be
// located. It assumes a standard (non-padding) PES header as produced by
// this package's own MPEG-TS writer.
func pesHeaderLen(payload []byte) int {
	if len(payload) < 9 {
		return len(payload)
	}
	// payload[0:3] = 00 00 01, payload[3] = stream id, payload[4:6] = length,
	// payload[6] = flags1, payload[7] = flags2, payload[8] = header data length.
	headerDataLen := int(payload[8])
	return 9 + headerDataLen
}

func transformVideoPayload(pesPayload, key, iv []byte, encrypt bool) ([]byte, error) {
	esStart := pesHeaderLen(pesPayload)
	if esStart >= len(pesPayload) {
		return pesPayload, nil
	}
	es := append([]byte{}, pesPayload[:esStart]...)
	body := pesPayload[esStart:]

	transformedBody, err := transformAnnexB(body, key, iv, encrypt)
	if err != nil {
		return nil, err
	}
	return append(es, transformedBody...), nil
}

func transformAudioPayload(pesPayload, key, iv []byte, encrypt bool) ([]byte, error) {
	esStart := pesHeaderLen(pesPayload)
	if esStart >= len(pesPayload) {
		return pesPayload, nil
	}
	es := append([]byte{}, pesPayload[:esStart]...)
	body := pesPayload[esStart:]

	transformedBody, err := transformADTS(body, key, iv, encrypt)
	if err != nil {
		return nil, err
	}
	return append(es, transformedBody...), nil
}

// transformAnnexB scans Annex-B start-coded NAL units and, for slice types
// (1) and IDR slices (5) whose body exceeds 48 bytes, transforms bytes
// [header+1+32, end) in 16-byte blocks. Bytes outside that region (start
// code, NAL header byte, the 32-byte unencrypted prefix, and any trailing
// partial block) are left untouched.
func transformAnnexB(data, key, iv []byte, encrypt bool) ([]byte, error) {
	out := append([]byte{}, data...)
	starts := findAnnexBStarts(data)
	for i, s := range starts {
		end := len(data)
		if i+1 < len(starts) {
			end = starts[i+1].scPos
		}
		nalStart := s.nalPos
		if nalStart >= len(data) {
			continue
		}
		nalType := data[nalStart] & 0x1f
		if nalType != 1 && nalType != 5 {
			continue
		}
		bodyStart := nalStart + 1
		bodyLen := end - bodyStart
		if bodyLen <= 48 {
			continue
		}
		encStart := bodyStart + 32
		encLen := (end - encStart) / 16 * 16
		if encLen <= 0 {
			continue
		}
		region := data[encStart : encStart+encLen]
		transformed, err := CryptNoPadding(region, key, iv, encrypt)
		if err != nil {
			return nil, err
		}
		copy(out[encStart:encStart+encLen], transformed)
	}
	return out, nil
}

type annexBStart struct {
	scPos  int // start-code position
	nalPos int // NAL header byte position (first byte after start code)
}

// findAnnexBStarts locates every 3- or 4-byte Annex-B start code in data.
func findAnnexBStarts(data []byte) []annexBStart {
	var starts []annexBStart
	for i := 0; i+2 < len(data); i++ {
		if data[i] == 0 && data[i+1] == 0 {
			if data[i+2] == 1 {
				starts = append(starts, annexBStart{scPos: i, nalPos: i + 3})
				i += 2
			} else if i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1 {
				starts = append(starts, annexBStart{scPos: i, nalPos: i + 4})
				i += 3
			}
		}
	}
	return starts
}

// transformADTS walks consecutive ADTS frames, skipping the 7-byte header
// and the first 16 bytes of audio data, encrypting the remainder in 16-byte
// blocks and leaving any trailing <16-byte remainder untouched.
func transformADTS(data, key, iv []byte, encrypt bool) ([]byte, error) {
	out := append([]byte{}, data...)
	pos := 0
	for pos+7 <= len(data) {
		if data[pos]&0xFF != 0xFF || data[pos+1]&0xF0 != 0xF0 {
			break
		}
		frameLen := (int(data[pos+3]&0x03) << 11) | (int(data[pos+4]) << 3) | (int(data[pos+5]) >> 5)
		if frameLen <= 0 || pos+frameLen > len(data) {
			break
		}
		audioStart := pos + 7
		audioEnd := pos + frameLen
		skipEnd := audioStart + 16
		if skipEnd < audioEnd {
			encLen := (audioEnd - skipEnd) / 16 * 16
			if encLen > 0 {
				region := data[skipEnd : skipEnd+encLen]
				transformed, err := CryptNoPadding(region, key, iv, encrypt)
				if err != nil {
					return nil, err
				}
				copy(out[skipEnd:skipEnd+encLen], transformed)
			}
		}
		pos += frameLen
	}
	return out, nil
}
