package playlist

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/nullshard/hlspackager/pkg/hlserrors"
	"github.com/nullshard/hlspackager/pkg/hlstypes"
)

func parseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

func parseFloatAttr(attrs map[string]string, tag, key string) (float64, error) {
	raw, ok := attrs[key]
	if !ok {
		return 0, &hlserrors.MissingRequiredAttributeError{Tag: tag, Attr: key}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &hlserrors.InvalidAttributeValueError{Tag: tag, Attr: key, Value: raw}
	}
	return v, nil
}

func parseIntAttr(attrs map[string]string, tag, key string) (int64, error) {
	raw, ok := attrs[key]
	if !ok {
		return 0, &hlserrors.MissingRequiredAttributeError{Tag: tag, Attr: key}
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &hlserrors.InvalidAttributeValueError{Tag: tag, Attr: key, Value: raw}
	}
	return v, nil
}

func parseResolution(raw string) (*hlstypes.Resolution, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.SplitN(raw, "x", 2)
	if len(parts) != 2 {
		return nil, &hlserrors.InvalidAttributeValueError{Tag: "EXT-X-STREAM-INF", Attr: "RESOLUTION", Value: raw}
	}
	w, err1 := strconv.Atoi(parts[0])
	h, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return nil, &hlserrors.InvalidAttributeValueError{Tag: "EXT-X-STREAM-INF", Attr: "RESOLUTION", Value: raw}
	}
	return &hlstypes.Resolution{Width: w, Height: h}, nil
}

func parseByteRangeValue(raw string) (*hlstypes.ByteRange, error) {
	raw = strings.Trim(raw, `"`)
	parts := strings.SplitN(raw, "@", 2)
	length, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, &hlserrors.InvalidAttributeValueError{Tag: "EXT-X-BYTERANGE", Attr: "value", Value: raw}
	}
	br := &hlstypes.ByteRange{Length: length}
	if len(parts) == 2 {
		off, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, &hlserrors.InvalidAttributeValueError{Tag: "EXT-X-BYTERANGE", Attr: "value", Value: raw}
		}
		br.Offset = &off
	}
	return br, nil
}

func parseKey(body string) (*hlstypes.EncryptionKey, error) {
	attrs := parseAttrList(body)
	method, ok := attrs["METHOD"]
	if !ok {
		return nil, &hlserrors.MissingRequiredAttributeError{Tag: "EXT-X-KEY", Attr: "METHOD"}
	}
	k := &hlstypes.EncryptionKey{Method: hlstypes.EncryptionMethod(method)}
	if k.Method == hlstypes.EncryptionMethodNone {
		return k, nil
	}
	k.URI = attrs["URI"]
	if iv, ok := attrs["IV"]; ok {
		ivHex := strings.TrimPrefix(strings.TrimPrefix(iv, "0x"), "0X")
		if len(ivHex)%2 != 0 {
			ivHex = "0" + ivHex
		}
		b, err := hex.DecodeString(ivHex)
		if err != nil {
			return nil, &hlserrors.InvalidAttributeValueError{Tag: "EXT-X-KEY", Attr: "IV", Value: iv}
		}
		k.IV = b
	}
	k.KeyFormat = attrs["KEYFORMAT"]
	k.KeyFormatVersions = attrs["KEYFORMATVERSIONS"]
	return k, nil
}

func parseMap(body string) (*hlstypes.MediaInitSection, error) {
	attrs := parseAttrList(body)
	uri, ok := attrs["URI"]
	if !ok {
		return nil, &hlserrors.MissingRequiredAttributeError{Tag: "EXT-X-MAP", Attr: "URI"}
	}
	m := &hlstypes.MediaInitSection{URI: uri}
	if br, ok := attrs["BYTERANGE"]; ok {
		parsed, err := parseByteRangeValue(br)
		if err != nil {
			return nil, err
		}
		m.ByteRange = parsed
	}
	return m, nil
}

func parsePart(body string) (*hlstypes.PartialSegment, error) {
	attrs := parseAttrList(body)
	dur, err := parseFloatAttr(attrs, "EXT-X-PART", "DURATION")
	if err != nil {
		return nil, err
	}
	uri, ok := attrs["URI"]
	if !ok {
		return nil, &hlserrors.MissingRequiredAttributeError{Tag: "EXT-X-PART", Attr: "URI"}
	}
	part := &hlstypes.PartialSegment{Duration: dur, URI: uri}
	part.Independent = attrs["INDEPENDENT"] == "YES"
	part.IsGap = attrs["GAP"] == "YES"
	if br, ok := attrs["BYTERANGE"]; ok {
		parsed, err := parseByteRangeValue(br)
		if err != nil {
			return nil, err
		}
		part.ByteRange = parsed
	}
	return part, nil
}

func parsePreloadHint(body string) (*hlstypes.PreloadHint, error) {
	attrs := parseAttrList(body)
	typ, ok := attrs["TYPE"]
	if !ok {
		return nil, &hlserrors.MissingRequiredAttributeError{Tag: "EXT-X-PRELOAD-HINT", Attr: "TYPE"}
	}
	uri, ok := attrs["URI"]
	if !ok {
		return nil, &hlserrors.MissingRequiredAttributeError{Tag: "EXT-X-PRELOAD-HINT", Attr: "URI"}
	}
	h := &hlstypes.PreloadHint{Type: typ, URI: uri}
	if start, ok := attrs["BYTERANGE-START"]; ok {
		length, err := parseIntAttr(attrs, "EXT-X-PRELOAD-HINT", "BYTERANGE-LENGTH")
		if err != nil {
			return nil, err
		}
		off, err := strconv.ParseInt(start, 10, 64)
		if err != nil {
			return nil, &hlserrors.InvalidAttributeValueError{Tag: "EXT-X-PRELOAD-HINT", Attr: "BYTERANGE-START", Value: start}
		}
		h.ByteRange = &hlstypes.ByteRange{Length: length, Offset: &off}
	}
	return h, nil
}

func parseRenditionReport(body string) (*hlstypes.RenditionReport, error) {
	attrs := parseAttrList(body)
	uri, ok := attrs["URI"]
	if !ok {
		return nil, &hlserrors.MissingRequiredAttributeError{Tag: "EXT-X-RENDITION-REPORT", Attr: "URI"}
	}
	msn, err := parseIntAttr(attrs, "EXT-X-RENDITION-REPORT", "LAST-MSN")
	if err != nil {
		return nil, err
	}
	rr := &hlstypes.RenditionReport{URI: uri, LastMSN: int(msn)}
	if lp, ok := attrs["LAST-PART"]; ok {
		p, err := strconv.Atoi(lp)
		if err != nil {
			return nil, &hlserrors.InvalidAttributeValueError{Tag: "EXT-X-RENDITION-REPORT", Attr: "LAST-PART", Value: lp}
		}
		rr.LastPart = &p
	}
	return rr, nil
}

func parseSkip(body string) (*hlstypes.SkipInfo, error) {
	attrs := parseAttrList(body)
	n, err := parseIntAttr(attrs, "EXT-X-SKIP", "SKIPPED-SEGMENTS")
	if err != nil {
		return nil, err
	}
	s := &hlstypes.SkipInfo{SkippedSegments: int(n)}
	if rr, ok := attrs["RECENTLY-REMOVED-DATERANGES"]; ok && rr != "" {
		s.RecentlyRemovedDateRanges = strings.Split(rr, "\t")
	}
	return s, nil
}

func parseExtinf(body string, line int) (*hlstypes.Segment, error) {
	comma := strings.IndexByte(body, ',')
	durStr := body
	title := ""
	if comma >= 0 {
		durStr = body[:comma]
		title = body[comma+1:]
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(durStr), 64)
	if err != nil {
		return nil, &hlserrors.InvalidDurationError{Line: line}
	}
	return &hlstypes.Segment{Duration: dur, Title: title}, nil
}

func parseServerControl(body string) (*hlstypes.ServerControlConfig, error) {
	attrs := parseAttrList(body)
	sc := &hlstypes.ServerControlConfig{}
	sc.CanBlockReload = attrs["CAN-BLOCK-RELOAD"] == "YES"
	if hb, ok := attrs["HOLD-BACK"]; ok {
		v, err := strconv.ParseFloat(hb, 64)
		if err != nil {
			return nil, &hlserrors.InvalidAttributeValueError{Tag: "EXT-X-SERVER-CONTROL", Attr: "HOLD-BACK", Value: hb}
		}
		sc.HoldBack = &v
	}
	if phb, ok := attrs["PART-HOLD-BACK"]; ok {
		v, err := strconv.ParseFloat(phb, 64)
		if err != nil {
			return nil, &hlserrors.InvalidAttributeValueError{Tag: "EXT-X-SERVER-CONTROL", Attr: "PART-HOLD-BACK", Value: phb}
		}
		sc.PartHoldBack = &v
	}
	if csu, ok := attrs["CAN-SKIP-UNTIL"]; ok {
		v, err := strconv.ParseFloat(csu, 64)
		if err != nil {
			return nil, &hlserrors.InvalidAttributeValueError{Tag: "EXT-X-SERVER-CONTROL", Attr: "CAN-SKIP-UNTIL", Value: csu}
		}
		sc.CanSkipUntil = &v
	}
	sc.CanSkipDateRanges = attrs["CAN-SKIP-DATERANGES"] == "YES"
	return sc, nil
}

func parseRendition(body string) (*hlstypes.Rendition, error) {
	attrs := parseAttrList(body)
	typ, ok := attrs["TYPE"]
	if !ok {
		return nil, &hlserrors.MissingRequiredAttributeError{Tag: "EXT-X-MEDIA", Attr: "TYPE"}
	}
	groupID, ok := attrs["GROUP-ID"]
	if !ok {
		return nil, &hlserrors.MissingRequiredAttributeError{Tag: "EXT-X-MEDIA", Attr: "GROUP-ID"}
	}
	name, ok := attrs["NAME"]
	if !ok {
		return nil, &hlserrors.MissingRequiredAttributeError{Tag: "EXT-X-MEDIA", Attr: "NAME"}
	}
	r := &hlstypes.Rendition{
		Type:          hlstypes.RenditionType(typ),
		GroupID:       groupID,
		Name:          name,
		Language:      attrs["LANGUAGE"],
		AssocLanguage: attrs["ASSOC-LANGUAGE"],
		Default:       attrs["DEFAULT"] == "YES",
		AutoSelect:    attrs["AUTOSELECT"] == "YES",
		Forced:        attrs["FORCED"] == "YES",
		URI:           attrs["URI"],
		Channels:      attrs["CHANNELS"],
		InstreamID:    attrs["INSTREAM-ID"],
	}
	return r, nil
}

func parseStreamInf(body string) (*hlstypes.Variant, error) {
	attrs := parseAttrList(body)
	bw, err := parseIntAttr(attrs, "EXT-X-STREAM-INF", "BANDWIDTH")
	if err != nil {
		return nil, err
	}
	v := &hlstypes.Variant{
		Bandwidth:      bw,
		Codecs:         attrs["CODECS"],
		Audio:          attrs["AUDIO"],
		Video:          attrs["VIDEO"],
		Subtitles:      attrs["SUBTITLES"],
		ClosedCaptions: attrs["CLOSED-CAPTIONS"],
		HDCPLevel:      attrs["HDCP-LEVEL"],
	}
	if abw, ok := attrs["AVERAGE-BANDWIDTH"]; ok {
		n, err := strconv.ParseInt(abw, 10, 64)
		if err != nil {
			return nil, &hlserrors.InvalidAttributeValueError{Tag: "EXT-X-STREAM-INF", Attr: "AVERAGE-BANDWIDTH", Value: abw}
		}
		v.AverageBandwidth = &n
	}
	if res, ok := attrs["RESOLUTION"]; ok {
		r, err := parseResolution(res)
		if err != nil {
			return nil, err
		}
		v.Resolution = r
	}
	if fr, ok := attrs["FRAME-RATE"]; ok {
		f, err := strconv.ParseFloat(fr, 64)
		if err != nil {
			return nil, &hlserrors.InvalidAttributeValueError{Tag: "EXT-X-STREAM-INF", Attr: "FRAME-RATE", Value: fr}
		}
		v.FrameRate = &f
	}
	return v, nil
}

func parseIFrameStreamInf(body string) (*hlstypes.IFrameVariant, error) {
	attrs := parseAttrList(body)
	bw, err := parseIntAttr(attrs, "EXT-X-I-FRAME-STREAM-INF", "BANDWIDTH")
	if err != nil {
		return nil, err
	}
	uri, ok := attrs["URI"]
	if !ok {
		return nil, &hlserrors.MissingRequiredAttributeError{Tag: "EXT-X-I-FRAME-STREAM-INF", Attr: "URI"}
	}
	v := &hlstypes.IFrameVariant{Bandwidth: bw, Codecs: attrs["CODECS"], URI: uri}
	if abw, ok := attrs["AVERAGE-BANDWIDTH"]; ok {
		n, err := strconv.ParseInt(abw, 10, 64)
		if err != nil {
			return nil, &hlserrors.InvalidAttributeValueError{Tag: "EXT-X-I-FRAME-STREAM-INF", Attr: "AVERAGE-BANDWIDTH", Value: abw}
		}
		v.AverageBandwidth = &n
	}
	if res, ok := attrs["RESOLUTION"]; ok {
		r, err := parseResolution(res)
		if err != nil {
			return nil, err
		}
		v.Resolution = r
	}
	return v, nil
}
