package playlist

import (
	"strconv"
	"strings"

	"github.com/nullshard/hlspackager/pkg/hlserrors"
	"github.com/nullshard/hlspackager/pkg/hlstypes"
)

// ParseMedia parses a media playlist. The caller should first check the
// playlist kind with DetectKind if the input's type is not already known.
func ParseMedia(data string) (*hlstypes.MediaPlaylist, error) {
	lines, err := splitAndCheckHeader(data)
	if err != nil {
		return nil, err
	}

	p := &hlstypes.MediaPlaylist{Version: 1}
	var pendingKey *hlstypes.EncryptionKey
	var pendingMap *hlstypes.MediaInitSection
	var pendingByteRange *hlstypes.ByteRange
	var pendingDiscontinuity bool
	var pendingGap bool
	var pendingBitrate *int64
	var pendingPDT *string
	var pendingParts []hlstypes.PartialSegment

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || (strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "#EXT")) {
			continue
		}
		lineNo := i + 1

		switch {
		case line == "#EXTM3U":
			continue
		case strings.HasPrefix(line, "#EXT-X-VERSION:"):
			v, err := strconv.Atoi(tagBody(line))
			if err != nil {
				return nil, &hlserrors.InvalidVersionError{Version: tagBody(line)}
			}
			p.Version = v
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			v, err := strconv.Atoi(tagBody(line))
			if err != nil {
				return nil, &hlserrors.InvalidTagFormatError{Tag: "EXT-X-TARGETDURATION", Line: lineNo}
			}
			p.TargetDuration = v
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			v, err := strconv.Atoi(tagBody(line))
			if err != nil {
				return nil, &hlserrors.InvalidTagFormatError{Tag: "EXT-X-MEDIA-SEQUENCE", Line: lineNo}
			}
			p.MediaSequence = v
		case strings.HasPrefix(line, "#EXT-X-DISCONTINUITY-SEQUENCE:"):
			v, err := strconv.Atoi(tagBody(line))
			if err != nil {
				return nil, &hlserrors.InvalidTagFormatError{Tag: "EXT-X-DISCONTINUITY-SEQUENCE", Line: lineNo}
			}
			p.DiscontinuitySequence = v
		case line == "#EXT-X-INDEPENDENT-SEGMENTS":
			p.IndependentSegments = true
		case line == "#EXT-X-ENDLIST":
			p.HasEndlist = true
		case strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:"):
			pt := hlstypes.PlaylistType(tagBody(line))
			p.PlaylistType = &pt
		case strings.HasPrefix(line, "#EXT-X-PART-INF:"):
			attrs := parseAttrList(tagBody(line))
			v, err := strconv.ParseFloat(attrs["PART-TARGET"], 64)
			if err != nil {
				return nil, &hlserrors.InvalidAttributeValueError{Tag: "EXT-X-PART-INF", Attr: "PART-TARGET", Value: attrs["PART-TARGET"]}
			}
			p.PartTargetDuration = &v
		case strings.HasPrefix(line, "#EXT-X-SERVER-CONTROL:"):
			sc, err := parseServerControl(tagBody(line))
			if err != nil {
				return nil, err
			}
			p.ServerControl = sc
		case strings.HasPrefix(line, "#EXT-X-KEY:"):
			k, err := parseKey(tagBody(line))
			if err != nil {
				return nil, err
			}
			pendingKey = k
		case strings.HasPrefix(line, "#EXT-X-MAP:"):
			m, err := parseMap(tagBody(line))
			if err != nil {
				return nil, err
			}
			pendingMap = m
		case strings.HasPrefix(line, "#EXT-X-BYTERANGE:"):
			br, err := parseByteRangeValue(tagBody(line))
			if err != nil {
				return nil, err
			}
			pendingByteRange = br
		case line == "#EXT-X-DISCONTINUITY":
			pendingDiscontinuity = true
		case line == "#EXT-X-GAP":
			pendingGap = true
		case strings.HasPrefix(line, "#EXT-X-BITRATE:"):
			v, err := strconv.ParseInt(tagBody(line), 10, 64)
			if err != nil {
				return nil, &hlserrors.InvalidTagFormatError{Tag: "EXT-X-BITRATE", Line: lineNo}
			}
			pendingBitrate = &v
		case strings.HasPrefix(line, "#EXT-X-PROGRAM-DATE-TIME:"):
			v := tagBody(line)
			pendingPDT = &v
		case strings.HasPrefix(line, "#EXT-X-PART:"):
			part, err := parsePart(tagBody(line))
			if err != nil {
				return nil, err
			}
			pendingParts = append(pendingParts, *part)
		case strings.HasPrefix(line, "#EXT-X-PRELOAD-HINT:"):
			h, err := parsePreloadHint(tagBody(line))
			if err != nil {
				return nil, err
			}
			p.PreloadHints = append(p.PreloadHints, *h)
		case strings.HasPrefix(line, "#EXT-X-RENDITION-REPORT:"):
			rr, err := parseRenditionReport(tagBody(line))
			if err != nil {
				return nil, err
			}
			p.RenditionReports = append(p.RenditionReports, *rr)
		case strings.HasPrefix(line, "#EXT-X-SKIP:"):
			s, err := parseSkip(tagBody(line))
			if err != nil {
				return nil, err
			}
			p.Skip = s
		case strings.HasPrefix(line, "#EXTINF:"):
			seg, err := parseExtinf(tagBody(line), lineNo)
			if err != nil {
				return nil, err
			}
			uriLine, ok := nextNonCommentLine(lines, &i)
			if !ok {
				return nil, &hlserrors.MissingURIError{After: "EXTINF", Line: lineNo}
			}
			seg.URI = uriLine
			seg.Key = pendingKey
			seg.Map = pendingMap
			seg.ByteRange = pendingByteRange
			seg.Discontinuity = pendingDiscontinuity
			seg.IsGap = pendingGap
			seg.Bitrate = pendingBitrate
			if pendingPDT != nil {
				t, err := parseTime(*pendingPDT)
				if err != nil {
					return nil, &hlserrors.InvalidAttributeValueError{Tag: "EXT-X-PROGRAM-DATE-TIME", Attr: "value", Value: *pendingPDT}
				}
				seg.ProgramDateTime = &t
			}
			seg.Partials = pendingParts
			pendingParts = nil
			p.Segments = append(p.Segments, *seg)
			pendingByteRange = nil
			pendingDiscontinuity = false
			pendingGap = false
			pendingBitrate = nil
			pendingPDT = nil
		default:
			// unrecognized tag; ignore per tolerant parsing rule
		}
	}

	// Any parts left over belong to the in-progress segment, which has no
	// EXTINF yet.
	p.PartialSegments = pendingParts
	return p, nil
}

// ParseMaster parses a master playlist.
func ParseMaster(data string) (*hlstypes.MasterPlaylist, error) {
	lines, err := splitAndCheckHeader(data)
	if err != nil {
		return nil, err
	}

	p := &hlstypes.MasterPlaylist{Version: 1}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || (strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "#EXT")) {
			continue
		}
		lineNo := i + 1

		switch {
		case line == "#EXTM3U":
			continue
		case strings.HasPrefix(line, "#EXT-X-VERSION:"):
			v, err := strconv.Atoi(tagBody(line))
			if err != nil {
				return nil, &hlserrors.InvalidVersionError{Version: tagBody(line)}
			}
			p.Version = v
		case line == "#EXT-X-INDEPENDENT-SEGMENTS":
			p.IndependentSegments = true
		case strings.HasPrefix(line, "#EXT-X-MEDIA:"):
			r, err := parseRendition(tagBody(line))
			if err != nil {
				return nil, err
			}
			p.Renditions = append(p.Renditions, *r)
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			v, err := parseStreamInf(tagBody(line))
			if err != nil {
				return nil, err
			}
			uriLine, ok := nextNonCommentLine(lines, &i)
			if !ok {
				return nil, &hlserrors.MissingURIError{After: "EXT-X-STREAM-INF", Line: lineNo}
			}
			v.URI = uriLine
			p.Variants = append(p.Variants, *v)
		case strings.HasPrefix(line, "#EXT-X-I-FRAME-STREAM-INF:"):
			v, err := parseIFrameStreamInf(tagBody(line))
			if err != nil {
				return nil, err
			}
			p.IFrameVariants = append(p.IFrameVariants, *v)
		case strings.HasPrefix(line, "#EXT-X-SESSION-DATA:"):
			attrs := parseAttrList(tagBody(line))
			p.SessionData = append(p.SessionData, hlstypes.SessionData{
				DataID: attrs["DATA-ID"], Value: attrs["VALUE"], URI: attrs["URI"], Language: attrs["LANGUAGE"],
			})
		case strings.HasPrefix(line, "#EXT-X-SESSION-KEY:"):
			k, err := parseKey(tagBody(line))
			if err != nil {
				return nil, err
			}
			p.SessionKeys = append(p.SessionKeys, hlstypes.SessionKey{Key: *k})
		case strings.HasPrefix(line, "#EXT-X-CONTENT-STEERING:"):
			attrs := parseAttrList(tagBody(line))
			p.ContentSteering = &hlstypes.ContentSteering{ServerURI: attrs["SERVER-URI"], PathwayID: attrs["PATHWAY-ID"]}
		case strings.HasPrefix(line, "#EXT-X-START:"):
			attrs := parseAttrList(tagBody(line))
			v, err := strconv.ParseFloat(attrs["TIME-OFFSET"], 64)
			if err != nil {
				return nil, &hlserrors.InvalidAttributeValueError{Tag: "EXT-X-START", Attr: "TIME-OFFSET", Value: attrs["TIME-OFFSET"]}
			}
			p.StartOffset = &v
		case strings.HasPrefix(line, "#EXT-X-DEFINE:"):
			attrs := parseAttrList(tagBody(line))
			p.Definitions = append(p.Definitions, hlstypes.Definition{Name: attrs["NAME"], Value: attrs["VALUE"], Import: attrs["IMPORT"]})
		default:
		}
	}

	return p, nil
}

// Parse dispatches to ParseMedia or ParseMaster based on DetectKind, and
// fails with AmbiguousPlaylistType when neither media nor master markers
// are present.
func Parse(data string) (media *hlstypes.MediaPlaylist, master *hlstypes.MasterPlaylist, err error) {
	isMedia, isMaster := DetectKind(data)
	switch {
	case isMedia && !isMaster:
		media, err = ParseMedia(data)
		return media, nil, err
	case isMaster && !isMedia:
		master, err = ParseMaster(data)
		return nil, master, err
	case isMedia && isMaster:
		media, err = ParseMedia(data)
		return media, nil, err
	default:
		return nil, nil, hlserrors.ErrAmbiguousPlaylistType
	}
}

// DetectKind reports whether data looks like a media or master playlist,
// by checking for tags exclusive to each.
func DetectKind(data string) (isMedia bool, isMaster bool) {
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION") || strings.HasPrefix(line, "#EXTINF"):
			isMedia = true
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF"):
			isMaster = true
		}
	}
	return
}

func splitAndCheckHeader(data string) ([]string, error) {
	if strings.TrimSpace(data) == "" {
		return nil, hlserrors.ErrEmptyManifest
	}
	lines := strings.Split(data, "\n")
	foundHeader := false
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		if t == "#EXTM3U" {
			foundHeader = true
		}
		break
	}
	if !foundHeader {
		return nil, hlserrors.ErrMissingHeader
	}
	return lines, nil
}

func nextNonCommentLine(lines []string, i *int) (string, bool) {
	for j := *i + 1; j < len(lines); j++ {
		t := strings.TrimSpace(lines[j])
		if t == "" || strings.HasPrefix(t, "#") {
			continue
		}
		*i = j
		return t, true
	}
	return "", false
}
