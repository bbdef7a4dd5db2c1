package playlist

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/nullshard/hlspackager/pkg/hlstypes"
)

// RenderMedia renders a media playlist with RFC 8216's required tag ordering.
func RenderMedia(p *hlstypes.MediaPlaylist) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:" + strconv.Itoa(p.Version) + "\n")
	b.WriteString("#EXT-X-TARGETDURATION:" + strconv.Itoa(p.TargetDuration) + "\n")
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:" + strconv.Itoa(p.MediaSequence) + "\n")
	if p.DiscontinuitySequence != 0 {
		b.WriteString("#EXT-X-DISCONTINUITY-SEQUENCE:" + strconv.Itoa(p.DiscontinuitySequence) + "\n")
	}
	if p.PartTargetDuration != nil {
		b.WriteString("#EXT-X-PART-INF:PART-TARGET=" + formatDuration(*p.PartTargetDuration) + "\n")
	}
	if p.ServerControl != nil {
		b.WriteString(renderServerControl(p.ServerControl) + "\n")
	}
	if p.IndependentSegments {
		b.WriteString("#EXT-X-INDEPENDENT-SEGMENTS\n")
	}
	if p.PlaylistType != nil {
		b.WriteString("#EXT-X-PLAYLIST-TYPE:" + string(*p.PlaylistType) + "\n")
	}

	skip := 0
	if p.Skip != nil {
		skip = p.Skip.SkippedSegments
		b.WriteString("#EXT-X-SKIP:SKIPPED-SEGMENTS=" + strconv.Itoa(skip))
		if len(p.Skip.RecentlyRemovedDateRanges) > 0 {
			b.WriteString(",RECENTLY-REMOVED-DATERANGES=" + quote(strings.Join(p.Skip.RecentlyRemovedDateRanges, "\t")))
		}
		b.WriteString("\n")
	}

	for i := skip; i < len(p.Segments); i++ {
		renderSegment(&b, &p.Segments[i])
	}

	// Trailing parts belong to the in-progress segment, which has no
	// EXTINF yet, so they render after every completed segment.
	for _, part := range p.PartialSegments {
		renderPart(&b, &part)
	}

	for _, hint := range p.PreloadHints {
		b.WriteString(renderPreloadHint(&hint) + "\n")
	}

	for _, rr := range p.RenditionReports {
		b.WriteString(renderRenditionReport(&rr) + "\n")
	}

	if p.HasEndlist {
		b.WriteString("#EXT-X-ENDLIST\n")
	}

	return b.String()
}

func renderServerControl(sc *hlstypes.ServerControlConfig) string {
	var parts []string
	if sc.CanBlockReload {
		parts = append(parts, "CAN-BLOCK-RELOAD=YES")
	}
	if sc.HoldBack != nil {
		parts = append(parts, "HOLD-BACK="+formatDuration(*sc.HoldBack))
	}
	if sc.PartHoldBack != nil {
		parts = append(parts, "PART-HOLD-BACK="+formatDuration(*sc.PartHoldBack))
	}
	if sc.CanSkipUntil != nil {
		parts = append(parts, "CAN-SKIP-UNTIL="+formatDuration(*sc.CanSkipUntil))
	}
	if sc.CanSkipDateRanges {
		parts = append(parts, "CAN-SKIP-DATERANGES=YES")
	}
	return "#EXT-X-SERVER-CONTROL:" + formatAttrs(parts...)
}

func renderSegment(b *strings.Builder, seg *hlstypes.Segment) {
	if seg.Key != nil {
		b.WriteString(renderKey(seg.Key) + "\n")
	}
	if seg.Map != nil {
		b.WriteString(renderMap(seg.Map) + "\n")
	}
	if seg.Discontinuity {
		b.WriteString("#EXT-X-DISCONTINUITY\n")
	}
	if seg.ProgramDateTime != nil {
		b.WriteString("#EXT-X-PROGRAM-DATE-TIME:" + seg.ProgramDateTime.Format("2006-01-02T15:04:05.999Z07:00") + "\n")
	}
	if seg.Bitrate != nil {
		b.WriteString("#EXT-X-BITRATE:" + strconv.FormatInt(*seg.Bitrate, 10) + "\n")
	}
	if seg.ByteRange != nil {
		b.WriteString(renderByteRange(seg.ByteRange) + "\n")
	}
	if seg.IsGap {
		b.WriteString("#EXT-X-GAP\n")
	}
	// This segment's own completed parts come before its EXTINF, not after.
	for _, part := range seg.Partials {
		renderPart(b, &part)
	}
	title := seg.Title
	b.WriteString("#EXTINF:" + strconv.FormatFloat(seg.Duration, 'f', 5, 64) + "," + title + "\n")
	b.WriteString(seg.URI + "\n")
}

func renderPart(b *strings.Builder, part *hlstypes.PartialSegment) {
	parts := []string{
		"DURATION=" + formatDuration(part.Duration),
		"URI=" + quote(part.URI),
	}
	if part.Independent {
		parts = append(parts, "INDEPENDENT=YES")
	}
	if part.ByteRange != nil {
		parts = append(parts, "BYTERANGE="+quote(byteRangeValue(part.ByteRange)))
	}
	if part.IsGap {
		parts = append(parts, "GAP=YES")
	}
	b.WriteString("#EXT-X-PART:" + formatAttrs(parts...) + "\n")
}

func renderKey(k *hlstypes.EncryptionKey) string {
	parts := []string{"METHOD=" + string(k.Method)}
	if k.Method == hlstypes.EncryptionMethodNone {
		return "#EXT-X-KEY:" + formatAttrs(parts...)
	}
	parts = append(parts, "URI="+quote(k.URI))
	if len(k.IV) > 0 {
		parts = append(parts, "IV=0x"+hex.EncodeToString(k.IV))
	}
	if k.KeyFormat != "" {
		parts = append(parts, "KEYFORMAT="+quote(k.KeyFormat))
	}
	if k.KeyFormatVersions != "" {
		parts = append(parts, "KEYFORMATVERSIONS="+quote(k.KeyFormatVersions))
	}
	return "#EXT-X-KEY:" + formatAttrs(parts...)
}

func renderMap(m *hlstypes.MediaInitSection) string {
	parts := []string{"URI=" + quote(m.URI)}
	if m.ByteRange != nil {
		parts = append(parts, "BYTERANGE="+quote(byteRangeValue(m.ByteRange)))
	}
	return "#EXT-X-MAP:" + formatAttrs(parts...)
}

func renderByteRange(br *hlstypes.ByteRange) string {
	return "#EXT-X-BYTERANGE:" + byteRangeValue(br)
}

func byteRangeValue(br *hlstypes.ByteRange) string {
	v := strconv.FormatInt(br.Length, 10)
	if br.Offset != nil {
		v += "@" + strconv.FormatInt(*br.Offset, 10)
	}
	return v
}

func renderPreloadHint(h *hlstypes.PreloadHint) string {
	parts := []string{"TYPE=" + h.Type, "URI=" + quote(h.URI)}
	if h.ByteRange != nil {
		parts = append(parts, "BYTERANGE-START="+strconv.FormatInt(offsetOrZero(h.ByteRange), 10))
		parts = append(parts, "BYTERANGE-LENGTH="+strconv.FormatInt(h.ByteRange.Length, 10))
	}
	return "#EXT-X-PRELOAD-HINT:" + formatAttrs(parts...)
}

func offsetOrZero(br *hlstypes.ByteRange) int64 {
	if br.Offset != nil {
		return *br.Offset
	}
	return 0
}

func renderRenditionReport(rr *hlstypes.RenditionReport) string {
	parts := []string{"URI=" + quote(rr.URI), "LAST-MSN=" + strconv.Itoa(rr.LastMSN)}
	if rr.LastPart != nil {
		parts = append(parts, "LAST-PART="+strconv.Itoa(*rr.LastPart))
	}
	return "#EXT-X-RENDITION-REPORT:" + formatAttrs(parts...)
}

// RenderMaster renders a master playlist.
func RenderMaster(p *hlstypes.MasterPlaylist) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:" + strconv.Itoa(p.Version) + "\n")
	if p.IndependentSegments {
		b.WriteString("#EXT-X-INDEPENDENT-SEGMENTS\n")
	}
	for _, d := range p.Definitions {
		parts := []string{"NAME=" + quote(d.Name)}
		if d.Value != "" {
			parts = append(parts, "VALUE="+quote(d.Value))
		}
		if d.Import != "" {
			parts = append(parts, "IMPORT="+quote(d.Import))
		}
		b.WriteString("#EXT-X-DEFINE:" + formatAttrs(parts...) + "\n")
	}
	if p.StartOffset != nil {
		b.WriteString("#EXT-X-START:TIME-OFFSET=" + strconv.FormatFloat(*p.StartOffset, 'f', -1, 64) + "\n")
	}
	for _, sd := range p.SessionData {
		parts := []string{"DATA-ID=" + quote(sd.DataID)}
		if sd.Value != "" {
			parts = append(parts, "VALUE="+quote(sd.Value))
		}
		if sd.URI != "" {
			parts = append(parts, "URI="+quote(sd.URI))
		}
		if sd.Language != "" {
			parts = append(parts, "LANGUAGE="+quote(sd.Language))
		}
		b.WriteString("#EXT-X-SESSION-DATA:" + formatAttrs(parts...) + "\n")
	}
	for _, sk := range p.SessionKeys {
		b.WriteString(strings.Replace(renderKey(&sk.Key), "#EXT-X-KEY:", "#EXT-X-SESSION-KEY:", 1) + "\n")
	}
	for _, r := range p.Renditions {
		b.WriteString(renderRendition(&r) + "\n")
	}
	for _, v := range p.Variants {
		b.WriteString(renderStreamInf(&v) + "\n" + v.URI + "\n")
	}
	for _, v := range p.IFrameVariants {
		b.WriteString(renderIFrameStreamInf(&v) + "\n")
	}
	if p.ContentSteering != nil {
		parts := []string{"SERVER-URI=" + quote(p.ContentSteering.ServerURI)}
		if p.ContentSteering.PathwayID != "" {
			parts = append(parts, "PATHWAY-ID="+quote(p.ContentSteering.PathwayID))
		}
		b.WriteString("#EXT-X-CONTENT-STEERING:" + formatAttrs(parts...) + "\n")
	}
	return b.String()
}

func renderRendition(r *hlstypes.Rendition) string {
	parts := []string{
		"TYPE=" + string(r.Type),
		"GROUP-ID=" + quote(r.GroupID),
		"NAME=" + quote(r.Name),
	}
	if r.Language != "" {
		parts = append(parts, "LANGUAGE="+quote(r.Language))
	}
	if r.AssocLanguage != "" {
		parts = append(parts, "ASSOC-LANGUAGE="+quote(r.AssocLanguage))
	}
	parts = append(parts, "DEFAULT="+yesNo(r.Default))
	parts = append(parts, "AUTOSELECT="+yesNo(r.AutoSelect))
	if r.Type == hlstypes.RenditionTypeSubtitles || r.Type == hlstypes.RenditionTypeClosedCaptions {
		parts = append(parts, "FORCED="+yesNo(r.Forced))
	}
	if r.InstreamID != "" {
		parts = append(parts, "INSTREAM-ID="+quote(r.InstreamID))
	}
	if r.Channels != "" {
		parts = append(parts, "CHANNELS="+quote(r.Channels))
	}
	if r.URI != "" {
		parts = append(parts, "URI="+quote(r.URI))
	}
	return "#EXT-X-MEDIA:" + formatAttrs(parts...)
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func renderStreamInf(v *hlstypes.Variant) string {
	parts := []string{"BANDWIDTH=" + strconv.FormatInt(v.Bandwidth, 10)}
	if v.AverageBandwidth != nil {
		parts = append(parts, "AVERAGE-BANDWIDTH="+strconv.FormatInt(*v.AverageBandwidth, 10))
	}
	if v.Codecs != "" {
		parts = append(parts, "CODECS="+quote(v.Codecs))
	}
	if v.Resolution != nil {
		parts = append(parts, "RESOLUTION="+strconv.Itoa(v.Resolution.Width)+"x"+strconv.Itoa(v.Resolution.Height))
	}
	if v.FrameRate != nil {
		parts = append(parts, "FRAME-RATE="+strconv.FormatFloat(*v.FrameRate, 'f', -1, 64))
	}
	if v.Audio != "" {
		parts = append(parts, "AUDIO="+quote(v.Audio))
	}
	if v.Video != "" {
		parts = append(parts, "VIDEO="+quote(v.Video))
	}
	if v.Subtitles != "" {
		parts = append(parts, "SUBTITLES="+quote(v.Subtitles))
	}
	if v.ClosedCaptions != "" {
		if v.ClosedCaptions == "NONE" {
			parts = append(parts, "CLOSED-CAPTIONS=NONE")
		} else {
			parts = append(parts, "CLOSED-CAPTIONS="+quote(v.ClosedCaptions))
		}
	}
	if v.HDCPLevel != "" {
		parts = append(parts, "HDCP-LEVEL="+v.HDCPLevel)
	}
	return "#EXT-X-STREAM-INF:" + formatAttrs(parts...)
}

func renderIFrameStreamInf(v *hlstypes.IFrameVariant) string {
	parts := []string{"BANDWIDTH=" + strconv.FormatInt(v.Bandwidth, 10)}
	if v.AverageBandwidth != nil {
		parts = append(parts, "AVERAGE-BANDWIDTH="+strconv.FormatInt(*v.AverageBandwidth, 10))
	}
	if v.Codecs != "" {
		parts = append(parts, "CODECS="+quote(v.Codecs))
	}
	if v.Resolution != nil {
		parts = append(parts, "RESOLUTION="+strconv.Itoa(v.Resolution.Width)+"x"+strconv.Itoa(v.Resolution.Height))
	}
	parts = append(parts, "URI="+quote(v.URI))
	return "#EXT-X-I-FRAME-STREAM-INF:" + formatAttrs(parts...)
}
