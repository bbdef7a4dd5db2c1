// Package hlstypes holds the data model shared by the segment planner,
// container writers, encryption engine, playlist renderer/parser, and push
// engine: the value objects that flow between those components.
package hlstypes

import "time"

// ContainerFormat identifies the container used for a media segment.
type ContainerFormat string

const (
	ContainerFormatFMP4   ContainerFormat = "fmp4"
	ContainerFormatMPEGTS ContainerFormat = "mpegts"
)

// EncryptionMethod identifies the HLS segment encryption scheme.
type EncryptionMethod string

const (
	EncryptionMethodNone          EncryptionMethod = "NONE"
	EncryptionMethodAES128        EncryptionMethod = "AES-128"
	EncryptionMethodSampleAES     EncryptionMethod = "SAMPLE-AES"
	EncryptionMethodSampleAESCTR  EncryptionMethod = "SAMPLE-AES-CTR"
)

// PlaylistType is the optional EXT-X-PLAYLIST-TYPE value.
type PlaylistType string

const (
	PlaylistTypeVOD   PlaylistType = "VOD"
	PlaylistTypeEvent PlaylistType = "EVENT"
)

// Resolution is a variant's pixel dimensions.
type Resolution struct {
	Width  int
	Height int
}

// ByteRange describes a sub-range of a resource, per EXT-X-BYTERANGE.
// Offset absent (nil) means "immediately after the previous sub-range".
type ByteRange struct {
	Length int64
	Offset *int64
}

// EncryptionKey describes the EXT-X-KEY state in effect for a segment.
// When Method is EncryptionMethodNone, every other field MUST be zero/empty.
type EncryptionKey struct {
	Method            EncryptionMethod
	URI               string
	IV                []byte
	KeyFormat         string
	KeyFormatVersions string
}

// MediaInitSection describes an EXT-X-MAP entry.
type MediaInitSection struct {
	URI       string
	ByteRange *ByteRange
}

// Segment is one EXTINF entry in a media playlist. Partials holds the
// #EXT-X-PART lines that precede this segment's own EXTINF line (the
// completed low-latency parts belonging to it); they render before, not
// after, the EXTINF.
type Segment struct {
	Duration         float64
	URI              string
	Title            string
	ByteRange        *ByteRange
	Key              *EncryptionKey
	Map              *MediaInitSection
	ProgramDateTime  *time.Time
	Discontinuity    bool
	IsGap            bool
	Bitrate          *int64
	Partials         []PartialSegment
}

// PartialSegment is a manifest-facing EXT-X-PART entry.
type PartialSegment struct {
	URI         string
	Duration    float64
	Independent bool
	ByteRange   *ByteRange
	IsGap       bool
}

// LLPartialSegment is the pipeline-facing representation of a partial
// segment, carrying its position within the stream. Identity is the pair
// (SegmentIndex, PartialIndex).
type LLPartialSegment struct {
	PartialSegment
	SegmentIndex int
	PartialIndex int
	CreatedAt    time.Time
}

// LiveSegment is a just-produced segment flowing from the container writer
// toward the LL-HLS manager and push engine.
type LiveSegment struct {
	Index           int
	Data            []byte
	Duration        float64
	Timestamp       time.Time
	IsIndependent   bool
	Discontinuity   bool
	ProgramDateTime *time.Time
	Filename        string
	FrameCount      int
	Codecs          []string
}

// ContentType returns the MIME type for this segment's container format.
func (l *LiveSegment) ContentType(format ContainerFormat) string {
	if format == ContainerFormatFMP4 {
		return "video/mp4"
	}
	return "video/MP2T"
}

// ServerControlConfig models the EXT-X-SERVER-CONTROL attributes.
type ServerControlConfig struct {
	CanBlockReload   bool
	HoldBack         *float64
	PartHoldBack     *float64
	CanSkipUntil     *float64
	CanSkipDateRanges bool
}

// EffectiveHoldBack returns HoldBack, defaulting to 3x targetDuration.
func (s *ServerControlConfig) EffectiveHoldBack(targetDuration float64) float64 {
	if s.HoldBack != nil {
		return *s.HoldBack
	}
	return 3 * targetDuration
}

// EffectivePartHoldBack returns PartHoldBack, defaulting to 3x partTargetDuration.
func (s *ServerControlConfig) EffectivePartHoldBack(partTargetDuration float64) float64 {
	if s.PartHoldBack != nil {
		return *s.PartHoldBack
	}
	return 3 * partTargetDuration
}

// RenditionType is the EXT-X-MEDIA TYPE attribute.
type RenditionType string

const (
	RenditionTypeAudio          RenditionType = "AUDIO"
	RenditionTypeVideo          RenditionType = "VIDEO"
	RenditionTypeSubtitles      RenditionType = "SUBTITLES"
	RenditionTypeClosedCaptions RenditionType = "CLOSED-CAPTIONS"
)

// Rendition is one EXT-X-MEDIA entry, grouped by (Type, GroupID).
type Rendition struct {
	Type            RenditionType
	GroupID         string
	Name            string
	Language        string
	AssocLanguage   string
	Default         bool
	AutoSelect      bool
	Forced          bool
	URI             string
	Channels        string
	InstreamID      string
}

// Variant is one EXT-X-STREAM-INF/URI pair in a master playlist.
type Variant struct {
	URI              string
	Bandwidth        int64
	AverageBandwidth *int64
	Codecs           string
	Resolution       *Resolution
	FrameRate        *float64
	Audio            string
	Video            string
	Subtitles        string
	ClosedCaptions   string
	HDCPLevel        string
}

// IFrameVariant is one EXT-X-I-FRAME-STREAM-INF entry.
type IFrameVariant struct {
	URI              string
	Bandwidth        int64
	AverageBandwidth *int64
	Codecs           string
	Resolution       *Resolution
}

// SessionData is one EXT-X-SESSION-DATA entry.
type SessionData struct {
	DataID   string
	Value    string
	URI      string
	Language string
}

// SessionKey is one EXT-X-SESSION-KEY entry.
type SessionKey struct {
	Key EncryptionKey
}

// ContentSteering is the EXT-X-CONTENT-STEERING entry.
type ContentSteering struct {
	ServerURI string
	PathwayID string
}

// Definition is one EXT-X-DEFINE entry.
type Definition struct {
	Name  string
	Value string
	Import string
}

// SkipInfo models an EXT-X-SKIP delta-update tag.
type SkipInfo struct {
	SkippedSegments       int
	RecentlyRemovedDateRanges []string
}

// RenditionReport is one EXT-X-RENDITION-REPORT entry.
type RenditionReport struct {
	URI          string
	LastMSN      int
	LastPart     *int
}

// PreloadHint is one EXT-X-PRELOAD-HINT entry.
type PreloadHint struct {
	Type      string // "PART" or "MAP"
	URI       string
	ByteRange *ByteRange
}

// MediaPlaylist is the full in-memory model of an HLS media playlist.
type MediaPlaylist struct {
	Version                int
	TargetDuration         int
	MediaSequence          int
	DiscontinuitySequence  int
	PlaylistType           *PlaylistType
	HasEndlist             bool
	IndependentSegments    bool
	Segments               []Segment

	// LL-HLS fields. PartialSegments holds only parts trailing the last
	// completed segment (the in-progress segment with no EXTINF yet);
	// parts belonging to a completed segment live on that Segment's own
	// Partials field instead, so they render in the right order.
	PartTargetDuration *float64
	ServerControl      *ServerControlConfig
	PartialSegments    []PartialSegment
	PreloadHints       []PreloadHint
	RenditionReports   []RenditionReport
	Skip               *SkipInfo
}

// MasterPlaylist is the full in-memory model of an HLS master playlist.
type MasterPlaylist struct {
	Version             int
	Variants            []Variant
	IFrameVariants      []IFrameVariant
	Renditions          []Rendition
	SessionData         []SessionData
	SessionKeys         []SessionKey
	ContentSteering     *ContentSteering
	IndependentSegments bool
	StartOffset         *float64
	Definitions         []Definition
}

// TSCodecConfig carries the decoder configuration the MPEG-TS writer needs
// in order to emit SPS/PPS/VPS and ADTS headers.
type TSCodecConfig struct {
	SPS              [][]byte
	PPS              [][]byte
	VPS              [][]byte
	AACConfig        []byte
	VideoStreamType  VideoStreamType
	AudioStreamType  AudioStreamType
}

// VideoStreamType enumerates the video codecs the TS writer supports.
type VideoStreamType string

const (
	VideoStreamTypeNone VideoStreamType = ""
	VideoStreamTypeH264 VideoStreamType = "H.264"
	VideoStreamTypeH265 VideoStreamType = "H.265"
)

// AudioStreamType enumerates the audio codecs the TS writer supports.
type AudioStreamType string

const (
	AudioStreamTypeNone AudioStreamType = ""
	AudioStreamTypeAAC  AudioStreamType = "AAC"
)
