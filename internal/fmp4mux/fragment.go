package fmp4mux

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/nullshard/hlspackager/pkg/hlserrors"
)

// pendingSample holds one access unit queued for the next fragment.
type pendingSample struct {
	decodeTime uint64
	duration   uint32
	ctsOffset  int32
	isSync     bool
	data       []byte
}

// Writer accumulates samples per track and emits one moof+mdat media segment
// per Flush call. Sequence numbers start at 1 and increase monotonically for
// the lifetime of the Writer.
type Writer struct {
	mu sync.Mutex

	videoTrackID uint32
	audioTrackID uint32

	video []pendingSample
	audio []pendingSample

	seq uint32
}

// NewWriter creates a Writer bound to the track IDs returned by
// BuildInitSegment.
func NewWriter(videoTrackID, audioTrackID uint32) *Writer {
	return &Writer{videoTrackID: videoTrackID, audioTrackID: audioTrackID}
}

// AddVideoSample queues one video access unit. duration and ctsOffset are in
// the video track's timescale units.
func (w *Writer) AddVideoSample(decodeTime uint64, duration uint32, ctsOffset int32, isSync bool, data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.video = append(w.video, pendingSample{decodeTime: decodeTime, duration: duration, ctsOffset: ctsOffset, isSync: isSync, data: data})
}

// AddAudioSample queues one audio access unit.
func (w *Writer) AddAudioSample(decodeTime uint64, duration uint32, data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.audio = append(w.audio, pendingSample{decodeTime: decodeTime, duration: duration, data: data})
}

// Pending reports the number of queued samples, for callers deciding when a
// segment boundary is reached.
func (w *Writer) Pending() (video, audio int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.video), len(w.audio)
}

// Flush builds the styp+moof+mdat media segment from all queued samples,
// clears the queues, and advances the sequence number.
func (w *Writer) Flush() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.video) == 0 && len(w.audio) == 0 {
		return nil, &hlserrors.InvalidMP4Error{Message: "flush called with no queued samples"}
	}

	w.seq++
	var trackIDs []uint32
	if len(w.video) > 0 {
		trackIDs = append(trackIDs, w.videoTrackID)
	}
	if len(w.audio) > 0 && w.audioTrackID != 0 {
		trackIDs = append(trackIDs, w.audioTrackID)
	}

	frag, err := mp4.CreateMultiTrackFragment(w.seq, trackIDs)
	if err != nil {
		return nil, &hlserrors.InvalidMP4Error{Message: "creating fragment: " + err.Error()}
	}

	for _, s := range w.video {
		if err := frag.AddFullSampleToTrack(toFullSample(s, true), w.videoTrackID); err != nil {
			return nil, &hlserrors.InvalidMP4Error{Message: "adding video sample: " + err.Error()}
		}
	}
	for _, s := range w.audio {
		if err := frag.AddFullSampleToTrack(toFullSample(s, false), w.audioTrackID); err != nil {
			return nil, &hlserrors.InvalidMP4Error{Message: "adding audio sample: " + err.Error()}
		}
	}

	var buf bytes.Buffer
	buf.Write(stypBox())
	if err := frag.Encode(&buf); err != nil {
		return nil, &hlserrors.InvalidMP4Error{Message: "encoding fragment: " + err.Error()}
	}

	w.video = nil
	w.audio = nil
	return buf.Bytes(), nil
}

func toFullSample(s pendingSample, isVideo bool) mp4.FullSample {
	flags := uint32(0)
	if isVideo {
		if s.isSync {
			flags = mp4.SyncSampleFlags
		} else {
			flags = mp4.NonSyncSampleFlags
		}
	}
	sample := mp4.NewSample(flags, s.duration, uint32(len(s.data)), s.ctsOffset)
	return mp4.FullSample{
		Sample:     sample,
		DecodeTime: s.decodeTime,
		Data:       s.data,
	}
}

// stypBox hand-writes a minimal CMAF segment-type box (major brand "msdh",
// compatible brand "msix"). This atom is a fixed 4-byte-aligned list with no
// nested structure, so it is written directly rather than through mp4ff.
func stypBox() []byte {
	const majorBrand = "msdh"
	brands := []string{"msdh", "msix"}

	size := 8 + 4 + 4 + 4*len(brands)
	out := make([]byte, 0, size)
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(size))
	out = append(out, sizeBuf[:]...)
	out = append(out, []byte("styp")...)
	out = append(out, []byte(majorBrand)...)
	out = append(out, 0, 0, 0, 0) // minor version
	for _, b := range brands {
		out = append(out, []byte(b)...)
	}
	return out
}
