package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nullshard/hlspackager/internal/session"
)

// SegmentHandler serves retained segment, partial, and init segment bytes
// from a session's in-memory artifact store.
type SegmentHandler struct {
	sup *session.Supervisor
}

// NewSegmentHandler creates a SegmentHandler over sup.
func NewSegmentHandler(sup *session.Supervisor) *SegmentHandler {
	return &SegmentHandler{sup: sup}
}

// Register mounts the segment route onto r.
func (h *SegmentHandler) Register(r chi.Router) {
	r.Get("/{stream}/{segment}", h.ServeSegment)
}

func (h *SegmentHandler) ServeSegment(w http.ResponseWriter, r *http.Request) {
	stream := chi.URLParam(r, "stream")
	name := chi.URLParam(r, "segment")

	data, err := h.sup.Artifact(stream, name)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "segment not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentTypeForFilename(name))
	_, _ = w.Write(data)
}

// contentTypeForFilename maps a segment/init filename's extension to its
// MIME type, mirroring the corpus's per-segment ContentType() lookup.
func contentTypeForFilename(name string) string {
	switch {
	case strings.HasSuffix(name, ".m3u8"):
		return mimeM3U8
	case strings.HasSuffix(name, ".m4s"), strings.HasSuffix(name, ".mp4"):
		return "video/mp4"
	case strings.HasSuffix(name, ".ts"):
		return "video/MP2T"
	default:
		return "application/octet-stream"
	}
}
