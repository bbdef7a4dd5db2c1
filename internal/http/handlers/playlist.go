package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nullshard/hlspackager/internal/llhls"
	"github.com/nullshard/hlspackager/internal/session"
)

// mimeM3U8 is the IANA-registered MIME type for HLS playlists.
const mimeM3U8 = "application/vnd.apple.mpegurl"

// PlaylistHandler serves a session's media and master playlists, including
// the blocking-reload long-poll protocol of _HLS_msn/_HLS_part/_HLS_skip.
type PlaylistHandler struct {
	sup *session.Supervisor
}

// NewPlaylistHandler creates a PlaylistHandler over sup.
func NewPlaylistHandler(sup *session.Supervisor) *PlaylistHandler {
	return &PlaylistHandler{sup: sup}
}

// Register mounts the playlist routes onto r.
func (h *PlaylistHandler) Register(r chi.Router) {
	r.Get("/{stream}/playlist.m3u8", h.ServeMedia)
	r.Get("/{stream}/master.m3u8", h.ServeMaster)
}

// ServeMedia handles GET /{stream}/playlist.m3u8, parsing the blocking
// reload query parameters and dispatching into the session's LL-HLS
// manager when the request names a live session.
func (h *PlaylistHandler) ServeMedia(w http.ResponseWriter, r *http.Request) {
	stream := chi.URLParam(r, "stream")

	req, skip, hasBlocking := parseBlockingQuery(r)

	var (
		text string
		err  error
	)
	if hasBlocking {
		text, err = h.sup.AwaitPlaylist(r.Context(), stream, req, skip)
	} else {
		text, err = h.sup.Playlist(stream)
	}
	if err != nil {
		writePlaylistError(w, err)
		return
	}

	w.Header().Set("Content-Type", mimeM3U8)
	_, _ = w.Write([]byte(text))
}

// ServeMaster handles GET /{stream}/master.m3u8. The session model packages
// one video+audio rendition per session name, so the master playlist here
// is a single-variant pointer at that session's media playlist; deployments
// wanting adaptive bitrate front multiple sessions behind one master built
// by the operator, outside this handler.
func (h *PlaylistHandler) ServeMaster(w http.ResponseWriter, r *http.Request) {
	stream := chi.URLParam(r, "stream")

	if _, err := h.sup.Playlist(stream); err != nil {
		writePlaylistError(w, err)
		return
	}

	text := renderSingleVariantMaster(stream)
	w.Header().Set("Content-Type", mimeM3U8)
	_, _ = w.Write([]byte(text))
}

func parseBlockingQuery(r *http.Request) (llhls.BlockingRequest, *llhls.SkipRequest, bool) {
	q := r.URL.Query()
	msnStr := q.Get("_HLS_msn")
	if msnStr == "" {
		return llhls.BlockingRequest{}, nil, false
	}

	req := llhls.BlockingRequest{}
	if msn, err := strconv.Atoi(msnStr); err == nil {
		req.MSN = msn
	}
	if partStr := q.Get("_HLS_part"); partStr != "" {
		if part, err := strconv.Atoi(partStr); err == nil {
			req.Part = &part
		}
	}

	var skip *llhls.SkipRequest
	if skipStr := q.Get("_HLS_skip"); skipStr != "" {
		req.HasSkip = true
		req.SkipDeltaV2 = skipStr == "v2"
		skip = &llhls.SkipRequest{V2: req.SkipDeltaV2}
	}

	return req, skip, true
}

func writePlaylistError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSessionNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		http.Error(w, "blocking playlist request timed out", http.StatusGatewayTimeout)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func renderSingleVariantMaster(stream string) string {
	return "#EXTM3U\n" +
		"#EXT-X-VERSION:7\n" +
		"#EXT-X-INDEPENDENT-SEGMENTS\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=0\n" +
		"playlist.m3u8\n"
}
