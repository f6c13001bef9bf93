package likes

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"vidtok/auth"
	"vidtok/httputil"
	"vidtok/store"
)

const maxListLimit = 500

// Handler holds dependencies for the like endpoints.
type Handler struct {
	Store *store.Store
}

type toggleRequest struct {
	Title    string                 `json:"title"`
	Metadata map[string]interface{} `json:"metadata"`
}

func videoParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "videoId")
	if !store.ValidVideoID(id) {
		httputil.WriteError(w, 400, "invalid video id")
		return "", false
	}
	return id, true
}

// HandleToggle flips the like state of a video and returns {liked}.
func (h *Handler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	videoID, ok := videoParam(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, 400, "invalid request body")
		return
	}

	liked, err := h.Store.ToggleLike(r.Context(), auth.ProfileID(r), videoID, req.Title, req.Metadata)
	if err != nil {
		slog.Error("toggle like", "video", videoID, "err", err)
		httputil.WriteError(w, 500, "failed to toggle like")
		return
	}
	httputil.WriteJSON(w, 200, map[string]bool{"liked": liked})
}

// HandleIsLiked returns {liked} for one video.
func (h *Handler) HandleIsLiked(w http.ResponseWriter, r *http.Request) {
	videoID, ok := videoParam(w, r)
	if !ok {
		return
	}
	liked, err := h.Store.IsLiked(r.Context(), auth.ProfileID(r), videoID)
	if err != nil {
		slog.Error("is liked", "video", videoID, "err", err)
		httputil.WriteError(w, 500, "failed to load like")
		return
	}
	httputil.WriteJSON(w, 200, map[string]bool{"liked": liked})
}

// HandleList lists the profile's likes, most recent first.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.WriteError(w, 400, "limit must be a non-negative integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	likes, err := h.Store.Likes(r.Context(), auth.ProfileID(r), limit)
	if err != nil {
		slog.Error("list likes", "err", err)
		httputil.WriteError(w, 500, "failed to list likes")
		return
	}
	if likes == nil {
		likes = make([]store.Like, 0)
	}
	httputil.WriteJSON(w, 200, likes)
}
