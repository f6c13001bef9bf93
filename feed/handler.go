package feed

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vidtok/auth"
	"vidtok/httputil"
	"vidtok/store"
)

// PreferenceSource loads saved interests for personalized feeds.
type PreferenceSource interface {
	Preferences(ctx context.Context, profileID string) (*store.Preferences, error)
}

// Handler serves the feed endpoints.
type Handler struct {
	Agg   *Aggregator
	Prefs PreferenceSource
}

// HandleTrending serves GET /api/feed/trending?pageToken=.
func (h *Handler) HandleTrending(w http.ResponseWriter, r *http.Request) {
	page, err := h.Agg.Trending(r.Context(), auth.ProfileID(r), r.URL.Query().Get("pageToken"))
	if err != nil {
		writeFetchError(w, err)
		return
	}
	httputil.WriteJSON(w, 200, page)
}

type personalizedRequest struct {
	Interests
	PageToken string `json:"pageToken"`
}

// HandlePersonalized serves GET and POST /api/feed/personalized. GET uses
// the saved preferences; POST takes {channels, topics, pageToken}.
func (h *Handler) HandlePersonalized(w http.ResponseWriter, r *http.Request) {
	profileID := auth.ProfileID(r)
	var req personalizedRequest

	if r.Method == http.MethodPost {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, 400, "invalid request body")
			return
		}
	} else {
		req.PageToken = r.URL.Query().Get("pageToken")
		if h.Prefs != nil {
			prefs, err := h.Prefs.Preferences(r.Context(), profileID)
			if err != nil {
				httputil.WriteError(w, 500, "failed to load preferences")
				return
			}
			if prefs != nil {
				req.Channels, req.Topics = prefs.Channels, prefs.Topics
			}
		}
	}

	page, err := h.Agg.Personalized(r.Context(), profileID, req.Interests, req.PageToken)
	if err != nil {
		writeFetchError(w, err)
		return
	}
	httputil.WriteJSON(w, 200, page)
}

// HandleRelated serves GET /api/feed/related/{videoId}.
func (h *Handler) HandleRelated(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoId")
	if !store.ValidVideoID(videoID) {
		httputil.WriteError(w, 400, "invalid video id")
		return
	}
	page, err := h.Agg.Related(r.Context(), videoID)
	if err != nil {
		writeFetchError(w, err)
		return
	}
	httputil.WriteJSON(w, 200, page)
}

// HandleSearchChannels serves GET /api/channels/search?q=.
func (h *Handler) HandleSearchChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.Agg.SearchChannels(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeFetchError(w, err)
		return
	}
	httputil.WriteJSON(w, 200, channels)
}

// HandlePing serves GET /api/upstream/ping.
func (h *Handler) HandlePing(w http.ResponseWriter, r *http.Request) {
	if err := h.Agg.Ping(r.Context()); err != nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"ok": true})
}

func writeFetchError(w http.ResponseWriter, err error) {
	var fe *FetchError
	if !errors.As(err, &fe) {
		httputil.WriteError(w, 500, "internal error")
		return
	}
	status := http.StatusBadGateway
	if errors.Is(err, ErrRateLimited) {
		status = http.StatusTooManyRequests
	}
	httputil.WriteError(w, status, fe.Message())
}
