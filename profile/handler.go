package profile

import (
	"log/slog"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vidtok/auth"
	"vidtok/httputil"
	"vidtok/store"
)

// Handler holds dependencies for per-profile state: preferences, player
// settings, playback positions and the viewed ledger.
type Handler struct {
	Store *store.Store
}

// HandleGetPreferences returns the saved preferences, or null before
// onboarding.
func (h *Handler) HandleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.Store.Preferences(r.Context(), auth.ProfileID(r))
	if err != nil {
		slog.Error("load preferences", "err", err)
		httputil.WriteJSON(w, 500, map[string]string{"error": "failed to load preferences"})
		return
	}
	httputil.WriteJSON(w, 200, prefs)
}

// HandleUpdatePreferences replaces the channel and topic lists.
func (h *Handler) HandleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Channels []string `json:"channels"`
		Topics   []string `json:"topics"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteJSON(w, 400, map[string]string{"error": "invalid request body"})
		return
	}

	prefs, err := h.Store.SavePreferences(r.Context(), auth.ProfileID(r), req.Channels, req.Topics)
	if err != nil {
		slog.Error("save preferences", "err", err)
		httputil.WriteJSON(w, 500, map[string]string{"error": "failed to update preferences"})
		return
	}
	httputil.WriteJSON(w, 200, prefs)
}

func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.Store.Settings(r.Context(), auth.ProfileID(r))
	if err != nil {
		slog.Error("load settings", "err", err)
		httputil.WriteJSON(w, 500, map[string]string{"error": "failed to load settings"})
		return
	}
	httputil.WriteJSON(w, 200, st)
}

// HandleUpdateSettings merges {volume?, muted?} into the saved settings.
func (h *Handler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *float64 `json:"volume"`
		Muted  *bool    `json:"muted"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteJSON(w, 400, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Volume != nil && (math.IsNaN(*req.Volume) || *req.Volume < 0 || *req.Volume > 1) {
		httputil.WriteJSON(w, 400, map[string]string{"error": "volume must be between 0 and 1"})
		return
	}

	profileID := auth.ProfileID(r)
	st, err := h.Store.Settings(r.Context(), profileID)
	if err != nil {
		slog.Error("load settings", "err", err)
		httputil.WriteJSON(w, 500, map[string]string{"error": "failed to update settings"})
		return
	}
	if req.Volume != nil {
		st.Volume = *req.Volume
	}
	if req.Muted != nil {
		st.Muted = *req.Muted
	}
	if err := h.Store.SaveSettings(r.Context(), profileID, st); err != nil {
		slog.Error("save settings", "err", err)
		httputil.WriteJSON(w, 500, map[string]string{"error": "failed to update settings"})
		return
	}
	httputil.WriteJSON(w, 200, st)
}

func videoParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "videoId")
	if !store.ValidVideoID(id) {
		httputil.WriteJSON(w, 400, map[string]string{"error": "invalid video id"})
		return "", false
	}
	return id, true
}

// HandleGetPosition returns {position}, 0 for videos never played.
func (h *Handler) HandleGetPosition(w http.ResponseWriter, r *http.Request) {
	videoID, ok := videoParam(w, r)
	if !ok {
		return
	}
	pos, err := h.Store.Position(r.Context(), auth.ProfileID(r), videoID)
	if err != nil {
		slog.Error("load position", "video", videoID, "err", err)
		httputil.WriteJSON(w, 500, map[string]string{"error": "failed to load position"})
		return
	}
	httputil.WriteJSON(w, 200, map[string]float64{"position": pos})
}

func (h *Handler) HandleSavePosition(w http.ResponseWriter, r *http.Request) {
	videoID, ok := videoParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Position *float64 `json:"position"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil || req.Position == nil {
		httputil.WriteJSON(w, 400, map[string]string{"error": "position required"})
		return
	}
	if math.IsNaN(*req.Position) || math.IsInf(*req.Position, 0) || *req.Position < 0 {
		httputil.WriteJSON(w, 400, map[string]string{"error": "position must be a non-negative number"})
		return
	}
	if err := h.Store.SavePosition(r.Context(), auth.ProfileID(r), videoID, *req.Position); err != nil {
		slog.Error("save position", "video", videoID, "err", err)
		httputil.WriteJSON(w, 500, map[string]string{"error": "failed to save position"})
		return
	}
	httputil.WriteJSON(w, 200, map[string]float64{"position": *req.Position})
}

// HandleMarkViewed appends a viewed record for the video.
func (h *Handler) HandleMarkViewed(w http.ResponseWriter, r *http.Request) {
	videoID, ok := videoParam(w, r)
	if !ok {
		return
	}
	v, err := h.Store.MarkViewed(r.Context(), auth.ProfileID(r), videoID)
	if err != nil {
		slog.Error("mark viewed", "video", videoID, "err", err)
		httputil.WriteJSON(w, 500, map[string]string{"error": "failed to mark viewed"})
		return
	}
	httputil.WriteJSON(w, 201, v)
}
