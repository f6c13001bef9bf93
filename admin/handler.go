package admin

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang-jwt/jwt/v5"

	"vidtok/cache"
	"vidtok/db"
	"vidtok/httputil"
)

// Handler holds dependencies for admin endpoints. Admin login is disabled
// while Password is empty.
type Handler struct {
	DB             *db.CompatDB
	Cache          *cache.Store
	AdminUsername  string
	AdminPassword  string
	AdminJWTSecret string
	Started        time.Time
}

// HandleAdminLogin authenticates the admin user and returns a JWT.
func (h *Handler) HandleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if h.AdminPassword == "" {
		httputil.WriteJSON(w, 404, map[string]string{"error": "admin disabled"})
		return
	}
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteJSON(w, 400, map[string]string{"error": "invalid request"})
		return
	}

	usernameOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.AdminUsername)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.AdminPassword)) == 1
	if !usernameOK || !passwordOK {
		httputil.WriteJSON(w, 401, map[string]string{"error": "invalid credentials"})
		return
	}

	claims := jwt.MapClaims{
		"sub":   "admin",
		"admin": true,
		"exp":   time.Now().Add(24 * time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString([]byte(h.AdminJWTSecret))
	if err != nil {
		httputil.WriteJSON(w, 500, map[string]string{"error": "failed to generate token"})
		return
	}
	httputil.WriteJSON(w, 200, map[string]string{"token": tokenStr})
}

// IsAdminToken validates the Bearer JWT and checks the admin:true claim.
func (h *Handler) IsAdminToken(r *http.Request) bool {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(h.AdminJWTSecret), nil
	})
	if err != nil || !token.Valid {
		return false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}
	isAdmin, _ := claims["admin"].(bool)
	return isAdmin
}

// AdminAuthMiddleware protects admin endpoints.
func (h *Handler) AdminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.IsAdminToken(r) {
			httputil.WriteJSON(w, 401, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleAdminStatus returns system, database and cache stats.
func (h *Handler) HandleAdminStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := map[string]interface{}{
		"system": map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory":     humanize.IBytes(m.Alloc),
			"os_threads": runtime.GOMAXPROCS(0),
			"go_version": runtime.Version(),
			"uptime":     humanize.RelTime(h.Started, time.Now(), "", ""),
		},
	}

	var profiles, likes, viewed, preferences int
	if err := h.DB.QueryRowContext(r.Context(), `
		SELECT
			(SELECT COUNT(*) FROM profiles),
			(SELECT COUNT(*) FROM likes),
			(SELECT COUNT(*) FROM viewed),
			(SELECT COUNT(*) FROM preferences)
	`).Scan(&profiles, &likes, &viewed, &preferences); err != nil {
		slog.Warn("admin status: stats query failed", "err", err)
	}
	stats["database"] = map[string]interface{}{
		"dialect":     string(h.DB.Dialect),
		"profiles":    profiles,
		"likes":       likes,
		"viewed":      viewed,
		"preferences": preferences,
	}

	entries := h.Cache.List()
	byState := map[cache.State]int{}
	var recentFailed []cache.Entry
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		byState[e.State]++
		if e.State == cache.StateFailed && len(recentFailed) < 10 {
			recentFailed = append(recentFailed, e)
		}
	}
	usage, err := h.Cache.Usage()
	if err != nil {
		slog.Warn("admin status: cache usage failed", "err", err)
	}
	stats["cache"] = map[string]interface{}{
		"dir":         h.Cache.Dir(),
		"downloading": byState[cache.StateDownloading],
		"complete":    byState[cache.StateComplete],
		"failed":      byState[cache.StateFailed],
		"bytes":       usage,
		"size":        humanize.IBytes(uint64(usage)),
	}
	stats["recent_failures"] = recentFailed

	httputil.WriteJSON(w, 200, stats)
}

// HandleClearFailed evicts every video whose only cache entries are failed
// downloads.
func (h *Handler) HandleClearFailed(w http.ResponseWriter, r *http.Request) {
	failedOnly := map[string]bool{}
	for _, e := range h.Cache.List() {
		ok, seen := failedOnly[e.VideoID]
		failedOnly[e.VideoID] = (ok || !seen) && e.State == cache.StateFailed
	}

	cleared := 0
	for videoID, failed := range failedOnly {
		if !failed {
			continue
		}
		if err := h.Cache.Evict(r.Context(), videoID); err != nil {
			slog.Warn("admin clear-failed: evict", "video", videoID, "err", err)
			continue
		}
		cleared++
	}
	slog.Info("admin: cleared failed downloads", "videos", cleared)
	httputil.WriteJSON(w, 200, map[string]interface{}{"cleared": cleared})
}
