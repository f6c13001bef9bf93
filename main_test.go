package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidtok/db"
	"vidtok/relay"
)

// --- helpers ---

const chartJSON = `{"items":[
	{"id":"abcDEF12345","snippet":{"title":"Long one","channelId":"UC1","thumbnails":{"high":{"url":"https://i/1.jpg"}}},
	 "contentDetails":{"duration":"PT10M5S"},"statistics":{"viewCount":"1500"}},
	{"id":"shortVID001","snippet":{"title":"Short"},"contentDetails":{"duration":"PT30S"},"statistics":{"viewCount":"9"}}
]}`

type stubResolver struct {
	md  relay.Metadata
	err error
}

func (s stubResolver) Resolve(context.Context, string) (relay.Metadata, error) { return s.md, s.err }

func testConfig(t *testing.T, upstreamURL string) Config {
	t.Helper()
	return Config{
		JWTSecret:       "test-secret",
		CacheDir:        filepath.Join(t.TempDir(), "cache"),
		YouTubeAPIKey:   "test-key",
		YouTubeEndpoint: upstreamURL,
		RegionCode:      "US",
		ViewedWindow:    48 * time.Hour,
		PingTimeout:     time.Second,
		ResolveTimeout:  time.Second,
		RateLimitRPS:    1000,
		RateLimitBurst:  1000,
	}
}

func newTestApp(t *testing.T, cfg Config, res relay.Resolver) http.Handler {
	t.Helper()
	database, err := db.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := newApp(context.Background(), cfg, logger, database, res)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	return app.routes()
}

func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/youtube/v3/videos" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chartJSON)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, h http.Handler, method, url, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode json %q: %v", rec.Body.String(), err)
	}
}

// --- config ---

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CACHE_DIR", "/tmp/vt")
	cfg := loadConfig()
	if cfg.Port != "8888" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.ViewedWindow != 48*time.Hour || cfg.ResolveTimeout != 10*time.Second || cfg.RelayConnectTimeout != 30*time.Second {
		t.Errorf("durations = %v %v %v", cfg.ViewedWindow, cfg.ResolveTimeout, cfg.RelayConnectTimeout)
	}
	if cfg.LogFile != filepath.Join("/tmp/vt", "backend.log") {
		t.Errorf("LogFile = %q", cfg.LogFile)
	}
	if cfg.Resolver != "script" || cfg.DBDriver != "sqlite" || cfg.RegionCode != "US" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("CACHE_MAX_BYTES", "2GiB")
	t.Setenv("VIEWED_WINDOW", "24h")
	t.Setenv("RESOLVE_TIMEOUT", "not-a-duration")
	t.Setenv("RESOLVER", "YTDLP")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u@h/db")

	cfg := loadConfig()
	if cfg.CacheMaxBytes != 2<<30 {
		t.Errorf("CacheMaxBytes = %d", cfg.CacheMaxBytes)
	}
	if cfg.ViewedWindow != 24*time.Hour {
		t.Errorf("ViewedWindow = %v", cfg.ViewedWindow)
	}
	if cfg.ResolveTimeout != 10*time.Second {
		t.Errorf("invalid duration should fall back, got %v", cfg.ResolveTimeout)
	}
	if cfg.Resolver != "ytdlp" || cfg.RateLimitRPS != 2.5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.dsn() != "postgres://u@h/db" {
		t.Errorf("dsn = %q", cfg.dsn())
	}
	if _, ok := newResolver(cfg).(*relay.YTDLPResolver); !ok {
		t.Errorf("resolver = %T", newResolver(cfg))
	}
}

// --- routes ---

func TestHealthAndMetrics(t *testing.T) {
	h := newTestApp(t, testConfig(t, fakeUpstream(t).URL), stubResolver{})

	if rec := do(t, h, "GET", "/health", "", ""); rec.Code != 200 {
		t.Fatalf("health = %d", rec.Code)
	}
	rec := do(t, h, "GET", "/metrics", "", "")
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), "vidtok_http_requests_total") {
		t.Fatalf("metrics = %d %.200s", rec.Code, rec.Body.String())
	}
}

func TestTrending_ExcludesViewedAndShorts(t *testing.T) {
	h := newTestApp(t, testConfig(t, fakeUpstream(t).URL), stubResolver{})

	rec := do(t, h, "GET", "/api/feed/trending", "", "")
	if rec.Code != 200 {
		t.Fatalf("trending = %d %s", rec.Code, rec.Body.String())
	}
	var page struct {
		Videos []struct {
			ID       string `json:"id"`
			Duration string `json:"duration"`
			Views    string `json:"views"`
		} `json:"videos"`
	}
	decodeJSON(t, rec, &page)
	if len(page.Videos) != 1 || page.Videos[0].ID != "abcDEF12345" {
		t.Fatalf("videos = %+v", page.Videos)
	}
	if page.Videos[0].Duration != "10:05" || page.Videos[0].Views != "1.5K views" {
		t.Errorf("formatted = %+v", page.Videos[0])
	}

	if rec := do(t, h, "POST", "/api/viewed/abcDEF12345", "", ""); rec.Code != 201 {
		t.Fatalf("mark viewed = %d", rec.Code)
	}
	decodeJSON(t, do(t, h, "GET", "/api/feed/trending", "", ""), &page)
	if len(page.Videos) != 0 {
		t.Errorf("viewed video still in trending: %+v", page.Videos)
	}
}

func TestLikes_ScopedByToken(t *testing.T) {
	h := newTestApp(t, testConfig(t, fakeUpstream(t).URL), stubResolver{})

	rec := do(t, h, "POST", "/api/auth/register", `{"username":"alice","password":"password123"}`, "")
	if rec.Code != 201 {
		t.Fatalf("register = %d %s", rec.Code, rec.Body.String())
	}
	var reg map[string]string
	decodeJSON(t, rec, &reg)
	token := reg["token"]

	rec = do(t, h, "POST", "/api/likes/abcDEF12345/toggle", `{"title":"Long one"}`, token)
	var liked map[string]bool
	decodeJSON(t, rec, &liked)
	if !liked["liked"] {
		t.Fatalf("toggle = %s", rec.Body.String())
	}

	var list []map[string]interface{}
	decodeJSON(t, do(t, h, "GET", "/api/likes", "", token), &list)
	if len(list) != 1 {
		t.Errorf("alice likes = %v", list)
	}
	decodeJSON(t, do(t, h, "GET", "/api/likes", "", ""), &list)
	if len(list) != 0 {
		t.Errorf("default profile likes = %v", list)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t, fakeUpstream(t).URL)
	cfg.RateLimitRPS, cfg.RateLimitBurst = 0.001, 1
	h := newTestApp(t, cfg, stubResolver{})

	if rec := do(t, h, "GET", "/api/settings", "", ""); rec.Code != 200 {
		t.Fatalf("first = %d", rec.Code)
	}
	rec := do(t, h, "GET", "/api/settings", "", "")
	if rec.Code != 429 || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("second = %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/health", "", ""); rec.Code != 200 {
		t.Errorf("health should not be limited, got %d", rec.Code)
	}
}

func TestStream_Unavailable(t *testing.T) {
	res := stubResolver{err: &relay.UnavailableError{Message: "Video unavailable"}}
	h := newTestApp(t, testConfig(t, fakeUpstream(t).URL), res)

	rec := do(t, h, "GET", "/stream/abcDEF12345", "", "")
	if rec.Code != 404 || rec.Body.String() != "Video unavailable" {
		t.Fatalf("stream = %d %q", rec.Code, rec.Body.String())
	}

	var listing struct {
		Entries []interface{} `json:"entries"`
	}
	decodeJSON(t, do(t, h, "GET", "/api/cache", "", ""), &listing)
	if len(listing.Entries) != 0 {
		t.Errorf("cache entries = %v", listing.Entries)
	}
}

func TestStream_RelaysSource(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "mp4-bytes")
	}))
	t.Cleanup(src.Close)
	res := stubResolver{md: relay.Metadata{StreamURL: src.URL, Filesize: 9}}
	h := newTestApp(t, testConfig(t, fakeUpstream(t).URL), res)

	rec := do(t, h, "GET", "/stream/abcDEF12345", "", "")
	if rec.Code != 200 || rec.Body.String() != "mp4-bytes" || rec.Header().Get("Content-Type") != "video/mp4" {
		t.Fatalf("stream = %d %q %v", rec.Code, rec.Body.String(), rec.Header())
	}

	var listing struct {
		Entries []struct {
			VideoID string `json:"videoId"`
			State   string `json:"state"`
		} `json:"entries"`
	}
	decodeJSON(t, do(t, h, "GET", "/api/cache", "", ""), &listing)
	if len(listing.Entries) != 1 || listing.Entries[0].State != "complete" {
		t.Errorf("cache entries = %+v", listing.Entries)
	}
}

// --- admin ---

func TestAdminRoutes(t *testing.T) {
	up := fakeUpstream(t)

	h := newTestApp(t, testConfig(t, up.URL), stubResolver{})
	if rec := do(t, h, "POST", "/api/admin/login", `{"username":"admin","password":""}`, ""); rec.Code == 200 {
		t.Fatal("admin login mounted without a password")
	}

	cfg := testConfig(t, up.URL)
	cfg.AdminUsername = "admin"
	cfg.AdminPassword = "hunter2"
	cfg.AdminJWTSecret = "admin-secret"
	h = newTestApp(t, cfg, stubResolver{})

	if rec := do(t, h, "GET", "/api/admin/status", "", ""); rec.Code != 401 {
		t.Fatalf("status without token = %d, want 401", rec.Code)
	}
	rec := do(t, h, "POST", "/api/admin/login", `{"username":"admin","password":"hunter2"}`, "")
	if rec.Code != 200 {
		t.Fatalf("login = %d: %s", rec.Code, rec.Body.String())
	}
	var login map[string]string
	decodeJSON(t, rec, &login)

	rec = do(t, h, "GET", "/api/admin/status", "", login["token"])
	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var status map[string]interface{}
	decodeJSON(t, rec, &status)
	if _, ok := status["cache"]; !ok {
		t.Errorf("status missing cache section: %v", status)
	}
}
