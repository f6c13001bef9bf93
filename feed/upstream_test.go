package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

// fakeYouTube serves canned search and videos responses and records the
// query of every request.
type fakeYouTube struct {
	mu       sync.Mutex
	requests []*url.URL
	videos   func(q url.Values) (int, interface{})
	search   func(q url.Values) (int, interface{})
}

func (f *fakeYouTube) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.URL)
	f.mu.Unlock()

	var status int
	var body interface{}
	switch r.URL.Path {
	case "/youtube/v3/videos":
		status, body = f.videos(r.URL.Query())
	case "/youtube/v3/search":
		status, body = f.search(r.URL.Query())
	default:
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if s, ok := body.(string); ok {
		w.Write([]byte(s))
		return
	}
	json.NewEncoder(w).Encode(body)
}

func (f *fakeYouTube) lastQuery(path string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].Path == path {
			return f.requests[i].Query()
		}
	}
	return nil
}

func (f *fakeYouTube) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.requests {
		if u.Path == path {
			n++
		}
	}
	return n
}

func apiError(code int, reason string) (int, interface{}) {
	return code, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": reason,
			"errors":  []map[string]string{{"reason": reason}},
		},
	}
}

func newTestUpstream(t *testing.T, f *fakeYouTube) *Upstream {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	u, err := NewUpstream(context.Background(), UpstreamConfig{
		APIKey:   "test-key",
		Endpoint: srv.URL,
		Retry:    RetryPolicy{MaxRetries: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2},
	})
	if err != nil {
		t.Fatalf("NewUpstream: %v", err)
	}
	return u
}

func videoJSON(id, duration string) map[string]interface{} {
	return map[string]interface{}{
		"id":             id,
		"snippet":        map[string]interface{}{"title": "Video " + id, "thumbnails": map[string]interface{}{"high": map[string]string{"url": "thumb-" + id}}},
		"contentDetails": map[string]string{"duration": duration},
		"statistics":     map[string]string{"viewCount": "1234"},
	}
}

func TestUpstream_Chart(t *testing.T) {
	f := &fakeYouTube{videos: func(q url.Values) (int, interface{}) {
		return 200, map[string]interface{}{
			"items":         []interface{}{videoJSON("v1", "PT2M10S")},
			"nextPageToken": "next-page",
		}
	}}
	u := newTestUpstream(t, f)

	items, next, err := u.Chart(context.Background(), "US", 20, "page-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Id != "v1" || items[0].Statistics.ViewCount != 1234 {
		t.Fatalf("items = %+v", items)
	}
	if next != "next-page" {
		t.Errorf("next = %q", next)
	}

	q := f.lastQuery("/youtube/v3/videos")
	for key, want := range map[string]string{
		"chart":      "mostPopular",
		"regionCode": "US",
		"maxResults": "20",
		"pageToken":  "page-1",
		"key":        "test-key",
	} {
		if got := q.Get(key); got != want {
			t.Errorf("query %s = %q, want %q", key, got, want)
		}
	}
}

func TestUpstream_SearchRelatedAndVideosOrder(t *testing.T) {
	f := &fakeYouTube{
		search: func(q url.Values) (int, interface{}) {
			return 200, map[string]interface{}{
				"items": []interface{}{
					map[string]interface{}{"id": map[string]string{"videoId": "b"}},
					map[string]interface{}{"id": map[string]string{"videoId": "a"}},
					map[string]interface{}{"id": map[string]string{"channelId": "skip"}},
				},
				"nextPageToken": "tok",
			}
		},
		videos: func(q url.Values) (int, interface{}) {
			return 200, map[string]interface{}{
				"items": []interface{}{videoJSON("a", "PT3M"), videoJSON("b", "PT4M")},
			}
		},
	}
	u := newTestUpstream(t, f)
	ctx := context.Background()

	ids, next, err := u.SearchVideoIDs(ctx, SearchQuery{RelatedToVideo: "seed", MaxResults: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "a" || next != "tok" {
		t.Fatalf("ids = %v next = %q", ids, next)
	}
	sq := f.lastQuery("/youtube/v3/search")
	if sq.Get("relatedToVideoId") != "seed" || sq.Get("type") != "video" || sq.Get("maxResults") != "10" {
		t.Errorf("search query = %v", sq)
	}

	videos, err := u.Videos(ctx, ids)
	if err != nil {
		t.Fatal(err)
	}
	if len(videos) != 2 || videos[0].Id != "b" || videos[1].Id != "a" {
		t.Errorf("videos not in search order: %v, %v", videos[0].Id, videos[1].Id)
	}
	if got := f.lastQuery("/youtube/v3/videos").Get("id"); got != "b,a" {
		t.Errorf("videos id param = %q", got)
	}
}

func TestUpstream_VideosEmptyIDsSkipsCall(t *testing.T) {
	f := &fakeYouTube{}
	u := newTestUpstream(t, f)
	videos, err := u.Videos(context.Background(), nil)
	if err != nil || videos != nil {
		t.Fatalf("videos = %v, err = %v", videos, err)
	}
	if f.count("/youtube/v3/videos") != 0 {
		t.Error("upstream called for empty id list")
	}
}

func TestUpstream_RateLimitedAfterRetries(t *testing.T) {
	f := &fakeYouTube{videos: func(url.Values) (int, interface{}) {
		return apiError(429, "rateLimitExceeded")
	}}
	u := newTestUpstream(t, f)

	_, _, err := u.Chart(context.Background(), "US", 20, "")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if n := f.count("/youtube/v3/videos"); n != 4 {
		t.Errorf("attempts = %d, want 4", n)
	}
}

func TestUpstream_RetriesServerErrorThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	f := &fakeYouTube{videos: func(url.Values) (int, interface{}) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return apiError(503, "backendError")
		}
		return 200, map[string]interface{}{"items": []interface{}{videoJSON("ok", "PT5M")}}
	}}
	u := newTestUpstream(t, f)

	items, _, err := u.Chart(context.Background(), "US", 20, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Errorf("items = %d", len(items))
	}
}

func TestUpstream_MalformedBody(t *testing.T) {
	f := &fakeYouTube{videos: func(url.Values) (int, interface{}) {
		return 200, `{"items": [`
	}}
	u := newTestUpstream(t, f)

	_, _, err := u.Chart(context.Background(), "US", 20, "")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
	if n := f.count("/youtube/v3/videos"); n != 1 {
		t.Errorf("malformed body retried: %d attempts", n)
	}
}

func TestUpstream_PingDoesNotRetry(t *testing.T) {
	f := &fakeYouTube{videos: func(url.Values) (int, interface{}) {
		return apiError(503, "backendError")
	}}
	u := newTestUpstream(t, f)

	if err := u.Ping(context.Background(), "US"); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if n := f.count("/youtube/v3/videos"); n != 1 {
		t.Errorf("ping attempts = %d, want 1", n)
	}
}
