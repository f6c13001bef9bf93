package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"vidtok/metrics"
)

var videoParts = []string{"snippet", "contentDetails", "statistics"}

// UpstreamConfig configures the YouTube Data API client.
type UpstreamConfig struct {
	APIKey string
	// Endpoint overrides the API base URL, e.g. for a local fake.
	Endpoint   string
	HTTPClient *http.Client
	Retry      RetryPolicy
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Upstream is a retrying client for the search and videos listings.
type Upstream struct {
	svc    *youtube.Service
	apiKey string
	retry  *retrier
}

func NewUpstream(ctx context.Context, cfg UpstreamConfig) (*Upstream, error) {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Upstream{
		svc:    svc,
		apiKey: cfg.APIKey,
		retry:  newRetrier(cfg.Retry, logger, cfg.Metrics),
	}, nil
}

// callOpts carries the API key. The key is passed per call because a
// custom HTTP client bypasses option.WithAPIKey.
func (u *Upstream) callOpts(extra ...googleapi.CallOption) []googleapi.CallOption {
	opts := make([]googleapi.CallOption, 0, len(extra)+1)
	if u.apiKey != "" {
		opts = append(opts, googleapi.QueryParameter("key", u.apiKey))
	}
	return append(opts, extra...)
}

// Chart lists the most popular videos in region.
func (u *Upstream) Chart(ctx context.Context, region string, maxResults int64, pageToken string) ([]*youtube.Video, string, error) {
	var resp *youtube.VideoListResponse
	err := u.retry.do(ctx, "videos.chart", func(ctx context.Context) error {
		call := u.svc.Videos.List(videoParts).
			Chart("mostPopular").
			RegionCode(region).
			MaxResults(maxResults).
			Context(ctx)
		if pageToken != "" {
			call.PageToken(pageToken)
		}
		var err error
		resp, err = call.Do(u.callOpts()...)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return resp.Items, resp.NextPageToken, nil
}

// SearchQuery selects what a search lists.
type SearchQuery struct {
	Query          string
	RelatedToVideo string
	// Type is "video" or "channel".
	Type       string
	MaxResults int64
	PageToken  string
}

// Search runs one search.list call.
func (u *Upstream) Search(ctx context.Context, q SearchQuery) ([]*youtube.SearchResult, string, error) {
	var resp *youtube.SearchListResponse
	err := u.retry.do(ctx, "search.list", func(ctx context.Context) error {
		call := u.svc.Search.List([]string{"snippet"}).
			MaxResults(q.MaxResults).
			Context(ctx)
		if q.Type != "" {
			call.Type(q.Type)
		}
		if q.Query != "" {
			call.Q(q.Query)
		}
		if q.PageToken != "" {
			call.PageToken(q.PageToken)
		}
		var extra []googleapi.CallOption
		if q.RelatedToVideo != "" {
			extra = append(extra, googleapi.QueryParameter("relatedToVideoId", q.RelatedToVideo))
		}
		var err error
		resp, err = call.Do(u.callOpts(extra...)...)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return resp.Items, resp.NextPageToken, nil
}

// SearchVideoIDs runs a video search and returns the ids in result order.
func (u *Upstream) SearchVideoIDs(ctx context.Context, q SearchQuery) ([]string, string, error) {
	q.Type = "video"
	items, next, err := u.Search(ctx, q)
	if err != nil {
		return nil, "", err
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil || item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		ids = append(ids, item.Id.VideoId)
	}
	return ids, next, nil
}

// Videos fetches details for ids, preserving the order of ids.
func (u *Upstream) Videos(ctx context.Context, ids []string) ([]*youtube.Video, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var resp *youtube.VideoListResponse
	err := u.retry.do(ctx, "videos.list", func(ctx context.Context) error {
		var err error
		resp, err = u.svc.Videos.List(videoParts).
			Id(strings.Join(ids, ",")).
			Context(ctx).
			Do(u.callOpts()...)
		return err
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*youtube.Video, len(resp.Items))
	for _, v := range resp.Items {
		if v != nil {
			byID[v.Id] = v
		}
	}
	ordered := make([]*youtube.Video, 0, len(ids))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			ordered = append(ordered, v)
		}
	}
	return ordered, nil
}

// Ping makes one cheap chart request without retries.
func (u *Upstream) Ping(ctx context.Context, region string) error {
	_, err := u.svc.Videos.List([]string{"id"}).
		Chart("mostPopular").
		RegionCode(region).
		MaxResults(1).
		Context(ctx).
		Do(u.callOpts()...)
	if err != nil {
		classified, _ := classify(err)
		return classified
	}
	return nil
}
