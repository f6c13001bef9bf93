package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/youtube/v3"
)

const (
	trendingPageSize       = 20
	personalizedSearchSize = 25
	relatedSearchSize      = 10
	channelSearchSize      = 5

	feedLimit    = 15
	relatedLimit = 10
	channelLimit = 5
)

// Source is the upstream listing service.
type Source interface {
	Chart(ctx context.Context, region string, maxResults int64, pageToken string) ([]*youtube.Video, string, error)
	Search(ctx context.Context, q SearchQuery) ([]*youtube.SearchResult, string, error)
	SearchVideoIDs(ctx context.Context, q SearchQuery) ([]string, string, error)
	Videos(ctx context.Context, ids []string) ([]*youtube.Video, error)
	Ping(ctx context.Context, region string) error
}

// ViewedLedger reports recently viewed ids.
type ViewedLedger interface {
	ViewedIDs(ctx context.Context, profileID string, since time.Time) ([]string, error)
}

// LikeHistory reports like titles, most recent first.
type LikeHistory interface {
	RecentLikeTitles(ctx context.Context, profileID string, n int) ([]string, error)
}

// Aggregator builds feed pages. One Aggregator serves the whole process.
type Aggregator struct {
	Source Source
	Viewed ViewedLedger
	Likes  LikeHistory

	RegionCode   string
	ViewedWindow time.Duration
	PingTimeout  time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

func (a *Aggregator) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

func (a *Aggregator) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

func (a *Aggregator) region() string {
	if a.RegionCode == "" {
		return "US"
	}
	return a.RegionCode
}

// Trending returns the most popular long-form videos minus those viewed
// within the viewed window.
func (a *Aggregator) Trending(ctx context.Context, profileID, pageToken string) (Page, error) {
	var (
		items   []*youtube.Video
		next    string
		exclude map[string]struct{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, next, err = a.Source.Chart(gctx, a.region(), trendingPageSize, pageToken)
		return err
	})
	g.Go(func() error {
		exclude = a.viewedSet(gctx, profileID)
		return nil
	})
	if err := g.Wait(); err != nil {
		a.logger().Error("trending feed failed", "profile", profileID, "err", err)
		return Page{}, fetchErr("trending feed", err)
	}
	return Page{Videos: filterVideos(items, exclude, feedLimit), NextPageToken: next}, nil
}

// Personalized searches with a query blended from recent likes and the
// given interests, then hydrates and filters the results.
func (a *Aggregator) Personalized(ctx context.Context, profileID string, in Interests, pageToken string) (Page, error) {
	query := PersonalizedQuery(a.likeTitles(ctx, profileID), in.Channels, in.Topics)

	var (
		items   []*youtube.Video
		next    string
		exclude map[string]struct{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, token, err := a.Source.SearchVideoIDs(gctx, SearchQuery{
			Query:      query,
			MaxResults: personalizedSearchSize,
			PageToken:  pageToken,
		})
		if err != nil {
			return err
		}
		next = token
		items, err = a.Source.Videos(gctx, ids)
		return err
	})
	g.Go(func() error {
		exclude = a.viewedSet(gctx, profileID)
		return nil
	})
	if err := g.Wait(); err != nil {
		a.logger().Error("personalized feed failed", "profile", profileID, "query", query, "err", err)
		return Page{}, fetchErr("personalized feed", err)
	}
	return Page{Videos: filterVideos(items, exclude, feedLimit), NextPageToken: next}, nil
}

// Related lists long-form videos related to videoID.
func (a *Aggregator) Related(ctx context.Context, videoID string) (Page, error) {
	ids, next, err := a.Source.SearchVideoIDs(ctx, SearchQuery{
		RelatedToVideo: videoID,
		MaxResults:     relatedSearchSize,
	})
	if err != nil {
		a.logger().Error("related feed failed", "video", videoID, "err", err)
		return Page{}, fetchErr("related videos", err)
	}
	items, err := a.Source.Videos(ctx, ids)
	if err != nil {
		a.logger().Error("related feed failed", "video", videoID, "err", err)
		return Page{}, fetchErr("related videos", err)
	}
	return Page{Videos: filterVideos(items, nil, relatedLimit), NextPageToken: next}, nil
}

// SearchChannels finds channels matching query. An empty query yields no
// results without contacting the upstream.
func (a *Aggregator) SearchChannels(ctx context.Context, query string) ([]Channel, error) {
	channels := make([]Channel, 0, channelLimit)
	query = strings.TrimSpace(query)
	if query == "" {
		return channels, nil
	}

	items, _, err := a.Source.Search(ctx, SearchQuery{
		Query:      query,
		Type:       "channel",
		MaxResults: channelSearchSize,
	})
	if err != nil {
		a.logger().Error("channel search failed", "query", query, "err", err)
		return nil, fetchErr("channel search", err)
	}
	for _, item := range items {
		if len(channels) == channelLimit {
			break
		}
		if item == nil || item.Snippet == nil {
			return nil, fetchErr("channel search", fmt.Errorf("%w: search result without snippet", ErrMalformedResponse))
		}
		c := Channel{ID: item.Snippet.ChannelId, Title: item.Snippet.Title}
		if c.ID == "" && item.Id != nil {
			c.ID = item.Id.ChannelId
		}
		if th := item.Snippet.Thumbnails; th != nil && th.Default != nil {
			c.Thumbnail = th.Default.Url
		}
		channels = append(channels, c)
	}
	return channels, nil
}

// Ping checks upstream reachability with its own timeout and no retries.
func (a *Aggregator) Ping(ctx context.Context) error {
	timeout := a.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := a.Source.Ping(ctx, a.region()); err != nil {
		return fetchErr("upstream ping", err)
	}
	return nil
}

// viewedSet returns the ids viewed within the window. Ledger failures are
// logged and treated as an empty ledger.
func (a *Aggregator) viewedSet(ctx context.Context, profileID string) map[string]struct{} {
	if a.Viewed == nil {
		return nil
	}
	window := a.ViewedWindow
	if window <= 0 {
		window = 48 * time.Hour
	}
	ids, err := a.Viewed.ViewedIDs(ctx, profileID, a.now().Add(-window))
	if err != nil {
		if ctx.Err() == nil {
			a.logger().Warn("viewed ledger unavailable", "profile", profileID, "err", err)
		}
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (a *Aggregator) likeTitles(ctx context.Context, profileID string) []string {
	if a.Likes == nil {
		return nil
	}
	titles, err := a.Likes.RecentLikeTitles(ctx, profileID, likeSignals)
	if err != nil {
		a.logger().Warn("like history unavailable", "profile", profileID, "err", err)
		return nil
	}
	return titles
}
