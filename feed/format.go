package feed

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"google.golang.org/api/youtube/v3"
)

var isoDuration = regexp.MustCompile(`PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?`)

// DurationSeconds parses the time part of an ISO-8601 duration. Inputs
// without a "PT" section yield 0.
func DurationSeconds(iso string) int {
	m := isoDuration.FindStringSubmatch(iso)
	if m == nil {
		return 0
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	return h*3600 + mins*60 + s
}

// FormatDuration renders an ISO-8601 duration as H:MM:SS or M:SS.
func FormatDuration(iso string) string {
	m := isoDuration.FindStringSubmatch(iso)
	if m == nil {
		return "0:00"
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mins, s)
	}
	return fmt.Sprintf("%d:%02d", mins, s)
}

// FormatViews renders a view count as "<n> views", "<x.y>K views" or
// "<x.y>M views".
func FormatViews(n uint64) string {
	switch {
	case n >= 1_000_000:
		return strconv.FormatFloat(float64(n)/1_000_000, 'f', 1, 64) + "M views"
	case n >= 1_000:
		return strconv.FormatFloat(float64(n)/1_000, 'f', 1, 64) + "K views"
	default:
		return strconv.FormatUint(n, 10) + " views"
	}
}

// IsShortForm reports whether a duration is under one minute. An absent
// duration is not short-form.
func IsShortForm(iso string) bool {
	if iso == "" {
		return false
	}
	return strings.HasPrefix(iso, "PT") && !strings.ContainsAny(iso, "MH")
}

func summarize(v *youtube.Video) VideoSummary {
	s := VideoSummary{
		ID:    v.Id,
		Title: "Untitled",
		URL:   watchURLPrefix + v.Id,
	}
	if sn := v.Snippet; sn != nil {
		if sn.Title != "" {
			s.Title = sn.Title
		}
		s.ChannelID = sn.ChannelId
		if sn.Thumbnails != nil && sn.Thumbnails.High != nil {
			s.ThumbnailURL = sn.Thumbnails.High.Url
		}
	}

	duration := "PT0S"
	if v.ContentDetails != nil && v.ContentDetails.Duration != "" {
		duration = v.ContentDetails.Duration
	}
	s.DurationSeconds = DurationSeconds(duration)
	s.DurationText = FormatDuration(duration)

	var views uint64
	if v.Statistics != nil {
		views = v.Statistics.ViewCount
	}
	s.ViewCountText = FormatViews(views)
	return s
}

func videoDuration(v *youtube.Video) string {
	if v.ContentDetails == nil {
		return ""
	}
	return v.ContentDetails.Duration
}

// filterVideos drops short-form items, items without an id and ids in
// exclude, then maps the rest to summaries capped at limit.
func filterVideos(items []*youtube.Video, exclude map[string]struct{}, limit int) []VideoSummary {
	out := make([]VideoSummary, 0, min(len(items), limit))
	for _, v := range items {
		if len(out) == limit {
			break
		}
		if v == nil || v.Id == "" {
			continue
		}
		if IsShortForm(videoDuration(v)) {
			continue
		}
		if _, seen := exclude[v.Id]; seen {
			continue
		}
		out = append(out, summarize(v))
	}
	return out
}
