// Package feed builds trending, personalized, related and channel-search
// lists from the YouTube Data API.
package feed

// VideoSummary is one feed entry, derived only from upstream data.
type VideoSummary struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	URL             string `json:"url"`
	ThumbnailURL    string `json:"thumbnail"`
	DurationSeconds int    `json:"durationSeconds"`
	DurationText    string `json:"duration"`
	ViewCountText   string `json:"views"`
	ChannelID       string `json:"channelId,omitempty"`
}

// Page is one page of results. NextPageToken is opaque and is replayed
// verbatim to fetch the following page; empty means exhausted.
type Page struct {
	Videos        []VideoSummary `json:"videos"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

// Channel is a channel-search result.
type Channel struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

// Interests are the explicit preferences blended into a personalized query.
type Interests struct {
	Channels []string `json:"channels"`
	Topics   []string `json:"topics"`
}

const watchURLPrefix = "https://www.youtube.com/watch?v="
