// Package relay serves GET /stream/{contentId}: it resolves a content page
// to a playable source and streams the bytes to the client while writing
// them to the local cache.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"vidtok/cache"
	"vidtok/httputil"
	"vidtok/metrics"
	"vidtok/store"
)

const (
	DefaultPageURL        = "https://www.youtube.com/watch?v=%s"
	DefaultResolveTimeout = 10 * time.Second
	DefaultConnectTimeout = 30 * time.Second
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

type Config struct {
	// PageURL is a fmt template with one %s for the content id.
	PageURL        string
	ResolveTimeout time.Duration
	ConnectTimeout time.Duration
	UserAgent      string
	ChunkSize      int
}

func (c Config) withDefaults() Config {
	if c.PageURL == "" {
		c.PageURL = DefaultPageURL
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = DefaultResolveTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}

type Relay struct {
	resolver Resolver
	cache    *cache.Store
	client   *http.Client
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func New(resolver Resolver, c *cache.Store, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Relay {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ConnectTimeout,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Relay{
		resolver: resolver,
		cache:    c,
		// No overall timeout: a stream lasts as long as the client reads.
		client:  &http.Client{Transport: transport},
		cfg:     cfg,
		logger:  logger.With("component", "relay"),
		metrics: m,
	}
}

// HandleStream resolves the content id and relays the source bytes.
func (rl *Relay) HandleStream(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "contentId")
	if !store.ValidVideoID(videoID) {
		httputil.WriteText(w, http.StatusBadRequest, "Invalid content id")
		return
	}
	ctx := r.Context()
	log := rl.logger.With("video", videoID)

	start := time.Now()
	md, err := resolveWithDeadline(ctx, rl.resolver, fmt.Sprintf(rl.cfg.PageURL, videoID), rl.cfg.ResolveTimeout)
	rl.metrics.ResolveObserved(time.Since(start))
	if err != nil {
		rl.writeResolveError(w, r, log, err)
		return
	}
	log.Info("resolved stream", "title", md.Title, "size", sizeText(md.Filesize), "took", time.Since(start).Round(time.Millisecond))

	resp, err := rl.fetch(ctx, md.StreamURL)
	if err != nil {
		if ctx.Err() != nil {
			rl.metrics.StreamFinished("client_disconnected")
			return
		}
		log.Error("upstream fetch", "err", err)
		rl.metrics.StreamFinished("upstream_error")
		httputil.WriteText(w, http.StatusBadGateway, "Upstream failure")
		return
	}
	defer resp.Body.Close()

	var sink io.Writer = io.Discard
	cw, err := rl.cache.Begin(videoID)
	if err != nil {
		log.Warn("cache unavailable, streaming without it", "err", err)
	} else {
		sink = cw
	}

	w.Header().Set("Content-Type", "video/mp4")
	if n := contentLength(resp.ContentLength, md.Filesize); n >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(n, 10))
	}
	w.WriteHeader(http.StatusOK)

	res := tee(ctx, resp.Body, newFlushWriter(w), sink, rl.cfg.ChunkSize, rl.metrics)

	outcome, reason := streamOutcome(res, ctx.Err())
	if outcome != "complete" {
		rl.fail(cw, reason)
	} else if cw != nil {
		if err := cw.Complete(); err != nil {
			outcome = "cache_error"
			log.Warn("finalize cache entry", "err", err)
		}
	}
	rl.metrics.StreamFinished(outcome)
	log.Info("stream finished", "outcome", outcome, "relayed", humanize.IBytes(uint64(res.Bytes)))
}

// contentLength picks the length to declare to the client: the upstream's
// own length when it sent one, else an exact resolver size, else -1.
func contentLength(upstream, resolved int64) int64 {
	switch {
	case upstream >= 0:
		return upstream
	case resolved > 0:
		return resolved
	}
	return -1
}

// streamOutcome classifies a finished fan-out. A cancelled request only
// counts as a disconnect when the copy stopped before the end of the source.
func streamOutcome(res teeResult, ctxErr error) (outcome, reason string) {
	switch {
	case res.ClientErr != nil || (ctxErr != nil && !res.Drained):
		return "client_disconnected", "client disconnected"
	case res.ReadErr != nil:
		return "upstream_error", "upstream read: " + res.ReadErr.Error()
	case res.CacheErr != nil:
		return "cache_error", "cache write: " + res.CacheErr.Error()
	}
	return "complete", ""
}

func (rl *Relay) fail(cw *cache.Writer, reason string) {
	if cw != nil {
		cw.Fail(reason)
	}
}

func (rl *Relay) fetch(ctx context.Context, streamURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetchFailed, err)
	}
	req.Header.Set("User-Agent", rl.cfg.UserAgent)
	resp, err := rl.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamFetchFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamFetchFailed, resp.StatusCode)
	}
	return resp, nil
}

func (rl *Relay) writeResolveError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var unavailable *UnavailableError
	switch {
	case errors.Is(err, ErrResolutionTimeout):
		log.Warn("metadata timeout", "err", err)
		rl.metrics.StreamFinished("resolve_timeout")
		httputil.WriteText(w, http.StatusGatewayTimeout, "Metadata timeout")
	case errors.As(err, &unavailable):
		log.Info("content unavailable", "reason", unavailable.Message)
		rl.metrics.StreamFinished("unavailable")
		httputil.WriteText(w, http.StatusNotFound, unavailable.Message)
	case errors.Is(err, ErrMalformedResolverOutput):
		log.Error("invalid resolver output", "err", err)
		rl.metrics.StreamFinished("resolve_error")
		httputil.WriteText(w, http.StatusInternalServerError, "Invalid metadata response")
	case r.Context().Err() != nil:
		rl.metrics.StreamFinished("client_disconnected")
	default:
		log.Error("resolver failed", "err", err)
		rl.metrics.StreamFinished("resolve_error")
		httputil.WriteText(w, http.StatusInternalServerError, "Error fetching stream metadata")
	}
}

func sizeText(n int64) string {
	if n <= 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(n))
}

// HandleListCache returns every cache entry, oldest first.
func (rl *Relay) HandleListCache(w http.ResponseWriter, r *http.Request) {
	entries := rl.cache.List()
	usage, err := rl.cache.Usage()
	if err != nil {
		rl.logger.Warn("cache usage", "err", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"bytes":   usage,
		"size":    humanize.IBytes(uint64(usage)),
	})
}

// HandleEvictCache removes a cached video that is not downloading.
func (rl *Relay) HandleEvictCache(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "contentId")
	if !store.ValidVideoID(videoID) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid content id")
		return
	}
	err := rl.cache.Evict(r.Context(), videoID)
	switch {
	case errors.Is(err, cache.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, "not cached")
	case errors.Is(err, cache.ErrInUse):
		httputil.WriteError(w, http.StatusConflict, "download in progress")
	case err != nil:
		rl.logger.Error("evict cache entry", "video", videoID, "err", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to evict")
	default:
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "evicted"})
	}
}
