package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"vidtok/admin"
	"vidtok/auth"
	"vidtok/cache"
	"vidtok/db"
	"vidtok/feed"
	"vidtok/httputil"
	"vidtok/likes"
	"vidtok/metrics"
	"vidtok/profile"
	"vidtok/ratelimit"
	"vidtok/relay"
	"vidtok/store"
)

// App owns every long-lived component of the server.
type App struct {
	cfg     Config
	logger  *slog.Logger
	db      *db.CompatDB
	store   *store.Store
	metrics *metrics.Metrics
	cache   *cache.Store
	relay   *relay.Relay
	agg     *feed.Aggregator
	limiter *ratelimit.RateLimiter
	started time.Time
}

func newApp(ctx context.Context, cfg Config, logger *slog.Logger, database *db.CompatDB, resolver relay.Resolver) (*App, error) {
	m := metrics.New()
	st := store.New(database)

	cacheOpts := []cache.Option{cache.WithLogger(logger.With("component", "cache")), cache.WithMetrics(m)}
	if cfg.ArchiveEndpoint != "" {
		archiver, err := cache.NewMinioArchiver(ctx, cache.MinioConfig{
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
			Bucket:    cfg.ArchiveBucket,
			UseSSL:    cfg.ArchiveUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		cacheOpts = append(cacheOpts, cache.WithArchiver(archiver))
		logger.Info("archiving completed downloads", "endpoint", cfg.ArchiveEndpoint, "bucket", cfg.ArchiveBucket)
	}
	cs, err := cache.New(cfg.CacheDir, cacheOpts...)
	if err != nil {
		return nil, err
	}

	upstream, err := feed.NewUpstream(ctx, feed.UpstreamConfig{
		APIKey:   cfg.YouTubeAPIKey,
		Endpoint: cfg.YouTubeEndpoint,
		Retry:    feed.DefaultRetryPolicy,
		Logger:   logger.With("component", "upstream"),
		Metrics:  m,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:     cfg,
		logger:  logger,
		db:      database,
		store:   st,
		metrics: m,
		cache:   cs,
		relay: relay.New(resolver, cs, relay.Config{
			ResolveTimeout: cfg.ResolveTimeout,
			ConnectTimeout: cfg.RelayConnectTimeout,
			UserAgent:      cfg.RelayUserAgent,
		}, logger, m),
		agg: &feed.Aggregator{
			Source:       upstream,
			Viewed:       st,
			Likes:        st,
			RegionCode:   cfg.RegionCode,
			ViewedWindow: cfg.ViewedWindow,
			PingTimeout:  cfg.PingTimeout,
			Logger:       logger.With("component", "feed"),
		},
		limiter: ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst),
		started: time.Now(),
	}, nil
}

func newResolver(cfg Config) relay.Resolver {
	if cfg.Resolver == "ytdlp" {
		return &relay.YTDLPResolver{Binary: cfg.YTDLPBinary}
	}
	return &relay.ScriptResolver{Python: relay.FindPython("."), Script: cfg.ResolverScript}
}

func (a *App) routes() http.Handler {
	authH := &auth.Handler{Store: a.store, JWTSecret: a.cfg.JWTSecret}
	feedH := &feed.Handler{Agg: a.agg, Prefs: a.store}
	likesH := &likes.Handler{Store: a.store}
	profileH := &profile.Handler{Store: a.store}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(a.metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Range"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", a.metrics.Handler())
	r.Get("/stream/{contentId}", a.relay.HandleStream)

	r.Route("/api", func(r chi.Router) {
		r.Use(ratelimit.Middleware(a.limiter))
		r.Use(middleware.Compress(5))
		r.Use(authH.OptionalAuth)

		r.Post("/auth/register", authH.HandleRegister)
		r.Post("/auth/login", authH.HandleLogin)

		r.Get("/feed/trending", feedH.HandleTrending)
		r.Get("/feed/personalized", feedH.HandlePersonalized)
		r.Post("/feed/personalized", feedH.HandlePersonalized)
		r.Get("/feed/related/{videoId}", feedH.HandleRelated)
		r.Get("/channels/search", feedH.HandleSearchChannels)
		r.Get("/upstream/ping", feedH.HandlePing)

		r.Get("/likes", likesH.HandleList)
		r.Get("/likes/{videoId}", likesH.HandleIsLiked)
		r.Post("/likes/{videoId}/toggle", likesH.HandleToggle)

		r.Get("/preferences", profileH.HandleGetPreferences)
		r.Put("/preferences", profileH.HandleUpdatePreferences)
		r.Get("/settings", profileH.HandleGetSettings)
		r.Put("/settings", profileH.HandleUpdateSettings)
		r.Get("/positions/{videoId}", profileH.HandleGetPosition)
		r.Put("/positions/{videoId}", profileH.HandleSavePosition)
		r.Post("/viewed/{videoId}", profileH.HandleMarkViewed)

		r.Get("/cache", a.relay.HandleListCache)
		r.Delete("/cache/{contentId}", a.relay.HandleEvictCache)

		if a.cfg.AdminPassword != "" {
			adminH := &admin.Handler{
				DB:             a.db,
				Cache:          a.cache,
				AdminUsername:  a.cfg.AdminUsername,
				AdminPassword:  a.cfg.AdminPassword,
				AdminJWTSecret: a.cfg.AdminJWTSecret,
				Started:        a.started,
			}
			r.Post("/admin/login", adminH.HandleAdminLogin)
			r.Group(func(r chi.Router) {
				r.Use(adminH.AdminAuthMiddleware)
				r.Get("/admin/status", adminH.HandleAdminStatus)
				r.Post("/admin/cache/clear-failed", adminH.HandleClearFailed)
			})
		}
	})
	return r
}

// pruneViewed drops viewed records far older than the exclusion window,
// once at startup and then hourly.
func (a *App) pruneViewed(ctx context.Context) {
	retention := 7 * a.cfg.ViewedWindow
	prune := func() {
		n, err := a.store.PruneViewed(ctx, time.Now().Add(-retention))
		if err != nil {
			a.logger.Warn("prune viewed records", "err", err)
			return
		}
		if n > 0 {
			a.logger.Info("pruned viewed records", "count", n, "older_than", retention)
		}
	}
	prune()
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			prune()
		}
	}
}
