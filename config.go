package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type Config struct {
	Port string

	DBDriver    string
	DBPath      string
	DatabaseURL string

	CacheDir      string
	CacheMaxBytes int64
	CacheEvictTTL time.Duration

	YouTubeAPIKey   string
	YouTubeEndpoint string
	RegionCode      string
	ViewedWindow    time.Duration
	PingTimeout     time.Duration

	Resolver            string
	ResolverScript      string
	YTDLPBinary         string
	ResolveTimeout      time.Duration
	RelayUserAgent      string
	RelayConnectTimeout time.Duration

	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int

	AdminUsername  string
	AdminPassword  string
	AdminJWTSecret string

	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveBucket    string
	ArchiveUseSSL    bool

	LogFile        string
	LogDedupWindow time.Duration
	LogDeny        string
	LogLevel       string
}

func loadConfig() Config {
	cacheDir := getEnv("CACHE_DIR", filepath.Join(os.TempDir(), "vidtok_cache"))
	return Config{
		Port: getEnv("PORT", "8888"),

		DBDriver:    getEnv("DB_DRIVER", "sqlite"),
		DBPath:      getEnv("DB_PATH", "vidtok.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		CacheDir:      cacheDir,
		CacheMaxBytes: getEnvBytes("CACHE_MAX_BYTES", 0),
		CacheEvictTTL: getEnvDuration("CACHE_EVICT_TTL", 0),

		YouTubeAPIKey:   getEnv("YOUTUBE_API_KEY", ""),
		YouTubeEndpoint: getEnv("YOUTUBE_ENDPOINT", ""),
		RegionCode:      getEnv("REGION_CODE", "US"),
		ViewedWindow:    getEnvDuration("VIEWED_WINDOW", 48*time.Hour),
		PingTimeout:     getEnvDuration("PING_TIMEOUT", 5*time.Second),

		Resolver:            strings.ToLower(getEnv("RESOLVER", "script")),
		ResolverScript:      getEnv("RESOLVER_SCRIPT", filepath.Join("backend", "streamer.py")),
		YTDLPBinary:         getEnv("YTDLP_BIN", ""),
		ResolveTimeout:      getEnvDuration("RESOLVE_TIMEOUT", 10*time.Second),
		RelayUserAgent:      getEnv("RELAY_USER_AGENT", ""),
		RelayConnectTimeout: getEnvDuration("RELAY_CONNECT_TIMEOUT", 30*time.Second),

		JWTSecret:      getEnv("JWT_SECRET", "supersecretkey"),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: int(getEnvInt64("RATE_LIMIT_BURST", 40)),

		AdminUsername:  getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:  getEnv("ADMIN_PASSWORD", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", getEnv("JWT_SECRET", "supersecretkey")+"-admin"),

		ArchiveEndpoint:  getEnv("ARCHIVE_ENDPOINT", ""),
		ArchiveAccessKey: getEnv("ARCHIVE_ACCESS_KEY", ""),
		ArchiveSecretKey: getEnv("ARCHIVE_SECRET_KEY", ""),
		ArchiveBucket:    getEnv("ARCHIVE_BUCKET", "vidtok"),
		ArchiveUseSSL:    getEnv("ARCHIVE_USE_SSL", "false") == "true",

		LogFile:        getEnv("LOG_FILE", filepath.Join(cacheDir, "backend.log")),
		LogDedupWindow: getEnvDuration("LOG_DEDUP_WINDOW", 3*time.Second),
		LogDeny:        getEnv("LOG_DENY", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

// dsn is the connection string for the configured driver.
func (c Config) dsn() string {
	if c.DBDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.DBPath
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvBytes accepts plain byte counts and sizes like "2GiB" or "500 MB".
func getEnvBytes(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := humanize.ParseBytes(v); err == nil {
			return int64(n)
		}
	}
	return fallback
}
