package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type Config struct {
	APIURL   string // CMEV_API_URL (default "https://api.linode.com/v4")
	APIToken string // CMEV_API_TOKEN (required by commands that poll upstream)

	// Poller settings
	PollBaseInterval         time.Duration // CMEV_POLL_BASE_INTERVAL (default 16s)
	DisableThrottle          bool          // CMEV_DISABLE_THROTTLE (default false)
	ThrottleDisabledInterval time.Duration // CMEV_THROTTLE_DISABLED_INTERVAL (default 500ms)
	FetchTimeout             time.Duration // CMEV_FETCH_TIMEOUT (default 30s; 0 = none)
	StaleAfter               int           // CMEV_STALE_AFTER (default 5; 0 = never stale)
	RateLimit                int           // CMEV_RATE_LIMIT (requests/minute, default 400)
	CacheCapacity            int           // CMEV_CACHE_CAPACITY (default 5000)

	GRPCAddr  string     // CMEV_GRPC_ADDR (default ":9090")
	HTTPAddr  string     // CMEV_HTTP_ADDR (default ":8080")
	AuthToken string     // CMEV_AUTH_TOKEN (optional, empty = auth disabled)
	LogLevel  slog.Level // CMEV_LOG_LEVEL (default "info")

	NATSURL     string // CMEV_NATS_URL (optional, empty = no bus)
	DatabaseURL string // CMEV_DATABASE_URL (optional, empty = no archive)

	// Sync settings; sync needs the archive.
	SyncInterval   time.Duration // CMEV_SYNC_INTERVAL (default 0 = disabled)
	SyncS3Bucket   string        // CMEV_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // CMEV_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // CMEV_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // CMEV_SYNC_S3_KEY (default "cmevents/events.jsonl")
}

func Load() (*Config, error) {
	c := &Config{
		APIURL:         envOrDefault("CMEV_API_URL", "https://api.linode.com/v4"),
		APIToken:       os.Getenv("CMEV_API_TOKEN"),
		GRPCAddr:       envOrDefault("CMEV_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("CMEV_HTTP_ADDR", ":8080"),
		AuthToken:      os.Getenv("CMEV_AUTH_TOKEN"),
		NATSURL:        os.Getenv("CMEV_NATS_URL"),
		DatabaseURL:    os.Getenv("CMEV_DATABASE_URL"),
		SyncS3Bucket:   os.Getenv("CMEV_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("CMEV_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("CMEV_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("CMEV_SYNC_S3_KEY", "cmevents/events.jsonl"),
	}

	var err error
	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"CMEV_POLL_BASE_INTERVAL", "16s", &c.PollBaseInterval},
		{"CMEV_THROTTLE_DISABLED_INTERVAL", "500ms", &c.ThrottleDisabledInterval},
		{"CMEV_FETCH_TIMEOUT", "30s", &c.FetchTimeout},
		{"CMEV_SYNC_INTERVAL", "0", &c.SyncInterval},
	}
	for _, d := range durations {
		if *d.dst, err = envDuration(d.key, d.fallback); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"CMEV_STALE_AFTER", 5, &c.StaleAfter},
		{"CMEV_RATE_LIMIT", 400, &c.RateLimit},
		{"CMEV_CACHE_CAPACITY", 5000, &c.CacheCapacity},
	}
	for _, n := range ints {
		if *n.dst, err = envInt(n.key, n.fallback); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("CMEV_DISABLE_THROTTLE"); v != "" {
		if c.DisableThrottle, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("CMEV_DISABLE_THROTTLE: %w", err)
		}
	}
	if err := c.LogLevel.UnmarshalText([]byte(envOrDefault("CMEV_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("CMEV_LOG_LEVEL: %w", err)
	}

	if c.PollBaseInterval <= 2*time.Millisecond {
		return nil, fmt.Errorf("CMEV_POLL_BASE_INTERVAL must be greater than 2ms, got %s", c.PollBaseInterval)
	}
	if c.RateLimit < 1 {
		return nil, fmt.Errorf("CMEV_RATE_LIMIT must be at least 1, got %d", c.RateLimit)
	}
	return c, nil
}

// SyncEnabled reports whether periodic archive export is configured.
func (c *Config) SyncEnabled() bool {
	return c.SyncInterval > 0 && c.SyncS3Bucket != "" && c.DatabaseURL != ""
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
