// Package config defines the top-level configuration for livebid and provides
// validation helpers.
package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LIVEBID_* environment variables.
type Config struct {
	Auction  AuctionConfig  `toml:"auction"`
	API      APIConfig      `toml:"api"`
	Realtime RealtimeConfig `toml:"realtime"`
	Cache    CacheConfig    `toml:"cache"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// AuctionConfig identifies the auction being watched and the local participant.
type AuctionConfig struct {
	ID     string `toml:"id"`
	UserID string `toml:"user_id"`
}

// APIConfig holds the snapshot endpoint.
type APIConfig struct {
	BaseURL string   `toml:"base_url"`
	Mode    string   `toml:"mode"`
	Token   string   `toml:"token"`
	Timeout duration `toml:"timeout"`
}

// RealtimeConfig holds Socket.IO connection parameters.
type RealtimeConfig struct {
	URL               string   `toml:"url"`
	Path              string   `toml:"path"`
	Namespace         string   `toml:"namespace"`
	AuthToken         string   `toml:"auth_token"`
	AutoConnect       bool     `toml:"auto_connect"`
	Transports        []string `toml:"transports"`
	ReconnectDelay    duration `toml:"reconnect_delay"`
	MaxReconnectDelay duration `toml:"max_reconnect_delay"`
	HandshakeTimeout  duration `toml:"handshake_timeout"`
}

// CacheConfig selects the snapshot cache backend.
type CacheConfig struct {
	Backend string   `toml:"backend"`
	TTL     duration `toml:"ttl"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls transcript uploads.
type ArchiveConfig struct {
	Enabled  bool   `toml:"enabled"`
	Prefix   string `toml:"prefix"`
	PartSize int64  `toml:"part_size"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// BidRateLimit caps bid submissions per BidRateWindow. Zero disables the
	// limiter; it needs the redis cache backend.
	BidRateLimit  int      `toml:"bid_rate_limit"`
	BidRateWindow duration `toml:"bid_rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	Bell              bool     `toml:"bell"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Timeout           duration `toml:"timeout"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:4000/api",
			Mode:    "rest",
			Timeout: duration{10 * time.Second},
		},
		Realtime: RealtimeConfig{
			URL:               "http://localhost:4000",
			Path:              "/socket.io/",
			Namespace:         "/",
			AutoConnect:       true,
			Transports:        []string{"websocket"},
			ReconnectDelay:    duration{time.Second},
			MaxReconnectDelay: duration{30 * time.Second},
			HandshakeTimeout:  duration{10 * time.Second},
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     duration{30 * time.Second},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "livebid:",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "livebid-transcripts",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Prefix:   "transcripts",
			PartSize: 5 << 20,
		},
		Server: ServerConfig{
			Port:          8080,
			CORSOrigins:   []string{"*"},
			BidRateWindow: duration{10 * time.Second},
		},
		Notify: NotifyConfig{
			Bell:    true,
			Events:  []string{"bid_placed", "auction_ended", "connection_lost"},
			Timeout: duration{10 * time.Second},
		},
		Mode:     "watch",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"watch":  true,
	"server": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validCacheBackends = map[string]bool{
	"memory": true,
	"redis":  true,
	"none":   true,
}

var validNotifyEvents = map[string]bool{
	"bid_placed":      true,
	"auction_ended":   true,
	"connection_lost": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: watch, server)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Auction
	if strings.TrimSpace(c.Auction.ID) == "" {
		errs = append(errs, "auction: id must not be empty")
	}
	if strings.TrimSpace(c.Auction.UserID) == "" {
		errs = append(errs, "auction: user_id must not be empty")
	}

	// API
	if !validURL(c.API.BaseURL, "http", "https") {
		errs = append(errs, fmt.Sprintf("api: base_url must be an absolute http(s) URL, got %q", c.API.BaseURL))
	}
	if m := strings.ToLower(c.API.Mode); m != "rest" && m != "graphql" {
		errs = append(errs, fmt.Sprintf("api: unknown mode %q (valid: rest, graphql)", c.API.Mode))
	}
	if c.API.Timeout.Duration <= 0 {
		errs = append(errs, "api: timeout must be > 0")
	}

	// Realtime
	if !validURL(c.Realtime.URL, "http", "https", "ws", "wss") {
		errs = append(errs, fmt.Sprintf("realtime: url must be an absolute http(s) or ws(s) URL, got %q", c.Realtime.URL))
	}
	if len(c.Realtime.Transports) > 0 && !slices.Contains(c.Realtime.Transports, "websocket") {
		errs = append(errs, "realtime: transports must include websocket (long-polling is not supported)")
	}
	if c.Realtime.ReconnectDelay.Duration <= 0 {
		errs = append(errs, "realtime: reconnect_delay must be > 0")
	}
	if c.Realtime.MaxReconnectDelay.Duration < c.Realtime.ReconnectDelay.Duration {
		errs = append(errs, "realtime: max_reconnect_delay must not be less than reconnect_delay")
	}

	// Cache
	backend := strings.ToLower(c.Cache.Backend)
	if !validCacheBackends[backend] {
		errs = append(errs, fmt.Sprintf("cache: unknown backend %q (valid: memory, redis, none)", c.Cache.Backend))
	}
	if backend != "none" && c.Cache.TTL.Duration <= 0 {
		errs = append(errs, "cache: ttl must be > 0 unless backend is none")
	}

	// Redis
	if backend == "redis" || c.Server.BidRateLimit > 0 {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Archive / S3
	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when archive is enabled")
		}
		if c.Archive.PartSize < 5<<20 {
			errs = append(errs, "archive: part_size must be >= 5MiB")
		}
	}

	// Server
	if c.Server.Enabled || strings.ToLower(c.Mode) == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}
	if c.Server.BidRateLimit < 0 {
		errs = append(errs, "server: bid_rate_limit must be >= 0")
	}
	if c.Server.BidRateLimit > 0 && c.Server.BidRateWindow.Duration <= 0 {
		errs = append(errs, "server: bid_rate_window must be > 0 when bid_rate_limit is set")
	}

	// Notify
	for _, e := range c.Notify.Events {
		if !validNotifyEvents[e] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q", e))
		}
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validURL(raw string, schemes ...string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return slices.Contains(schemes, u.Scheme) && u.Host != ""
}
