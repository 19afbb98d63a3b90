package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies LIVEBID_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LIVEBID_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Auction ──
	setStr(&cfg.Auction.ID, "LIVEBID_AUCTION_ID")
	setStr(&cfg.Auction.UserID, "LIVEBID_AUCTION_USER_ID")

	// ── API ──
	setStr(&cfg.API.BaseURL, "LIVEBID_API_BASE_URL")
	setStr(&cfg.API.Mode, "LIVEBID_API_MODE")
	setStr(&cfg.API.Token, "LIVEBID_API_TOKEN")
	setDuration(&cfg.API.Timeout, "LIVEBID_API_TIMEOUT")

	// ── Realtime ──
	setStr(&cfg.Realtime.URL, "LIVEBID_REALTIME_URL")
	setStr(&cfg.Realtime.Path, "LIVEBID_REALTIME_PATH")
	setStr(&cfg.Realtime.Namespace, "LIVEBID_REALTIME_NAMESPACE")
	setStr(&cfg.Realtime.AuthToken, "LIVEBID_REALTIME_AUTH_TOKEN")
	setBool(&cfg.Realtime.AutoConnect, "LIVEBID_REALTIME_AUTO_CONNECT")
	setStringSlice(&cfg.Realtime.Transports, "LIVEBID_REALTIME_TRANSPORTS")
	setDuration(&cfg.Realtime.ReconnectDelay, "LIVEBID_REALTIME_RECONNECT_DELAY")
	setDuration(&cfg.Realtime.MaxReconnectDelay, "LIVEBID_REALTIME_MAX_RECONNECT_DELAY")
	setDuration(&cfg.Realtime.HandshakeTimeout, "LIVEBID_REALTIME_HANDSHAKE_TIMEOUT")

	// ── Cache ──
	setStr(&cfg.Cache.Backend, "LIVEBID_CACHE_BACKEND")
	setDuration(&cfg.Cache.TTL, "LIVEBID_CACHE_TTL")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "LIVEBID_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LIVEBID_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LIVEBID_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LIVEBID_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LIVEBID_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LIVEBID_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "LIVEBID_REDIS_KEY_PREFIX")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "LIVEBID_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LIVEBID_S3_REGION")
	setStr(&cfg.S3.Bucket, "LIVEBID_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LIVEBID_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LIVEBID_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LIVEBID_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LIVEBID_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "LIVEBID_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Prefix, "LIVEBID_ARCHIVE_PREFIX")
	setInt64(&cfg.Archive.PartSize, "LIVEBID_ARCHIVE_PART_SIZE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "LIVEBID_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "LIVEBID_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "LIVEBID_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "LIVEBID_SERVER_API_KEY")
	setInt(&cfg.Server.BidRateLimit, "LIVEBID_SERVER_BID_RATE_LIMIT")
	setDuration(&cfg.Server.BidRateWindow, "LIVEBID_SERVER_BID_RATE_WINDOW")

	// ── Notify ──
	setBool(&cfg.Notify.Bell, "LIVEBID_NOTIFY_BELL")
	setStr(&cfg.Notify.TelegramToken, "LIVEBID_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LIVEBID_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LIVEBID_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LIVEBID_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Timeout, "LIVEBID_NOTIFY_TIMEOUT")

	// ── Top-level ──
	setStr(&cfg.Mode, "LIVEBID_MODE")
	setStr(&cfg.LogLevel, "LIVEBID_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
