package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Auction.ID = "a1"
	cfg.Auction.UserID = "u1"
	return cfg
}

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "livebid.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsNeedOnlyAuction(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auction: id must not be empty")
	assert.Contains(t, err.Error(), "auction: user_id must not be empty")

	cfg = validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeTOML(t, `
mode = "server"

[auction]
id = "lot-42"
user_id = "alice"

[api]
base_url = "https://auctions.example.com/api"
mode = "graphql"
timeout = "3s"

[realtime]
url = "wss://auctions.example.com"
namespace = "/auction"
reconnect_delay = "500ms"
max_reconnect_delay = "8s"

[cache]
backend = "redis"
ttl = "1m"
`)
	t.Setenv("LIVEBID_AUCTION_USER_ID", "bob")
	t.Setenv("LIVEBID_SERVER_PORT", "9090")
	t.Setenv("LIVEBID_NOTIFY_EVENTS", "auction_ended, ,connection_lost")
	t.Setenv("LIVEBID_REDIS_DB", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, "lot-42", cfg.Auction.ID)
	assert.Equal(t, "bob", cfg.Auction.UserID)
	assert.Equal(t, "graphql", cfg.API.Mode)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout.Duration)
	assert.Equal(t, "/auction", cfg.Realtime.Namespace)
	assert.Equal(t, 500*time.Millisecond, cfg.Realtime.ReconnectDelay.Duration)
	assert.Equal(t, 8*time.Second, cfg.Realtime.MaxReconnectDelay.Duration)
	assert.Equal(t, time.Minute, cfg.Cache.TTL.Duration)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"auction_ended", "connection_lost"}, cfg.Notify.Events)
	// Unparseable values leave the default in place.
	assert.Equal(t, 0, cfg.Redis.DB)
	// Untouched sections keep their defaults.
	assert.Equal(t, []string{"websocket"}, cfg.Realtime.Transports)
	assert.True(t, cfg.Realtime.AutoConnect)

	assert.NoError(t, cfg.Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("LIVEBID_AUCTION_ID", "a9")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "a9", cfg.Auction.ID)
	assert.Equal(t, "memory", cfg.Cache.Backend)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeTOML(t, `
[api]
timeout = "soon"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "trade"
	cfg.LogLevel = "verbose"
	cfg.API.BaseURL = "localhost:4000"
	cfg.API.Mode = "soap"
	cfg.Realtime.Transports = []string{"polling"}
	cfg.Realtime.MaxReconnectDelay = duration{100 * time.Millisecond}
	cfg.Cache.Backend = "disk"
	cfg.Notify.Events = []string{"outbid"}
	cfg.Notify.TelegramToken = "t"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"config validation failed:",
		`unknown mode "trade"`,
		`unknown log_level "verbose"`,
		"api: base_url must be an absolute http(s) URL",
		`api: unknown mode "soap"`,
		"realtime: transports must include websocket",
		"realtime: max_reconnect_delay must not be less than reconnect_delay",
		`cache: unknown backend "disk"`,
		`notify: unknown event "outbid"`,
		"notify: telegram_token and telegram_chat_id must be set together",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateConditionalSections(t *testing.T) {
	t.Run("archive needs bucket", func(t *testing.T) {
		cfg := validConfig()
		cfg.Archive.Enabled = true
		cfg.S3.Bucket = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "s3: bucket must not be empty")
	})

	t.Run("rate limit needs redis", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.BidRateLimit = 5
		cfg.Redis.Addr = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis: addr must not be empty")
	})

	t.Run("redis ignored for memory cache", func(t *testing.T) {
		cfg := validConfig()
		cfg.Redis.Addr = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("server port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Mode = "server"
		cfg.Server.Port = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server: port must be 1-65535")
	})

	t.Run("no cache ttl needed when disabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.Cache.Backend = "none"
		cfg.Cache.TTL = duration{}
		assert.NoError(t, cfg.Validate())
	})
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.API.Token = "tok"
	cfg.Redis.Password = "pw"
	cfg.S3.SecretKey = "secret"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.API.Token)
	assert.Equal(t, "***", out.Redis.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Notify.DiscordWebhookURL)
	// Empty secrets stay empty.
	assert.Empty(t, out.Server.APIKey)

	assert.Equal(t, "tok", cfg.API.Token)
	out.Notify.Events[0] = "changed"
	assert.Equal(t, "bid_placed", cfg.Notify.Events[0])
}
