package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jonboulle/clockwork"

	s3blob "github.com/alanyoungcy/livebid/internal/blob/s3"
	"github.com/alanyoungcy/livebid/internal/cache/memory"
	"github.com/alanyoungcy/livebid/internal/cache/redis"
	"github.com/alanyoungcy/livebid/internal/config"
	"github.com/alanyoungcy/livebid/internal/domain"
	"github.com/alanyoungcy/livebid/internal/feed"
	"github.com/alanyoungcy/livebid/internal/notify"
	"github.com/alanyoungcy/livebid/internal/platform/auctionapi"
	"github.com/alanyoungcy/livebid/internal/platform/socketio"
	"github.com/alanyoungcy/livebid/internal/service"
)

// Dependencies bundles everything a run mode needs. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	Clock clockwork.Clock

	// Realtime
	Channel *socketio.Client
	Feed    *feed.AuctionFeed

	// Snapshots
	Fetcher   domain.SnapshotFetcher
	Cache     domain.SnapshotCache
	Snapshots *service.SnapshotService

	// RateLimiter is nil unless Redis is configured for bid limiting.
	RateLimiter domain.RateLimiter

	// Archiver is nil when archive.enabled is false.
	Archiver *s3blob.TranscriptArchiver

	// Notifications
	Notifier *notify.Notifier
}

// needsRedis reports whether any component is backed by Redis.
func needsRedis(cfg *config.Config) bool {
	if strings.EqualFold(cfg.Cache.Backend, "redis") {
		return true
	}
	return strings.EqualFold(cfg.Mode, "server") && cfg.Server.BidRateLimit > 0
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources. bell receives terminal bell
// notifications; nil disables them.
func Wire(ctx context.Context, cfg *config.Config, clock clockwork.Clock, bell io.Writer, logger *slog.Logger) (*Dependencies, func(), error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Clock: clock}

	// --- Realtime channel ---
	header := http.Header{}
	auth := map[string]any{}
	if cfg.Realtime.AuthToken != "" {
		auth["token"] = cfg.Realtime.AuthToken
		header.Set("Authorization", "Bearer "+cfg.Realtime.AuthToken)
	}
	channel, err := socketio.NewClient(socketio.Config{
		URL:               cfg.Realtime.URL,
		Path:              cfg.Realtime.Path,
		Namespace:         cfg.Realtime.Namespace,
		Auth:              auth,
		Transports:        cfg.Realtime.Transports,
		AutoConnect:       cfg.Realtime.AutoConnect,
		ReconnectDelay:    cfg.Realtime.ReconnectDelay.Duration,
		MaxReconnectDelay: cfg.Realtime.MaxReconnectDelay.Duration,
		HandshakeTimeout:  cfg.Realtime.HandshakeTimeout.Duration,
		Header:            header,
	}, clock, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: realtime: %w", err)
	}
	deps.Channel = channel
	deps.Feed = feed.New(channel, logger)

	// --- Snapshot fetcher ---
	deps.Fetcher = auctionapi.NewClient(auctionapi.Options{
		BaseURL: cfg.API.BaseURL,
		Mode:    auctionapi.Mode(strings.ToLower(cfg.API.Mode)),
		Token:   cfg.API.Token,
		Timeout: cfg.API.Timeout.Duration,
		Clock:   clock,
	})

	// --- Redis (snapshot cache and/or bid rate limiter) ---
	var redisClient *redis.Client
	if needsRedis(cfg) {
		redisClient, err = redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		if cfg.Server.BidRateLimit > 0 {
			deps.RateLimiter = redis.NewRateLimiter(redisClient, clock)
		}
	}

	// --- Snapshot cache ---
	switch strings.ToLower(cfg.Cache.Backend) {
	case "memory":
		deps.Cache = memory.NewSnapshotCache(cfg.Cache.TTL.Duration, clock)
	case "redis":
		deps.Cache = redis.NewSnapshotCache(redisClient, cfg.Cache.TTL.Duration)
	}
	deps.Snapshots = service.NewSnapshotService(deps.Fetcher, deps.Cache, logger)

	// --- Transcript archive ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		if err := s3Client.Health(ctx); err != nil {
			// Archive failures are logged per transcript, so a missing bucket is not fatal.
			logger.WarnContext(ctx, "s3 bucket not reachable, transcripts may fail",
				slog.String("bucket", cfg.S3.Bucket),
				slog.String("error", err.Error()),
			)
		}

		writer := s3blob.NewWriter(s3Client, cfg.Archive.PartSize)
		deps.Archiver = s3blob.NewTranscriptArchiver(writer, cfg.Archive.Prefix, clock, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.Bell && bell != nil {
		senders = append(senders, notify.NewBellSender(bell))
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
