package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/opine-markets/opined/internal/blob/s3"
	"github.com/opine-markets/opined/internal/cache/redis"
	"github.com/opine-markets/opined/internal/config"
	"github.com/opine-markets/opined/internal/domain"
	"github.com/opine-markets/opined/internal/engine"
	"github.com/opine-markets/opined/internal/notify"
	"github.com/opine-markets/opined/internal/service"
	"github.com/opine-markets/opined/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore   domain.MarketStore
	OrderStore    domain.OrderStore
	PositionStore domain.PositionStore
	AuditStore    domain.AuditStore

	// Caches and coordination
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// Market engine (nil in archive mode)
	Engine *engine.Engine

	// Notifications
	Notifier *notify.Notifier

	// Raw clients for health checks
	Postgres *postgres.Client
	Redis    *redis.Client
}

// needsEngine returns true for modes that serve trades and therefore need the
// in-memory market engine hydrated from the database.
func needsEngine(mode string) bool {
	switch mode {
	case "server", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that require object storage. Server mode
// never archives; full mode archives only when enabled in config.
func needsS3(cfg *config.Config) bool {
	switch cfg.Mode {
	case "archive":
		return true
	case "full":
		return cfg.Archive.Enabled
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.Postgres = pgClient

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.OrderStore = postgres.NewOrderStore(pool)
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.Redis = redisClient

	deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(cfg) {
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		orderStore := postgres.NewOrderStore(pool)
		auditStore := postgres.NewAuditStore(pool)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, orderStore, auditStore, auditStore)
	}

	// --- Notifications ---
	var senders []notify.Sender
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

	// --- Market engine ---
	if needsEngine(cfg.Mode) {
		sink := service.NewBusPublisher(deps.SignalBus, logger)
		eng, err := engine.New(engine.Config{
			Alpha:        cfg.Engine.Alpha,
			FeeRateBps:   cfg.Engine.FeeRateBps,
			MinLiquidity: cfg.Engine.MinLiquidity,
			MaxLiquidity: cfg.Engine.MaxLiquidity,
		}, sink, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: engine: %w", err)
		}

		// Hydrate the engine with every persisted market and position so
		// restarts resume exactly where the last process left off.
		markets, err := deps.MarketStore.ListAll(ctx, domain.ListOpts{})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load markets: %w", err)
		}
		positions, err := deps.PositionStore.ListAll(ctx)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load positions: %w", err)
		}
		eng.Restore(markets, positions)
		logger.InfoContext(ctx, "engine hydrated",
			slog.Int("markets", len(markets)),
			slog.Int("positions", len(positions)),
		)

		deps.Engine = eng
	}

	return deps, cleanup, nil
}
