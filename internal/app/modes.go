package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opine-markets/opined/internal/archive"
	"github.com/opine-markets/opined/internal/server"
	"github.com/opine-markets/opined/internal/server/handler"
	"github.com/opine-markets/opined/internal/server/ws"
	"github.com/opine-markets/opined/internal/service"
)

// shutdownTimeout bounds how long a graceful HTTP shutdown may take.
const shutdownTimeout = 10 * time.Second

// ServerMode runs the trading API: the HTTP server, the WebSocket hub, and
// the services backing them.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startAPIServer(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode runs only the cold-storage export loop. No HTTP server and no
// engine; useful as a sidecar next to a server-mode deployment.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startArchiver(ctx, g, deps); err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	return g.Wait()
}

// FullMode runs the trading API and, when enabled, the archive loop in one
// process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startAPIServer(ctx, g, deps)

	if a.cfg.Archive.Enabled {
		if err := a.startArchiver(ctx, g, deps); err != nil {
			return fmt.Errorf("full mode: %w", err)
		}
	}

	return g.Wait()
}

// startAPIServer builds the service layer and adds the WebSocket hub, the
// HTTP server, and its graceful-shutdown watcher to the errgroup.
func (a *App) startAPIServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	marketSvc := service.NewMarketService(
		deps.Engine, deps.MarketStore, deps.PriceCache,
		deps.LockManager, deps.AuditStore, deps.Notifier, a.logger,
	)
	orderSvc := service.NewOrderService(
		deps.Engine, deps.OrderStore, deps.PositionStore, deps.MarketStore,
		deps.PriceCache, deps.RateLimiter,
		a.cfg.Server.RateLimitPerMinute, time.Minute, a.logger,
	)
	positionSvc := service.NewPositionService(
		deps.Engine, deps.PositionStore, deps.MarketStore, deps.AuditStore, a.logger,
	)

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("ws hub: %w", err)
		}
		return nil
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": deps.Postgres,
			"redis":    deps.Redis,
		}, a.logger),
		Markets:   handler.NewMarketHandler(marketSvc, a.logger),
		Orders:    handler.NewOrderHandler(orderSvc, a.logger),
		Positions: handler.NewPositionHandler(positionSvc, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:               a.cfg.Server.Port,
		CORSOrigins:        a.cfg.Server.CORSOrigins,
		AdminAPIKey:        a.cfg.Server.AdminAPIKey,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiver adds the archive loop to the errgroup.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("archiver requires S3 blob storage")
	}

	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	runner := archive.NewRunner(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	g.Go(func() error {
		err := runner.RunLoop(ctx, interval)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	a.logger.InfoContext(ctx, "archive worker started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)
	return nil
}
