package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trenchlabs/trenchd/internal/domain"
	"github.com/trenchlabs/trenchd/internal/notify"
	"github.com/trenchlabs/trenchd/internal/server"
	"github.com/trenchlabs/trenchd/internal/server/handler"
	"github.com/trenchlabs/trenchd/internal/server/ws"
	"github.com/trenchlabs/trenchd/internal/service"
)

// archiveLockKey guards the archival job so only one instance of the backend
// runs it at a time.
const archiveLockKey = "trenchd:archive"

// services bundles the domain services shared by the operating modes.
type services struct {
	feed      *service.FeedService
	markets   *service.MarketService
	positions *service.PositionService
	simulator *service.Simulator
	admin     *service.AdminService // nil without an operator wallet
}

// buildServices constructs the service layer from wired dependencies.
func (a *App) buildServices(deps *Dependencies) *services {
	svcs := &services{
		feed: service.NewFeedService(
			deps.Indexer,
			deps.Lookup,
			deps.TokenCache,
			deps.MarketStore,
			deps.FeeStore,
			deps.SignalBus,
			service.FeedConfig{
				Interval: a.cfg.Feed.RefreshInterval.Duration,
				PageSize: a.cfg.Subgraph.PageSize,
			},
			a.logger,
		),
		markets: service.NewMarketService(
			deps.Reader,
			deps.Indexer,
			deps.Lookup,
			deps.DetailCache,
			deps.StatsCache,
			a.logger,
		),
		positions: service.NewPositionService(deps.Reader, a.cfg.Chain.ReadParallelism, a.logger),
		simulator: service.NewSimulator(deps.Reader, service.SimulatorConfig{
			Delay: a.cfg.Simulator.Delay.Duration,
		}, a.logger),
	}

	if deps.Writer != nil {
		svcs.admin = service.NewAdminService(
			deps.Reader,
			deps.Writer,
			deps.OperatorAddr,
			deps.AuditStore,
			a.logger,
		)
	}

	return svcs
}

// ServerMode runs the HTTP + WebSocket API together with the background feed
// refresher that keeps it populated.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	g.Go(func() error {
		err := svcs.feed.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	a.startWatcher(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, svcs)

	return g.Wait()
}

// PollMode runs the headless refresher: feed polling, settlement
// notifications, and archival, with no HTTP surface.
func (a *App) PollMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting poll mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	g.Go(func() error {
		err := svcs.feed.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	a.startWatcher(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// FullMode runs every subsystem: the API server, the feed refresher,
// settlement notifications, and archival.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	g.Go(func() error {
		err := svcs.feed.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	a.startWatcher(ctx, g, deps)
	a.startArchiver(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, svcs)

	return g.Wait()
}

// startWatcher adds the settlement notification bridge when any notification
// channel is configured.
func (a *App) startWatcher(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if a.cfg.Notify.TelegramToken == "" && a.cfg.Notify.DiscordWebhookURL == "" {
		return
	}
	watcher := notify.NewSettlementWatcher(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		err := watcher.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

// startArchiver adds the daily archival job when S3 is enabled. A distributed
// lock ensures only one instance archives per cycle.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}

	retention := time.Duration(a.cfg.S3.RetentionDays) * 24 * time.Hour
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}

	g.Go(func() error {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		runOnce := func() {
			release, err := deps.LockManager.Acquire(ctx, archiveLockKey, 10*time.Minute)
			if err != nil {
				if errors.Is(err, domain.ErrLockHeld) {
					a.logger.InfoContext(ctx, "archive job held by another instance")
				} else {
					a.logger.WarnContext(ctx, "archive lock failed",
						slog.String("error", err.Error()),
					)
				}
				return
			}
			defer release()

			cutoff := time.Now().UTC().Add(-retention)
			archived, err := deps.Archiver.ArchiveFees(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "fee archival failed",
					slog.String("error", err.Error()),
				)
			} else if archived > 0 {
				a.logger.InfoContext(ctx, "fee records archived",
					slog.Int64("count", archived),
					slog.Time("cutoff", cutoff),
				)
			}

			count, err := deps.Archiver.ArchiveSettlements(ctx, time.Now().UTC())
			if err != nil {
				a.logger.ErrorContext(ctx, "settlement archival failed",
					slog.String("error", err.Error()),
				)
			} else if count > 0 {
				a.logger.InfoContext(ctx, "settlement snapshot archived",
					slog.Int64("count", count),
				)
			}
		}

		runOnce()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				runOnce()
			}
		}
	})
}

// startHTTPServer adds the API server and WebSocket hub goroutines to the
// errgroup. The server is shut down gracefully on context cancellation.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "server.enabled is false, skipping HTTP server")
		return
	}

	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: startedAt,
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	var adminSvc handler.AdminService
	if svcs.admin != nil {
		adminSvc = svcs.admin
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, startedAt, svcs.feed),
		Markets:   handler.NewMarketHandler(svcs.feed, svcs.markets, a.logger),
		Positions: handler.NewPositionHandler(svcs.positions, a.logger),
		Tokens:    handler.NewTokenHandler(deps.Lookup, deps.TokenCache, a.logger),
		Trades:    handler.NewTradeHandler(svcs.simulator, svcs.positions, a.logger),
		Admin: handler.NewAdminHandler(
			adminSvc,
			svcs.feed,
			deps.BlobReader,
			deps.AuditStore,
			a.logger,
		),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		AdminToken:      a.cfg.Server.AdminToken,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
