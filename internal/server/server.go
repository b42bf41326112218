package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/trenchlabs/trenchd/internal/domain"
	"github.com/trenchlabs/trenchd/internal/server/handler"
	"github.com/trenchlabs/trenchd/internal/server/middleware"
	"github.com/trenchlabs/trenchd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	AdminToken      string // if empty, the admin endpoints reject every request
	RateLimit       int    // requests per window per client IP; 0 disables
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Markets   *handler.MarketHandler
	Positions *handler.PositionHandler
	Tokens    *handler.TokenHandler
	Trades    *handler.TradeHandler
	Admin     *handler.AdminHandler
}

// Server is the headless HTTP + WebSocket API for the prediction-market
// backend.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, rate limiting) and attaches the
// WebSocket hub. The limiter may be nil when rate limiting is disabled.
func NewServer(
	cfg Config,
	handlers Handlers,
	wsHub *ws.Hub,
	limiter domain.RateLimiter,
	logger *slog.Logger,
) *Server {
	mux := http.NewServeMux()

	// Liveness and status (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Market feed.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/settled", handlers.Markets.ListSettled)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/stats", handlers.Markets.GetOutcomeStats)
	mux.HandleFunc("GET /api/feed/stats", handlers.Markets.GetFeedStats)

	// Positions.
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)

	// Token metadata.
	mux.HandleFunc("GET /api/tokens/{address}", handlers.Tokens.GetToken)

	// Dry-run trade endpoints.
	mux.HandleFunc("POST /api/simulate", handlers.Trades.Simulate)
	mux.HandleFunc("POST /api/estimate", handlers.Trades.Estimate)

	// Operator endpoints, gated by the admin token.
	adminAuth := middleware.Auth(cfg.AdminToken)
	mux.Handle("POST /api/admin/settle", adminAuth(http.HandlerFunc(handlers.Admin.BatchSettle)))
	mux.Handle("POST /api/admin/markets", adminAuth(http.HandlerFunc(handlers.Admin.CreateMarket)))
	mux.Handle("POST /api/admin/trade", adminAuth(http.HandlerFunc(handlers.Admin.Trade)))
	mux.Handle("POST /api/admin/claim", adminAuth(http.HandlerFunc(handlers.Admin.Claim)))
	mux.Handle("POST /api/admin/refresh", adminAuth(http.HandlerFunc(handlers.Admin.RefreshFeed)))
	mux.Handle("GET /api/admin/archives", adminAuth(http.HandlerFunc(handlers.Admin.ListArchives)))
	mux.Handle("GET /api/admin/archives/{path...}", adminAuth(http.HandlerFunc(handlers.Admin.GetArchive)))
	mux.Handle("GET /api/admin/audit", adminAuth(http.HandlerFunc(handlers.Admin.ListAudit)))

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain (outermost last).
	var h http.Handler = mux

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
