package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/trenchlabs/trenchd/internal/blob/s3"
	"github.com/trenchlabs/trenchd/internal/cache/redis"
	"github.com/trenchlabs/trenchd/internal/config"
	"github.com/trenchlabs/trenchd/internal/crypto"
	"github.com/trenchlabs/trenchd/internal/domain"
	"github.com/trenchlabs/trenchd/internal/notify"
	"github.com/trenchlabs/trenchd/internal/platform/chain"
	"github.com/trenchlabs/trenchd/internal/platform/subgraph"
	"github.com/trenchlabs/trenchd/internal/platform/tokens"
	"github.com/trenchlabs/trenchd/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Chain access
	Reader       domain.ContractReader
	Writer       domain.ContractWriter // nil without an operator key
	OperatorAddr string

	// Indexer and token metadata
	Indexer domain.IndexerClient
	Lookup  domain.TokenLookup

	// Stores
	MarketStore domain.MarketRecordStore
	FeeStore    domain.FeeStore
	AuditStore  domain.AuditStore

	// Caches
	DetailCache domain.MarketDetailCache
	StatsCache  domain.StatsCache
	TokenCache  domain.TokenCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage (nil unless S3 is enabled)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Chain ---
	chainClient, err := chain.New(ctx, chain.ClientConfig{
		RPCURL:          cfg.Chain.RPCURL,
		ContractAddress: cfg.Chain.ContractAddress,
		ChainID:         cfg.Chain.ChainID,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	closers = append(closers, chainClient.Close)

	pm, err := chain.NewPredictionMarket(chainClient, cfg.Chain.ContractAddress)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: contract binding: %w", err)
	}
	deps.Reader = pm

	// Operator wallet is optional; without it the backend is read-only and
	// the admin settlement endpoint reports itself unavailable.
	key, keyErr := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if keyErr != nil {
		logger.Warn("wire: no operator key, write operations disabled",
			slog.String("reason", keyErr.Error()),
		)
	} else {
		writer, werr := chain.NewWriter(pm, key)
		if werr != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator wallet: %w", werr)
		}
		deps.Writer = writer
		deps.OperatorAddr = writer.From()
	}
	if deps.OperatorAddr == "" {
		deps.OperatorAddr = cfg.Wallet.Address
	}

	// --- Indexer and token metadata ---
	deps.Indexer = subgraph.NewClient(cfg.Subgraph.URL, cfg.Subgraph.APIKey)
	deps.Lookup = tokens.NewClient(cfg.Tokens.BaseURL)

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	marketStore := postgres.NewMarketRecordStore(pool)
	feeStore := postgres.NewFeeStore(pool)
	deps.MarketStore = marketStore
	deps.FeeStore = feeStore
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

	deps.DetailCache = redis.NewMarketDetailCache(redisClient, cfg.Feed.DetailTTL.Duration)
	deps.StatsCache = redis.NewStatsCache(redisClient, cfg.Feed.StatsTTL.Duration)
	deps.TokenCache = redis.NewTokenCache(redisClient, cfg.Tokens.CacheTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
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
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			feeStore,
			marketStore,
			deps.AuditStore,
		)
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

	return deps, cleanup, nil
}
