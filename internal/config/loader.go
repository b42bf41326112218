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
// built-in defaults, applies TRENCHD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRENCHD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "TRENCHD_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "TRENCHD_CHAIN_ID")
	setStr(&cfg.Chain.ContractAddress, "TRENCHD_CHAIN_CONTRACT_ADDRESS")
	setInt(&cfg.Chain.ReadParallelism, "TRENCHD_CHAIN_READ_PARALLELISM")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "TRENCHD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "TRENCHD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "TRENCHD_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.Address, "TRENCHD_WALLET_ADDRESS")

	// ── Subgraph ──
	setStr(&cfg.Subgraph.URL, "TRENCHD_SUBGRAPH_URL")
	setStr(&cfg.Subgraph.APIKey, "TRENCHD_SUBGRAPH_API_KEY")
	setInt(&cfg.Subgraph.PageSize, "TRENCHD_SUBGRAPH_PAGE_SIZE")
	setDuration(&cfg.Subgraph.Timeout, "TRENCHD_SUBGRAPH_TIMEOUT")

	// ── Tokens ──
	setStr(&cfg.Tokens.BaseURL, "TRENCHD_TOKENS_BASE_URL")
	setDuration(&cfg.Tokens.CacheTTL, "TRENCHD_TOKENS_CACHE_TTL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRENCHD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRENCHD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRENCHD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRENCHD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRENCHD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRENCHD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRENCHD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRENCHD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRENCHD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRENCHD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRENCHD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRENCHD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRENCHD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRENCHD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRENCHD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRENCHD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TRENCHD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TRENCHD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRENCHD_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRENCHD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRENCHD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRENCHD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRENCHD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRENCHD_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "TRENCHD_S3_RETENTION_DAYS")

	// ── Feed ──
	setDuration(&cfg.Feed.RefreshInterval, "TRENCHD_FEED_REFRESH_INTERVAL")
	setDuration(&cfg.Feed.DetailTTL, "TRENCHD_FEED_DETAIL_TTL")
	setDuration(&cfg.Feed.StatsTTL, "TRENCHD_FEED_STATS_TTL")

	// ── Simulator ──
	setDuration(&cfg.Simulator.Delay, "TRENCHD_SIMULATOR_DELAY")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRENCHD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRENCHD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRENCHD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminToken, "TRENCHD_SERVER_ADMIN_TOKEN")
	setInt(&cfg.Server.RateLimit, "TRENCHD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "TRENCHD_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRENCHD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRENCHD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRENCHD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRENCHD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRENCHD_MODE")
	setStr(&cfg.LogLevel, "TRENCHD_LOG_LEVEL")
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
