package domain

import (
	"context"
	"io"
	"time"
)

// MarketDetailCache caches merged single-market views.
type MarketDetailCache interface {
	Set(ctx context.Context, detail MarketDetail) error
	Get(ctx context.Context, marketID uint64) (MarketDetail, error)
	Invalidate(ctx context.Context, marketID uint64) error
}

// StatsCache caches per-outcome contract accumulators for the share
// estimator so every keystroke does not hit the RPC node.
type StatsCache interface {
	Set(ctx context.Context, marketID uint64, outcome Outcome, stats OutcomeStats) error
	Get(ctx context.Context, marketID uint64, outcome Outcome) (OutcomeStats, error)
	GetAll(ctx context.Context, marketID uint64) ([NumOutcomes]OutcomeStats, error)
}

// TokenCache caches token metadata lookups.
type TokenCache interface {
	Set(ctx context.Context, info TokenInfo) error
	Get(ctx context.Context, address string) (TokenInfo, error)
}

// RateLimiter provides distributed rate limiting for the HTTP API.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides pub/sub fan-out of backend events (feed refreshes,
// settlements) to the WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (<-chan []byte, error)
}

// LockManager provides distributed locks so only one instance runs a
// scheduled job at a time. Acquire returns ErrLockHeld when the lock is
// taken elsewhere.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BlobWriter uploads a named object to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobInfo is metadata for one stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobReader retrieves archived objects from cold storage.
type BlobReader interface {
	// Get returns the object body; the caller closes it. Missing objects
	// yield ErrNotFound.
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}
