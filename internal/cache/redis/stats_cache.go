package redis

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trenchlabs/trenchd/internal/domain"
)

// StatsCache implements domain.StatsCache using Redis hashes, one per market
// and outcome, with decimal-string amounts so 18-decimal values survive the
// round trip exactly.
//
// Key schema:
//
//	stats:{marketID}:{outcome} - hash with fields "shares" and "volume"
type StatsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStatsCache creates a StatsCache backed by the given Client.
func NewStatsCache(c *Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &StatsCache{rdb: c.Underlying(), ttl: ttl}
}

func statsKey(marketID uint64, outcome domain.Outcome) string {
	return "stats:" + strconv.FormatUint(marketID, 10) + ":" + strconv.Itoa(int(outcome))
}

// Set stores one outcome's accumulators.
func (sc *StatsCache) Set(ctx context.Context, marketID uint64, outcome domain.Outcome, stats domain.OutcomeStats) error {
	key := statsKey(marketID, outcome)

	pipe := sc.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"shares", bigOrZero(stats.TotalShares),
		"volume", bigOrZero(stats.TotalVolume),
	)
	pipe.Expire(ctx, key, sc.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set stats %d/%s: %w", marketID, outcome, err)
	}
	return nil
}

// Get retrieves one outcome's accumulators. It returns domain.ErrNotFound
// when the key does not exist.
func (sc *StatsCache) Get(ctx context.Context, marketID uint64, outcome domain.Outcome) (domain.OutcomeStats, error) {
	vals, err := sc.rdb.HGetAll(ctx, statsKey(marketID, outcome)).Result()
	if err != nil {
		return domain.OutcomeStats{}, fmt.Errorf("redis: get stats %d/%s: %w", marketID, outcome, err)
	}
	if len(vals) == 0 {
		return domain.OutcomeStats{}, domain.ErrNotFound
	}

	shares, err := parseBig(vals["shares"])
	if err != nil {
		return domain.OutcomeStats{}, fmt.Errorf("redis: stats %d/%s shares: %w", marketID, outcome, err)
	}
	volume, err := parseBig(vals["volume"])
	if err != nil {
		return domain.OutcomeStats{}, fmt.Errorf("redis: stats %d/%s volume: %w", marketID, outcome, err)
	}

	return domain.OutcomeStats{TotalShares: shares, TotalVolume: volume}, nil
}

// GetAll retrieves accumulators for every outcome of a market. It returns
// domain.ErrNotFound if any single outcome is missing, so callers always see
// a complete set or none.
func (sc *StatsCache) GetAll(ctx context.Context, marketID uint64) ([domain.NumOutcomes]domain.OutcomeStats, error) {
	var out [domain.NumOutcomes]domain.OutcomeStats
	for _, o := range domain.Outcomes {
		stats, err := sc.Get(ctx, marketID, o)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return out, domain.ErrNotFound
			}
			return out, err
		}
		out[o] = stats
	}
	return out, nil
}

func bigOrZero(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBig(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed integer %q", s)
	}
	return v, nil
}

// Compile-time interface check.
var _ domain.StatsCache = (*StatsCache)(nil)
