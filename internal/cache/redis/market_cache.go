package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trenchlabs/trenchd/internal/domain"
)

// settledDetailTTL applies to settled markets, whose merged view can only
// change if the indexer re-orgs.
const settledDetailTTL = 24 * time.Hour

// MarketDetailCache implements domain.MarketDetailCache using JSON-serialized
// detail views.
//
// Key schema:
//
//	market:detail:{id} - JSON MarketDetail
type MarketDetailCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarketDetailCache creates a MarketDetailCache backed by the given
// Client. ttl applies to unsettled markets.
func NewMarketDetailCache(c *Client, ttl time.Duration) *MarketDetailCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &MarketDetailCache{rdb: c.Underlying(), ttl: ttl}
}

func detailKey(id uint64) string {
	return "market:detail:" + strconv.FormatUint(id, 10)
}

// Set stores a merged market view. Settled markets get the long TTL since
// their detail is final.
func (mc *MarketDetailCache) Set(ctx context.Context, detail domain.MarketDetail) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("redis: marshal detail %d: %w", detail.Market.ID, err)
	}

	ttl := mc.ttl
	if detail.Market.Settled {
		ttl = settledDetailTTL
	}

	if err := mc.rdb.Set(ctx, detailKey(detail.Market.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set detail %d: %w", detail.Market.ID, err)
	}
	return nil
}

// Get retrieves a merged market view. It returns domain.ErrNotFound when the
// key does not exist.
func (mc *MarketDetailCache) Get(ctx context.Context, marketID uint64) (domain.MarketDetail, error) {
	data, err := mc.rdb.Get(ctx, detailKey(marketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketDetail{}, domain.ErrNotFound
		}
		return domain.MarketDetail{}, fmt.Errorf("redis: get detail %d: %w", marketID, err)
	}

	var detail domain.MarketDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return domain.MarketDetail{}, fmt.Errorf("redis: unmarshal detail %d: %w", marketID, err)
	}
	return detail, nil
}

// Invalidate removes a market's cached view, typically after its settlement
// lands on chain.
func (mc *MarketDetailCache) Invalidate(ctx context.Context, marketID uint64) error {
	if err := mc.rdb.Del(ctx, detailKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate detail %d: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketDetailCache = (*MarketDetailCache)(nil)
