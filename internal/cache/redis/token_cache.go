package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trenchlabs/trenchd/internal/domain"
)

// TokenCache implements domain.TokenCache with JSON-serialized metadata.
// Addresses are lowercased so checksummed and plain forms share one entry.
//
// Key schema:
//
//	token:{address} - JSON TokenInfo
type TokenCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTokenCache creates a TokenCache backed by the given Client.
func NewTokenCache(c *Client, ttl time.Duration) *TokenCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TokenCache{rdb: c.Underlying(), ttl: ttl}
}

func tokenKey(address string) string {
	return "token:" + strings.ToLower(address)
}

// Set stores token metadata.
func (tc *TokenCache) Set(ctx context.Context, info domain.TokenInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("redis: marshal token %s: %w", info.Address, err)
	}
	if err := tc.rdb.Set(ctx, tokenKey(info.Address), data, tc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set token %s: %w", info.Address, err)
	}
	return nil
}

// Get retrieves token metadata by address. It returns domain.ErrNotFound when
// the key does not exist.
func (tc *TokenCache) Get(ctx context.Context, address string) (domain.TokenInfo, error) {
	data, err := tc.rdb.Get(ctx, tokenKey(address)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.TokenInfo{}, domain.ErrNotFound
		}
		return domain.TokenInfo{}, fmt.Errorf("redis: get token %s: %w", address, err)
	}

	var info domain.TokenInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return domain.TokenInfo{}, fmt.Errorf("redis: unmarshal token %s: %w", address, err)
	}
	return info, nil
}

// Compile-time interface check.
var _ domain.TokenCache = (*TokenCache)(nil)
