package domain

import (
	"context"
	"math/big"
	"time"
)

// PageOpts carries subgraph-style paging parameters. OrderBy names an entity
// field ("blockTimestamp", "marketId", ...); OrderDirection is "asc" or
// "desc". Zero values fall back to the indexer's defaults.
type PageOpts struct {
	First          int
	Skip           int
	OrderBy        string
	OrderDirection string
}

// MarketCreatedRecord is a market-creation event from the indexer.
type MarketCreatedRecord struct {
	ID             string
	MarketID       uint64
	Creator        string
	TokenAddress   string
	InitialPrice   *big.Int
	SettlementTime time.Time
	TxHash         string
	BlockNumber    uint64
	BlockTimestamp time.Time
}

// MarketSettledRecord is a market-settlement event from the indexer.
type MarketSettledRecord struct {
	ID             string
	MarketID       uint64
	FinalPrice     *big.Int
	WinningOutcome Outcome
	TxHash         string
	BlockNumber    uint64
	BlockTimestamp time.Time
}

// MarketHistory bundles everything the indexer knows about one market.
type MarketHistory struct {
	Created *MarketCreatedRecord
	Settled *MarketSettledRecord
	Fees    []FeeRecord
}

// IndexerClient is the read-only query surface of the subgraph indexing
// service. Implementations translate these calls into GraphQL queries.
type IndexerClient interface {
	MarketCreateds(ctx context.Context, opts PageOpts) ([]MarketCreatedRecord, error)
	MarketSettleds(ctx context.Context, opts PageOpts) ([]MarketSettledRecord, error)
	FeesPaids(ctx context.Context, opts PageOpts) ([]FeeRecord, error)
	MarketByID(ctx context.Context, marketID uint64) (MarketHistory, error)
	MarketsByCreator(ctx context.Context, creator string, opts PageOpts) ([]MarketCreatedRecord, error)
}

// TokenInfo is best-effort metadata for an underlying asset.
type TokenInfo struct {
	Address  string
	Symbol   string
	Name     string
	PriceUSD string
}

// TokenLookup resolves token metadata by contract address. Implementations
// return ErrNotFound when the token is unknown; callers degrade to a
// placeholder label.
type TokenLookup interface {
	Lookup(ctx context.Context, address string) (TokenInfo, error)
}
