package domain

import (
	"math/big"
	"time"
)

// Market is the on-chain view of a single prediction market as returned by
// the PredictionMarket contract's getMarketInfo. Identifiers are assigned by
// the contract and never change; the settled fields are written exactly once
// by the settlement transaction.
type Market struct {
	ID             uint64
	Creator        string // checksummed hex address
	TokenAddress   string // underlying asset being bet on
	InitialPrice   *big.Int // USD price scaled by 1e18 at creation
	CreatedAt      time.Time
	SettlementTime time.Time
	Settled        bool
	FinalPrice     *big.Int // zero until settled
	WinningOutcome *Outcome // nil until settled
}

// OutcomeStats holds the contract's per-outcome accumulators.
// Both values are 18-decimal fixed-point integers owned by the contract.
type OutcomeStats struct {
	TotalShares *big.Int
	TotalVolume *big.Int
}

// MarketSummary is one row of the market feed: a creation record from the
// indexer joined with its settlement record when one exists.
type MarketSummary struct {
	MarketID       uint64
	Creator        string
	TokenAddress   string
	TokenSymbol    string // enrichment, may be a placeholder
	InitialPrice   *big.Int
	SettlementTime time.Time
	CreatedAt      time.Time
	Settled        bool
	FinalPrice     *big.Int
	WinningOutcome *Outcome
	TxHash         string
}

// MarketDetail is the merged single-market view: the chain's market info,
// the indexer's creation/settlement history, and exact fee totals.
type MarketDetail struct {
	Market      Market
	TokenSymbol string
	TokenName   string
	Fees        FeeTotals
	FeeCount    int
	CreatedTx   string
	SettledTx   string
}

// FeedStats summarises the current feed snapshot.
type FeedStats struct {
	TotalMarkets   int
	SettledMarkets int
	ActiveMarkets  int
	TotalFees      *big.Int // creator + platform fees over all records, wei
}
