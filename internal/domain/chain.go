package domain

import (
	"context"
	"math/big"
)

// ContractReader is the read-only surface of the PredictionMarket contract.
// All values come straight from chain state; implementations must not cache.
type ContractReader interface {
	// MarketInfo returns the market's metadata, or ErrNotFound for an
	// unassigned id.
	MarketInfo(ctx context.Context, marketID uint64) (Market, error)

	// OutcomeStats returns the accumulated share and volume totals for one
	// outcome of a market.
	OutcomeStats(ctx context.Context, marketID uint64, outcome Outcome) (OutcomeStats, error)

	// UserShares returns the share balance an account holds in one outcome.
	UserShares(ctx context.Context, marketID uint64, account string, outcome Outcome) (*big.Int, error)

	// BuyCost returns the exact native-currency cost of buying the given
	// share quantity, per the contract's own pricing function.
	BuyCost(ctx context.Context, marketID uint64, outcome Outcome, shares *big.Int) (*big.Int, error)

	// SellPayout returns the exact native-currency payout for selling the
	// given share quantity.
	SellPayout(ctx context.Context, marketID uint64, outcome Outcome, shares *big.Int) (*big.Int, error)

	// NextMarketID returns the contract's running market counter. Valid
	// market ids are [0, NextMarketID).
	NextMarketID(ctx context.Context) (uint64, error)

	// Owner returns the contract owner address.
	Owner(ctx context.Context) (string, error)
}

// TxReceipt reports the submission of a state-changing contract call.
type TxReceipt struct {
	TxHash   string
	GasLimit uint64
}

// ContractWriter submits state-changing calls signed with the operator
// wallet. Implementations wait only for submission, not for inclusion.
type ContractWriter interface {
	CreateMarket(ctx context.Context, tokenAddress string, initialPrice, value *big.Int) (TxReceipt, error)
	BuyShares(ctx context.Context, marketID uint64, outcome Outcome, shares, value *big.Int) (TxReceipt, error)
	SellShares(ctx context.Context, marketID uint64, outcome Outcome, shares *big.Int) (TxReceipt, error)
	ClaimWinnings(ctx context.Context, marketID uint64) (TxReceipt, error)
	BatchSettleMarkets(ctx context.Context, marketIDs []uint64, finalPrices []*big.Int) (TxReceipt, error)
}
