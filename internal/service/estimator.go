// Package service implements the core application services: share
// estimation, trade simulation, position aggregation, the market feed, and
// admin operations. Services depend only on domain interfaces.
package service

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/trenchlabs/trenchd/internal/domain"
)

// Share-price heuristic constants, in native-currency units per share. The
// estimator is a display aid: the contract's calculateBuyCost is always the
// authoritative cost before execution.
var (
	defaultSharePrice = decimal.RequireFromString("0.05")
	priceSlope        = decimal.RequireFromString("0.2")
	priceIntercept    = decimal.RequireFromString("0.02")
	minSharePrice     = decimal.RequireFromString("0.01")
	maxSharePrice     = decimal.RequireFromString("0.15")
)

// weiScale shifts between native-currency decimals and 18-digit fixed point.
const weiScale = 18

// EstimateShares maps a spend amount to the share quantity it would roughly
// buy, using a linear implied-probability price model over the market's
// current share totals. The result is an 18-decimal fixed-point integer.
//
// It returns nil when spend is absent, unparseable, or not positive. It
// never panics and never consults the chain.
func EstimateShares(spend string, outcome domain.Outcome, totals [domain.NumOutcomes]*big.Int) *big.Int {
	if !outcome.Valid() {
		return nil
	}
	amount, err := decimal.NewFromString(spend)
	if err != nil || amount.Sign() <= 0 {
		return nil
	}

	price := sharePrice(outcome, totals)
	shares := amount.Div(price)

	// Six fractional digits of share precision, then shift to fixed point.
	return shares.Round(6).Shift(weiScale).BigInt()
}

// sharePrice derives the per-share price from the outcome's implied
// probability, clamped to [0.01, 0.15]. With no shares outstanding the
// default 0.05 applies.
func sharePrice(outcome domain.Outcome, totals [domain.NumOutcomes]*big.Int) decimal.Decimal {
	grand := new(big.Int)
	for _, t := range totals {
		if t != nil && t.Sign() > 0 {
			grand.Add(grand, t)
		}
	}
	if grand.Sign() == 0 {
		return defaultSharePrice
	}

	selected := totals[outcome]
	if selected == nil {
		selected = new(big.Int)
	}

	probability := decimal.NewFromBigInt(selected, 0).Div(decimal.NewFromBigInt(grand, 0))
	price := probability.Mul(priceSlope).Add(priceIntercept)

	if price.LessThan(minSharePrice) {
		return minSharePrice
	}
	if price.GreaterThan(maxSharePrice) {
		return maxSharePrice
	}
	return price
}
