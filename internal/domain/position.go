package domain

import (
	"math/big"
	"time"
)

// Position is a user's holding in one market: share balances per outcome as
// read from the contract, enriched with settlement state. Positions are
// derived, never stored as a source of truth.
type Position struct {
	MarketID       uint64
	Account        string
	Shares         [NumOutcomes]*big.Int
	TokenAddress   string
	SettlementTime time.Time
	Settled        bool
	FinalPrice     *big.Int
	WinningOutcome *Outcome
	Won            bool
}

// HasShares reports whether any outcome holds a positive share balance.
func (p Position) HasShares() bool {
	for _, s := range p.Shares {
		if s != nil && s.Sign() > 0 {
			return true
		}
	}
	return false
}

// WinningShares returns the share balance in the market's winning outcome,
// or nil if the market is unsettled.
func (p Position) WinningShares() *big.Int {
	if !p.Settled || p.WinningOutcome == nil {
		return nil
	}
	return p.Shares[*p.WinningOutcome]
}
