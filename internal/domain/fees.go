package domain

import (
	"math/big"
	"time"
)

// FeeRecord is one fee-payment event from the indexer. Amounts are wei
// values and must be summed with integer arithmetic only.
type FeeRecord struct {
	ID             string
	MarketID       uint64
	Creator        string
	CreatorFee     *big.Int
	PlatformFee    *big.Int
	TxHash         string
	BlockNumber    uint64
	BlockTimestamp time.Time
}

// FeeTotals holds exact integer sums over a set of fee records.
type FeeTotals struct {
	CreatorTotal  *big.Int
	PlatformTotal *big.Int
}

// SumFees folds fee records into exact totals. Nil amounts count as zero.
func SumFees(records []FeeRecord) FeeTotals {
	t := FeeTotals{
		CreatorTotal:  new(big.Int),
		PlatformTotal: new(big.Int),
	}
	for _, r := range records {
		if r.CreatorFee != nil {
			t.CreatorTotal.Add(t.CreatorTotal, r.CreatorFee)
		}
		if r.PlatformFee != nil {
			t.PlatformTotal.Add(t.PlatformTotal, r.PlatformFee)
		}
	}
	return t
}

// Combined returns creator + platform totals as a fresh big.Int.
func (t FeeTotals) Combined() *big.Int {
	out := new(big.Int)
	if t.CreatorTotal != nil {
		out.Add(out, t.CreatorTotal)
	}
	if t.PlatformTotal != nil {
		out.Add(out, t.PlatformTotal)
	}
	return out
}
