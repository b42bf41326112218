package service

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trenchlabs/trenchd/internal/domain"
)

func TestEstimateSharesDefaultPrice(t *testing.T) {
	// No shares outstanding anywhere: the default 0.05 price applies, so
	// 0.1 buys exactly 2 shares.
	var totals [domain.NumOutcomes]*big.Int

	got := EstimateShares("0.1", domain.OutcomePump, totals)
	require.NotNil(t, got)
	assert.Equal(t, wei(2), got)
}

func TestEstimateSharesInvalidSpend(t *testing.T) {
	var totals [domain.NumOutcomes]*big.Int

	for _, spend := range []string{"", "abc", "0", "-1", "-0.5"} {
		assert.Nil(t, EstimateShares(spend, domain.OutcomePump, totals), "spend=%q", spend)
	}
}

func TestEstimateSharesInvalidOutcome(t *testing.T) {
	var totals [domain.NumOutcomes]*big.Int

	assert.Nil(t, EstimateShares("1", domain.Outcome(9), totals))
}

func TestEstimateSharesMaxClamp(t *testing.T) {
	// All outstanding shares sit in the selected outcome: implied
	// probability 1 gives 0.22, clamped to 0.15, so 0.15 buys 1 share.
	var totals [domain.NumOutcomes]*big.Int
	totals[domain.OutcomeMoon] = wei(500)

	got := EstimateShares("0.15", domain.OutcomeMoon, totals)
	require.NotNil(t, got)
	assert.Equal(t, wei(1), got)
}

func TestEstimateSharesZeroProbabilityOutcome(t *testing.T) {
	// Selected outcome has no shares but others do: probability 0 gives the
	// 0.02 intercept, so 0.02 buys 1 share.
	var totals [domain.NumOutcomes]*big.Int
	totals[domain.OutcomeDump] = wei(100)

	got := EstimateShares("0.02", domain.OutcomePump, totals)
	require.NotNil(t, got)
	assert.Equal(t, wei(1), got)
}

func TestEstimateSharesImpliedProbability(t *testing.T) {
	// 50/50 between two outcomes: price = 0.5*0.2 + 0.02 = 0.12, so 0.12
	// buys 1 share and 1.2 buys 10.
	var totals [domain.NumOutcomes]*big.Int
	totals[domain.OutcomePump] = wei(100)
	totals[domain.OutcomeDump] = wei(100)

	got := EstimateShares("1.2", domain.OutcomePump, totals)
	require.NotNil(t, got)
	assert.Equal(t, wei(10), got)
}

func TestEstimateSharesNeverPanicsOnNilEntries(t *testing.T) {
	var totals [domain.NumOutcomes]*big.Int
	totals[domain.OutcomeRug] = wei(3)

	assert.NotPanics(t, func() {
		got := EstimateShares("0.5", domain.OutcomeNoChange, totals)
		require.NotNil(t, got)
		assert.True(t, got.Sign() > 0)
	})
}
