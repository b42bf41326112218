package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trenchlabs/trenchd/internal/domain"
)

func newFallbackSimulator() *Simulator {
	return NewSimulator(nil, SimulatorConfig{}, testLogger())
}

func TestSimulateBuyFallbackModel(t *testing.T) {
	sim := newFallbackSimulator()

	// spend 0.1: fee = 0.0025, impact = 1.00%, shares = 0.0975 * 0.99.
	res := sim.Simulate(context.Background(), domain.TradeIntent{
		Kind:    domain.TradeBuy,
		Outcome: domain.OutcomePump,
		Spend:   "0.1",
	})

	require.True(t, res.Success, "error: %s", res.Error)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, domain.TradeBuy, res.Kind)
	assert.False(t, res.Authoritative)
	assert.Equal(t, gasBuy, res.EstimatedGas)
	assert.Equal(t, "0.002500", res.Fees)
	assert.Equal(t, "1.00%", res.PriceImpact)
	assert.Equal(t, "0.096525", res.SharesReceived)
	assert.Equal(t, "1.010000", res.NewSharePrice)
}

func TestSimulateBuyFeeRate(t *testing.T) {
	sim := newFallbackSimulator()

	res := sim.Simulate(context.Background(), domain.TradeIntent{
		Kind:  domain.TradeBuy,
		Spend: "1",
	})

	require.True(t, res.Success)
	assert.Equal(t, "0.025000", res.Fees)
}

func TestSimulateBuyImpactCap(t *testing.T) {
	sim := newFallbackSimulator()

	// spend 10 would imply 100% impact; the cap holds it at 15%.
	res := sim.Simulate(context.Background(), domain.TradeIntent{
		Kind:  domain.TradeBuy,
		Spend: "10",
	})

	require.True(t, res.Success)
	assert.Equal(t, "15.00%", res.PriceImpact)
	assert.Equal(t, "8.287500", res.SharesReceived)
}

func TestSimulateBuyInvalidSpend(t *testing.T) {
	sim := newFallbackSimulator()

	for _, spend := range []string{"", "nope", "0", "-2"} {
		res := sim.Simulate(context.Background(), domain.TradeIntent{
			Kind:  domain.TradeBuy,
			Spend: spend,
		})
		assert.False(t, res.Success, "spend=%q", spend)
		assert.Equal(t, "invalid spend amount", res.Error, "spend=%q", spend)
	}
}

func TestSimulateBuyAuthoritative(t *testing.T) {
	// Empty stats give the 0.05 default price, so spend 1 guesses 20
	// shares. The contract prices those 20 shares at exactly 1, so the
	// guess stands and the effective price matches the base: zero impact.
	reader := &fakeReader{
		outcomeStats: func(ctx context.Context, marketID uint64, outcome domain.Outcome) (domain.OutcomeStats, error) {
			return domain.OutcomeStats{TotalShares: new(big.Int), TotalVolume: new(big.Int)}, nil
		},
		buyCost: func(ctx context.Context, marketID uint64, outcome domain.Outcome, shares *big.Int) (*big.Int, error) {
			require.Equal(t, wei(20), shares)
			return wei(1), nil
		},
	}
	sim := NewSimulator(reader, SimulatorConfig{}, testLogger())

	res := sim.Simulate(context.Background(), domain.TradeIntent{
		Kind:    domain.TradeBuy,
		Outcome: domain.OutcomeMoon,
		Spend:   "1",
	})

	require.True(t, res.Success, "error: %s", res.Error)
	assert.True(t, res.Authoritative)
	assert.Equal(t, "20.000000", res.SharesReceived)
	assert.Equal(t, "0.00%", res.PriceImpact)
	assert.Equal(t, "0.050000", res.NewSharePrice)
	assert.Equal(t, "0.025000", res.Fees)
}

func TestSimulateBuyFallsBackWhenChainFails(t *testing.T) {
	reader := &fakeReader{
		outcomeStats: func(ctx context.Context, marketID uint64, outcome domain.Outcome) (domain.OutcomeStats, error) {
			return domain.OutcomeStats{}, errors.New("rpc down")
		},
	}
	sim := NewSimulator(reader, SimulatorConfig{}, testLogger())

	res := sim.Simulate(context.Background(), domain.TradeIntent{
		Kind:  domain.TradeBuy,
		Spend: "0.1",
	})

	require.True(t, res.Success)
	assert.False(t, res.Authoritative)
	assert.Equal(t, "0.096525", res.SharesReceived)
}

func TestSimulateSellFallbackModel(t *testing.T) {
	sim := newFallbackSimulator()

	// 1 share: fee = 0.025, impact = 8%, net = 0.92 - 0.025.
	res := sim.Simulate(context.Background(), domain.TradeIntent{
		Kind:   domain.TradeSell,
		Shares: wei(1),
	})

	require.True(t, res.Success)
	assert.Equal(t, gasSell, res.EstimatedGas)
	assert.Equal(t, "0.025000", res.Fees)
	assert.Equal(t, "8.00%", res.PriceImpact)
	assert.Equal(t, "0.895000", res.ExpectedReturn)
}

func TestSimulateSellNeverNegative(t *testing.T) {
	sim := newFallbackSimulator()

	res := sim.Simulate(context.Background(), domain.TradeIntent{
		Kind:   domain.TradeSell,
		Shares: big.NewInt(1), // 1e-18 shares, fee exceeds value
	})

	require.True(t, res.Success)
	assert.Equal(t, "0.000000", res.ExpectedReturn)
}

func TestSimulateSellInvalidShares(t *testing.T) {
	sim := newFallbackSimulator()

	for _, shares := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		res := sim.Simulate(context.Background(), domain.TradeIntent{
			Kind:   domain.TradeSell,
			Shares: shares,
		})
		assert.False(t, res.Success)
		assert.Equal(t, "invalid share quantity", res.Error)
	}
}

func TestSimulateSellAuthoritative(t *testing.T) {
	reader := &fakeReader{
		sellPayout: func(ctx context.Context, marketID uint64, outcome domain.Outcome, shares *big.Int) (*big.Int, error) {
			return wei(3), nil
		},
	}
	sim := NewSimulator(reader, SimulatorConfig{}, testLogger())

	res := sim.Simulate(context.Background(), domain.TradeIntent{
		Kind:   domain.TradeSell,
		Shares: wei(4),
	})

	require.True(t, res.Success)
	assert.True(t, res.Authoritative)
	assert.Equal(t, "3.000000", res.ExpectedReturn)
}

func TestSimulateCreate(t *testing.T) {
	sim := newFallbackSimulator()

	res := sim.Simulate(context.Background(), domain.TradeIntent{Kind: domain.TradeCreate})

	require.True(t, res.Success)
	assert.Equal(t, gasCreate, res.EstimatedGas)
	assert.Equal(t, "0.01", res.Fees)
}

func TestSimulateClaim(t *testing.T) {
	sim := newFallbackSimulator()

	res := sim.Simulate(context.Background(), domain.TradeIntent{Kind: domain.TradeClaim})

	require.True(t, res.Success)
	assert.Equal(t, gasClaim, res.EstimatedGas)
	assert.Equal(t, "0.5", res.ExpectedReturn)
}

func TestSimulateClaimUnsettledMarket(t *testing.T) {
	reader := &fakeReader{
		marketInfo: func(ctx context.Context, marketID uint64) (domain.Market, error) {
			return domain.Market{ID: marketID, Settled: false}, nil
		},
	}
	sim := NewSimulator(reader, SimulatorConfig{}, testLogger())

	res := sim.Simulate(context.Background(), domain.TradeIntent{
		Kind:     domain.TradeClaim,
		MarketID: 7,
	})

	assert.False(t, res.Success)
	assert.Equal(t, "market not settled", res.Error)
}

func TestSimulateUnknownKind(t *testing.T) {
	sim := newFallbackSimulator()

	res := sim.Simulate(context.Background(), domain.TradeIntent{Kind: "short"})

	assert.False(t, res.Success)
	assert.Equal(t, `unknown simulation type "short"`, res.Error)
}

func TestSimulateCancelledContext(t *testing.T) {
	sim := NewSimulator(nil, SimulatorConfig{Delay: time.Second}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	res := sim.Simulate(ctx, domain.TradeIntent{Kind: domain.TradeBuy, Spend: "1"})

	assert.False(t, res.Success)
	assert.Equal(t, "simulation cancelled", res.Error)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSimulateRecoversFromPanic(t *testing.T) {
	reader := &fakeReader{
		marketInfo: func(ctx context.Context, marketID uint64) (domain.Market, error) {
			panic("boom")
		},
	}
	sim := NewSimulator(reader, SimulatorConfig{}, testLogger())

	var res domain.SimulationResult
	assert.NotPanics(t, func() {
		res = sim.Simulate(context.Background(), domain.TradeIntent{Kind: domain.TradeClaim})
	})
	assert.False(t, res.Success)
	assert.Equal(t, "simulation failed", res.Error)
}
