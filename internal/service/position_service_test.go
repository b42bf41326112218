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

const testAccount = "0x1111111111111111111111111111111111111111"

// positionFixture describes one market's state for the fake reader.
type positionFixture struct {
	shares  map[domain.Outcome]*big.Int
	settled bool
	winner  *domain.Outcome
	err     error
}

func positionReader(fixtures map[uint64]positionFixture) *fakeReader {
	return &fakeReader{
		nextMarketID: func(ctx context.Context) (uint64, error) {
			var max uint64
			for id := range fixtures {
				if id >= max {
					max = id + 1
				}
			}
			return max, nil
		},
		userShares: func(ctx context.Context, marketID uint64, account string, outcome domain.Outcome) (*big.Int, error) {
			fx := fixtures[marketID]
			if fx.err != nil {
				return nil, fx.err
			}
			if s, ok := fx.shares[outcome]; ok {
				return s, nil
			}
			return new(big.Int), nil
		},
		marketInfo: func(ctx context.Context, marketID uint64) (domain.Market, error) {
			fx := fixtures[marketID]
			if fx.err != nil {
				return domain.Market{}, fx.err
			}
			return domain.Market{
				ID:             marketID,
				TokenAddress:   "0x2222222222222222222222222222222222222222",
				SettlementTime: time.Unix(1700000000, 0).UTC(),
				Settled:        fx.settled,
				WinningOutcome: fx.winner,
			}, nil
		},
	}
}

func TestAggregateExcludesZeroShareMarkets(t *testing.T) {
	winner := domain.OutcomeMoon
	svc := NewPositionService(positionReader(map[uint64]positionFixture{
		0: {shares: map[domain.Outcome]*big.Int{domain.OutcomeMoon: wei(5)}, settled: true, winner: &winner},
		1: {shares: map[domain.Outcome]*big.Int{}},
		2: {shares: map[domain.Outcome]*big.Int{domain.OutcomeDump: wei(3)}},
	}), 0, testLogger())

	positions, err := svc.Aggregate(context.Background(), testAccount)
	require.NoError(t, err)

	require.Len(t, positions, 2)
	assert.Equal(t, uint64(0), positions[0].MarketID)
	assert.Equal(t, uint64(2), positions[1].MarketID)
}

func TestAggregateWinFlag(t *testing.T) {
	winner := domain.OutcomePump
	svc := NewPositionService(positionReader(map[uint64]positionFixture{
		// Holds the winning outcome of a settled market.
		0: {shares: map[domain.Outcome]*big.Int{domain.OutcomePump: wei(1)}, settled: true, winner: &winner},
		// Holds only a losing outcome of the same settlement.
		1: {shares: map[domain.Outcome]*big.Int{domain.OutcomeRug: wei(1)}, settled: true, winner: &winner},
		// Holds the would-be winner of an unsettled market.
		2: {shares: map[domain.Outcome]*big.Int{domain.OutcomePump: wei(1)}},
	}), 0, testLogger())

	positions, err := svc.Aggregate(context.Background(), testAccount)
	require.NoError(t, err)
	require.Len(t, positions, 3)

	assert.True(t, positions[0].Won)
	assert.False(t, positions[1].Won)
	assert.False(t, positions[2].Won)
}

func TestAggregateSkipsFailedMarkets(t *testing.T) {
	svc := NewPositionService(positionReader(map[uint64]positionFixture{
		0: {shares: map[domain.Outcome]*big.Int{domain.OutcomePump: wei(2)}},
		1: {err: errors.New("rpc timeout")},
		2: {shares: map[domain.Outcome]*big.Int{domain.OutcomeMoon: wei(4)}},
	}), 0, testLogger())

	positions, err := svc.Aggregate(context.Background(), testAccount)
	require.NoError(t, err)

	require.Len(t, positions, 2)
	assert.Equal(t, uint64(0), positions[0].MarketID)
	assert.Equal(t, uint64(2), positions[1].MarketID)
}

func TestAggregateOrderedByMarketID(t *testing.T) {
	fixtures := make(map[uint64]positionFixture)
	for id := uint64(0); id < 20; id++ {
		fixtures[id] = positionFixture{
			shares: map[domain.Outcome]*big.Int{domain.OutcomeNoChange: wei(int64(id + 1))},
		}
	}
	svc := NewPositionService(positionReader(fixtures), 4, testLogger())

	positions, err := svc.Aggregate(context.Background(), testAccount)
	require.NoError(t, err)
	require.Len(t, positions, 20)

	for i, pos := range positions {
		assert.Equal(t, uint64(i), pos.MarketID)
	}
}

func TestAggregateNoMarkets(t *testing.T) {
	svc := NewPositionService(positionReader(nil), 0, testLogger())

	positions, err := svc.Aggregate(context.Background(), testAccount)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestAggregateNextMarketIDError(t *testing.T) {
	reader := &fakeReader{
		nextMarketID: func(ctx context.Context) (uint64, error) {
			return 0, errors.New("rpc down")
		},
	}
	svc := NewPositionService(reader, 0, testLogger())

	_, err := svc.Aggregate(context.Background(), testAccount)
	assert.Error(t, err)
}
