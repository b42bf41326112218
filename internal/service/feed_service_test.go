package service

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trenchlabs/trenchd/internal/domain"
)

func feedIndexer(
	createds []domain.MarketCreatedRecord,
	settleds []domain.MarketSettledRecord,
	fees []domain.FeeRecord,
) *fakeIndexer {
	return &fakeIndexer{
		createds: func(ctx context.Context, opts domain.PageOpts) ([]domain.MarketCreatedRecord, error) {
			if opts.Skip > 0 {
				return nil, nil
			}
			return createds, nil
		},
		settleds: func(ctx context.Context, opts domain.PageOpts) ([]domain.MarketSettledRecord, error) {
			if opts.Skip > 0 {
				return nil, nil
			}
			return settleds, nil
		},
		fees: func(ctx context.Context, opts domain.PageOpts) ([]domain.FeeRecord, error) {
			if opts.Skip > 0 {
				return nil, nil
			}
			return fees, nil
		},
	}
}

func newTestFeed(indexer domain.IndexerClient, bus domain.SignalBus) *FeedService {
	return NewFeedService(indexer, nil, nil, nil, nil, bus, FeedConfig{PageSize: 100}, testLogger())
}

func TestRefreshMergesSettlements(t *testing.T) {
	t0 := time.Unix(1700000000, 0).UTC()
	createds := []domain.MarketCreatedRecord{
		{MarketID: 0, TokenAddress: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", BlockTimestamp: t0},
		{MarketID: 1, TokenAddress: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", BlockTimestamp: t0.Add(time.Hour)},
		{MarketID: 2, TokenAddress: "0xcccccccccccccccccccccccccccccccccccccccc", BlockTimestamp: t0.Add(2 * time.Hour)},
	}
	settleds := []domain.MarketSettledRecord{
		{MarketID: 1, FinalPrice: wei(7), WinningOutcome: domain.OutcomeRug},
	}
	svc := newTestFeed(feedIndexer(createds, settleds, nil), nil)

	require.NoError(t, svc.Refresh(context.Background()))

	markets, err := svc.Markets(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, markets, 3)

	// Newest first.
	assert.Equal(t, uint64(2), markets[0].MarketID)
	assert.Equal(t, uint64(1), markets[1].MarketID)
	assert.Equal(t, uint64(0), markets[2].MarketID)

	assert.False(t, markets[0].Settled)
	require.True(t, markets[1].Settled)
	require.NotNil(t, markets[1].WinningOutcome)
	assert.Equal(t, domain.OutcomeRug, *markets[1].WinningOutcome)
	assert.Equal(t, wei(7), markets[1].FinalPrice)

	settled, err := svc.Settled(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, settled, 1)
	assert.Equal(t, uint64(1), settled[0].MarketID)

	// No metadata source configured: shortened-address placeholder.
	assert.Equal(t, "0xcccc...cccc", markets[0].TokenSymbol)
}

func TestRefreshExactFeeTotals(t *testing.T) {
	// Amounts near 2^63 overflow float64 precision; the totals must still be
	// exact to the wei.
	base, ok := new(big.Int).SetString("9007199254740993", 10) // 2^53 + 1
	require.True(t, ok)

	fees := []domain.FeeRecord{
		{ID: "a", MarketID: 0, CreatorFee: new(big.Int).Set(base), PlatformFee: big.NewInt(1)},
		{ID: "b", MarketID: 0, CreatorFee: new(big.Int).Set(base), PlatformFee: big.NewInt(1)},
		{ID: "c", MarketID: 1, CreatorFee: big.NewInt(1), PlatformFee: new(big.Int).Set(base)},
	}
	svc := newTestFeed(feedIndexer(nil, nil, fees), nil)

	require.NoError(t, svc.Refresh(context.Background()))

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)

	want := new(big.Int).Mul(base, big.NewInt(3))
	want.Add(want, big.NewInt(3))
	assert.Equal(t, want, stats.TotalFees)
}

func TestRefreshSingleFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var startedOnce sync.Once

	// Only the first refresh blocks; later calls return immediately so the
	// final Refresh below can prove the in-flight flag cleared.
	indexer := feedIndexer(nil, nil, nil)
	indexer.createds = func(ctx context.Context, opts domain.PageOpts) ([]domain.MarketCreatedRecord, error) {
		startedOnce.Do(func() {
			close(started)
			<-release
		})
		return nil, nil
	}
	svc := newTestFeed(indexer, nil)

	done := make(chan error, 1)
	go func() { done <- svc.Refresh(context.Background()) }()

	<-started
	err := svc.Refresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrRefreshBusy)

	close(release)
	require.NoError(t, <-done)

	// The flag clears once the first refresh completes.
	require.NoError(t, svc.Refresh(context.Background()))
}

func TestRefreshPublishesSettlementEvents(t *testing.T) {
	t0 := time.Unix(1700000000, 0).UTC()
	createds := []domain.MarketCreatedRecord{
		{MarketID: 0, TokenAddress: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", BlockTimestamp: t0},
	}
	var settleds []domain.MarketSettledRecord

	indexer := feedIndexer(nil, nil, nil)
	indexer.createds = func(ctx context.Context, opts domain.PageOpts) ([]domain.MarketCreatedRecord, error) {
		if opts.Skip > 0 {
			return nil, nil
		}
		return createds, nil
	}
	indexer.settleds = func(ctx context.Context, opts domain.PageOpts) ([]domain.MarketSettledRecord, error) {
		if opts.Skip > 0 {
			return nil, nil
		}
		return settleds, nil
	}

	bus := newFakeBus()
	svc := newTestFeed(indexer, bus)

	require.NoError(t, svc.Refresh(context.Background()))
	assert.Equal(t, 1, bus.count("feed"))
	assert.Equal(t, 0, bus.count("settlements"))

	// The market settles between refreshes: exactly one settlement event.
	settleds = []domain.MarketSettledRecord{
		{MarketID: 0, FinalPrice: wei(3), WinningOutcome: domain.OutcomeMoon},
	}
	require.NoError(t, svc.Refresh(context.Background()))
	assert.Equal(t, 2, bus.count("feed"))
	assert.Equal(t, 1, bus.count("settlements"))

	// Already-known settlements are not re-announced.
	require.NoError(t, svc.Refresh(context.Background()))
	assert.Equal(t, 1, bus.count("settlements"))
}

func TestMarketsPaging(t *testing.T) {
	t0 := time.Unix(1700000000, 0).UTC()
	var createds []domain.MarketCreatedRecord
	for i := uint64(0); i < 10; i++ {
		createds = append(createds, domain.MarketCreatedRecord{
			MarketID:       i,
			TokenAddress:   "0xdddddddddddddddddddddddddddddddddddddddd",
			BlockTimestamp: t0.Add(time.Duration(i) * time.Minute),
		})
	}
	svc := newTestFeed(feedIndexer(createds, nil, nil), nil)
	require.NoError(t, svc.Refresh(context.Background()))

	page1, err := svc.Markets(context.Background(), domain.ListOpts{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page1, 3)
	assert.Equal(t, uint64(9), page1[0].MarketID)

	page2, err := svc.Markets(context.Background(), domain.ListOpts{Limit: 3, Offset: 3})
	require.NoError(t, err)
	require.Len(t, page2, 3)
	assert.Equal(t, uint64(6), page2[0].MarketID)

	empty, err := svc.Markets(context.Background(), domain.ListOpts{Offset: 50})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStatsBeforeFirstRefresh(t *testing.T) {
	svc := newTestFeed(feedIndexer(nil, nil, nil), nil)

	_, err := svc.Stats(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
