package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trenchlabs/trenchd/internal/domain"
	"github.com/trenchlabs/trenchd/internal/platform/tokens"
)

// FeedConfig tunes the market feed aggregator.
type FeedConfig struct {
	// Interval between automatic refreshes in Run. Zero disables the loop.
	Interval time.Duration
	// PageSize caps each indexer query. Zero selects the indexer default.
	PageSize int
}

// feedSnapshot is one immutable refresh result. Readers get the pointer under
// a lock and then read it freely; a refresh swaps in a whole new snapshot so
// a partially refreshed feed is never visible.
type feedSnapshot struct {
	markets     []domain.MarketSummary
	settled     []domain.MarketSummary
	feeTotals   domain.FeeTotals
	feeCount    int
	refreshedAt time.Time
}

// FeedService merges the indexer's creation and settlement events into a
// single feed ordered newest first, with exact integer fee totals. A refresh
// is single-flight: concurrent triggers get ErrRefreshBusy while one run is
// in progress, and the previous snapshot keeps serving until the new one is
// complete.
//
// The record stores, signal bus, token cache, and lookup are optional; the
// service degrades to indexer-only operation when they are nil.
type FeedService struct {
	indexer    domain.IndexerClient
	lookup     domain.TokenLookup
	tokenCache domain.TokenCache
	markets    domain.MarketRecordStore
	fees       domain.FeeStore
	bus        domain.SignalBus
	cfg        FeedConfig
	logger     *slog.Logger

	refreshing atomic.Bool

	mu   sync.RWMutex
	snap *feedSnapshot
}

// NewFeedService creates a FeedService. Only indexer and logger are required.
func NewFeedService(
	indexer domain.IndexerClient,
	lookup domain.TokenLookup,
	tokenCache domain.TokenCache,
	markets domain.MarketRecordStore,
	fees domain.FeeStore,
	bus domain.SignalBus,
	cfg FeedConfig,
	logger *slog.Logger,
) *FeedService {
	return &FeedService{
		indexer:    indexer,
		lookup:     lookup,
		tokenCache: tokenCache,
		markets:    markets,
		fees:       fees,
		bus:        bus,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run refreshes the feed once immediately, then on every tick until ctx is
// cancelled. A tick that arrives while a refresh is still running is dropped.
func (s *FeedService) Run(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil && !errors.Is(err, domain.ErrRefreshBusy) {
		s.logger.ErrorContext(ctx, "feed_service: initial refresh failed",
			slog.String("error", err.Error()),
		)
	}

	if s.cfg.Interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				if errors.Is(err, domain.ErrRefreshBusy) {
					continue
				}
				s.logger.ErrorContext(ctx, "feed_service: scheduled refresh failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Refresh pulls creations, settlements, and fee payments from the indexer,
// merges them into a fresh snapshot, and swaps it in. Returns ErrRefreshBusy
// when another refresh is already running.
func (s *FeedService) Refresh(ctx context.Context) error {
	if !s.refreshing.CompareAndSwap(false, true) {
		return fmt.Errorf("feed_service: %w", domain.ErrRefreshBusy)
	}
	defer s.refreshing.Store(false)

	started := time.Now().UTC()

	var (
		createds []domain.MarketCreatedRecord
		settleds []domain.MarketSettledRecord
		feeRecs  []domain.FeeRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		createds, err = s.allCreateds(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		settleds, err = s.allSettleds(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		feeRecs, err = s.allFees(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("feed_service: refresh: %w", err)
	}

	prev := s.Snapshot()
	snap := s.buildSnapshot(ctx, createds, settleds, feeRecs, started)

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	s.persist(ctx, createds, settleds, feeRecs)
	s.announce(ctx, prev, snap)

	s.logger.InfoContext(ctx, "feed_service: feed refreshed",
		slog.Int("markets", len(snap.markets)),
		slog.Int("settled", len(snap.settled)),
		slog.Int("fee_records", snap.feeCount),
		slog.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// buildSnapshot joins settlements onto creations by market id, enriches token
// symbols, and folds fee records into exact totals.
func (s *FeedService) buildSnapshot(
	ctx context.Context,
	createds []domain.MarketCreatedRecord,
	settleds []domain.MarketSettledRecord,
	feeRecs []domain.FeeRecord,
	at time.Time,
) *feedSnapshot {
	settledByID := make(map[uint64]domain.MarketSettledRecord, len(settleds))
	for _, rec := range settleds {
		settledByID[rec.MarketID] = rec
	}

	markets := make([]domain.MarketSummary, 0, len(createds))
	settledOut := make([]domain.MarketSummary, 0, len(settleds))
	for _, rec := range createds {
		sum := domain.MarketSummary{
			MarketID:       rec.MarketID,
			Creator:        rec.Creator,
			TokenAddress:   rec.TokenAddress,
			TokenSymbol:    s.tokenSymbol(ctx, rec.TokenAddress),
			InitialPrice:   rec.InitialPrice,
			SettlementTime: rec.SettlementTime,
			CreatedAt:      rec.BlockTimestamp,
			TxHash:         rec.TxHash,
		}
		if settlement, ok := settledByID[rec.MarketID]; ok {
			outcome := settlement.WinningOutcome
			sum.Settled = true
			sum.FinalPrice = settlement.FinalPrice
			sum.WinningOutcome = &outcome
		}
		markets = append(markets, sum)
		if sum.Settled {
			settledOut = append(settledOut, sum)
		}
	}

	// Newest first, market id as the stable tiebreaker.
	sort.SliceStable(markets, func(i, j int) bool {
		if !markets[i].CreatedAt.Equal(markets[j].CreatedAt) {
			return markets[i].CreatedAt.After(markets[j].CreatedAt)
		}
		return markets[i].MarketID > markets[j].MarketID
	})
	sort.SliceStable(settledOut, func(i, j int) bool {
		if !settledOut[i].CreatedAt.Equal(settledOut[j].CreatedAt) {
			return settledOut[i].CreatedAt.After(settledOut[j].CreatedAt)
		}
		return settledOut[i].MarketID > settledOut[j].MarketID
	})

	return &feedSnapshot{
		markets:     markets,
		settled:     settledOut,
		feeTotals:   domain.SumFees(feeRecs),
		feeCount:    len(feeRecs),
		refreshedAt: at,
	}
}

// tokenSymbol resolves a display symbol for the token, consulting the cache
// first and degrading to the shortened address on any failure.
func (s *FeedService) tokenSymbol(ctx context.Context, address string) string {
	if s.tokenCache != nil {
		if info, err := s.tokenCache.Get(ctx, address); err == nil && info.Symbol != "" {
			return info.Symbol
		}
	}
	if s.lookup == nil {
		return tokens.PlaceholderSymbol(address)
	}

	info, err := s.lookup.Lookup(ctx, address)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "feed_service: token lookup failed",
				slog.String("address", address),
				slog.String("error", err.Error()),
			)
		}
		return tokens.PlaceholderSymbol(address)
	}

	if s.tokenCache != nil {
		if cacheErr := s.tokenCache.Set(ctx, info); cacheErr != nil {
			s.logger.WarnContext(ctx, "feed_service: token cache set failed",
				slog.String("address", address),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return info.Symbol
}

// persist mirrors the fetched records into local stores. Failures are logged
// and ignored; the in-memory snapshot is already live.
func (s *FeedService) persist(
	ctx context.Context,
	createds []domain.MarketCreatedRecord,
	settleds []domain.MarketSettledRecord,
	feeRecs []domain.FeeRecord,
) {
	if s.markets != nil {
		if err := s.markets.UpsertCreated(ctx, createds); err != nil {
			s.logger.WarnContext(ctx, "feed_service: persist creations failed",
				slog.String("error", err.Error()),
			)
		}
		if err := s.markets.UpsertSettled(ctx, settleds); err != nil {
			s.logger.WarnContext(ctx, "feed_service: persist settlements failed",
				slog.String("error", err.Error()),
			)
		}
	}
	if s.fees != nil {
		if err := s.fees.UpsertBatch(ctx, feeRecs); err != nil {
			s.logger.WarnContext(ctx, "feed_service: persist fees failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// announce publishes a feed-refresh event, plus one settlement event per
// market that flipped to settled since the previous snapshot.
func (s *FeedService) announce(ctx context.Context, prev, next *feedSnapshot) {
	if s.bus == nil {
		return
	}

	evt, _ := json.Marshal(map[string]any{
		"event":        "feed_refreshed",
		"markets":      len(next.markets),
		"settled":      len(next.settled),
		"refreshed_at": next.refreshedAt.Format(time.RFC3339Nano),
	})
	if err := s.bus.Publish(ctx, "feed", evt); err != nil {
		s.logger.WarnContext(ctx, "feed_service: publish refresh event failed",
			slog.String("error", err.Error()),
		)
	}

	known := make(map[uint64]bool)
	if prev != nil {
		for _, m := range prev.settled {
			known[m.MarketID] = true
		}
	}
	for _, m := range next.settled {
		if known[m.MarketID] {
			continue
		}
		outcome := ""
		if m.WinningOutcome != nil {
			outcome = m.WinningOutcome.String()
		}
		evt, _ := json.Marshal(map[string]any{
			"event":       "market_settled",
			"market_id":   m.MarketID,
			"token":       m.TokenSymbol,
			"outcome":     outcome,
			"final_price": bigString(m.FinalPrice),
		})
		if err := s.bus.Publish(ctx, "settlements", evt); err != nil {
			s.logger.WarnContext(ctx, "feed_service: publish settlement event failed",
				slog.Uint64("market_id", m.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Snapshot returns the current snapshot, or nil before the first refresh.
func (s *FeedService) Snapshot() *feedSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Markets returns the merged feed newest first. Before the first refresh it
// falls back to the local mirror when one is configured.
func (s *FeedService) Markets(ctx context.Context, opts domain.ListOpts) ([]domain.MarketSummary, error) {
	if snap := s.Snapshot(); snap != nil {
		return page(snap.markets, opts), nil
	}
	if s.markets != nil {
		list, err := s.markets.List(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("feed_service: list from mirror: %w", err)
		}
		return list, nil
	}
	return nil, fmt.Errorf("feed_service: markets: %w", domain.ErrNotFound)
}

// Settled returns only settled markets, newest first.
func (s *FeedService) Settled(ctx context.Context, opts domain.ListOpts) ([]domain.MarketSummary, error) {
	if snap := s.Snapshot(); snap != nil {
		return page(snap.settled, opts), nil
	}
	if s.markets != nil {
		list, err := s.markets.ListSettled(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("feed_service: list settled from mirror: %w", err)
		}
		return list, nil
	}
	return nil, fmt.Errorf("feed_service: settled: %w", domain.ErrNotFound)
}

// Stats summarises the current snapshot with exact combined fee totals.
func (s *FeedService) Stats(ctx context.Context) (domain.FeedStats, error) {
	snap := s.Snapshot()
	if snap == nil {
		return domain.FeedStats{}, fmt.Errorf("feed_service: stats: %w", domain.ErrNotFound)
	}
	return domain.FeedStats{
		TotalMarkets:   len(snap.markets),
		SettledMarkets: len(snap.settled),
		ActiveMarkets:  len(snap.markets) - len(snap.settled),
		TotalFees:      snap.feeTotals.Combined(),
	}, nil
}

// RefreshedAt reports when the current snapshot was built.
func (s *FeedService) RefreshedAt() (time.Time, bool) {
	snap := s.Snapshot()
	if snap == nil {
		return time.Time{}, false
	}
	return snap.refreshedAt, true
}

func page(in []domain.MarketSummary, opts domain.ListOpts) []domain.MarketSummary {
	if opts.Offset >= len(in) {
		return []domain.MarketSummary{}
	}
	out := in[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	// Copy so callers never alias the live snapshot slice.
	cp := make([]domain.MarketSummary, len(out))
	copy(cp, out)
	return cp
}

// ---------------------------------------------------------------------------
// Indexer paging
// ---------------------------------------------------------------------------

const maxFeedPages = 50

func (s *FeedService) allCreateds(ctx context.Context) ([]domain.MarketCreatedRecord, error) {
	var out []domain.MarketCreatedRecord
	for p := 0; p < maxFeedPages; p++ {
		opts := s.pageOpts(p)
		batch, err := s.indexer.MarketCreateds(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("market createds page %d: %w", p, err)
		}
		out = append(out, batch...)
		if len(batch) < opts.First {
			return out, nil
		}
	}
	return out, nil
}

func (s *FeedService) allSettleds(ctx context.Context) ([]domain.MarketSettledRecord, error) {
	var out []domain.MarketSettledRecord
	for p := 0; p < maxFeedPages; p++ {
		opts := s.pageOpts(p)
		batch, err := s.indexer.MarketSettleds(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("market settleds page %d: %w", p, err)
		}
		out = append(out, batch...)
		if len(batch) < opts.First {
			return out, nil
		}
	}
	return out, nil
}

func (s *FeedService) allFees(ctx context.Context) ([]domain.FeeRecord, error) {
	var out []domain.FeeRecord
	for p := 0; p < maxFeedPages; p++ {
		opts := s.pageOpts(p)
		batch, err := s.indexer.FeesPaids(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("fees paids page %d: %w", p, err)
		}
		out = append(out, batch...)
		if len(batch) < opts.First {
			return out, nil
		}
	}
	return out, nil
}

func (s *FeedService) pageOpts(pageNum int) domain.PageOpts {
	size := s.cfg.PageSize
	if size <= 0 {
		size = 100
	}
	return domain.PageOpts{
		First:          size,
		Skip:           pageNum * size,
		OrderBy:        "blockTimestamp",
		OrderDirection: "desc",
	}
}
