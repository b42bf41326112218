package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/trenchlabs/trenchd/internal/domain"
	"github.com/trenchlabs/trenchd/internal/platform/tokens"
)

// MarketService builds the merged single-market view: live contract state
// joined with the indexer's event history and exact fee totals.
type MarketService struct {
	reader  domain.ContractReader
	indexer domain.IndexerClient
	lookup  domain.TokenLookup
	cache   domain.MarketDetailCache
	stats   domain.StatsCache
	logger  *slog.Logger
}

// NewMarketService creates a MarketService. cache, stats, and lookup may be
// nil.
func NewMarketService(
	reader domain.ContractReader,
	indexer domain.IndexerClient,
	lookup domain.TokenLookup,
	cache domain.MarketDetailCache,
	stats domain.StatsCache,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		reader:  reader,
		indexer: indexer,
		lookup:  lookup,
		cache:   cache,
		stats:   stats,
		logger:  logger,
	}
}

// GetDetail returns the merged view for one market, checking the cache first.
// Settled markets cache indefinitely; callers invalidate on settlement.
func (s *MarketService) GetDetail(ctx context.Context, marketID uint64) (domain.MarketDetail, error) {
	if s.cache != nil {
		if detail, err := s.cache.Get(ctx, marketID); err == nil {
			return detail, nil
		}
	}

	detail, err := s.buildDetail(ctx, marketID)
	if err != nil {
		return domain.MarketDetail{}, err
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, detail); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.Uint64("market_id", marketID),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	return detail, nil
}

// buildDetail reads chain state and indexer history concurrently, then joins
// them. The chain read is authoritative for current state; the indexer
// contributes transaction hashes and fee records.
func (s *MarketService) buildDetail(ctx context.Context, marketID uint64) (domain.MarketDetail, error) {
	var (
		market  domain.Market
		history domain.MarketHistory
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		market, err = s.reader.MarketInfo(gctx, marketID)
		if err != nil {
			return fmt.Errorf("market info: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		history, err = s.indexer.MarketByID(gctx, marketID)
		if err != nil {
			// History is enrichment. The chain read alone still yields a
			// usable detail view.
			s.logger.WarnContext(gctx, "market_service: indexer history unavailable",
				slog.Uint64("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.MarketDetail{}, fmt.Errorf("market_service: detail %d: %w", marketID, err)
	}

	detail := domain.MarketDetail{
		Market:   market,
		Fees:     domain.SumFees(history.Fees),
		FeeCount: len(history.Fees),
	}
	if history.Created != nil {
		detail.CreatedTx = history.Created.TxHash
	}
	if history.Settled != nil {
		detail.SettledTx = history.Settled.TxHash
	}

	detail.TokenSymbol = tokens.PlaceholderSymbol(market.TokenAddress)
	if s.lookup != nil {
		info, err := s.lookup.Lookup(ctx, market.TokenAddress)
		switch {
		case err == nil:
			detail.TokenSymbol = info.Symbol
			detail.TokenName = info.Name
		case !errors.Is(err, domain.ErrNotFound):
			s.logger.WarnContext(ctx, "market_service: token lookup failed",
				slog.String("address", market.TokenAddress),
				slog.String("error", err.Error()),
			)
		}
	}

	return detail, nil
}

// OutcomeStats returns the per-outcome accumulators for one market, serving
// from the stats cache when possible and back-filling it on a miss.
func (s *MarketService) OutcomeStats(ctx context.Context, marketID uint64) ([domain.NumOutcomes]domain.OutcomeStats, error) {
	var out [domain.NumOutcomes]domain.OutcomeStats

	if s.stats != nil {
		if cached, err := s.stats.GetAll(ctx, marketID); err == nil {
			return cached, nil
		}
	}

	for _, o := range domain.Outcomes {
		stats, err := s.reader.OutcomeStats(ctx, marketID, o)
		if err != nil {
			return out, fmt.Errorf("market_service: outcome stats %d/%s: %w", marketID, o, err)
		}
		out[o] = stats

		if s.stats != nil {
			if cacheErr := s.stats.Set(ctx, marketID, o, stats); cacheErr != nil {
				s.logger.WarnContext(ctx, "market_service: stats cache set failed",
					slog.Uint64("market_id", marketID),
					slog.String("outcome", o.String()),
					slog.String("error", cacheErr.Error()),
				)
			}
		}
	}
	return out, nil
}

// Invalidate drops the cached detail for a market, typically after its
// settlement lands.
func (s *MarketService) Invalidate(ctx context.Context, marketID uint64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}
