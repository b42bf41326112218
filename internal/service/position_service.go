package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"golang.org/x/sync/errgroup"

	"github.com/trenchlabs/trenchd/internal/domain"
)

// defaultReadParallelism bounds concurrent per-market chain reads.
const defaultReadParallelism = 8

// PositionService aggregates an account's holdings across every market the
// contract has assigned. Per-market reads fan out concurrently; a failed read
// is logged and skipped so one bad market never blocks the rest of the batch.
type PositionService struct {
	reader      domain.ContractReader
	parallelism int
	logger      *slog.Logger
}

// NewPositionService creates a PositionService. parallelism <= 0 selects the
// default bound.
func NewPositionService(reader domain.ContractReader, parallelism int, logger *slog.Logger) *PositionService {
	if parallelism <= 0 {
		parallelism = defaultReadParallelism
	}
	return &PositionService{
		reader:      reader,
		parallelism: parallelism,
		logger:      logger,
	}
}

// Aggregate returns the account's positions ordered by market id, including
// only markets where at least one outcome holds a positive share balance.
// The result is assembled only after every per-market read has finished, so
// a partially loaded view is never returned.
func (s *PositionService) Aggregate(ctx context.Context, account string) ([]domain.Position, error) {
	next, err := s.reader.NextMarketID(ctx)
	if err != nil {
		return nil, fmt.Errorf("position_service: next market id: %w", err)
	}

	// Indexed by market id so out-of-order completion cannot reorder output.
	results := make([]*domain.Position, next)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	for id := uint64(0); id < next; id++ {
		g.Go(func() error {
			pos, readErr := s.readPosition(gctx, id, account)
			if readErr != nil {
				// Partial-failure policy: skip and log, never abort the batch.
				s.logger.WarnContext(gctx, "position_service: market read failed, skipping",
					slog.Uint64("market_id", id),
					slog.String("account", account),
					slog.String("error", readErr.Error()),
				)
				return nil
			}
			if pos.HasShares() {
				results[id] = &pos
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("position_service: aggregate for %q: %w", account, err)
	}

	positions := make([]domain.Position, 0, len(results))
	for _, p := range results {
		if p != nil {
			positions = append(positions, *p)
		}
	}
	return positions, nil
}

// readPosition fetches one market's share balances and metadata for the
// account. Market metadata is only read once the balances show the account
// actually participates.
func (s *PositionService) readPosition(ctx context.Context, marketID uint64, account string) (domain.Position, error) {
	pos := domain.Position{
		MarketID: marketID,
		Account:  account,
	}

	for _, o := range domain.Outcomes {
		shares, err := s.reader.UserShares(ctx, marketID, account, o)
		if err != nil {
			return domain.Position{}, fmt.Errorf("user shares %s: %w", o, err)
		}
		pos.Shares[o] = shares
	}

	if !pos.HasShares() {
		return pos, nil
	}

	market, err := s.reader.MarketInfo(ctx, marketID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("market info: %w", err)
	}

	pos.TokenAddress = market.TokenAddress
	pos.SettlementTime = market.SettlementTime
	pos.Settled = market.Settled
	pos.FinalPrice = market.FinalPrice
	pos.WinningOutcome = market.WinningOutcome
	pos.Won = won(pos)

	return pos, nil
}

// won reports whether the position holds shares in the settled market's
// winning outcome. Unsettled markets never count as won.
func won(pos domain.Position) bool {
	if !pos.Settled || pos.WinningOutcome == nil {
		return false
	}
	shares := pos.Shares[*pos.WinningOutcome]
	return shares != nil && shares.Sign() > 0
}

// OutcomeTotals reads the contract's share accumulators for every outcome of
// one market, in outcome order.
func (s *PositionService) OutcomeTotals(ctx context.Context, marketID uint64) ([domain.NumOutcomes]*big.Int, error) {
	var totals [domain.NumOutcomes]*big.Int
	for _, o := range domain.Outcomes {
		stats, err := s.reader.OutcomeStats(ctx, marketID, o)
		if err != nil {
			return totals, fmt.Errorf("position_service: outcome stats %d/%s: %w", marketID, o, err)
		}
		totals[o] = stats.TotalShares
	}
	return totals, nil
}
