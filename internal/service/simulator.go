package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trenchlabs/trenchd/internal/domain"
)

// Fixed-rate fallback model. Percentages are display-grade approximations
// used only when the contract's own pricing views are unreachable.
var (
	combinedFeeRate = decimal.RequireFromString("0.025") // 2.5% of trade value

	buyImpactPerUnit  = decimal.NewFromInt(10) // percent impact per native unit spent
	buyImpactCap      = decimal.NewFromInt(15)
	sellImpactPerUnit = decimal.NewFromInt(8)
	sellImpactCap     = decimal.NewFromInt(12)

	createFee   = decimal.RequireFromString("0.01")
	claimReturn = decimal.RequireFromString("0.5")

	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Gas projections per intent kind.
const (
	gasBuy    uint64 = 150_000
	gasSell   uint64 = 120_000
	gasCreate uint64 = 200_000
	gasClaim  uint64 = 80_000
)

// SimulatorConfig tunes the trade simulator.
type SimulatorConfig struct {
	// Delay models the network round trip before a result is returned.
	Delay time.Duration
}

// Simulator projects the outcome of a trade intent before the user confirms
// it. When a contract reader is available the buy/sell projections come from
// the contract's calculateBuyCost / calculateSellPayout views; the
// fixed-rate model is the offline fallback.
//
// Simulate never returns a Go error: every failure is captured in the
// result's Success/Error fields so no rejection escapes to the caller.
type Simulator struct {
	reader domain.ContractReader // may be nil: fallback-only mode
	cfg    SimulatorConfig
	logger *slog.Logger
}

// NewSimulator creates a Simulator. reader may be nil, in which case every
// projection uses the fallback model.
func NewSimulator(reader domain.ContractReader, cfg SimulatorConfig, logger *slog.Logger) *Simulator {
	return &Simulator{
		reader: reader,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "simulator")),
	}
}

// Simulate runs the projection for one trade intent. It suspends for the
// configured delay (or until ctx is done) before returning, so callers must
// treat it as an asynchronous operation.
func (s *Simulator) Simulate(ctx context.Context, intent domain.TradeIntent) (result domain.SimulationResult) {
	result = domain.SimulationResult{
		ID:   uuid.NewString(),
		Kind: intent.Kind,
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "simulation panic recovered",
				slog.String("kind", string(intent.Kind)),
				slog.Any("panic", r),
			)
			result.Success = false
			result.Error = "simulation failed"
		}
	}()

	if s.cfg.Delay > 0 {
		select {
		case <-time.After(s.cfg.Delay):
		case <-ctx.Done():
			result.Error = "simulation cancelled"
			return result
		}
	}

	switch intent.Kind {
	case domain.TradeBuy:
		s.simulateBuy(ctx, intent, &result)
	case domain.TradeSell:
		s.simulateSell(ctx, intent, &result)
	case domain.TradeCreate:
		s.simulateCreate(&result)
	case domain.TradeClaim:
		s.simulateClaim(ctx, intent, &result)
	default:
		result.Error = fmt.Sprintf("unknown simulation type %q", intent.Kind)
	}

	return result
}

// ---------------------------------------------------------------------------
// Buy
// ---------------------------------------------------------------------------

func (s *Simulator) simulateBuy(ctx context.Context, intent domain.TradeIntent, result *domain.SimulationResult) {
	spend, err := decimal.NewFromString(intent.Spend)
	if err != nil || spend.Sign() <= 0 {
		result.Error = "invalid spend amount"
		return
	}

	result.EstimatedGas = gasBuy

	if s.reader != nil && s.authoritativeBuy(ctx, intent, spend, result) {
		return
	}

	fee := spend.Mul(combinedFeeRate)
	impact := decimal.Min(spend.Mul(buyImpactPerUnit), buyImpactCap)
	shares := spend.Sub(fee).Mul(one.Sub(impact.Div(hundred)))

	result.Success = true
	result.Fees = fee.StringFixed(6)
	result.PriceImpact = impact.StringFixed(2) + "%"
	result.SharesReceived = shares.StringFixed(6)
	result.NewSharePrice = one.Add(impact.Div(hundred)).StringFixed(6)
}

// authoritativeBuy asks the contract what the spend actually buys. It first
// derives a share estimate from current outcome stats, then scales it by the
// exact cost the contract reports for that quantity. Returns false when any
// chain read fails, so the caller falls back to the fixed-rate model.
func (s *Simulator) authoritativeBuy(ctx context.Context, intent domain.TradeIntent, spend decimal.Decimal, result *domain.SimulationResult) bool {
	totals, err := s.outcomeTotals(ctx, intent.MarketID)
	if err != nil {
		s.logger.WarnContext(ctx, "buy dry run unavailable, using fallback model",
			slog.Uint64("market_id", intent.MarketID),
			slog.String("error", err.Error()),
		)
		return false
	}

	guess := EstimateShares(intent.Spend, intent.Outcome, totals)
	if guess == nil || guess.Sign() <= 0 {
		return false
	}

	cost, err := s.reader.BuyCost(ctx, intent.MarketID, intent.Outcome, guess)
	if err != nil || cost.Sign() <= 0 {
		if err != nil {
			s.logger.WarnContext(ctx, "calculateBuyCost failed, using fallback model",
				slog.Uint64("market_id", intent.MarketID),
				slog.String("error", err.Error()),
			)
		}
		return false
	}

	// Scale the guessed quantity so its exact cost matches the spend.
	spendWei := spend.Shift(weiScale).BigInt()
	shares := new(big.Int).Mul(guess, spendWei)
	shares.Quo(shares, cost)

	costDec := decimal.NewFromBigInt(cost, -weiScale)
	guessDec := decimal.NewFromBigInt(guess, -weiScale)

	// Effective price per share vs the heuristic floor gives the displayed
	// impact; the fee is already folded into the contract's cost.
	effective := costDec.Div(guessDec)
	base := sharePrice(intent.Outcome, totals)
	impact := decimal.Zero
	if effective.GreaterThan(base) {
		impact = effective.Sub(base).Div(base).Mul(hundred)
	}

	result.Success = true
	result.Authoritative = true
	result.Fees = spend.Mul(combinedFeeRate).StringFixed(6)
	result.PriceImpact = impact.StringFixed(2) + "%"
	result.SharesReceived = decimal.NewFromBigInt(shares, -weiScale).StringFixed(6)
	result.NewSharePrice = effective.StringFixed(6)
	return true
}

func (s *Simulator) outcomeTotals(ctx context.Context, marketID uint64) ([domain.NumOutcomes]*big.Int, error) {
	var totals [domain.NumOutcomes]*big.Int
	for _, o := range domain.Outcomes {
		stats, err := s.reader.OutcomeStats(ctx, marketID, o)
		if err != nil {
			return totals, err
		}
		totals[o] = stats.TotalShares
	}
	return totals, nil
}

// ---------------------------------------------------------------------------
// Sell
// ---------------------------------------------------------------------------

func (s *Simulator) simulateSell(ctx context.Context, intent domain.TradeIntent, result *domain.SimulationResult) {
	if intent.Shares == nil || intent.Shares.Sign() <= 0 {
		result.Error = "invalid share quantity"
		return
	}

	result.EstimatedGas = gasSell

	if s.reader != nil {
		payout, err := s.reader.SellPayout(ctx, intent.MarketID, intent.Outcome, intent.Shares)
		if err == nil {
			result.Success = true
			result.Authoritative = true
			result.ExpectedReturn = decimal.NewFromBigInt(payout, -weiScale).StringFixed(6)
			return
		}
		s.logger.WarnContext(ctx, "calculateSellPayout failed, using fallback model",
			slog.Uint64("market_id", intent.MarketID),
			slog.String("error", err.Error()),
		)
	}

	value := decimal.NewFromBigInt(intent.Shares, -weiScale)
	fee := value.Mul(combinedFeeRate)
	impact := decimal.Min(value.Mul(sellImpactPerUnit), sellImpactCap)
	net := value.Mul(one.Sub(impact.Div(hundred))).Sub(fee)
	if net.Sign() < 0 {
		net = decimal.Zero
	}

	result.Success = true
	result.Fees = fee.StringFixed(6)
	result.PriceImpact = impact.StringFixed(2) + "%"
	result.ExpectedReturn = net.StringFixed(6)
}

// ---------------------------------------------------------------------------
// Create / claim
// ---------------------------------------------------------------------------

func (s *Simulator) simulateCreate(result *domain.SimulationResult) {
	result.Success = true
	result.EstimatedGas = gasCreate
	result.Fees = createFee.String()
}

// simulateClaim projects a winnings claim. The contract exposes no view for
// the claim payout, so the return stays a placeholder; with a reader
// configured the settled gate is checked so an impossible claim surfaces as
// a blocking failure instead of a revert.
func (s *Simulator) simulateClaim(ctx context.Context, intent domain.TradeIntent, result *domain.SimulationResult) {
	result.EstimatedGas = gasClaim

	if s.reader != nil {
		market, err := s.reader.MarketInfo(ctx, intent.MarketID)
		if err == nil && !market.Settled {
			result.Error = "market not settled"
			return
		}
	}

	result.Success = true
	result.ExpectedReturn = claimReturn.String()
}
