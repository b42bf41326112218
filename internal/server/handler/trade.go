package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/trenchlabs/trenchd/internal/domain"
	"github.com/trenchlabs/trenchd/internal/service"
)

// maxBodySize bounds request bodies for the trade endpoints.
const maxBodySize = 1 << 16

// TradeSimulator projects the outcome of a proposed trade without submitting
// anything on-chain.
type TradeSimulator interface {
	Simulate(ctx context.Context, intent domain.TradeIntent) domain.SimulationResult
}

// OutcomeTotalReader supplies per-outcome share totals for the estimator.
type OutcomeTotalReader interface {
	OutcomeTotals(ctx context.Context, marketID uint64) ([domain.NumOutcomes]*big.Int, error)
}

// TradeHandler serves the dry-run trade endpoints: simulation and share
// estimation. Neither endpoint ever signs or submits a transaction.
type TradeHandler struct {
	simulator TradeSimulator
	totals    OutcomeTotalReader
	logger    *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given dependencies.
func NewTradeHandler(simulator TradeSimulator, totals OutcomeTotalReader, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		simulator: simulator,
		totals:    totals,
		logger:    logger,
	}
}

// simulateRequest is the JSON body for POST /api/simulate. Amount fields are
// decimal strings; Shares and InitialPrice are 18-decimal integers.
type simulateRequest struct {
	Kind         string `json:"kind"`
	MarketID     uint64 `json:"marketId"`
	Outcome      string `json:"outcome"`
	Spend        string `json:"spend,omitempty"`
	Shares       string `json:"shares,omitempty"`
	TokenAddress string `json:"tokenAddress,omitempty"`
	InitialPrice string `json:"initialPrice,omitempty"`
}

// Simulate runs a dry-run projection of a proposed trade.
// POST /api/simulate
func (h *TradeHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	intent := domain.TradeIntent{
		Kind:         domain.TradeKind(req.Kind),
		MarketID:     req.MarketID,
		Spend:        req.Spend,
		TokenAddress: req.TokenAddress,
	}

	// Claim intents have no outcome; everything else needs a valid one.
	if req.Outcome != "" {
		outcome, ok := parseOutcomeParam(req.Outcome)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid outcome")
			return
		}
		intent.Outcome = outcome
	}

	if req.Shares != "" {
		shares, ok := new(big.Int).SetString(req.Shares, 10)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid share quantity")
			return
		}
		intent.Shares = shares
	}
	if req.InitialPrice != "" {
		price, ok := new(big.Int).SetString(req.InitialPrice, 10)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid initial price")
			return
		}
		intent.InitialPrice = price
	}

	// The simulator reports failures as data, so this is always a 200.
	result := h.simulator.Simulate(r.Context(), intent)
	writeJSON(w, http.StatusOK, result)
}

// estimateRequest is the JSON body for POST /api/estimate.
type estimateRequest struct {
	MarketID uint64 `json:"marketId"`
	Outcome  string `json:"outcome"`
	Spend    string `json:"spend"`
}

// estimateResponse carries the projected share quantity for a spend amount.
// Shares is an 18-decimal integer string; SharesFormatted is a display value.
type estimateResponse struct {
	MarketID        uint64 `json:"marketId"`
	Outcome         string `json:"outcome"`
	Spend           string `json:"spend"`
	Shares          string `json:"shares"`
	SharesFormatted string `json:"sharesFormatted"`
}

// Estimate converts a spend amount into a projected share quantity using the
// market's current per-outcome totals.
// POST /api/estimate
func (h *TradeHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, ok := parseOutcomeParam(req.Outcome)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid outcome")
		return
	}

	totals, err := h.totals.OutcomeTotals(r.Context(), req.MarketID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: outcome totals failed",
			slog.Uint64("market_id", req.MarketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read market totals")
		return
	}

	shares := service.EstimateShares(req.Spend, outcome, totals)
	if shares == nil {
		writeError(w, http.StatusBadRequest, "invalid spend amount")
		return
	}

	writeJSON(w, http.StatusOK, estimateResponse{
		MarketID:        req.MarketID,
		Outcome:         outcome.String(),
		Spend:           req.Spend,
		Shares:          shares.String(),
		SharesFormatted: decimal.NewFromBigInt(shares, -18).StringFixed(6),
	})
}

// decodeBody decodes a JSON request body with a size cap and strict fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
