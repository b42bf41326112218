package handler

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/trenchlabs/trenchd/internal/domain"
)

// FeedService defines the methods the market handler requires from the feed
// layer. It is declared locally so the handler package does not depend on the
// concrete service implementation.
type FeedService interface {
	Markets(ctx context.Context, opts domain.ListOpts) ([]domain.MarketSummary, error)
	Settled(ctx context.Context, opts domain.ListOpts) ([]domain.MarketSummary, error)
	Stats(ctx context.Context) (domain.FeedStats, error)
}

// MarketService defines the single-market detail surface.
type MarketService interface {
	GetDetail(ctx context.Context, marketID uint64) (domain.MarketDetail, error)
	OutcomeStats(ctx context.Context, marketID uint64) ([domain.NumOutcomes]domain.OutcomeStats, error)
}

// MarketHandler serves market-feed HTTP endpoints.
type MarketHandler struct {
	feed    FeedService
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given services and logger.
func NewMarketHandler(feed FeedService, markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		feed:    feed,
		markets: markets,
		logger:  logger,
	}
}

// marketSummaryDTO is the wire form of a feed row. Wei amounts travel as
// decimal strings so browser clients never lose precision.
type marketSummaryDTO struct {
	MarketID       uint64  `json:"marketId"`
	Creator        string  `json:"creator"`
	TokenAddress   string  `json:"tokenAddress"`
	TokenSymbol    string  `json:"tokenSymbol"`
	InitialPrice   string  `json:"initialPrice"`
	CreatedAt      string  `json:"createdAt"`
	SettlementTime string  `json:"settlementTime"`
	Settled        bool    `json:"settled"`
	FinalPrice     *string `json:"finalPrice,omitempty"`
	WinningOutcome *string `json:"winningOutcome,omitempty"`
	TxHash         string  `json:"txHash,omitempty"`
}

func toSummaryDTO(m domain.MarketSummary) marketSummaryDTO {
	dto := marketSummaryDTO{
		MarketID:       m.MarketID,
		Creator:        m.Creator,
		TokenAddress:   m.TokenAddress,
		TokenSymbol:    m.TokenSymbol,
		InitialPrice:   bigStr(m.InitialPrice),
		CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339),
		SettlementTime: m.SettlementTime.UTC().Format(time.RFC3339),
		Settled:        m.Settled,
		TxHash:         m.TxHash,
	}
	if m.Settled {
		fp := bigStr(m.FinalPrice)
		dto.FinalPrice = &fp
		if m.WinningOutcome != nil {
			name := m.WinningOutcome.String()
			dto.WinningOutcome = &name
		}
	}
	return dto
}

// listMarketsResponse wraps the list endpoint output with paging metadata.
type listMarketsResponse struct {
	Markets []marketSummaryDTO `json:"markets"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
}

// ListMarkets returns the market feed, newest first.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.feed.Markets)
}

// ListSettled returns only settled markets, newest settlement first.
// GET /api/markets/settled?limit=50&offset=0
func (h *MarketHandler) ListSettled(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.feed.Settled)
}

func (h *MarketHandler) list(
	w http.ResponseWriter,
	r *http.Request,
	fetch func(context.Context, domain.ListOpts) ([]domain.MarketSummary, error),
) {
	opts := parseListOpts(r)

	rows, err := fetch(r.Context(), opts)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// No snapshot yet; the feed has not completed a refresh.
			writeJSON(w, http.StatusOK, listMarketsResponse{
				Markets: []marketSummaryDTO{},
				Limit:   opts.Limit,
				Offset:  opts.Offset,
			})
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	dtos := make([]marketSummaryDTO, 0, len(rows))
	for _, m := range rows {
		dtos = append(dtos, toSummaryDTO(m))
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: dtos,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// marketDetailDTO is the wire form of the merged single-market view.
type marketDetailDTO struct {
	marketSummaryDTO
	TokenName    string `json:"tokenName,omitempty"`
	CreatorFees  string `json:"creatorFees"`
	PlatformFees string `json:"platformFees"`
	FeeCount     int    `json:"feeCount"`
	CreatedTx    string `json:"createdTx,omitempty"`
	SettledTx    string `json:"settledTx,omitempty"`
}

// GetMarket returns the merged detail view for a single market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathMarketID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	detail, err := h.markets.GetDetail(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	m := detail.Market
	dto := marketDetailDTO{
		marketSummaryDTO: toSummaryDTO(domain.MarketSummary{
			MarketID:       m.ID,
			Creator:        m.Creator,
			TokenAddress:   m.TokenAddress,
			TokenSymbol:    detail.TokenSymbol,
			InitialPrice:   m.InitialPrice,
			CreatedAt:      m.CreatedAt,
			SettlementTime: m.SettlementTime,
			Settled:        m.Settled,
			FinalPrice:     m.FinalPrice,
			WinningOutcome: m.WinningOutcome,
		}),
		TokenName:    detail.TokenName,
		CreatorFees:  bigStr(detail.Fees.CreatorTotal),
		PlatformFees: bigStr(detail.Fees.PlatformTotal),
		FeeCount:     detail.FeeCount,
		CreatedTx:    detail.CreatedTx,
		SettledTx:    detail.SettledTx,
	}

	writeJSON(w, http.StatusOK, dto)
}

// outcomeStatsDTO is one outcome's accumulated totals.
type outcomeStatsDTO struct {
	Outcome     string `json:"outcome"`
	TotalShares string `json:"totalShares"`
	TotalVolume string `json:"totalVolume"`
}

// GetOutcomeStats returns per-outcome share and volume totals for a market.
// GET /api/markets/{id}/stats
func (h *MarketHandler) GetOutcomeStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathMarketID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	stats, err := h.markets.OutcomeStats(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: outcome stats failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load outcome stats")
		return
	}

	dtos := make([]outcomeStatsDTO, 0, domain.NumOutcomes)
	for i, o := range domain.Outcomes {
		dtos = append(dtos, outcomeStatsDTO{
			Outcome:     o.String(),
			TotalShares: bigStr(stats[i].TotalShares),
			TotalVolume: bigStr(stats[i].TotalVolume),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"marketId": id,
		"outcomes": dtos,
	})
}

// GetFeedStats returns aggregate counters over the current feed snapshot.
// GET /api/feed/stats
func (h *MarketHandler) GetFeedStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.feed.Stats(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusServiceUnavailable, "feed not loaded yet")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: feed stats failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load feed stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalMarkets":   stats.TotalMarkets,
		"settledMarkets": stats.SettledMarkets,
		"activeMarkets":  stats.ActiveMarkets,
		"totalFees":      bigStr(stats.TotalFees),
	})
}

// bigStr renders a wei amount as a decimal string, treating nil as zero.
func bigStr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
