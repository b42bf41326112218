package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/trenchlabs/trenchd/internal/domain"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	Aggregate(ctx context.Context, account string) ([]domain.Position, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// positionDTO is the wire form of one market position. Share balances are
// 18-decimal fixed-point integers rendered as strings, keyed by outcome name.
type positionDTO struct {
	MarketID       uint64            `json:"marketId"`
	TokenAddress   string            `json:"tokenAddress"`
	Shares         map[string]string `json:"shares"`
	SettlementTime string            `json:"settlementTime"`
	Settled        bool              `json:"settled"`
	FinalPrice     *string           `json:"finalPrice,omitempty"`
	WinningOutcome *string           `json:"winningOutcome,omitempty"`
	Won            bool              `json:"won"`
}

func toPositionDTO(p domain.Position) positionDTO {
	shares := make(map[string]string, domain.NumOutcomes)
	for i, o := range domain.Outcomes {
		if p.Shares[i] != nil && p.Shares[i].Sign() > 0 {
			shares[o.String()] = p.Shares[i].String()
		}
	}

	dto := positionDTO{
		MarketID:       p.MarketID,
		TokenAddress:   p.TokenAddress,
		Shares:         shares,
		SettlementTime: p.SettlementTime.UTC().Format(time.RFC3339),
		Settled:        p.Settled,
		Won:            p.Won,
	}
	if p.Settled {
		fp := bigStr(p.FinalPrice)
		dto.FinalPrice = &fp
		if p.WinningOutcome != nil {
			name := p.WinningOutcome.String()
			dto.WinningOutcome = &name
		}
	}
	return dto
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Account   string        `json:"account"`
	Positions []positionDTO `json:"positions"`
}

// ListPositions scans every market for the account's share balances.
// GET /api/positions?account=0x...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "account query parameter required")
		return
	}
	if !common.IsHexAddress(account) {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	positions, err := h.positions.Aggregate(r.Context(), account)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("account", account),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	dtos := make([]positionDTO, 0, len(positions))
	for _, p := range positions {
		dtos = append(dtos, toPositionDTO(p))
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{
		Account:   account,
		Positions: dtos,
	})
}
