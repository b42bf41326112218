package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/trenchlabs/trenchd/internal/domain"
	"github.com/trenchlabs/trenchd/internal/platform/tokens"
)

// TokenHandler serves token metadata lookups. Results are cached; misses
// degrade to a shortened-address placeholder rather than failing.
type TokenHandler struct {
	lookup domain.TokenLookup
	cache  domain.TokenCache
	logger *slog.Logger
}

// NewTokenHandler creates a TokenHandler. cache may be nil.
func NewTokenHandler(lookup domain.TokenLookup, cache domain.TokenCache, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{
		lookup: lookup,
		cache:  cache,
		logger: logger,
	}
}

// tokenDTO is the JSON shape of a token metadata response.
type tokenDTO struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	PriceUSD string `json:"priceUsd,omitempty"`
	Found    bool   `json:"found"`
}

// GetToken resolves metadata for one token address.
// GET /api/tokens/{address}
func (h *TokenHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if !tokens.ValidAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid token address")
		return
	}

	if h.cache != nil {
		if info, err := h.cache.Get(r.Context(), address); err == nil {
			writeJSON(w, http.StatusOK, tokenDTO{
				Address:  info.Address,
				Symbol:   info.Symbol,
				Name:     info.Name,
				PriceUSD: info.PriceUSD,
				Found:    true,
			})
			return
		}
	}

	info, err := h.lookup.Lookup(r.Context(), address)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(r.Context(), "handler: token lookup failed",
				slog.String("address", address),
				slog.String("error", err.Error()),
			)
		}
		writeJSON(w, http.StatusOK, tokenDTO{
			Address: address,
			Symbol:  tokens.PlaceholderSymbol(address),
			Found:   false,
		})
		return
	}

	if h.cache != nil {
		if cacheErr := h.cache.Set(r.Context(), info); cacheErr != nil {
			h.logger.WarnContext(r.Context(), "handler: token cache set failed",
				slog.String("address", address),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	writeJSON(w, http.StatusOK, tokenDTO{
		Address:  info.Address,
		Symbol:   info.Symbol,
		Name:     info.Name,
		PriceUSD: info.PriceUSD,
		Found:    true,
	})
}
