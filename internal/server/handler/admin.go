package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/trenchlabs/trenchd/internal/domain"
)

// AdminService defines the privileged operations the admin handler exposes.
// Every call is relayed to the contract signed with the operator wallet.
type AdminService interface {
	BatchSettle(ctx context.Context, marketIDs []uint64, finalPrices []*big.Int) (domain.TxReceipt, error)
	CreateMarket(ctx context.Context, tokenAddress string, initialPrice, value *big.Int) (domain.TxReceipt, error)
	BuyShares(ctx context.Context, marketID uint64, outcome domain.Outcome, shares, value *big.Int) (domain.TxReceipt, error)
	SellShares(ctx context.Context, marketID uint64, outcome domain.Outcome, shares *big.Int) (domain.TxReceipt, error)
	ClaimWinnings(ctx context.Context, marketID uint64) (domain.TxReceipt, error)
}

// FeedRefresher triggers an out-of-band feed refresh.
type FeedRefresher interface {
	Refresh(ctx context.Context) error
}

// AdminHandler serves operator-only endpoints: batch settlement, archive
// access, and the audit log. The auth middleware gates every route here.
type AdminHandler struct {
	admin    AdminService
	feed     FeedRefresher
	archives domain.BlobReader // nil when cold storage is disabled
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler. archives may be nil when no blob
// backend is configured; the archive endpoints then return 503.
func NewAdminHandler(
	admin AdminService,
	feed FeedRefresher,
	archives domain.BlobReader,
	audit domain.AuditStore,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		admin:    admin,
		feed:     feed,
		archives: archives,
		audit:    audit,
		logger:   logger,
	}
}

// settleRequest is the JSON body for POST /api/admin/settle. Prices are
// 18-decimal integer strings, paired with marketIds by index.
type settleRequest struct {
	MarketIDs   []uint64 `json:"marketIds"`
	FinalPrices []string `json:"finalPrices"`
}

// BatchSettle submits a batch settlement transaction for the given markets.
// POST /api/admin/settle
func (h *AdminHandler) BatchSettle(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		writeError(w, http.StatusServiceUnavailable, "operator wallet is not configured")
		return
	}

	var req settleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prices := make([]*big.Int, len(req.FinalPrices))
	for i, raw := range req.FinalPrices {
		p, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid final price")
			return
		}
		prices[i] = p
	}

	receipt, err := h.admin.BatchSettle(r.Context(), req.MarketIDs, prices)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnauthorized):
			writeError(w, http.StatusForbidden, "operator wallet is not the contract owner")
		case errors.Is(err, domain.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "invalid settlement batch")
		case errors.Is(err, domain.ErrMarketSettled):
			writeError(w, http.StatusConflict, "market already settled")
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		default:
			h.logger.ErrorContext(r.Context(), "handler: batch settle failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "settlement submission failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"txHash":   receipt.TxHash,
		"gasLimit": receipt.GasLimit,
		"markets":  len(req.MarketIDs),
	})
}

// writeRelayError maps relay failures onto HTTP statuses shared by every
// write endpoint.
func (h *AdminHandler) writeRelayError(w http.ResponseWriter, r *http.Request, action string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAddress), errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrMarketSettled):
		writeError(w, http.StatusConflict, "market already settled")
	case errors.Is(err, domain.ErrNotSettled):
		writeError(w, http.StatusConflict, "market not settled yet")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "market not found")
	default:
		h.logger.ErrorContext(r.Context(), "handler: "+action+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, action+" failed")
	}
}

// createMarketRequest is the JSON body for POST /api/admin/markets. Amounts
// are wei strings.
type createMarketRequest struct {
	TokenAddress string `json:"tokenAddress"`
	InitialPrice string `json:"initialPrice"`
	Value        string `json:"value"`
}

// CreateMarket relays a market creation signed with the operator wallet.
// POST /api/admin/markets
func (h *AdminHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		writeError(w, http.StatusServiceUnavailable, "operator wallet is not configured")
		return
	}

	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	price, ok := new(big.Int).SetString(req.InitialPrice, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid initial price")
		return
	}
	value, ok := new(big.Int).SetString(req.Value, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid value")
		return
	}

	receipt, err := h.admin.CreateMarket(r.Context(), req.TokenAddress, price, value)
	if err != nil {
		h.writeRelayError(w, r, "create market", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"txHash":   receipt.TxHash,
		"gasLimit": receipt.GasLimit,
	})
}

// tradeRequest is the JSON body for POST /api/admin/trade. kind is buy or
// sell; value is required for buys only.
type tradeRequest struct {
	Kind     string `json:"kind"`
	MarketID uint64 `json:"marketId"`
	Outcome  string `json:"outcome"`
	Shares   string `json:"shares"`
	Value    string `json:"value"`
}

// Trade relays a buy or sell of outcome shares with the operator wallet.
// POST /api/admin/trade
func (h *AdminHandler) Trade(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		writeError(w, http.StatusServiceUnavailable, "operator wallet is not configured")
		return
	}

	var req tradeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	outcome, err := domain.ParseOutcome(req.Outcome)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid outcome")
		return
	}
	shares, ok := new(big.Int).SetString(req.Shares, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid shares")
		return
	}

	var receipt domain.TxReceipt
	switch req.Kind {
	case "buy":
		value, ok := new(big.Int).SetString(req.Value, 10)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid value")
			return
		}
		receipt, err = h.admin.BuyShares(r.Context(), req.MarketID, outcome, shares, value)
	case "sell":
		receipt, err = h.admin.SellShares(r.Context(), req.MarketID, outcome, shares)
	default:
		writeError(w, http.StatusBadRequest, "kind must be buy or sell")
		return
	}
	if err != nil {
		h.writeRelayError(w, r, req.Kind+" shares", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"txHash":   receipt.TxHash,
		"gasLimit": receipt.GasLimit,
	})
}

// claimRequest is the JSON body for POST /api/admin/claim.
type claimRequest struct {
	MarketID uint64 `json:"marketId"`
}

// Claim relays a claimWinnings call for a settled market.
// POST /api/admin/claim
func (h *AdminHandler) Claim(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		writeError(w, http.StatusServiceUnavailable, "operator wallet is not configured")
		return
	}

	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	receipt, err := h.admin.ClaimWinnings(r.Context(), req.MarketID)
	if err != nil {
		h.writeRelayError(w, r, "claim winnings", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"txHash":   receipt.TxHash,
		"gasLimit": receipt.GasLimit,
	})
}

// RefreshFeed forces an immediate feed refresh outside the normal schedule.
// POST /api/admin/refresh
func (h *AdminHandler) RefreshFeed(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.Refresh(r.Context()); err != nil {
		if errors.Is(err, domain.ErrRefreshBusy) {
			writeError(w, http.StatusConflict, "refresh already in flight")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: manual refresh failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// archiveInfoDTO is one archived object's metadata.
type archiveInfoDTO struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModified"`
}

// ListArchives lists archived objects in cold storage.
// GET /api/admin/archives?prefix=archive/fees/
func (h *AdminHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	if h.archives == nil {
		writeError(w, http.StatusServiceUnavailable, "cold storage is not configured")
		return
	}

	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = "archive/"
	}

	infos, err := h.archives.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archives failed",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	dtos := make([]archiveInfoDTO, 0, len(infos))
	for _, info := range infos {
		dtos = append(dtos, archiveInfoDTO{
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"archives": dtos})
}

// GetArchive streams one archived object back to the caller.
// GET /api/admin/archives/{path...}
func (h *AdminHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	if h.archives == nil {
		writeError(w, http.StatusServiceUnavailable, "cold storage is not configured")
		return
	}

	path := r.PathValue("path")
	if path == "" || strings.Contains(path, "..") {
		writeError(w, http.StatusBadRequest, "invalid archive path")
		return
	}

	body, err := h.archives.Get(r.Context(), path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get archive failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to fetch archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: archive stream interrupted",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// auditEntryDTO is one audit log row.
type auditEntryDTO struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt string         `json:"createdAt"`
}

// ListAudit returns recent audit log entries, newest first.
// GET /api/admin/audit?limit=50&offset=0
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}

	dtos := make([]auditEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, auditEntryDTO{
			ID:        e.ID,
			Event:     e.Event,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": dtos})
}
