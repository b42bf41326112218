package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/trenchlabs/trenchd/internal/domain"
	"github.com/trenchlabs/trenchd/internal/platform/tokens"
)

// AdminService relays owner-only contract operations. Every call verifies the
// operator wallet against the contract's owner() before signing anything, so
// a misconfigured key fails fast instead of burning gas on a revert.
type AdminService struct {
	reader   domain.ContractReader
	writer   domain.ContractWriter
	operator string // operator wallet address, hex
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewAdminService creates an AdminService. audit may be nil.
func NewAdminService(
	reader domain.ContractReader,
	writer domain.ContractWriter,
	operator string,
	audit domain.AuditStore,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		reader:   reader,
		writer:   writer,
		operator: operator,
		audit:    audit,
		logger:   logger,
	}
}

// BatchSettle submits batchSettleMarkets for the given ids and final prices.
// The two slices must be the same length and every price must be positive.
func (s *AdminService) BatchSettle(ctx context.Context, marketIDs []uint64, finalPrices []*big.Int) (domain.TxReceipt, error) {
	if len(marketIDs) == 0 || len(marketIDs) != len(finalPrices) {
		return domain.TxReceipt{}, fmt.Errorf("admin_service: %w: %d ids, %d prices",
			domain.ErrInvalidAmount, len(marketIDs), len(finalPrices))
	}
	for i, p := range finalPrices {
		if p == nil || p.Sign() <= 0 {
			return domain.TxReceipt{}, fmt.Errorf("admin_service: %w: final price at index %d",
				domain.ErrInvalidAmount, i)
		}
	}

	if err := s.requireOwner(ctx); err != nil {
		return domain.TxReceipt{}, err
	}

	// Reject ids already settled so the whole batch does not revert on one
	// stale entry.
	for _, id := range marketIDs {
		market, err := s.reader.MarketInfo(ctx, id)
		if err != nil {
			return domain.TxReceipt{}, fmt.Errorf("admin_service: market %d: %w", id, err)
		}
		if market.Settled {
			return domain.TxReceipt{}, fmt.Errorf("admin_service: market %d: %w", id, domain.ErrMarketSettled)
		}
	}

	receipt, err := s.writer.BatchSettleMarkets(ctx, marketIDs, finalPrices)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("admin_service: batch settle: %w", err)
	}

	s.logAudit(ctx, "batch_settle_submitted", map[string]any{
		"market_ids": marketIDs,
		"tx_hash":    receipt.TxHash,
	})
	s.logger.InfoContext(ctx, "admin_service: batch settle submitted",
		slog.Int("markets", len(marketIDs)),
		slog.String("tx_hash", receipt.TxHash),
	)

	return receipt, nil
}

// CreateMarket relays a payable createMarket call. value carries the creation
// fee plus any initial liquidity, in wei.
func (s *AdminService) CreateMarket(ctx context.Context, tokenAddress string, initialPrice, value *big.Int) (domain.TxReceipt, error) {
	if !tokens.ValidAddress(tokenAddress) {
		return domain.TxReceipt{}, fmt.Errorf("admin_service: %w: %q", domain.ErrInvalidAddress, tokenAddress)
	}
	if initialPrice == nil || initialPrice.Sign() <= 0 {
		return domain.TxReceipt{}, fmt.Errorf("admin_service: %w: initial price", domain.ErrInvalidAmount)
	}
	if value == nil || value.Sign() <= 0 {
		return domain.TxReceipt{}, fmt.Errorf("admin_service: %w: creation value", domain.ErrInvalidAmount)
	}

	receipt, err := s.writer.CreateMarket(ctx, tokenAddress, initialPrice, value)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("admin_service: create market: %w", err)
	}

	s.logAudit(ctx, "create_market_submitted", map[string]any{
		"token_address": tokenAddress,
		"initial_price": initialPrice.String(),
		"tx_hash":       receipt.TxHash,
	})
	s.logger.InfoContext(ctx, "admin_service: create market submitted",
		slog.String("token_address", tokenAddress),
		slog.String("tx_hash", receipt.TxHash),
	)

	return receipt, nil
}

// BuyShares relays a payable buyShares call funded by the operator wallet.
func (s *AdminService) BuyShares(ctx context.Context, marketID uint64, outcome domain.Outcome, shares, value *big.Int) (domain.TxReceipt, error) {
	if !outcome.Valid() {
		return domain.TxReceipt{}, fmt.Errorf("admin_service: %w: outcome %d", domain.ErrInvalidAmount, outcome)
	}
	if shares == nil || shares.Sign() <= 0 || value == nil || value.Sign() <= 0 {
		return domain.TxReceipt{}, fmt.Errorf("admin_service: %w: shares/value", domain.ErrInvalidAmount)
	}
	if err := s.requireOpen(ctx, marketID); err != nil {
		return domain.TxReceipt{}, err
	}

	receipt, err := s.writer.BuyShares(ctx, marketID, outcome, shares, value)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("admin_service: buy shares: %w", err)
	}

	s.logAudit(ctx, "buy_shares_submitted", map[string]any{
		"market_id": marketID,
		"outcome":   outcome.String(),
		"shares":    shares.String(),
		"tx_hash":   receipt.TxHash,
	})
	return receipt, nil
}

// SellShares relays a sellShares call.
func (s *AdminService) SellShares(ctx context.Context, marketID uint64, outcome domain.Outcome, shares *big.Int) (domain.TxReceipt, error) {
	if !outcome.Valid() {
		return domain.TxReceipt{}, fmt.Errorf("admin_service: %w: outcome %d", domain.ErrInvalidAmount, outcome)
	}
	if shares == nil || shares.Sign() <= 0 {
		return domain.TxReceipt{}, fmt.Errorf("admin_service: %w: shares", domain.ErrInvalidAmount)
	}
	if err := s.requireOpen(ctx, marketID); err != nil {
		return domain.TxReceipt{}, err
	}

	receipt, err := s.writer.SellShares(ctx, marketID, outcome, shares)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("admin_service: sell shares: %w", err)
	}

	s.logAudit(ctx, "sell_shares_submitted", map[string]any{
		"market_id": marketID,
		"outcome":   outcome.String(),
		"shares":    shares.String(),
		"tx_hash":   receipt.TxHash,
	})
	return receipt, nil
}

// ClaimWinnings relays a claimWinnings call. The market must already be
// settled; the contract reverts otherwise, so reject before signing.
func (s *AdminService) ClaimWinnings(ctx context.Context, marketID uint64) (domain.TxReceipt, error) {
	market, err := s.reader.MarketInfo(ctx, marketID)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("admin_service: market %d: %w", marketID, err)
	}
	if !market.Settled {
		return domain.TxReceipt{}, fmt.Errorf("admin_service: market %d: %w", marketID, domain.ErrNotSettled)
	}

	receipt, err := s.writer.ClaimWinnings(ctx, marketID)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("admin_service: claim winnings: %w", err)
	}

	s.logAudit(ctx, "claim_winnings_submitted", map[string]any{
		"market_id": marketID,
		"tx_hash":   receipt.TxHash,
	})
	return receipt, nil
}

// requireOpen verifies the market exists and has not settled.
func (s *AdminService) requireOpen(ctx context.Context, marketID uint64) error {
	market, err := s.reader.MarketInfo(ctx, marketID)
	if err != nil {
		return fmt.Errorf("admin_service: market %d: %w", marketID, err)
	}
	if market.Settled {
		return fmt.Errorf("admin_service: market %d: %w", marketID, domain.ErrMarketSettled)
	}
	return nil
}

// requireOwner verifies the configured operator wallet is the contract owner.
func (s *AdminService) requireOwner(ctx context.Context) error {
	owner, err := s.reader.Owner(ctx)
	if err != nil {
		return fmt.Errorf("admin_service: read owner: %w", err)
	}
	if !strings.EqualFold(owner, s.operator) {
		return fmt.Errorf("admin_service: operator %s is not contract owner: %w",
			s.operator, domain.ErrUnauthorized)
	}
	return nil
}

func (s *AdminService) logAudit(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "admin_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
