package service

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"

	"github.com/trenchlabs/trenchd/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wei(whole int64) *big.Int {
	w := big.NewInt(whole)
	return w.Mul(w, big.NewInt(1_000_000_000_000_000_000))
}

// fakeReader implements domain.ContractReader with per-method hooks.
type fakeReader struct {
	marketInfo   func(ctx context.Context, marketID uint64) (domain.Market, error)
	outcomeStats func(ctx context.Context, marketID uint64, outcome domain.Outcome) (domain.OutcomeStats, error)
	userShares   func(ctx context.Context, marketID uint64, account string, outcome domain.Outcome) (*big.Int, error)
	buyCost      func(ctx context.Context, marketID uint64, outcome domain.Outcome, shares *big.Int) (*big.Int, error)
	sellPayout   func(ctx context.Context, marketID uint64, outcome domain.Outcome, shares *big.Int) (*big.Int, error)
	nextMarketID func(ctx context.Context) (uint64, error)
	owner        func(ctx context.Context) (string, error)
}

func (f *fakeReader) MarketInfo(ctx context.Context, marketID uint64) (domain.Market, error) {
	return f.marketInfo(ctx, marketID)
}

func (f *fakeReader) OutcomeStats(ctx context.Context, marketID uint64, outcome domain.Outcome) (domain.OutcomeStats, error) {
	return f.outcomeStats(ctx, marketID, outcome)
}

func (f *fakeReader) UserShares(ctx context.Context, marketID uint64, account string, outcome domain.Outcome) (*big.Int, error) {
	return f.userShares(ctx, marketID, account, outcome)
}

func (f *fakeReader) BuyCost(ctx context.Context, marketID uint64, outcome domain.Outcome, shares *big.Int) (*big.Int, error) {
	return f.buyCost(ctx, marketID, outcome, shares)
}

func (f *fakeReader) SellPayout(ctx context.Context, marketID uint64, outcome domain.Outcome, shares *big.Int) (*big.Int, error) {
	return f.sellPayout(ctx, marketID, outcome, shares)
}

func (f *fakeReader) NextMarketID(ctx context.Context) (uint64, error) {
	return f.nextMarketID(ctx)
}

func (f *fakeReader) Owner(ctx context.Context) (string, error) {
	return f.owner(ctx)
}

var _ domain.ContractReader = (*fakeReader)(nil)

// fakeIndexer implements domain.IndexerClient with per-method hooks.
type fakeIndexer struct {
	createds  func(ctx context.Context, opts domain.PageOpts) ([]domain.MarketCreatedRecord, error)
	settleds  func(ctx context.Context, opts domain.PageOpts) ([]domain.MarketSettledRecord, error)
	fees      func(ctx context.Context, opts domain.PageOpts) ([]domain.FeeRecord, error)
	byID      func(ctx context.Context, marketID uint64) (domain.MarketHistory, error)
	byCreator func(ctx context.Context, creator string, opts domain.PageOpts) ([]domain.MarketCreatedRecord, error)
}

func (f *fakeIndexer) MarketCreateds(ctx context.Context, opts domain.PageOpts) ([]domain.MarketCreatedRecord, error) {
	return f.createds(ctx, opts)
}

func (f *fakeIndexer) MarketSettleds(ctx context.Context, opts domain.PageOpts) ([]domain.MarketSettledRecord, error) {
	return f.settleds(ctx, opts)
}

func (f *fakeIndexer) FeesPaids(ctx context.Context, opts domain.PageOpts) ([]domain.FeeRecord, error) {
	return f.fees(ctx, opts)
}

func (f *fakeIndexer) MarketByID(ctx context.Context, marketID uint64) (domain.MarketHistory, error) {
	return f.byID(ctx, marketID)
}

func (f *fakeIndexer) MarketsByCreator(ctx context.Context, creator string, opts domain.PageOpts) ([]domain.MarketCreatedRecord, error) {
	return f.byCreator(ctx, creator, opts)
}

var _ domain.IndexerClient = (*fakeIndexer)(nil)

// fakeWriter records submitted calls and returns a canned receipt.
type fakeWriter struct {
	mu       sync.Mutex
	settled  [][]uint64
	created  []string
	bought   []uint64
	sold     []uint64
	claimed  []uint64
	receipt  domain.TxReceipt
	writeErr error
}

func (f *fakeWriter) CreateMarket(ctx context.Context, tokenAddress string, initialPrice, value *big.Int) (domain.TxReceipt, error) {
	f.mu.Lock()
	f.created = append(f.created, tokenAddress)
	f.mu.Unlock()
	return f.receipt, f.writeErr
}

func (f *fakeWriter) BuyShares(ctx context.Context, marketID uint64, outcome domain.Outcome, shares, value *big.Int) (domain.TxReceipt, error) {
	f.mu.Lock()
	f.bought = append(f.bought, marketID)
	f.mu.Unlock()
	return f.receipt, f.writeErr
}

func (f *fakeWriter) SellShares(ctx context.Context, marketID uint64, outcome domain.Outcome, shares *big.Int) (domain.TxReceipt, error) {
	f.mu.Lock()
	f.sold = append(f.sold, marketID)
	f.mu.Unlock()
	return f.receipt, f.writeErr
}

func (f *fakeWriter) ClaimWinnings(ctx context.Context, marketID uint64) (domain.TxReceipt, error) {
	f.mu.Lock()
	f.claimed = append(f.claimed, marketID)
	f.mu.Unlock()
	return f.receipt, f.writeErr
}

func (f *fakeWriter) BatchSettleMarkets(ctx context.Context, marketIDs []uint64, finalPrices []*big.Int) (domain.TxReceipt, error) {
	f.mu.Lock()
	f.settled = append(f.settled, marketIDs)
	f.mu.Unlock()
	return f.receipt, f.writeErr
}

var _ domain.ContractWriter = (*fakeWriter)(nil)

// fakeBus records published payloads per channel.
type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: make(map[string][][]byte)}
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeBus) Subscribe(ctx context.Context, channels ...string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (f *fakeBus) count(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published[channel])
}

var _ domain.SignalBus = (*fakeBus)(nil)
