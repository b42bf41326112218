package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trenchlabs/trenchd/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFeed struct {
	markets []domain.MarketSummary
	settled []domain.MarketSummary
	stats   domain.FeedStats
	err     error
}

func (f *fakeFeed) Markets(ctx context.Context, opts domain.ListOpts) ([]domain.MarketSummary, error) {
	return f.markets, f.err
}

func (f *fakeFeed) Settled(ctx context.Context, opts domain.ListOpts) ([]domain.MarketSummary, error) {
	return f.settled, f.err
}

func (f *fakeFeed) Stats(ctx context.Context) (domain.FeedStats, error) {
	return f.stats, f.err
}

type fakeMarkets struct {
	detail domain.MarketDetail
	stats  [domain.NumOutcomes]domain.OutcomeStats
	err    error
}

func (f *fakeMarkets) GetDetail(ctx context.Context, marketID uint64) (domain.MarketDetail, error) {
	return f.detail, f.err
}

func (f *fakeMarkets) OutcomeStats(ctx context.Context, marketID uint64) ([domain.NumOutcomes]domain.OutcomeStats, error) {
	return f.stats, f.err
}

type fakePositions struct {
	positions  []domain.Position
	gotAccount string
	err        error
}

func (f *fakePositions) Aggregate(ctx context.Context, account string) ([]domain.Position, error) {
	f.gotAccount = account
	return f.positions, f.err
}

type fakeSimulator struct {
	got    domain.TradeIntent
	result domain.SimulationResult
}

func (f *fakeSimulator) Simulate(ctx context.Context, intent domain.TradeIntent) domain.SimulationResult {
	f.got = intent
	return f.result
}

type fakeTotals struct {
	totals [domain.NumOutcomes]*big.Int
	err    error
}

func (f *fakeTotals) OutcomeTotals(ctx context.Context, marketID uint64) ([domain.NumOutcomes]*big.Int, error) {
	return f.totals, f.err
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestListMarketsBeforeFirstRefresh(t *testing.T) {
	h := NewMarketHandler(&fakeFeed{err: domain.ErrNotFound}, &fakeMarkets{}, testLogger())

	rec := httptest.NewRecorder()
	h.ListMarkets(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Markets []marketSummaryDTO `json:"markets"`
	}
	decodeJSON(t, rec, &resp)
	assert.Empty(t, resp.Markets)
}

func TestListMarketsRendersWeiAsStrings(t *testing.T) {
	outcome := domain.OutcomeMoon
	feed := &fakeFeed{markets: []domain.MarketSummary{
		{
			MarketID:       7,
			Creator:        "0xaaaa",
			TokenSymbol:    "PEPE",
			InitialPrice:   new(big.Int).Lsh(big.NewInt(1), 70), // beyond float64 precision
			CreatedAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Settled:        true,
			FinalPrice:     big.NewInt(42),
			WinningOutcome: &outcome,
		},
	}}
	h := NewMarketHandler(feed, &fakeMarkets{}, testLogger())

	rec := httptest.NewRecorder()
	h.ListMarkets(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Markets []marketSummaryDTO `json:"markets"`
	}
	decodeJSON(t, rec, &resp)
	require.Len(t, resp.Markets, 1)

	m := resp.Markets[0]
	assert.Equal(t, uint64(7), m.MarketID)
	assert.Equal(t, "1180591620717411303424", m.InitialPrice)
	require.NotNil(t, m.WinningOutcome)
	assert.Equal(t, "MOON", *m.WinningOutcome)
	require.NotNil(t, m.FinalPrice)
	assert.Equal(t, "42", *m.FinalPrice)
}

func TestGetMarketNotFound(t *testing.T) {
	h := NewMarketHandler(&fakeFeed{}, &fakeMarkets{err: domain.ErrNotFound}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets/99", nil)
	req.SetPathValue("id", "99")
	rec := httptest.NewRecorder()
	h.GetMarket(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMarketInvalidID(t *testing.T) {
	h := NewMarketHandler(&fakeFeed{}, &fakeMarkets{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets/abc", nil)
	req.SetPathValue("id", "abc")
	rec := httptest.NewRecorder()
	h.GetMarket(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMarketDetail(t *testing.T) {
	markets := &fakeMarkets{detail: domain.MarketDetail{
		Market: domain.Market{
			ID:           3,
			Creator:      "0xbbbb",
			TokenAddress: "0xcccc",
			InitialPrice: big.NewInt(1000),
		},
		TokenSymbol: "WOJAK",
		Fees: domain.FeeTotals{
			CreatorTotal:  big.NewInt(500),
			PlatformTotal: big.NewInt(250),
		},
		FeeCount:  4,
		CreatedTx: "0xdead",
	}}
	h := NewMarketHandler(&fakeFeed{}, markets, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets/3", nil)
	req.SetPathValue("id", "3")
	rec := httptest.NewRecorder()
	h.GetMarket(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp marketDetailDTO
	decodeJSON(t, rec, &resp)
	assert.Equal(t, uint64(3), resp.MarketID)
	assert.Equal(t, "WOJAK", resp.TokenSymbol)
	assert.Equal(t, "500", resp.CreatorFees)
	assert.Equal(t, "250", resp.PlatformFees)
	assert.Equal(t, 4, resp.FeeCount)
	assert.Equal(t, "0xdead", resp.CreatedTx)
}

func TestGetOutcomeStatsListsAllOutcomes(t *testing.T) {
	var stats [domain.NumOutcomes]domain.OutcomeStats
	for i := range stats {
		stats[i] = domain.OutcomeStats{
			TotalShares: big.NewInt(int64(i + 1)),
			TotalVolume: big.NewInt(int64((i + 1) * 10)),
		}
	}
	h := NewMarketHandler(&fakeFeed{}, &fakeMarkets{stats: stats}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets/1/stats", nil)
	req.SetPathValue("id", "1")
	rec := httptest.NewRecorder()
	h.GetOutcomeStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Outcomes []outcomeStatsDTO `json:"outcomes"`
	}
	decodeJSON(t, rec, &resp)
	require.Len(t, resp.Outcomes, domain.NumOutcomes)
	assert.Equal(t, "PUMP", resp.Outcomes[0].Outcome)
	assert.Equal(t, "MOON", resp.Outcomes[4].Outcome)
	assert.Equal(t, "50", resp.Outcomes[4].TotalVolume)
}

func TestListPositionsRejectsBadAddress(t *testing.T) {
	h := NewPositionHandler(&fakePositions{}, testLogger())

	rec := httptest.NewRecorder()
	h.ListPositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions?account=nope", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ListPositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPositionsOmitsZeroBalances(t *testing.T) {
	pos := domain.Position{MarketID: 2, TokenAddress: "0xdddd"}
	pos.Shares[domain.OutcomePump] = big.NewInt(100)
	pos.Shares[domain.OutcomeRug] = big.NewInt(0)

	positions := &fakePositions{positions: []domain.Position{pos}}
	h := NewPositionHandler(positions, testLogger())

	req := httptest.NewRequest(http.MethodGet,
		"/api/positions?account=0x52908400098527886E0F7030069857D2E4169EE7", nil)
	rec := httptest.NewRecorder()
	h.ListPositions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp listPositionsResponse
	decodeJSON(t, rec, &resp)
	require.Len(t, resp.Positions, 1)
	assert.Equal(t, map[string]string{"PUMP": "100"}, resp.Positions[0].Shares)
}

func TestSimulatePassesIntentThrough(t *testing.T) {
	sim := &fakeSimulator{result: domain.SimulationResult{
		Kind:    domain.TradeBuy,
		Success: true,
		Fees:    "0.002500",
	}}
	h := NewTradeHandler(sim, &fakeTotals{}, testLogger())

	body := `{"kind":"buy","marketId":5,"outcome":"DUMP","spend":"0.1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/simulate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Simulate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.TradeBuy, sim.got.Kind)
	assert.Equal(t, uint64(5), sim.got.MarketID)
	assert.Equal(t, domain.OutcomeDump, sim.got.Outcome)
	assert.Equal(t, "0.1", sim.got.Spend)

	var resp domain.SimulationResult
	decodeJSON(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "0.002500", resp.Fees)
}

func TestSimulateRejectsBadInput(t *testing.T) {
	h := NewTradeHandler(&fakeSimulator{}, &fakeTotals{}, testLogger())

	cases := map[string]string{
		"bad outcome": `{"kind":"buy","marketId":5,"outcome":"SIDEWAYS","spend":"0.1"}`,
		"bad shares":  `{"kind":"sell","marketId":5,"outcome":"PUMP","shares":"1.5"}`,
		"bad json":    `{"kind":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/simulate", strings.NewReader(body))
			rec := httptest.NewRecorder()
			h.Simulate(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestEstimateDefaultPrice(t *testing.T) {
	// Empty totals mean the default share price of 0.05 applies, so a 0.1
	// spend buys exactly 2 shares.
	h := NewTradeHandler(&fakeSimulator{}, &fakeTotals{}, testLogger())

	body := `{"marketId":1,"outcome":"PUMP","spend":"0.1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/estimate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Estimate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp estimateResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "2000000000000000000", resp.Shares)
	assert.Equal(t, "2.000000", resp.SharesFormatted)
	assert.Equal(t, "PUMP", resp.Outcome)
}

func TestEstimateRejectsInvalidSpend(t *testing.T) {
	h := NewTradeHandler(&fakeSimulator{}, &fakeTotals{}, testLogger())

	body := `{"marketId":1,"outcome":"PUMP","spend":"-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/estimate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Estimate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseOutcomeParam(t *testing.T) {
	o, ok := parseOutcomeParam("RUG")
	require.True(t, ok)
	assert.Equal(t, domain.OutcomeRug, o)

	o, ok = parseOutcomeParam("4")
	require.True(t, ok)
	assert.Equal(t, domain.OutcomeMoon, o)

	_, ok = parseOutcomeParam("9")
	assert.False(t, ok)
}
