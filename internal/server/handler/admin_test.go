package handler

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trenchlabs/trenchd/internal/domain"
)

type fakeAdmin struct {
	receipt domain.TxReceipt
	err     error

	settled []uint64
	created []string
	bought  []uint64
	sold    []uint64
	claimed []uint64
}

func (f *fakeAdmin) BatchSettle(ctx context.Context, marketIDs []uint64, finalPrices []*big.Int) (domain.TxReceipt, error) {
	f.settled = append(f.settled, marketIDs...)
	return f.receipt, f.err
}

func (f *fakeAdmin) CreateMarket(ctx context.Context, tokenAddress string, initialPrice, value *big.Int) (domain.TxReceipt, error) {
	f.created = append(f.created, tokenAddress)
	return f.receipt, f.err
}

func (f *fakeAdmin) BuyShares(ctx context.Context, marketID uint64, outcome domain.Outcome, shares, value *big.Int) (domain.TxReceipt, error) {
	f.bought = append(f.bought, marketID)
	return f.receipt, f.err
}

func (f *fakeAdmin) SellShares(ctx context.Context, marketID uint64, outcome domain.Outcome, shares *big.Int) (domain.TxReceipt, error) {
	f.sold = append(f.sold, marketID)
	return f.receipt, f.err
}

func (f *fakeAdmin) ClaimWinnings(ctx context.Context, marketID uint64) (domain.TxReceipt, error) {
	f.claimed = append(f.claimed, marketID)
	return f.receipt, f.err
}

var _ AdminService = (*fakeAdmin)(nil)

func postJSON(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestAdminEndpointsWithoutWallet(t *testing.T) {
	h := NewAdminHandler(nil, nil, nil, nil, testLogger())

	for name, fn := range map[string]http.HandlerFunc{
		"settle": h.BatchSettle,
		"create": h.CreateMarket,
		"trade":  h.Trade,
		"claim":  h.Claim,
	} {
		rec := postJSON(fn, `{}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, name)
	}
}

func TestCreateMarketRelayEndpoint(t *testing.T) {
	admin := &fakeAdmin{receipt: domain.TxReceipt{TxHash: "0xbeef", GasLimit: 200000}}
	h := NewAdminHandler(admin, nil, nil, nil, testLogger())

	rec := postJSON(h.CreateMarket,
		`{"tokenAddress":"0x1111111111111111111111111111111111111111","initialPrice":"1000000000000000000","value":"10000000000000000"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		TxHash string `json:"txHash"`
	}
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "0xbeef", resp.TxHash)
	assert.Len(t, admin.created, 1)
}

func TestCreateMarketRejectsBadAmounts(t *testing.T) {
	admin := &fakeAdmin{}
	h := NewAdminHandler(admin, nil, nil, nil, testLogger())

	rec := postJSON(h.CreateMarket,
		`{"tokenAddress":"0x1111111111111111111111111111111111111111","initialPrice":"1.5","value":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, admin.created)
}

func TestTradeEndpointBuyAndSell(t *testing.T) {
	admin := &fakeAdmin{receipt: domain.TxReceipt{TxHash: "0xcafe"}}
	h := NewAdminHandler(admin, nil, nil, nil, testLogger())

	rec := postJSON(h.Trade,
		`{"kind":"buy","marketId":4,"outcome":"MOON","shares":"1000","value":"50"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uint64{4}, admin.bought)

	rec = postJSON(h.Trade,
		`{"kind":"sell","marketId":9,"outcome":"RUG","shares":"500"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uint64{9}, admin.sold)
}

func TestTradeEndpointRejectsUnknownKind(t *testing.T) {
	admin := &fakeAdmin{}
	h := NewAdminHandler(admin, nil, nil, nil, testLogger())

	rec := postJSON(h.Trade,
		`{"kind":"short","marketId":4,"outcome":"MOON","shares":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, admin.bought)
	assert.Empty(t, admin.sold)
}

func TestClaimEndpointMapsNotSettled(t *testing.T) {
	admin := &fakeAdmin{err: domain.ErrNotSettled}
	h := NewAdminHandler(admin, nil, nil, nil, testLogger())

	rec := postJSON(h.Claim, `{"marketId":2}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestClaimEndpointSubmits(t *testing.T) {
	admin := &fakeAdmin{receipt: domain.TxReceipt{TxHash: "0x777"}}
	h := NewAdminHandler(admin, nil, nil, nil, testLogger())

	rec := postJSON(h.Claim, `{"marketId":6}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uint64{6}, admin.claimed)
}
