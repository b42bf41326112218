package service

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trenchlabs/trenchd/internal/domain"
)

const ownerAddr = "0xAbCd99999999999999999999999999999999EfAb"

func adminReader(settled map[uint64]bool) *fakeReader {
	return &fakeReader{
		owner: func(ctx context.Context) (string, error) {
			return ownerAddr, nil
		},
		marketInfo: func(ctx context.Context, marketID uint64) (domain.Market, error) {
			return domain.Market{ID: marketID, Settled: settled[marketID]}, nil
		},
	}
}

func TestBatchSettleSubmits(t *testing.T) {
	writer := &fakeWriter{receipt: domain.TxReceipt{TxHash: "0xabc"}}
	svc := NewAdminService(adminReader(nil), writer, ownerAddr, nil, testLogger())

	receipt, err := svc.BatchSettle(context.Background(), []uint64{0, 1}, []*big.Int{wei(2), wei(3)})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", receipt.TxHash)
	require.Len(t, writer.settled, 1)
	assert.Equal(t, []uint64{0, 1}, writer.settled[0])
}

func TestBatchSettleOwnerCaseInsensitive(t *testing.T) {
	writer := &fakeWriter{}
	svc := NewAdminService(adminReader(nil), writer, "0xabcd99999999999999999999999999999999efab", nil, testLogger())

	_, err := svc.BatchSettle(context.Background(), []uint64{0}, []*big.Int{wei(1)})
	assert.NoError(t, err)
}

func TestBatchSettleRejectsNonOwner(t *testing.T) {
	writer := &fakeWriter{}
	svc := NewAdminService(adminReader(nil), writer, "0x1234567890123456789012345678901234567890", nil, testLogger())

	_, err := svc.BatchSettle(context.Background(), []uint64{0}, []*big.Int{wei(1)})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Empty(t, writer.settled)
}

func TestBatchSettleLengthMismatch(t *testing.T) {
	svc := NewAdminService(adminReader(nil), &fakeWriter{}, ownerAddr, nil, testLogger())

	_, err := svc.BatchSettle(context.Background(), []uint64{0, 1}, []*big.Int{wei(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.BatchSettle(context.Background(), nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestBatchSettleRejectsNonPositivePrice(t *testing.T) {
	svc := NewAdminService(adminReader(nil), &fakeWriter{}, ownerAddr, nil, testLogger())

	_, err := svc.BatchSettle(context.Background(), []uint64{0}, []*big.Int{big.NewInt(0)})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.BatchSettle(context.Background(), []uint64{0}, []*big.Int{nil})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestBatchSettleRejectsAlreadySettled(t *testing.T) {
	writer := &fakeWriter{}
	svc := NewAdminService(adminReader(map[uint64]bool{1: true}), writer, ownerAddr, nil, testLogger())

	_, err := svc.BatchSettle(context.Background(), []uint64{0, 1}, []*big.Int{wei(1), wei(2)})
	assert.ErrorIs(t, err, domain.ErrMarketSettled)
	assert.Empty(t, writer.settled)
}

const relayToken = "0x1111111111111111111111111111111111111111"

func TestCreateMarketRelays(t *testing.T) {
	writer := &fakeWriter{receipt: domain.TxReceipt{TxHash: "0xdef"}}
	svc := NewAdminService(adminReader(nil), writer, ownerAddr, nil, testLogger())

	receipt, err := svc.CreateMarket(context.Background(), relayToken, wei(1), wei(2))
	require.NoError(t, err)
	assert.Equal(t, "0xdef", receipt.TxHash)
	assert.Equal(t, []string{relayToken}, writer.created)
}

func TestCreateMarketRejectsBadInput(t *testing.T) {
	writer := &fakeWriter{}
	svc := NewAdminService(adminReader(nil), writer, ownerAddr, nil, testLogger())

	_, err := svc.CreateMarket(context.Background(), "not-an-address", wei(1), wei(1))
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = svc.CreateMarket(context.Background(), relayToken, big.NewInt(0), wei(1))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.CreateMarket(context.Background(), relayToken, wei(1), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	assert.Empty(t, writer.created)
}

func TestBuySharesRelays(t *testing.T) {
	writer := &fakeWriter{receipt: domain.TxReceipt{TxHash: "0x111"}}
	svc := NewAdminService(adminReader(nil), writer, ownerAddr, nil, testLogger())

	receipt, err := svc.BuyShares(context.Background(), 3, domain.OutcomeMoon, wei(1), wei(1))
	require.NoError(t, err)
	assert.Equal(t, "0x111", receipt.TxHash)
	assert.Equal(t, []uint64{3}, writer.bought)
}

func TestBuySharesRejectsSettledMarket(t *testing.T) {
	writer := &fakeWriter{}
	svc := NewAdminService(adminReader(map[uint64]bool{3: true}), writer, ownerAddr, nil, testLogger())

	_, err := svc.BuyShares(context.Background(), 3, domain.OutcomePump, wei(1), wei(1))
	assert.ErrorIs(t, err, domain.ErrMarketSettled)
	assert.Empty(t, writer.bought)
}

func TestSellSharesRejectsBadAmounts(t *testing.T) {
	writer := &fakeWriter{}
	svc := NewAdminService(adminReader(nil), writer, ownerAddr, nil, testLogger())

	_, err := svc.SellShares(context.Background(), 1, domain.Outcome(9), wei(1))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.SellShares(context.Background(), 1, domain.OutcomeDump, big.NewInt(-1))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	assert.Empty(t, writer.sold)
}

func TestClaimWinningsRequiresSettlement(t *testing.T) {
	writer := &fakeWriter{receipt: domain.TxReceipt{TxHash: "0x222"}}
	svc := NewAdminService(adminReader(map[uint64]bool{7: true}), writer, ownerAddr, nil, testLogger())

	_, err := svc.ClaimWinnings(context.Background(), 5)
	assert.ErrorIs(t, err, domain.ErrNotSettled)
	assert.Empty(t, writer.claimed)

	receipt, err := svc.ClaimWinnings(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "0x222", receipt.TxHash)
	assert.Equal(t, []uint64{7}, writer.claimed)
}
