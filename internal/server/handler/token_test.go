package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trenchlabs/trenchd/internal/domain"
)

type fakeLookup struct {
	info domain.TokenInfo
	err  error
}

func (f *fakeLookup) Lookup(ctx context.Context, address string) (domain.TokenInfo, error) {
	return f.info, f.err
}

type fakeTokenCache struct {
	stored []domain.TokenInfo
	hit    *domain.TokenInfo
}

func (f *fakeTokenCache) Set(ctx context.Context, info domain.TokenInfo) error {
	f.stored = append(f.stored, info)
	return nil
}

func (f *fakeTokenCache) Get(ctx context.Context, address string) (domain.TokenInfo, error) {
	if f.hit != nil {
		return *f.hit, nil
	}
	return domain.TokenInfo{}, domain.ErrNotFound
}

const testTokenAddr = "0x1234567890abcdef1234567890abcdef12345678"

func TestGetTokenReturnsMetadata(t *testing.T) {
	lookup := &fakeLookup{info: domain.TokenInfo{
		Address:  testTokenAddr,
		Symbol:   "WIF",
		Name:     "dogwifhat",
		PriceUSD: "1.42",
	}}
	cache := &fakeTokenCache{}
	h := NewTokenHandler(lookup, cache, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/tokens/"+testTokenAddr, nil)
	req.SetPathValue("address", testTokenAddr)
	rec := httptest.NewRecorder()
	h.GetToken(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var dto tokenDTO
	decodeJSON(t, rec, &dto)
	assert.True(t, dto.Found)
	assert.Equal(t, "WIF", dto.Symbol)
	assert.Equal(t, "1.42", dto.PriceUSD)

	// Successful lookups land in the cache.
	require.Len(t, cache.stored, 1)
	assert.Equal(t, "WIF", cache.stored[0].Symbol)
}

func TestGetTokenServesFromCache(t *testing.T) {
	cache := &fakeTokenCache{hit: &domain.TokenInfo{
		Address: testTokenAddr,
		Symbol:  "CACHED",
	}}
	// nil info on the lookup proves the cache short-circuits it.
	h := NewTokenHandler(&fakeLookup{err: domain.ErrNotFound}, cache, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/tokens/"+testTokenAddr, nil)
	req.SetPathValue("address", testTokenAddr)
	rec := httptest.NewRecorder()
	h.GetToken(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var dto tokenDTO
	decodeJSON(t, rec, &dto)
	assert.True(t, dto.Found)
	assert.Equal(t, "CACHED", dto.Symbol)
}

func TestGetTokenDegradesToPlaceholder(t *testing.T) {
	h := NewTokenHandler(&fakeLookup{err: domain.ErrNotFound}, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/tokens/"+testTokenAddr, nil)
	req.SetPathValue("address", testTokenAddr)
	rec := httptest.NewRecorder()
	h.GetToken(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var dto tokenDTO
	decodeJSON(t, rec, &dto)
	assert.False(t, dto.Found)
	assert.Equal(t, "0x1234...5678", dto.Symbol)
}

func TestGetTokenRejectsBadAddress(t *testing.T) {
	h := NewTokenHandler(&fakeLookup{}, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/tokens/not-an-address", nil)
	req.SetPathValue("address", "not-an-address")
	rec := httptest.NewRecorder()
	h.GetToken(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
