// Package tokens resolves metadata for underlying assets via the DEX
// Screener public API. Lookups are best-effort enrichment: callers must
// tolerate ErrNotFound and fall back to a placeholder label.
package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/trenchlabs/trenchd/internal/domain"
)

var addressRe = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidAddress reports whether s looks like an EVM token address.
func ValidAddress(s string) bool {
	return addressRe.MatchString(s)
}

// Client queries the DEX Screener token endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a metadata client. baseURL defaults to the public DEX
// Screener API when empty.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.dexscreener.com"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type pairsResponse struct {
	Pairs []struct {
		BaseToken struct {
			Address string `json:"address"`
			Symbol  string `json:"symbol"`
			Name    string `json:"name"`
		} `json:"baseToken"`
		PriceUSD string `json:"priceUsd"`
	} `json:"pairs"`
}

// Lookup implements domain.TokenLookup. It returns domain.ErrNotFound when
// the address is malformed or no pair references the token.
func (c *Client) Lookup(ctx context.Context, address string) (domain.TokenInfo, error) {
	if !ValidAddress(address) {
		return domain.TokenInfo{}, fmt.Errorf("tokens: %w: %q", domain.ErrInvalidAddress, address)
	}

	url := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, strings.ToLower(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.TokenInfo{}, fmt.Errorf("tokens: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.TokenInfo{}, fmt.Errorf("tokens: lookup %s: %w", address, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.TokenInfo{}, fmt.Errorf("tokens: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.TokenInfo{}, fmt.Errorf("tokens: lookup %s: HTTP %d", address, resp.StatusCode)
	}

	var parsed pairsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.TokenInfo{}, fmt.Errorf("tokens: decode response: %w", err)
	}

	for _, p := range parsed.Pairs {
		if strings.EqualFold(p.BaseToken.Address, address) {
			return domain.TokenInfo{
				Address:  address,
				Symbol:   p.BaseToken.Symbol,
				Name:     p.BaseToken.Name,
				PriceUSD: p.PriceUSD,
			}, nil
		}
	}

	return domain.TokenInfo{}, domain.ErrNotFound
}

// PlaceholderSymbol returns the degraded label used when metadata is
// unavailable: the shortened token address.
func PlaceholderSymbol(address string) string {
	if len(address) < 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

var _ domain.TokenLookup = (*Client)(nil)
