// Package subgraph is a GraphQL client for the indexing service that tracks
// PredictionMarket contract events: market creations, settlements, and fee
// payments.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/trenchlabs/trenchd/internal/domain"
)

// Client is a GraphQL client for the market subgraph.
type Client struct {
	graphqlURL string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a subgraph client for the given endpoint, e.g.
// "http://localhost:8000/subgraphs/name/trenches-graph".
func NewClient(graphqlURL, apiKey string) *Client {
	return &Client{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// defaultPageOpts fills in the subgraph's defaults for unset paging fields.
func defaultPageOpts(opts domain.PageOpts) domain.PageOpts {
	if opts.First <= 0 {
		opts.First = 100
	}
	if opts.Skip < 0 {
		opts.Skip = 0
	}
	if opts.OrderBy == "" {
		opts.OrderBy = "blockTimestamp"
	}
	if opts.OrderDirection != "asc" {
		opts.OrderDirection = "desc"
	}
	return opts
}

// rawMarketCreated mirrors the subgraph's marketCreateds entity. All numeric
// fields arrive as decimal strings and are parsed exactly.
type rawMarketCreated struct {
	ID             string `json:"id"`
	MarketID       string `json:"marketId"`
	Creator        string `json:"creator"`
	TokenAddress   string `json:"tokenAddress"`
	InitialPrice   string `json:"initialPrice"`
	SettlementTime string `json:"settlementTime"`
	TxHash         string `json:"transactionHash"`
	BlockNumber    string `json:"blockNumber"`
	BlockTimestamp string `json:"blockTimestamp"`
}

type rawMarketSettled struct {
	ID             string `json:"id"`
	MarketID       string `json:"marketId"`
	FinalPrice     string `json:"finalPrice"`
	WinningOutcome string `json:"winningOutcome"`
	TxHash         string `json:"transactionHash"`
	BlockNumber    string `json:"blockNumber"`
	BlockTimestamp string `json:"blockTimestamp"`
}

type rawFeePaid struct {
	ID             string `json:"id"`
	MarketID       string `json:"marketId"`
	Creator        string `json:"creator"`
	CreatorFee     string `json:"creatorFee"`
	PlatformFee    string `json:"platformFee"`
	TxHash         string `json:"transactionHash"`
	BlockNumber    string `json:"blockNumber"`
	BlockTimestamp string `json:"blockTimestamp"`
}

const marketCreatedFields = `
	id
	marketId
	creator
	tokenAddress
	initialPrice
	settlementTime
	transactionHash
	blockNumber
	blockTimestamp`

const marketSettledFields = `
	id
	marketId
	finalPrice
	winningOutcome
	transactionHash
	blockNumber
	blockTimestamp`

const feePaidFields = `
	id
	marketId
	creator
	creatorFee
	platformFee
	transactionHash
	blockNumber
	blockTimestamp`

// MarketCreateds returns market-creation records, newest first by default.
func (c *Client) MarketCreateds(ctx context.Context, opts domain.PageOpts) ([]domain.MarketCreatedRecord, error) {
	opts = defaultPageOpts(opts)

	query := `
		query MarketCreateds($first: Int!, $skip: Int!, $orderBy: String!, $orderDirection: String!) {
			marketCreateds(first: $first, skip: $skip, orderBy: $orderBy, orderDirection: $orderDirection) {` + marketCreatedFields + `
			}
		}
	`

	respData, err := c.doQuery(ctx, query, pageVariables(opts))
	if err != nil {
		return nil, fmt.Errorf("subgraph: fetch market createds: %w", err)
	}

	var result struct {
		MarketCreateds []rawMarketCreated `json:"marketCreateds"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("subgraph: decode market createds: %w", err)
	}

	return decodeCreateds(result.MarketCreateds)
}

// MarketSettleds returns market-settlement records.
func (c *Client) MarketSettleds(ctx context.Context, opts domain.PageOpts) ([]domain.MarketSettledRecord, error) {
	opts = defaultPageOpts(opts)

	query := `
		query MarketSettleds($first: Int!, $skip: Int!, $orderBy: String!, $orderDirection: String!) {
			marketSettleds(first: $first, skip: $skip, orderBy: $orderBy, orderDirection: $orderDirection) {` + marketSettledFields + `
			}
		}
	`

	respData, err := c.doQuery(ctx, query, pageVariables(opts))
	if err != nil {
		return nil, fmt.Errorf("subgraph: fetch market settleds: %w", err)
	}

	var result struct {
		MarketSettleds []rawMarketSettled `json:"marketSettleds"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("subgraph: decode market settleds: %w", err)
	}

	return decodeSettleds(result.MarketSettleds)
}

// FeesPaids returns fee-payment records.
func (c *Client) FeesPaids(ctx context.Context, opts domain.PageOpts) ([]domain.FeeRecord, error) {
	opts = defaultPageOpts(opts)

	query := `
		query FeesPaids($first: Int!, $skip: Int!, $orderBy: String!, $orderDirection: String!) {
			feesPaids(first: $first, skip: $skip, orderBy: $orderBy, orderDirection: $orderDirection) {` + feePaidFields + `
			}
		}
	`

	respData, err := c.doQuery(ctx, query, pageVariables(opts))
	if err != nil {
		return nil, fmt.Errorf("subgraph: fetch fees paids: %w", err)
	}

	var result struct {
		FeesPaids []rawFeePaid `json:"feesPaids"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("subgraph: decode fees paids: %w", err)
	}

	return decodeFees(result.FeesPaids)
}

// MarketByID returns everything the subgraph knows about one market: its
// creation record, settlement record (if settled), and all fee payments.
func (c *Client) MarketByID(ctx context.Context, marketID uint64) (domain.MarketHistory, error) {
	query := `
		query MarketById($marketId: String!) {
			marketCreateds(where: { marketId: $marketId }) {` + marketCreatedFields + `
			}
			marketSettleds(where: { marketId: $marketId }) {` + marketSettledFields + `
			}
			feesPaids(where: { marketId: $marketId }) {` + feePaidFields + `
			}
		}
	`

	respData, err := c.doQuery(ctx, query, map[string]any{
		"marketId": strconv.FormatUint(marketID, 10),
	})
	if err != nil {
		return domain.MarketHistory{}, fmt.Errorf("subgraph: fetch market %d: %w", marketID, err)
	}

	var result struct {
		MarketCreateds []rawMarketCreated `json:"marketCreateds"`
		MarketSettleds []rawMarketSettled `json:"marketSettleds"`
		FeesPaids      []rawFeePaid       `json:"feesPaids"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return domain.MarketHistory{}, fmt.Errorf("subgraph: decode market %d: %w", marketID, err)
	}

	var history domain.MarketHistory

	createds, err := decodeCreateds(result.MarketCreateds)
	if err != nil {
		return domain.MarketHistory{}, err
	}
	if len(createds) > 0 {
		history.Created = &createds[0]
	}

	settleds, err := decodeSettleds(result.MarketSettleds)
	if err != nil {
		return domain.MarketHistory{}, err
	}
	if len(settleds) > 0 {
		history.Settled = &settleds[0]
	}

	history.Fees, err = decodeFees(result.FeesPaids)
	if err != nil {
		return domain.MarketHistory{}, err
	}

	return history, nil
}

// MarketsByCreator returns creation records filtered by creator address.
func (c *Client) MarketsByCreator(ctx context.Context, creator string, opts domain.PageOpts) ([]domain.MarketCreatedRecord, error) {
	opts = defaultPageOpts(opts)

	query := `
		query MarketsByCreator($creator: String!, $first: Int!, $skip: Int!) {
			marketCreateds(where: { creator: $creator }, first: $first, skip: $skip, orderBy: blockTimestamp, orderDirection: desc) {` + marketCreatedFields + `
			}
		}
	`

	respData, err := c.doQuery(ctx, query, map[string]any{
		"creator": strings.ToLower(creator),
		"first":   opts.First,
		"skip":    opts.Skip,
	})
	if err != nil {
		return nil, fmt.Errorf("subgraph: fetch markets by creator %s: %w", creator, err)
	}

	var result struct {
		MarketCreateds []rawMarketCreated `json:"marketCreateds"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("subgraph: decode markets by creator: %w", err)
	}

	return decodeCreateds(result.MarketCreateds)
}

var _ domain.IndexerClient = (*Client)(nil)

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

func pageVariables(opts domain.PageOpts) map[string]any {
	return map[string]any{
		"first":          opts.First,
		"skip":           opts.Skip,
		"orderBy":        opts.OrderBy,
		"orderDirection": opts.OrderDirection,
	}
}

// parseWei parses a decimal string into an exact big integer. Empty strings
// decode to zero; anything non-numeric is an error so silent truncation can
// never corrupt a fee sum.
func parseWei(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("subgraph: malformed integer %q", s)
	}
	return n, nil
}

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func parseUnix(s string) (time.Time, error) {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("subgraph: malformed timestamp %q", s)
	}
	return time.Unix(sec, 0).UTC(), nil
}

func decodeCreateds(raws []rawMarketCreated) ([]domain.MarketCreatedRecord, error) {
	recs := make([]domain.MarketCreatedRecord, 0, len(raws))
	for _, r := range raws {
		marketID, err := parseUint(r.MarketID)
		if err != nil {
			return nil, fmt.Errorf("subgraph: malformed market id %q", r.MarketID)
		}
		price, err := parseWei(r.InitialPrice)
		if err != nil {
			return nil, err
		}
		settleAt, err := parseUnix(r.SettlementTime)
		if err != nil {
			return nil, err
		}
		ts, err := parseUnix(r.BlockTimestamp)
		if err != nil {
			return nil, err
		}
		block, _ := parseUint(r.BlockNumber)

		recs = append(recs, domain.MarketCreatedRecord{
			ID:             r.ID,
			MarketID:       marketID,
			Creator:        r.Creator,
			TokenAddress:   r.TokenAddress,
			InitialPrice:   price,
			SettlementTime: settleAt,
			TxHash:         r.TxHash,
			BlockNumber:    block,
			BlockTimestamp: ts,
		})
	}
	return recs, nil
}

func decodeSettleds(raws []rawMarketSettled) ([]domain.MarketSettledRecord, error) {
	recs := make([]domain.MarketSettledRecord, 0, len(raws))
	for _, r := range raws {
		marketID, err := parseUint(r.MarketID)
		if err != nil {
			return nil, fmt.Errorf("subgraph: malformed market id %q", r.MarketID)
		}
		price, err := parseWei(r.FinalPrice)
		if err != nil {
			return nil, err
		}
		winning, err := parseUint(r.WinningOutcome)
		if err != nil || !domain.Outcome(winning).Valid() {
			return nil, fmt.Errorf("subgraph: malformed winning outcome %q", r.WinningOutcome)
		}
		ts, err := parseUnix(r.BlockTimestamp)
		if err != nil {
			return nil, err
		}
		block, _ := parseUint(r.BlockNumber)

		recs = append(recs, domain.MarketSettledRecord{
			ID:             r.ID,
			MarketID:       marketID,
			FinalPrice:     price,
			WinningOutcome: domain.Outcome(winning),
			TxHash:         r.TxHash,
			BlockNumber:    block,
			BlockTimestamp: ts,
		})
	}
	return recs, nil
}

func decodeFees(raws []rawFeePaid) ([]domain.FeeRecord, error) {
	recs := make([]domain.FeeRecord, 0, len(raws))
	for _, r := range raws {
		marketID, err := parseUint(r.MarketID)
		if err != nil {
			return nil, fmt.Errorf("subgraph: malformed market id %q", r.MarketID)
		}
		creatorFee, err := parseWei(r.CreatorFee)
		if err != nil {
			return nil, err
		}
		platformFee, err := parseWei(r.PlatformFee)
		if err != nil {
			return nil, err
		}
		ts, err := parseUnix(r.BlockTimestamp)
		if err != nil {
			return nil, err
		}
		block, _ := parseUint(r.BlockNumber)

		recs = append(recs, domain.FeeRecord{
			ID:             r.ID,
			MarketID:       marketID,
			Creator:        r.Creator,
			CreatorFee:     creatorFee,
			PlatformFee:    platformFee,
			TxHash:         r.TxHash,
			BlockNumber:    block,
			BlockTimestamp: ts,
		})
	}
	return recs, nil
}

// doQuery executes a GraphQL query and returns the raw "data" field.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}
