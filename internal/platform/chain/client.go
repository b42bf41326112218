// Package chain talks to the PredictionMarket contract over JSON-RPC using
// go-ethereum. It implements the domain ContractReader and ContractWriter
// interfaces; all values are returned exactly as the contract reports them.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
)

// ClientConfig holds JSON-RPC connection parameters.
type ClientConfig struct {
	// RPCURL is the JSON-RPC endpoint, e.g. "https://polygon-rpc.com".
	RPCURL string

	// ContractAddress is the deployed PredictionMarket address.
	ContractAddress string

	// ChainID of the target network.
	ChainID int64
}

// Client wraps an ethclient connection to the target network.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
}

// New dials the JSON-RPC endpoint and verifies the chain id matches the
// configured one.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: chain id: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		eth.Close()
		return nil, fmt.Errorf("chain: endpoint reports chain id %d, config expects %d", chainID, cfg.ChainID)
	}

	return &Client{eth: eth, chainID: chainID}, nil
}

// ChainID returns the connected network's chain id.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Underlying exposes the raw ethclient for sub-components.
func (c *Client) Underlying() *ethclient.Client {
	return c.eth
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
