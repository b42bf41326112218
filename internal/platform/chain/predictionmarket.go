package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/trenchlabs/trenchd/internal/domain"
)

// predictionMarketABI covers the contract surface this backend consumes.
// Tuple layouts must stay in sync with the deployed contract.
const predictionMarketABI = `[
	{"type":"function","name":"getMarketInfo","stateMutability":"view","inputs":[{"name":"_marketId","type":"uint256"}],"outputs":[{"name":"creator","type":"address"},{"name":"tokenAddress","type":"string"},{"name":"initialPrice","type":"uint256"},{"name":"createdAt","type":"uint256"},{"name":"settlementTime","type":"uint256"},{"name":"settled","type":"bool"},{"name":"finalPrice","type":"uint256"}]},
	{"type":"function","name":"markets","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"creator","type":"address"},{"name":"tokenAddress","type":"string"},{"name":"initialPrice","type":"uint256"},{"name":"createdAt","type":"uint256"},{"name":"settlementTime","type":"uint256"},{"name":"settled","type":"bool"},{"name":"winningOutcome","type":"uint8"},{"name":"finalPrice","type":"uint256"}]},
	{"type":"function","name":"getOutcomeStats","stateMutability":"view","inputs":[{"name":"_marketId","type":"uint256"},{"name":"_outcome","type":"uint8"}],"outputs":[{"name":"totalShares","type":"uint256"},{"name":"totalVolume","type":"uint256"}]},
	{"type":"function","name":"getUserShares","stateMutability":"view","inputs":[{"name":"_marketId","type":"uint256"},{"name":"_user","type":"address"},{"name":"_outcome","type":"uint8"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"calculateBuyCost","stateMutability":"view","inputs":[{"name":"_marketId","type":"uint256"},{"name":"_outcome","type":"uint8"},{"name":"_shares","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"calculateSellPayout","stateMutability":"view","inputs":[{"name":"_marketId","type":"uint256"},{"name":"_outcome","type":"uint8"},{"name":"_shares","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"nextMarketId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"createMarket","stateMutability":"payable","inputs":[{"name":"_tokenAddress","type":"string"},{"name":"_initialPrice","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"buyShares","stateMutability":"payable","inputs":[{"name":"_marketId","type":"uint256"},{"name":"_outcome","type":"uint8"},{"name":"_shares","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"sellShares","stateMutability":"nonpayable","inputs":[{"name":"_marketId","type":"uint256"},{"name":"_outcome","type":"uint8"},{"name":"_shares","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"claimWinnings","stateMutability":"nonpayable","inputs":[{"name":"_marketId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"batchSettleMarkets","stateMutability":"nonpayable","inputs":[{"name":"_marketIds","type":"uint256[]"},{"name":"_finalPrices","type":"uint256[]"}],"outputs":[]}
]`

// PredictionMarket is a bound instance of the deployed contract.
type PredictionMarket struct {
	address  common.Address
	contract *bind.BoundContract
	client   *Client
}

// NewPredictionMarket binds the contract at the given address.
func NewPredictionMarket(client *Client, address string) (*PredictionMarket, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("chain: %w: %q", domain.ErrInvalidAddress, address)
	}

	parsed, err := abi.JSON(strings.NewReader(predictionMarketABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse abi: %w", err)
	}

	addr := common.HexToAddress(address)
	return &PredictionMarket{
		address:  addr,
		contract: bind.NewBoundContract(addr, parsed, client.Underlying(), client.Underlying(), client.Underlying()),
		client:   client,
	}, nil
}

// Address returns the bound contract address.
func (pm *PredictionMarket) Address() string {
	return pm.address.Hex()
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// MarketInfo implements domain.ContractReader. For settled markets it issues
// a second read against the markets() getter to recover the winning outcome,
// which getMarketInfo does not expose.
func (pm *PredictionMarket) MarketInfo(ctx context.Context, marketID uint64) (domain.Market, error) {
	var out []any
	err := pm.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getMarketInfo", new(big.Int).SetUint64(marketID))
	if err != nil {
		return domain.Market{}, fmt.Errorf("chain: getMarketInfo(%d): %w", marketID, err)
	}

	m := domain.Market{
		ID:             marketID,
		Creator:        out[0].(common.Address).Hex(),
		TokenAddress:   out[1].(string),
		InitialPrice:   out[2].(*big.Int),
		CreatedAt:      time.Unix(out[3].(*big.Int).Int64(), 0).UTC(),
		SettlementTime: time.Unix(out[4].(*big.Int).Int64(), 0).UTC(),
		Settled:        out[5].(bool),
		FinalPrice:     out[6].(*big.Int),
	}

	if m.Settled {
		var raw []any
		if err := pm.contract.Call(&bind.CallOpts{Context: ctx}, &raw, "markets", new(big.Int).SetUint64(marketID)); err != nil {
			return domain.Market{}, fmt.Errorf("chain: markets(%d): %w", marketID, err)
		}
		winning := domain.Outcome(raw[6].(uint8))
		if winning.Valid() {
			m.WinningOutcome = &winning
		}
	}

	return m, nil
}

// OutcomeStats implements domain.ContractReader.
func (pm *PredictionMarket) OutcomeStats(ctx context.Context, marketID uint64, outcome domain.Outcome) (domain.OutcomeStats, error) {
	var out []any
	err := pm.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getOutcomeStats",
		new(big.Int).SetUint64(marketID), uint8(outcome))
	if err != nil {
		return domain.OutcomeStats{}, fmt.Errorf("chain: getOutcomeStats(%d, %s): %w", marketID, outcome, err)
	}
	return domain.OutcomeStats{
		TotalShares: out[0].(*big.Int),
		TotalVolume: out[1].(*big.Int),
	}, nil
}

// UserShares implements domain.ContractReader.
func (pm *PredictionMarket) UserShares(ctx context.Context, marketID uint64, account string, outcome domain.Outcome) (*big.Int, error) {
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("chain: %w: %q", domain.ErrInvalidAddress, account)
	}
	var out []any
	err := pm.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getUserShares",
		new(big.Int).SetUint64(marketID), common.HexToAddress(account), uint8(outcome))
	if err != nil {
		return nil, fmt.Errorf("chain: getUserShares(%d, %s, %s): %w", marketID, account, outcome, err)
	}
	return out[0].(*big.Int), nil
}

// BuyCost implements domain.ContractReader.
func (pm *PredictionMarket) BuyCost(ctx context.Context, marketID uint64, outcome domain.Outcome, shares *big.Int) (*big.Int, error) {
	var out []any
	err := pm.contract.Call(&bind.CallOpts{Context: ctx}, &out, "calculateBuyCost",
		new(big.Int).SetUint64(marketID), uint8(outcome), shares)
	if err != nil {
		return nil, fmt.Errorf("chain: calculateBuyCost(%d, %s): %w", marketID, outcome, err)
	}
	return out[0].(*big.Int), nil
}

// SellPayout implements domain.ContractReader.
func (pm *PredictionMarket) SellPayout(ctx context.Context, marketID uint64, outcome domain.Outcome, shares *big.Int) (*big.Int, error) {
	var out []any
	err := pm.contract.Call(&bind.CallOpts{Context: ctx}, &out, "calculateSellPayout",
		new(big.Int).SetUint64(marketID), uint8(outcome), shares)
	if err != nil {
		return nil, fmt.Errorf("chain: calculateSellPayout(%d, %s): %w", marketID, outcome, err)
	}
	return out[0].(*big.Int), nil
}

// NextMarketID implements domain.ContractReader.
func (pm *PredictionMarket) NextMarketID(ctx context.Context) (uint64, error) {
	var out []any
	if err := pm.contract.Call(&bind.CallOpts{Context: ctx}, &out, "nextMarketId"); err != nil {
		return 0, fmt.Errorf("chain: nextMarketId: %w", err)
	}
	return out[0].(*big.Int).Uint64(), nil
}

// Owner implements domain.ContractReader.
func (pm *PredictionMarket) Owner(ctx context.Context) (string, error) {
	var out []any
	if err := pm.contract.Call(&bind.CallOpts{Context: ctx}, &out, "owner"); err != nil {
		return "", fmt.Errorf("chain: owner: %w", err)
	}
	return out[0].(common.Address).Hex(), nil
}

var _ domain.ContractReader = (*PredictionMarket)(nil)

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// Writer submits signed state-changing calls with the operator wallet.
type Writer struct {
	pm   *PredictionMarket
	key  *ecdsa.PrivateKey
	from common.Address
}

// NewWriter creates a Writer from a hex-encoded private key.
func NewWriter(pm *PredictionMarket, privateKeyHex string) (*Writer, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: invalid operator key: %w", err)
	}
	return &Writer{
		pm:   pm,
		key:  key,
		from: ethcrypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// From returns the operator wallet address.
func (w *Writer) From() string {
	return w.from.Hex()
}

func (w *Writer) transactOpts(ctx context.Context, value *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, w.pm.client.ChainID())
	if err != nil {
		return nil, fmt.Errorf("chain: transactor: %w", err)
	}
	opts.Context = ctx
	if value != nil {
		opts.Value = value
	}
	return opts, nil
}

func (w *Writer) transact(ctx context.Context, value *big.Int, method string, args ...any) (domain.TxReceipt, error) {
	opts, err := w.transactOpts(ctx, value)
	if err != nil {
		return domain.TxReceipt{}, err
	}
	tx, err := w.pm.contract.Transact(opts, method, args...)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("chain: %s: %w", method, err)
	}
	return domain.TxReceipt{TxHash: tx.Hash().Hex(), GasLimit: tx.Gas()}, nil
}

// CreateMarket implements domain.ContractWriter.
func (w *Writer) CreateMarket(ctx context.Context, tokenAddress string, initialPrice, value *big.Int) (domain.TxReceipt, error) {
	return w.transact(ctx, value, "createMarket", tokenAddress, initialPrice)
}

// BuyShares implements domain.ContractWriter.
func (w *Writer) BuyShares(ctx context.Context, marketID uint64, outcome domain.Outcome, shares, value *big.Int) (domain.TxReceipt, error) {
	return w.transact(ctx, value, "buyShares", new(big.Int).SetUint64(marketID), uint8(outcome), shares)
}

// SellShares implements domain.ContractWriter.
func (w *Writer) SellShares(ctx context.Context, marketID uint64, outcome domain.Outcome, shares *big.Int) (domain.TxReceipt, error) {
	return w.transact(ctx, nil, "sellShares", new(big.Int).SetUint64(marketID), uint8(outcome), shares)
}

// ClaimWinnings implements domain.ContractWriter.
func (w *Writer) ClaimWinnings(ctx context.Context, marketID uint64) (domain.TxReceipt, error) {
	return w.transact(ctx, nil, "claimWinnings", new(big.Int).SetUint64(marketID))
}

// BatchSettleMarkets implements domain.ContractWriter. The contract enforces
// the owner gate; callers should pre-check via AdminService to fail fast.
func (w *Writer) BatchSettleMarkets(ctx context.Context, marketIDs []uint64, finalPrices []*big.Int) (domain.TxReceipt, error) {
	if len(marketIDs) != len(finalPrices) {
		return domain.TxReceipt{}, fmt.Errorf("chain: batchSettleMarkets: %d ids vs %d prices", len(marketIDs), len(finalPrices))
	}
	ids := make([]*big.Int, len(marketIDs))
	for i, id := range marketIDs {
		ids[i] = new(big.Int).SetUint64(id)
	}
	return w.transact(ctx, nil, "batchSettleMarkets", ids, finalPrices)
}

var _ domain.ContractWriter = (*Writer)(nil)
