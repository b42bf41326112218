package domain

import "math/big"

// TradeKind identifies the contract call a simulation models.
type TradeKind string

const (
	TradeBuy    TradeKind = "buy"
	TradeSell   TradeKind = "sell"
	TradeCreate TradeKind = "create"
	TradeClaim  TradeKind = "claim"
)

// TradeIntent is a proposed trade to be simulated before confirmation.
// Spend is a decimal string in native-currency units (user input, parsed at
// the boundary to avoid float rounding); Shares is an 18-decimal fixed-point
// integer for sell intents.
type TradeIntent struct {
	Kind         TradeKind
	MarketID     uint64
	Outcome      Outcome
	Spend        string   // buy: amount of native currency to spend
	Shares       *big.Int // sell: share quantity
	TokenAddress string   // create: underlying asset
	InitialPrice *big.Int // create: reference price, 1e18 scale
}

// SimulationResult is the projected outcome of a trade intent. It is created
// fresh per request, returned to the caller, and never persisted. Failure is
// data: Success=false plus Error, never a Go error escaping the simulator.
//
// Monetary fields are decimal strings in native-currency units; they are
// advisory display values, not amounts to submit on-chain.
type SimulationResult struct {
	ID             string    `json:"id"`
	Kind           TradeKind `json:"kind"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	EstimatedGas   uint64    `json:"estimatedGas,omitempty"`
	Fees           string    `json:"fees,omitempty"`
	PriceImpact    string    `json:"priceImpact,omitempty"` // e.g. "1.00%"
	SharesReceived string    `json:"sharesReceived,omitempty"`
	ExpectedReturn string    `json:"expectedReturn,omitempty"`
	NewSharePrice  string    `json:"newSharePrice,omitempty"`
	Authoritative  bool      `json:"authoritative"` // true when derived from contract view calls
}
