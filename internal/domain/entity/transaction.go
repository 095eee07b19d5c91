package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the classification of a transaction relative to the tracked
// wallet's own balance deltas.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionSwap Direction = "SWAP"
)

// ChainFamily tags the shape of a raw event's balance data.
type ChainFamily string

const (
	// FamilyAccount covers account-model chains (Solana, EVM) where the
	// collector reports pre/post balances per asset for the tracked wallet.
	FamilyAccount ChainFamily = "account"
	// FamilyUTXO is reserved for UTXO-style collectors.
	FamilyUTXO ChainFamily = "utxo"
)

// BalanceDelta is one asset's pre/post balance for the tracked wallet within
// a single raw event.
type BalanceDelta struct {
	Asset  string          `json:"asset"`
	Symbol string          `json:"symbol,omitempty"`
	Pre    decimal.Decimal `json:"pre"`
	Post   decimal.Decimal `json:"post"`
}

// Net returns the signed balance change.
func (d BalanceDelta) Net() decimal.Decimal {
	return d.Post.Sub(d.Pre)
}

// RawEvent is the normalized ingestion record delivered by the per-chain
// collectors. The tracker treats this as the ingestion contract regardless of
// source chain.
type RawEvent struct {
	Family    ChainFamily                `json:"family"`
	Chain     string                     `json:"chain"`
	Wallet    string                     `json:"wallet"`
	TxID      string                     `json:"tx_id"`
	Timestamp time.Time                  `json:"timestamp"`
	Block     uint64                     `json:"block"`
	Deltas    []BalanceDelta             `json:"deltas"`
	USDPrices map[string]decimal.Decimal `json:"usd_prices,omitempty"`
}

// Transaction is an immutable canonical fact derived from a raw event.
// Direction is derived solely from the tracked wallet's own signed balance
// deltas in that event.
type Transaction struct {
	ID          string           `json:"id"`
	Chain       string           `json:"chain"`
	Wallet      string           `json:"wallet"`
	Token       string           `json:"token"`
	TokenSymbol string           `json:"token_symbol,omitempty"`
	Direction   Direction        `json:"direction"`
	BaseAmount  decimal.Decimal  `json:"base_amount"`
	TokenAmount decimal.Decimal  `json:"token_amount"`
	USDValue    *decimal.Decimal `json:"usd_value,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	Block       uint64           `json:"block"`
}

// WalletID returns the chain-qualified identity of the transacting wallet.
func (t *Transaction) WalletID() string {
	return WalletID(t.Chain, t.Wallet)
}
