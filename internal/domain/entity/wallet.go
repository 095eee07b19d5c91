package entity

import (
	"fmt"
	"strings"
	"time"
)

// Tier is a wallet's trust classification. Signals from Tier A wallets are
// amplified, Tier C signals are inverted into fade alerts.
type Tier string

const (
	TierSmartMoney Tier = "A"
	TierNeutral    Tier = "B"
	TierContrarian Tier = "C"
	TierUnknown    Tier = "U"
)

// Promote returns the next tier up. Unknown wallets enter the ladder at
// SmartMoney only through Neutral; Tier A stays where it is.
func (t Tier) Promote() Tier {
	switch t {
	case TierContrarian, TierUnknown:
		return TierNeutral
	case TierNeutral:
		return TierSmartMoney
	default:
		return t
	}
}

// Demote returns the next tier down. Unknown wallets demote straight to
// Contrarian; Tier C stays where it is.
func (t Tier) Demote() Tier {
	switch t {
	case TierSmartMoney:
		return TierNeutral
	case TierNeutral, TierUnknown:
		return TierContrarian
	default:
		return t
	}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierSmartMoney, TierNeutral, TierContrarian, TierUnknown:
		return true
	}
	return false
}

// Wallet represents a tracked wallet. Wallets are created on their first
// observed transaction and are never deleted, only re-tiered.
type Wallet struct {
	Chain     string    `json:"chain"`
	Address   string    `json:"address"`
	Label     string    `json:"label,omitempty"`
	Tier      Tier      `json:"tier"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	TxCount   int64     `json:"tx_count"`
}

// WalletID builds the chain-qualified wallet identity.
func WalletID(chain, address string) string {
	return fmt.Sprintf("%s:%s", chain, address)
}

// ID returns the chain-qualified identity of the wallet.
func (w *Wallet) ID() string {
	return WalletID(w.Chain, w.Address)
}

// SplitWalletID splits a chain-qualified identity back into chain and
// address. Addresses may themselves contain colons on some chains, so only
// the first separator counts.
func SplitWalletID(id string) (chain, address string) {
	chain, address, ok := strings.Cut(id, ":")
	if !ok {
		return "", id
	}
	return chain, address
}
