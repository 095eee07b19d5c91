package entity

import "time"

// Outcome is one realized signal result delivered by the external
// price/outcome collaborator: whether the signal was followed by favorable
// price movement within the evaluation horizon.
type Outcome struct {
	SignalID  string    `json:"signal_id"`
	At        time.Time `json:"at"`
	Favorable bool      `json:"favorable"`
}

// AlphaDecayRecord is a wallet's rolling predictive accuracy. Entries older
// than the rolling window are dropped, so a historically sharp wallet cannot
// keep its edge on stale evidence.
type AlphaDecayRecord struct {
	Wallet     string    `json:"wallet"` // chain-qualified wallet id
	HitRate    float64   `json:"hit_rate"`
	Samples    int       `json:"samples"`
	Confidence float64   `json:"confidence"`
	UpdatedAt  time.Time `json:"updated_at"`
}
