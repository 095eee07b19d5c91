package entity

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// AlertKind identifies the rule that produced an alert.
type AlertKind string

const (
	AlertLeadSignal     AlertKind = "LEAD_SIGNAL"
	AlertCabalForming   AlertKind = "CABAL_FORMING"
	AlertContrarianFade AlertKind = "CONTRARIAN_FADE"
)

// Alert is one deduplicated signal emitted by the aggregator.
type Alert struct {
	ID          string    `json:"id"`
	Kind        AlertKind `json:"kind"`
	Token       string    `json:"token"`
	TokenSymbol string    `json:"token_symbol,omitempty"`
	Wallets     []string  `json:"wallets"` // chain-qualified wallet ids, sorted
	Confidence  float64   `json:"confidence"`
	Reason      string    `json:"reason,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// DedupKey is the identity used for cooldown suppression: kind, token and the
// sorted triggering-wallet set. Re-emission of the same key before the
// cooldown expires is suppressed.
func (a *Alert) DedupKey() string {
	wallets := make([]string, len(a.Wallets))
	copy(wallets, a.Wallets)
	sort.Strings(wallets)
	return fmt.Sprintf("%s|%s|%s", a.Kind, a.Token, strings.Join(wallets, ","))
}

// PriorityRank orders alert kinds for presentation. Lower ranks display
// first. Ordering affects presentation only, never suppression.
func (a *Alert) PriorityRank(highConfidenceCluster float64) int {
	switch a.Kind {
	case AlertCabalForming:
		if a.Confidence >= highConfidenceCluster {
			return 0
		}
		return 2
	case AlertLeadSignal:
		return 1
	default:
		return 3
	}
}
