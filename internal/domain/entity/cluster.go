package entity

import "time"

// Cluster is one detected cabal: a set of wallets whose activity on a token
// co-occurred within the detector's co-activity interval, with an aggregate
// co-activity score.
type Cluster struct {
	ID          string    `json:"id"`
	Token       string    `json:"token"`
	TokenSymbol string    `json:"token_symbol,omitempty"`
	Members     []string  `json:"members"` // chain-qualified wallet ids, sorted
	Score       float64   `json:"score"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ClusterAssignment is the complete output of one detection cycle. Each cycle
// produces a replacement assignment; the previous one is swapped out
// atomically, never merged.
type ClusterAssignment struct {
	Clusters  []*Cluster        `json:"clusters"`
	ByWallet  map[string]string `json:"by_wallet"` // wallet id -> cluster id
	UpdatedAt time.Time         `json:"updated_at"`
}

// EmptyClusterAssignment returns an assignment with no clusters, used both as
// the initial committed state and as the result for empty windows.
func EmptyClusterAssignment(now time.Time) *ClusterAssignment {
	return &ClusterAssignment{
		Clusters:  nil,
		ByWallet:  map[string]string{},
		UpdatedAt: now,
	}
}
