package entity

import "time"

// LeadEdge is a directed lead/follower relationship on a token: the leader's
// directionally-matching transactions consistently precede the follower's.
// Edges are aggregated per ordered pair over time, not appended indefinitely:
// Lag carries an exponential moving average and Confidence saturates below 1.
type LeadEdge struct {
	Leader     string        `json:"leader"`   // chain-qualified wallet id
	Follower   string        `json:"follower"` // chain-qualified wallet id
	Token      string        `json:"token"`
	Lag        time.Duration `json:"lag"`
	Confidence float64       `json:"confidence"`
	Samples    int           `json:"samples"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
