package service

import (
	"fmt"
	"math"
	"sort"
	"time"

	"crypto-alpha-tracker/internal/domain/entity"
	"crypto-alpha-tracker/internal/infrastructure/config"
)

// CabalDetector builds an undirected weighted co-activity graph over wallets
// per token and extracts clusters from it. It runs once per detection cycle
// over a window snapshot; each run produces a complete replacement
// assignment.
type CabalDetector struct {
	interval        time.Duration
	halfLife        time.Duration
	minEdgeWeight   float64
	minClusterScore float64
}

// NewCabalDetector creates a detector with the configured thresholds.
func NewCabalDetector(cfg config.AnalysisConfig) *CabalDetector {
	return &CabalDetector{
		interval:        cfg.CoActivityInterval,
		halfLife:        cfg.CoActivityHalfLife,
		minEdgeWeight:   cfg.MinEdgeWeight,
		minClusterScore: cfg.MinClusterScore,
	}
}

type walletPair struct {
	a, b string // a < b
}

type coEdge struct {
	token  string
	weight float64
}

// Detect extracts the cycle's cluster assignment from a window snapshot.
// An empty or malformed window yields an empty assignment; this method never
// fails to its caller.
func (d *CabalDetector) Detect(snap *WindowSnapshot, now time.Time) *entity.ClusterAssignment {
	if snap == nil || len(snap.ByToken) == 0 {
		return entity.EmptyClusterAssignment(now)
	}

	// Accumulate per-token pair weights: wallets transacting the same token
	// inside the same co-activity bucket co-occur, weighted by recency.
	type tokenGraph struct {
		symbol string
		edges  map[walletPair]float64
	}
	graphs := map[string]*tokenGraph{}
	for token, txs := range snap.ByToken {
		if len(txs) < 2 {
			continue
		}
		buckets := map[int64]map[string]*entity.Transaction{}
		symbol := ""
		for _, tx := range txs {
			if tx == nil || tx.Wallet == "" {
				continue
			}
			if symbol == "" {
				symbol = tx.TokenSymbol
			}
			b := tx.Timestamp.UnixNano() / int64(d.interval)
			if buckets[b] == nil {
				buckets[b] = map[string]*entity.Transaction{}
			}
			// Keep the latest transaction per wallet per bucket.
			if prev, ok := buckets[b][tx.WalletID()]; !ok || tx.Timestamp.After(prev.Timestamp) {
				buckets[b][tx.WalletID()] = tx
			}
		}
		g := &tokenGraph{symbol: symbol, edges: map[walletPair]float64{}}
		for _, wallets := range buckets {
			if len(wallets) < 2 {
				continue
			}
			ids := make([]string, 0, len(wallets))
			for id := range wallets {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for i := 0; i < len(ids); i++ {
				for j := i + 1; j < len(ids); j++ {
					ta := wallets[ids[i]].Timestamp
					tb := wallets[ids[j]].Timestamp
					latest := ta
					if tb.After(latest) {
						latest = tb
					}
					g.edges[walletPair{ids[i], ids[j]}] += d.recencyWeight(now.Sub(latest))
				}
			}
		}
		if len(g.edges) > 0 {
			graphs[token] = g
		}
	}

	// Per token: prune weak edges, take connected components, score them.
	var candidates []*candidate
	for token, g := range graphs {
		strong := map[walletPair]float64{}
		for pair, w := range g.edges {
			if w >= d.minEdgeWeight {
				strong[pair] = w
			}
		}
		for _, c := range components(strong) {
			if c.score < d.minClusterScore || len(c.members) < 2 {
				continue
			}
			c.token = token
			c.symbol = g.symbol
			candidates = append(candidates, c)
		}
	}

	// A wallet connects to at most one cluster per cycle: the one with the
	// highest edge weight to it. Losing clusters may fall apart, so their
	// survivors are re-clustered over the induced edges and must clear the
	// thresholds again with what is left.
	best := map[string]*candidate{}
	for _, c := range candidates {
		for _, id := range c.members {
			if cur, ok := best[id]; !ok || c.attach[id] > cur.attach[id] {
				best[id] = c
			}
		}
	}

	assignment := entity.EmptyClusterAssignment(now)
	// Deterministic cluster ordering: score descending, token as tie-break.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].token < candidates[j].token
	})
	seq := 0
	for _, c := range candidates {
		induced := map[walletPair]float64{}
		for pair, w := range c.edges {
			if best[pair.a] == c && best[pair.b] == c {
				induced[pair] = w
			}
		}
		survivors := components(induced)
		sort.Slice(survivors, func(i, j int) bool {
			if survivors[i].score != survivors[j].score {
				return survivors[i].score > survivors[j].score
			}
			return survivors[i].members[0] < survivors[j].members[0]
		})
		for _, s := range survivors {
			if len(s.members) < 2 || s.score < d.minClusterScore {
				continue
			}
			seq++
			cluster := &entity.Cluster{
				ID:          fmt.Sprintf("%s#%d", c.token, seq),
				Token:       c.token,
				TokenSymbol: c.symbol,
				Members:     s.members,
				Score:       s.score,
				UpdatedAt:   now,
			}
			assignment.Clusters = append(assignment.Clusters, cluster)
			for _, id := range s.members {
				assignment.ByWallet[id] = cluster.ID
			}
		}
	}
	return assignment
}

// candidate is one connected component of a token's co-activity graph, with
// the edges that formed it.
type candidate struct {
	token   string
	symbol  string
	members []string
	score   float64
	edges   map[walletPair]float64
	attach  map[string]float64 // wallet -> summed incident edge weight
}

// components groups an edge set into connected components. Each component's
// score is the sum of its own edge weights, so removing a member can never
// leave weight from that member's edges behind.
func components(edges map[walletPair]float64) []*candidate {
	parent := map[string]string{}
	var find func(string) string
	find = func(x string) string {
		if parent[x] == "" || parent[x] == x {
			parent[x] = x
			return x
		}
		parent[x] = find(parent[x])
		return parent[x]
	}
	for pair := range edges {
		ra, rb := find(pair.a), find(pair.b)
		if ra != rb {
			parent[ra] = rb
		}
	}
	comps := map[string]*candidate{}
	for pair, w := range edges {
		root := find(pair.a)
		c := comps[root]
		if c == nil {
			c = &candidate{edges: map[walletPair]float64{}, attach: map[string]float64{}}
			comps[root] = c
		}
		c.edges[pair] = w
		c.score += w
		c.attach[pair.a] += w
		c.attach[pair.b] += w
	}
	out := make([]*candidate, 0, len(comps))
	for _, c := range comps {
		for id := range c.attach {
			c.members = append(c.members, id)
		}
		sort.Strings(c.members)
		out = append(out, c)
	}
	return out
}

// recencyWeight scales a co-occurrence by its age: exponential decay with the
// configured half-life, so recent coordination dominates stale coordination.
func (d *CabalDetector) recencyWeight(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	if d.halfLife <= 0 {
		return 1
	}
	return math.Exp2(-age.Seconds() / d.halfLife.Seconds())
}
