package service

import (
	"sort"
	"sync"
	"time"

	"crypto-alpha-tracker/internal/domain/entity"
	"crypto-alpha-tracker/internal/infrastructure/config"
)

// LeadFollowerAnalyzer computes pairwise temporal lag between wallets trading
// the same token. It keeps aggregated edge state across cycles: lag carries
// an exponential moving average, confidence saturates instead of growing with
// raw volume, and every cycle decays all edges so stale leadership fades.
//
// Analyze works on a clone of the committed state; the caller commits the
// result only when the cycle completes, keeping aborted cycles invisible.
type LeadFollowerAnalyzer struct {
	window     time.Duration
	emaAlpha   float64
	gain       float64
	decay      float64
	floor      float64
	crossBonus float64

	mu    sync.RWMutex
	state map[edgeKey]*edgeState
}

type edgeKey struct {
	leader   string
	follower string
	token    string
}

type edgeState struct {
	lag       time.Duration
	conf      float64
	samples   int
	updatedAt time.Time
	// Transaction ids of the last counted observation. The window retains
	// transactions for many cycles, so without this an already-counted pair
	// would gain confidence again on every cycle.
	lastObs [2]string
}

// LeadResult is the output of one analysis pass: the edge snapshot to report
// and the next committed state, applied only via Commit.
type LeadResult struct {
	Edges []*entity.LeadEdge
	next  map[edgeKey]*edgeState
}

// NewLeadFollowerAnalyzer creates an analyzer with the configured bounds.
func NewLeadFollowerAnalyzer(cfg config.AnalysisConfig) *LeadFollowerAnalyzer {
	return &LeadFollowerAnalyzer{
		window:     cfg.CorrelationWindow,
		emaAlpha:   cfg.LagSmoothing,
		gain:       cfg.ConfidenceGain,
		decay:      cfg.ConfidenceDecay,
		floor:      cfg.MinEdgeConfidence,
		crossBonus: cfg.CrossTokenBonus,
		state:      map[edgeKey]*edgeState{},
	}
}

// Analyze runs one cycle over a window snapshot. The committed state is not
// touched; pass the result to Commit once the cycle succeeds.
func (a *LeadFollowerAnalyzer) Analyze(snap *WindowSnapshot, now time.Time) *LeadResult {
	next := a.cloneState()

	// Decay first, so an edge re-observed this cycle nets out ahead.
	for key, st := range next {
		st.conf *= 1 - a.decay
		if st.conf < a.floor {
			delete(next, key)
		}
	}

	if snap != nil {
		for token, txs := range snap.ByToken {
			a.observeToken(next, token, txs, now)
		}
	}

	return &LeadResult{Edges: buildEdges(next, a.crossBonus), next: next}
}

// Commit replaces the analyzer's state with a completed cycle's result.
func (a *LeadFollowerAnalyzer) Commit(res *LeadResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = res.next
}

// observeToken folds one token's first directionally-matching transactions
// per wallet pair into the working state.
func (a *LeadFollowerAnalyzer) observeToken(next map[edgeKey]*edgeState, token string, txs []*entity.Transaction, now time.Time) {
	// First matching transaction per wallet per direction.
	type firstSeen struct {
		buy  *entity.Transaction
		sell *entity.Transaction
	}
	firsts := map[string]*firstSeen{}
	order := []string{}
	for _, tx := range txs {
		f := firsts[tx.WalletID()]
		if f == nil {
			f = &firstSeen{}
			firsts[tx.WalletID()] = f
			order = append(order, tx.WalletID())
		}
		switch tx.Direction {
		case entity.DirectionBuy, entity.DirectionSwap:
			// A swap into the token is accumulation for lag purposes.
			if f.buy == nil {
				f.buy = tx
			}
		case entity.DirectionSell:
			if f.sell == nil {
				f.sell = tx
			}
		}
	}
	if len(order) < 2 {
		return
	}
	sort.Strings(order)

	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			fa, fb := firsts[order[i]], firsts[order[j]]
			a.observePair(next, token, order[i], order[j], fa.buy, fb.buy, now)
			a.observePair(next, token, order[i], order[j], fa.sell, fb.sell, now)
		}
	}
}

// observePair contributes one directed observation if both wallets have a
// matching-direction transaction and the earlier one strictly precedes the
// later within the correlation window. Zero, negative, or out-of-window lag
// contributes nothing, and a transaction pair already counted on a previous
// cycle contributes nothing again: the edge just keeps decaying until fresh
// evidence arrives.
func (a *LeadFollowerAnalyzer) observePair(next map[edgeKey]*edgeState, token, wa, wb string, ta, tb *entity.Transaction, now time.Time) {
	if ta == nil || tb == nil {
		return
	}
	leader, follower := wa, wb
	leadTx, followTx := ta, tb
	lag := tb.Timestamp.Sub(ta.Timestamp)
	if lag < 0 {
		leader, follower = wb, wa
		leadTx, followTx = tb, ta
		lag = -lag
	}
	if lag <= 0 || lag > a.window {
		return
	}

	key := edgeKey{leader: leader, follower: follower, token: token}
	obs := [2]string{leadTx.ID, followTx.ID}
	st := next[key]
	if st == nil {
		st = &edgeState{lag: lag}
		next[key] = st
	} else {
		if st.lastObs == obs {
			return
		}
		smoothed := a.emaAlpha*float64(lag) + (1-a.emaAlpha)*float64(st.lag)
		st.lag = time.Duration(smoothed)
	}
	st.samples++
	st.conf += (1 - st.conf) * a.gain
	st.updatedAt = now
	st.lastObs = obs
}

// Edges returns the committed edge snapshot.
func (a *LeadFollowerAnalyzer) Edges() []*entity.LeadEdge {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return buildEdges(a.state, a.crossBonus)
}

func (a *LeadFollowerAnalyzer) cloneState() map[edgeKey]*edgeState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	next := make(map[edgeKey]*edgeState, len(a.state))
	for key, st := range a.state {
		cp := *st
		next[key] = &cp
	}
	return next
}

// buildEdges renders edge state into the reported form. Consistent
// leadership across several tokens raises the reported confidence through a
// bounded cross-token bonus; a single observation stays low-confidence.
func buildEdges(state map[edgeKey]*edgeState, crossBonus float64) []*entity.LeadEdge {
	pairTokens := map[[2]string]int{}
	for key := range state {
		pairTokens[[2]string{key.leader, key.follower}]++
	}
	edges := make([]*entity.LeadEdge, 0, len(state))
	for key, st := range state {
		conf := st.conf
		if extra := pairTokens[[2]string{key.leader, key.follower}] - 1; extra > 0 {
			bonus := float64(extra) * crossBonus
			if bonus > 0.3 {
				bonus = 0.3
			}
			conf += (1 - conf) * bonus
		}
		edges = append(edges, &entity.LeadEdge{
			Leader:     key.leader,
			Follower:   key.follower,
			Token:      key.token,
			Lag:        st.lag,
			Confidence: conf,
			Samples:    st.samples,
			UpdatedAt:  st.updatedAt,
		})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Confidence != edges[j].Confidence {
			return edges[i].Confidence > edges[j].Confidence
		}
		if edges[i].Leader != edges[j].Leader {
			return edges[i].Leader < edges[j].Leader
		}
		return edges[i].Token < edges[j].Token
	})
	return edges
}
