package service

import (
	"fmt"
	"sort"
	"time"

	"crypto-alpha-tracker/internal/domain/entity"
	"crypto-alpha-tracker/internal/infrastructure/config"

	"github.com/google/uuid"
)

// clusterScoreScale normalizes a cluster's aggregate co-activity score into a
// 0..1 confidence: score/(score+scale), saturating instead of clipping.
const clusterScoreScale = 3.0

// PlayFinder fuses the cycle's cluster assignment, lead edges, tier store
// and decay records into deduplicated, cooled-down alerts. At most one alert
// per dedup key leaves the finder per cooldown window; all three alert kinds
// are independent and suppression applies per key only.
type PlayFinder struct {
	cooldown         time.Duration
	minLeadConf      float64
	highClusterScore float64
	contrarianWindow time.Duration
	correlationWin   time.Duration

	keys *cooldownSet
}

// NewPlayFinder creates a finder with the configured thresholds.
func NewPlayFinder(cfg config.AnalysisConfig) *PlayFinder {
	return &PlayFinder{
		cooldown:         cfg.AlertCooldown,
		minLeadConf:      cfg.MinLeadConfidence,
		highClusterScore: cfg.HighClusterScore,
		contrarianWindow: cfg.ContrarianWindow,
		correlationWin:   cfg.CorrelationWindow,
		keys:             newCooldownSet(),
	}
}

// FindPlays produces the cycle's alert batch, ordered for presentation:
// high-confidence cabals first, then lead signals, then contrarian fades.
// Suppressed duplicates are counted, not emitted.
func (f *PlayFinder) FindPlays(
	assignment *entity.ClusterAssignment,
	edges []*entity.LeadEdge,
	scorer *TierScorer,
	decay *AlphaDecayTracker,
	snap *WindowSnapshot,
	now time.Time,
) (alerts []*entity.Alert, suppressed int) {
	f.keys.evict(now)

	var candidates []*entity.Alert
	candidates = append(candidates, f.cabalAlerts(assignment, now)...)
	candidates = append(candidates, f.leadAlerts(edges, scorer, decay, snap, now)...)
	candidates = append(candidates, f.contrarianAlerts(scorer, snap, now)...)

	for _, alert := range candidates {
		if f.keys.seenOrAdd(alert.DedupKey(), now.Add(f.cooldown), now) {
			suppressed++
			continue
		}
		alerts = append(alerts, alert)
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := alerts[i].PriorityRank(f.highClusterScore), alerts[j].PriorityRank(f.highClusterScore)
		if ri != rj {
			return ri < rj
		}
		return alerts[i].Confidence > alerts[j].Confidence
	})
	return alerts, suppressed
}

// cabalAlerts emits one CABAL_FORMING candidate per cluster.
func (f *PlayFinder) cabalAlerts(assignment *entity.ClusterAssignment, now time.Time) []*entity.Alert {
	if assignment == nil {
		return nil
	}
	var out []*entity.Alert
	for _, cluster := range assignment.Clusters {
		out = append(out, &entity.Alert{
			ID:          uuid.NewString(),
			Kind:        entity.AlertCabalForming,
			Token:       cluster.Token,
			TokenSymbol: cluster.TokenSymbol,
			Wallets:     cluster.Members,
			Confidence:  cluster.Score / (cluster.Score + clusterScoreScale),
			Reason:      fmt.Sprintf("%d wallets co-active, score %.2f", len(cluster.Members), cluster.Score),
			GeneratedAt: now,
		})
	}
	return out
}

// leadAlerts emits LEAD_SIGNAL candidates for confident edges whose leader
// has a fresh matching transaction in the window. Tier-C leaders never
// produce a lead signal; their buys flow through the contrarian rule instead.
func (f *PlayFinder) leadAlerts(
	edges []*entity.LeadEdge,
	scorer *TierScorer,
	decay *AlphaDecayTracker,
	snap *WindowSnapshot,
	now time.Time,
) []*entity.Alert {
	if snap == nil {
		return nil
	}
	var out []*entity.Alert
	for _, edge := range edges {
		if edge.Confidence < f.minLeadConf {
			continue
		}
		if scorer.Tier(edge.Leader) == entity.TierContrarian {
			continue
		}
		fresh := freshTransaction(snap.ByToken[edge.Token], edge.Leader, now, f.correlationWin)
		if fresh == nil {
			continue
		}

		conf := edge.Confidence
		// A leader with a sustained, recent hit rate amplifies the signal;
		// one with decayed accuracy dampens it.
		if rec := decay.Record(edge.Leader, now); rec != nil {
			conf *= 0.75 + 0.5*rec.Confidence
			if conf > 0.99 {
				conf = 0.99
			}
		}
		out = append(out, &entity.Alert{
			ID:          uuid.NewString(),
			Kind:        entity.AlertLeadSignal,
			Token:       edge.Token,
			TokenSymbol: fresh.TokenSymbol,
			Wallets:     []string{edge.Leader, edge.Follower},
			Confidence:  conf,
			Reason:      fmt.Sprintf("%s leads %s by ~%s", edge.Leader, edge.Follower, edge.Lag.Round(time.Second)),
			GeneratedAt: now,
		})
	}
	return out
}

// contrarianAlerts re-emits Tier-C accumulation as CONTRARIAN_FADE. This
// inversion is a first-class rule: a Tier-C buy is never surfaced as a
// standard buy signal. A simultaneous Tier-A exit on the same token raises
// the fade's confidence.
func (f *PlayFinder) contrarianAlerts(scorer *TierScorer, snap *WindowSnapshot, now time.Time) []*entity.Alert {
	if snap == nil {
		return nil
	}
	var out []*entity.Alert
	for token, txs := range snap.ByToken {
		cutoff := now.Add(-f.contrarianWindow)
		var fadeBuys []*entity.Transaction
		smartExit := false
		for _, tx := range txs {
			if tx.Timestamp.Before(cutoff) {
				continue
			}
			tier := scorer.Tier(tx.WalletID())
			switch {
			case tier == entity.TierContrarian && (tx.Direction == entity.DirectionBuy || tx.Direction == entity.DirectionSwap):
				fadeBuys = append(fadeBuys, tx)
			case tier == entity.TierSmartMoney && tx.Direction == entity.DirectionSell:
				smartExit = true
			}
		}
		if len(fadeBuys) == 0 {
			continue
		}

		wallets := map[string]bool{}
		symbol := ""
		for _, tx := range fadeBuys {
			wallets[tx.WalletID()] = true
			if symbol == "" {
				symbol = tx.TokenSymbol
			}
		}
		ids := make([]string, 0, len(wallets))
		for id := range wallets {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		conf := 0.5 + 0.1*float64(len(ids)-1)
		reason := fmt.Sprintf("%d contrarian wallets accumulating", len(ids))
		if smartExit {
			conf += 0.25
			reason += ", smart money exiting"
		}
		if conf > 0.95 {
			conf = 0.95
		}
		out = append(out, &entity.Alert{
			ID:          uuid.NewString(),
			Kind:        entity.AlertContrarianFade,
			Token:       token,
			TokenSymbol: symbol,
			Wallets:     ids,
			Confidence:  conf,
			Reason:      reason,
			GeneratedAt: now,
		})
	}
	return out
}

// freshTransaction returns the wallet's most recent transaction on the token
// within maxAge, or nil.
func freshTransaction(txs []*entity.Transaction, wallet string, now time.Time, maxAge time.Duration) *entity.Transaction {
	cutoff := now.Add(-maxAge)
	for i := len(txs) - 1; i >= 0; i-- {
		if txs[i].WalletID() != wallet {
			continue
		}
		if txs[i].Timestamp.Before(cutoff) {
			return nil
		}
		return txs[i]
	}
	return nil
}
