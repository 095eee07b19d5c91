package service

import (
	"sort"
	"sync"
	"time"

	"crypto-alpha-tracker/internal/domain/entity"
)

// confidenceSmoothing dampens hit rates built on few samples: confidence is
// hitRate * n/(n+k), so a 2-for-2 wallet does not outrank a 20-for-30 one.
const confidenceSmoothing = 5.0

// AlphaDecayTracker maintains each wallet's rolling window of realized
// outcomes. Entries older than the window are dropped on read and on write,
// so historical edge decays instead of being grandfathered in.
type AlphaDecayTracker struct {
	window time.Duration

	mu       sync.RWMutex
	byWallet map[string][]entity.Outcome
}

// NewAlphaDecayTracker creates a tracker with the given rolling window.
func NewAlphaDecayTracker(window time.Duration) *AlphaDecayTracker {
	return &AlphaDecayTracker{
		window:   window,
		byWallet: map[string][]entity.Outcome{},
	}
}

// RecordOutcome stores one realized-outcome data point delivered by the
// price/outcome collaborator. Outcomes are keyed by (wallet, signal id), so
// an at-least-once redelivery of the same outcome counts once.
func (t *AlphaDecayTracker) RecordOutcome(wallet string, outcome entity.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if outcome.SignalID != "" {
		for _, o := range t.byWallet[wallet] {
			if o.SignalID == outcome.SignalID {
				return
			}
		}
	}
	outcomes := append(t.byWallet[wallet], outcome)
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].At.Before(outcomes[j].At) })
	t.byWallet[wallet] = pruneOutcomes(outcomes, t.window)
}

// Record computes the wallet's current decay record. Returns nil when the
// wallet has no outcome inside the rolling window.
func (t *AlphaDecayTracker) Record(wallet string, now time.Time) *entity.AlphaDecayRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return buildRecord(wallet, pruneAt(t.byWallet[wallet], now, t.window), now)
}

// Records computes decay records for every wallet with samples in window,
// used by the detection cycle to feed the tier scorer.
func (t *AlphaDecayTracker) Records(now time.Time) []*entity.AlphaDecayRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*entity.AlphaDecayRecord
	for wallet, outcomes := range t.byWallet {
		live := pruneAt(outcomes, now, t.window)
		if len(live) == 0 {
			delete(t.byWallet, wallet)
			continue
		}
		t.byWallet[wallet] = live
		out = append(out, buildRecord(wallet, live, now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Wallet < out[j].Wallet })
	return out
}

func buildRecord(wallet string, outcomes []entity.Outcome, now time.Time) *entity.AlphaDecayRecord {
	if len(outcomes) == 0 {
		return nil
	}
	favorable := 0
	for _, o := range outcomes {
		if o.Favorable {
			favorable++
		}
	}
	n := float64(len(outcomes))
	hitRate := float64(favorable) / n
	return &entity.AlphaDecayRecord{
		Wallet:     wallet,
		HitRate:    hitRate,
		Samples:    len(outcomes),
		Confidence: hitRate * n / (n + confidenceSmoothing),
		UpdatedAt:  now,
	}
}

// pruneOutcomes drops entries older than window relative to the newest entry.
func pruneOutcomes(outcomes []entity.Outcome, window time.Duration) []entity.Outcome {
	if len(outcomes) == 0 {
		return outcomes
	}
	return pruneAt(outcomes, outcomes[len(outcomes)-1].At, window)
}

// pruneAt drops entries older than window relative to ref.
func pruneAt(outcomes []entity.Outcome, ref time.Time, window time.Duration) []entity.Outcome {
	cutoff := ref.Add(-window)
	i := sort.Search(len(outcomes), func(i int) bool {
		return !outcomes[i].At.Before(cutoff)
	})
	if i == 0 {
		return outcomes
	}
	return append([]entity.Outcome(nil), outcomes[i:]...)
}
