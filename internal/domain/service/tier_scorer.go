package service

import (
	"sync"

	"crypto-alpha-tracker/internal/domain/entity"
	"crypto-alpha-tracker/internal/infrastructure/config"
)

// TierScorer owns the wallet tier store. Tiers are seeded from the curated
// config list at startup and mutated only through the promote/demote
// transition driven by alpha-decay feedback; nothing else writes tiers.
// Minimum sample counts keep the transitions from thrashing on noise.
type TierScorer struct {
	promoteRate float64
	demoteRate  float64
	minSamples  int

	mu    sync.RWMutex
	tiers map[string]entity.Tier
}

// TierChange records one applied transition, for persistence and metrics.
type TierChange struct {
	Wallet   string
	From     entity.Tier
	To       entity.Tier
	Promoted bool
}

// NewTierScorer creates a scorer seeded from config. Unknown tier letters in
// the seed list are ignored rather than admitted.
func NewTierScorer(analysis config.AnalysisConfig, tiers config.TierConfig) *TierScorer {
	s := &TierScorer{
		promoteRate: analysis.PromoteHitRate,
		demoteRate:  analysis.DemoteHitRate,
		minSamples:  analysis.MinTierSamples,
		tiers:       map[string]entity.Tier{},
	}
	for wallet, letter := range tiers.Seed {
		tier := entity.Tier(letter)
		if tier.Valid() {
			s.tiers[wallet] = tier
		}
	}
	return s
}

// Tier returns the wallet's current tier, TierUnknown when unseen.
func (s *TierScorer) Tier(wallet string) entity.Tier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tiers[wallet]; ok {
		return t
	}
	return entity.TierUnknown
}

// ApplyDecayFeedback adjusts a wallet's tier from its rolling hit rate.
// Transitions require the minimum sample count; hit rates inside the
// promote/demote band leave the tier untouched.
func (s *TierScorer) ApplyDecayFeedback(rec *entity.AlphaDecayRecord) (TierChange, bool) {
	if rec == nil || rec.Samples < s.minSamples {
		return TierChange{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	from, ok := s.tiers[rec.Wallet]
	if !ok {
		from = entity.TierUnknown
	}

	var to entity.Tier
	switch {
	case rec.HitRate >= s.promoteRate:
		to = from.Promote()
	case rec.HitRate <= s.demoteRate:
		to = from.Demote()
	default:
		return TierChange{}, false
	}
	if to == from {
		return TierChange{}, false
	}
	s.tiers[rec.Wallet] = to
	return TierChange{Wallet: rec.Wallet, From: from, To: to, Promoted: rec.HitRate >= s.promoteRate}, true
}

// Snapshot returns a copy of the tier store for reporting.
func (s *TierScorer) Snapshot() map[string]entity.Tier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]entity.Tier, len(s.tiers))
	for w, t := range s.tiers {
		out[w] = t
	}
	return out
}
