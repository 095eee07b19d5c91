package service

import (
	"sort"
	"sync"
	"time"

	"crypto-alpha-tracker/internal/domain/entity"
)

// WindowStore holds recent transactions in two orderings at once: per-token
// and per-wallet, both ascending by timestamp. Entries are evicted when older
// than the retention horizon or when a sequence exceeds its capacity bound,
// whichever triggers first. Inserts are idempotent on transaction id, so
// at-least-once upstream delivery is safe.
//
// The store is written concurrently by the per-chain ingestion workers and
// read by the detection cycle; readers take a copied snapshot and never block
// writers for the cycle duration.
type WindowStore struct {
	mu           sync.RWMutex
	horizon      time.Duration
	maxPerToken  int
	maxPerWallet int

	byToken  map[string][]*entity.Transaction
	byWallet map[string][]*entity.Transaction
	seen     map[string]time.Time // tx id -> timestamp, for dedup

	entries int
	evicted uint64
}

// WindowSnapshot is a consistent copy of the window taken at cycle start.
// Transactions are immutable, so sharing the pointers is safe.
type WindowSnapshot struct {
	ByToken  map[string][]*entity.Transaction
	ByWallet map[string][]*entity.Transaction
	TakenAt  time.Time
}

// NewWindowStore creates a window store bounded by horizon and per-sequence
// capacity.
func NewWindowStore(horizon time.Duration, maxPerToken, maxPerWallet int) *WindowStore {
	return &WindowStore{
		horizon:      horizon,
		maxPerToken:  maxPerToken,
		maxPerWallet: maxPerWallet,
		byToken:      make(map[string][]*entity.Transaction),
		byWallet:     make(map[string][]*entity.Transaction),
		seen:         make(map[string]time.Time),
	}
}

// Record inserts a transaction into both orderings. Re-inserting a
// previously seen id is a no-op and returns false. Eviction runs
// opportunistically on every insert.
func (s *WindowStore) Record(tx *entity.Transaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[tx.ID]; dup {
		return false
	}
	s.seen[tx.ID] = tx.Timestamp

	s.byToken[tx.Token] = insertOrdered(s.byToken[tx.Token], tx)
	s.byWallet[tx.WalletID()] = insertOrdered(s.byWallet[tx.WalletID()], tx)
	s.entries += 2 // one index entry per ordering

	s.evictLocked(tx.Token, tx.WalletID())
	return true
}

// RecentByToken returns the token's transactions within horizon of the
// latest recorded timestamp for that token, ascending. Entries past the
// horizon are never returned even if eviction lags.
func (s *WindowStore) RecentByToken(token string, horizon time.Duration) []*entity.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return recentLocked(s.byToken[token], horizon)
}

// RecentByWallet is RecentByToken over the per-wallet ordering. The wallet is
// identified by its chain-qualified id.
func (s *WindowStore) RecentByWallet(wallet string, horizon time.Duration) []*entity.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return recentLocked(s.byWallet[wallet], horizon)
}

// Snapshot copies the current window contents for a detection cycle. The
// returned maps and slices are owned by the caller; later Record calls do not
// mutate them.
func (s *WindowStore) Snapshot() *WindowSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &WindowSnapshot{
		ByToken:  make(map[string][]*entity.Transaction, len(s.byToken)),
		ByWallet: make(map[string][]*entity.Transaction, len(s.byWallet)),
		TakenAt:  time.Now().UTC(),
	}
	for token, txs := range s.byToken {
		snap.ByToken[token] = append([]*entity.Transaction(nil), recentLocked(txs, s.horizon)...)
	}
	for wallet, txs := range s.byWallet {
		snap.ByWallet[wallet] = append([]*entity.Transaction(nil), recentLocked(txs, s.horizon)...)
	}
	return snap
}

// Stats reports the store size and cumulative evictions, for metrics.
func (s *WindowStore) Stats() (entries int, evicted uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries, s.evicted
}

// evictLocked trims the touched sequences by horizon and capacity, and prunes
// expired ids from the dedup set. Caller holds the write lock.
func (s *WindowStore) evictLocked(token, wallet string) {
	s.byToken[token] = s.trimSeq(s.byToken[token], s.maxPerToken)
	if len(s.byToken[token]) == 0 {
		delete(s.byToken, token)
	}
	s.byWallet[wallet] = s.trimSeq(s.byWallet[wallet], s.maxPerWallet)
	if len(s.byWallet[wallet]) == 0 {
		delete(s.byWallet, wallet)
	}

	// Ids are only released once past the horizon; an entry evicted for
	// capacity keeps its id so a late redelivery still deduplicates.
	if len(s.seen) > s.entries && s.entries > 0 {
		var latest time.Time
		for _, ts := range s.seen {
			if ts.After(latest) {
				latest = ts
			}
		}
		cutoff := latest.Add(-s.horizon)
		for id, ts := range s.seen {
			if ts.Before(cutoff) {
				delete(s.seen, id)
			}
		}
	}
}

// trimSeq drops entries older than the horizon relative to the sequence's
// latest timestamp, then enforces the capacity bound from the front.
func (s *WindowStore) trimSeq(seq []*entity.Transaction, max int) []*entity.Transaction {
	if len(seq) == 0 {
		return seq
	}
	cutoff := seq[len(seq)-1].Timestamp.Add(-s.horizon)
	drop := 0
	for drop < len(seq) && seq[drop].Timestamp.Before(cutoff) {
		drop++
	}
	for max > 0 && len(seq)-drop > max {
		drop++
	}
	if drop > 0 {
		s.evicted += uint64(drop)
		s.entries -= drop
		seq = append([]*entity.Transaction(nil), seq[drop:]...)
	}
	return seq
}

// insertOrdered inserts tx into a timestamp-ascending slice. Appends are the
// common case since chain time is monotonic per chain; out-of-order arrivals
// from other chains fall back to a binary-search insert.
func insertOrdered(seq []*entity.Transaction, tx *entity.Transaction) []*entity.Transaction {
	if len(seq) == 0 || !tx.Timestamp.Before(seq[len(seq)-1].Timestamp) {
		return append(seq, tx)
	}
	i := sort.Search(len(seq), func(i int) bool {
		return seq[i].Timestamp.After(tx.Timestamp)
	})
	seq = append(seq, nil)
	copy(seq[i+1:], seq[i:])
	seq[i] = tx
	return seq
}

// recentLocked filters a sequence to entries within horizon of its latest
// timestamp. Caller holds at least a read lock.
func recentLocked(seq []*entity.Transaction, horizon time.Duration) []*entity.Transaction {
	if len(seq) == 0 {
		return nil
	}
	cutoff := seq[len(seq)-1].Timestamp.Add(-horizon)
	i := sort.Search(len(seq), func(i int) bool {
		return !seq[i].Timestamp.Before(cutoff)
	})
	return seq[i:]
}
