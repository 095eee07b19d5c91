package service

import (
	"fmt"
	"testing"
	"time"

	"crypto-alpha-tracker/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func windowTx(id, wallet, token string, ts time.Time) *entity.Transaction {
	return &entity.Transaction{
		ID:        id,
		Chain:     "solana",
		Wallet:    wallet,
		Token:     token,
		Direction: entity.DirectionBuy,
		Timestamp: ts,
	}
}

func TestWindowStoreIdempotentRecord(t *testing.T) {
	s := NewWindowStore(time.Hour, 100, 100)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, s.Record(windowTx("tx1", "w1", "tokenA", ts)))
	assert.False(t, s.Record(windowTx("tx1", "w1", "tokenA", ts)), "same id is a no-op")

	got := s.RecentByToken("tokenA", time.Hour)
	require.Len(t, got, 1)
	assert.Equal(t, "tx1", got[0].ID)
}

func TestWindowStoreOrderingWithLateArrivals(t *testing.T) {
	s := NewWindowStore(time.Hour, 100, 100)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Record(windowTx("tx1", "w1", "tokenA", base))
	s.Record(windowTx("tx3", "w1", "tokenA", base.Add(20*time.Minute)))
	s.Record(windowTx("tx2", "w2", "tokenA", base.Add(10*time.Minute)))

	got := s.RecentByToken("tokenA", time.Hour)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"tx1", "tx2", "tx3"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestWindowStoreHorizonIsRelativeToLatest(t *testing.T) {
	s := NewWindowStore(time.Hour, 100, 100)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Record(windowTx("old", "w1", "tokenA", base))
	s.Record(windowTx("new", "w2", "tokenA", base.Add(90*time.Minute)))

	got := s.RecentByToken("tokenA", time.Hour)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}

func TestWindowStoreCapacityEvictsOldest(t *testing.T) {
	s := NewWindowStore(24*time.Hour, 3, 100)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s.Record(windowTx(fmt.Sprintf("tx%d", i), fmt.Sprintf("w%d", i), "tokenA", base.Add(time.Duration(i)*time.Minute)))
	}

	got := s.RecentByToken("tokenA", 24*time.Hour)
	require.Len(t, got, 3)
	assert.Equal(t, "tx2", got[0].ID)
	assert.Equal(t, "tx4", got[2].ID)

	_, evicted := s.Stats()
	assert.Equal(t, uint64(2), evicted)
}

func TestWindowStoreDedupSurvivesCapacityEviction(t *testing.T) {
	s := NewWindowStore(24*time.Hour, 2, 100)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Record(windowTx("tx0", "w0", "tokenA", base))
	s.Record(windowTx("tx1", "w1", "tokenA", base.Add(time.Minute)))
	s.Record(windowTx("tx2", "w2", "tokenA", base.Add(2*time.Minute)))

	// tx0 was evicted for capacity but a redelivery must still dedup.
	assert.False(t, s.Record(windowTx("tx0", "w0", "tokenA", base)))
}

func TestWindowStoreSnapshotIsolation(t *testing.T) {
	s := NewWindowStore(time.Hour, 100, 100)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Record(windowTx("tx1", "w1", "tokenA", base))
	snap := s.Snapshot()
	s.Record(windowTx("tx2", "w2", "tokenA", base.Add(time.Minute)))

	require.Len(t, snap.ByToken["tokenA"], 1)
	assert.Equal(t, "tx1", snap.ByToken["tokenA"][0].ID)
	assert.Len(t, s.RecentByToken("tokenA", time.Hour), 2)
}

func TestWindowStoreWalletOrdering(t *testing.T) {
	s := NewWindowStore(time.Hour, 100, 100)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Record(windowTx("tx1", "w1", "tokenA", base))
	s.Record(windowTx("tx2", "w1", "tokenB", base.Add(time.Minute)))

	got := s.RecentByWallet("solana:w1", time.Hour)
	require.Len(t, got, 2)
	assert.Equal(t, "tokenA", got[0].Token)
	assert.Equal(t, "tokenB", got[1].Token)
}
