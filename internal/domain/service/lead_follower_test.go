package service

import (
	"testing"
	"time"

	"crypto-alpha-tracker/internal/domain/entity"
	"crypto-alpha-tracker/internal/infrastructure/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leadConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		CorrelationWindow: 2 * time.Hour,
		LagSmoothing:      0.3,
		ConfidenceGain:    0.2,
		ConfidenceDecay:   0.02,
		MinEdgeConfidence: 0.05,
		CrossTokenBonus:   0.1,
	}
}

func directedTx(id, wallet, token string, dir entity.Direction, ts time.Time) *entity.Transaction {
	tx := windowTx(id, wallet, token, ts)
	tx.Direction = dir
	return tx
}

func TestLeadFollowerDetectsLag(t *testing.T) {
	a := NewLeadFollowerAnalyzer(leadConfig())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res := a.Analyze(cabalSnap(
		directedTx("tx1", "w1", "tokenA", entity.DirectionBuy, base),
		directedTx("tx2", "w2", "tokenA", entity.DirectionBuy, base.Add(600*time.Second)),
	), base.Add(time.Hour))

	require.Len(t, res.Edges, 1)
	edge := res.Edges[0]
	assert.Equal(t, entity.WalletID("solana", "w1"), edge.Leader)
	assert.Equal(t, entity.WalletID("solana", "w2"), edge.Follower)
	assert.Equal(t, "tokenA", edge.Token)
	assert.Equal(t, 600*time.Second, edge.Lag)
	assert.InDelta(t, 0.2, edge.Confidence, 1e-9)
	assert.Equal(t, 1, edge.Samples)
}

func TestLeadFollowerSwapCountsAsAccumulation(t *testing.T) {
	a := NewLeadFollowerAnalyzer(leadConfig())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res := a.Analyze(cabalSnap(
		directedTx("tx1", "w1", "tokenA", entity.DirectionSwap, base),
		directedTx("tx2", "w2", "tokenA", entity.DirectionBuy, base.Add(time.Minute)),
	), base.Add(time.Hour))

	require.Len(t, res.Edges, 1)
	assert.Equal(t, entity.WalletID("solana", "w1"), res.Edges[0].Leader)
}

func TestLeadFollowerNoEdgeCases(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		txs  []*entity.Transaction
	}{
		{
			name: "mismatched directions",
			txs: []*entity.Transaction{
				directedTx("tx1", "w1", "tokenA", entity.DirectionBuy, base),
				directedTx("tx2", "w2", "tokenA", entity.DirectionSell, base.Add(time.Minute)),
			},
		},
		{
			name: "simultaneous trades have no leader",
			txs: []*entity.Transaction{
				directedTx("tx1", "w1", "tokenA", entity.DirectionBuy, base),
				directedTx("tx2", "w2", "tokenA", entity.DirectionBuy, base),
			},
		},
		{
			name: "lag beyond correlation window",
			txs: []*entity.Transaction{
				directedTx("tx1", "w1", "tokenA", entity.DirectionBuy, base),
				directedTx("tx2", "w2", "tokenA", entity.DirectionBuy, base.Add(3*time.Hour)),
			},
		},
		{
			name: "single wallet",
			txs: []*entity.Transaction{
				directedTx("tx1", "w1", "tokenA", entity.DirectionBuy, base),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewLeadFollowerAnalyzer(leadConfig())
			res := a.Analyze(cabalSnap(tt.txs...), base.Add(4*time.Hour))
			assert.Empty(t, res.Edges)
		})
	}
}

func TestLeadFollowerCommitIsExplicit(t *testing.T) {
	a := NewLeadFollowerAnalyzer(leadConfig())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	snap := cabalSnap(
		directedTx("tx1", "w1", "tokenA", entity.DirectionBuy, base),
		directedTx("tx2", "w2", "tokenA", entity.DirectionBuy, base.Add(time.Minute)),
	)

	res := a.Analyze(snap, base.Add(time.Hour))
	require.Len(t, res.Edges, 1)
	assert.Empty(t, a.Edges(), "an uncommitted analysis leaves the committed state untouched")

	a.Commit(res)
	require.Len(t, a.Edges(), 1)
}

func TestLeadFollowerConfidenceDecays(t *testing.T) {
	a := NewLeadFollowerAnalyzer(leadConfig())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res := a.Analyze(cabalSnap(
		directedTx("tx1", "w1", "tokenA", entity.DirectionBuy, base),
		directedTx("tx2", "w2", "tokenA", entity.DirectionBuy, base.Add(time.Minute)),
	), base.Add(time.Hour))
	a.Commit(res)

	// An idle cycle decays the edge but keeps it above the floor.
	res = a.Analyze(&WindowSnapshot{}, base.Add(2*time.Hour))
	a.Commit(res)
	require.Len(t, a.Edges(), 1)
	assert.InDelta(t, 0.2*0.98, a.Edges()[0].Confidence, 1e-9)
}

func TestLeadFollowerRepeatedSnapshotDoesNotCompound(t *testing.T) {
	a := NewLeadFollowerAnalyzer(leadConfig())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// The window retains both transactions across cycles, so consecutive
	// snapshots present the same pair again.
	snap := cabalSnap(
		directedTx("tx1", "w1", "tokenA", entity.DirectionBuy, base),
		directedTx("tx2", "w2", "tokenA", entity.DirectionBuy, base.Add(time.Minute)),
	)

	res := a.Analyze(snap, base.Add(time.Hour))
	a.Commit(res)
	res = a.Analyze(snap, base.Add(2*time.Hour))
	a.Commit(res)

	require.Len(t, a.Edges(), 1)
	edge := a.Edges()[0]
	assert.Equal(t, 1, edge.Samples, "one transaction pair is one observation")
	assert.InDelta(t, 0.2*0.98, edge.Confidence, 1e-9,
		"re-seeing an already-counted pair only decays the edge")
}

func TestLeadFollowerFloorPrunes(t *testing.T) {
	cfg := leadConfig()
	cfg.ConfidenceDecay = 0.9
	a := NewLeadFollowerAnalyzer(cfg)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res := a.Analyze(cabalSnap(
		directedTx("tx1", "w1", "tokenA", entity.DirectionBuy, base),
		directedTx("tx2", "w2", "tokenA", entity.DirectionBuy, base.Add(time.Minute)),
	), base.Add(time.Hour))
	a.Commit(res)

	res = a.Analyze(&WindowSnapshot{}, base.Add(2*time.Hour))
	a.Commit(res)
	assert.Empty(t, a.Edges(), "edges decayed below the floor are dropped")
}

func TestLeadFollowerCrossTokenBonus(t *testing.T) {
	a := NewLeadFollowerAnalyzer(leadConfig())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res := a.Analyze(cabalSnap(
		directedTx("a1", "w1", "tokenA", entity.DirectionBuy, base),
		directedTx("a2", "w2", "tokenA", entity.DirectionBuy, base.Add(time.Minute)),
		directedTx("b1", "w1", "tokenB", entity.DirectionBuy, base),
		directedTx("b2", "w2", "tokenB", entity.DirectionBuy, base.Add(2*time.Minute)),
	), base.Add(time.Hour))

	require.Len(t, res.Edges, 2)
	for _, edge := range res.Edges {
		assert.InDelta(t, 0.2+(1-0.2)*0.1, edge.Confidence, 1e-9,
			"same pair leading on a second token earns the cross-token bonus")
	}
}

func TestLeadFollowerLagEMA(t *testing.T) {
	a := NewLeadFollowerAnalyzer(leadConfig())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res := a.Analyze(cabalSnap(
		directedTx("tx1", "w1", "tokenA", entity.DirectionBuy, base),
		directedTx("tx2", "w2", "tokenA", entity.DirectionBuy, base.Add(10*time.Minute)),
	), base.Add(time.Hour))
	a.Commit(res)

	// The same pair observed again with a 20 minute lag pulls the EMA up.
	res = a.Analyze(cabalSnap(
		directedTx("tx3", "w1", "tokenA", entity.DirectionBuy, base.Add(2*time.Hour)),
		directedTx("tx4", "w2", "tokenA", entity.DirectionBuy, base.Add(2*time.Hour+20*time.Minute)),
	), base.Add(3*time.Hour))
	a.Commit(res)

	require.Len(t, a.Edges(), 1)
	edge := a.Edges()[0]
	want := 0.3*float64(20*time.Minute) + 0.7*float64(10*time.Minute)
	assert.InDelta(t, want, float64(edge.Lag), float64(time.Second))
	assert.Equal(t, 2, edge.Samples)
}
