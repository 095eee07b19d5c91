package service

import (
	"testing"
	"time"

	"crypto-alpha-tracker/internal/domain/entity"
	"crypto-alpha-tracker/internal/infrastructure/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cabalConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		CoActivityInterval: 3 * time.Minute,
		CoActivityHalfLife: 30 * time.Minute,
		MinEdgeWeight:      0.5,
		MinClusterScore:    2.0,
	}
}

// bucketStart aligns a timestamp to the start of its co-activity bucket so
// tests can place transactions in the same bucket deliberately.
func bucketStart(ts time.Time, interval time.Duration) time.Time {
	b := ts.UnixNano() / int64(interval)
	return time.Unix(0, b*int64(interval)).UTC()
}

func cabalSnap(txs ...*entity.Transaction) *WindowSnapshot {
	snap := &WindowSnapshot{
		ByToken:  map[string][]*entity.Transaction{},
		ByWallet: map[string][]*entity.Transaction{},
	}
	for _, tx := range txs {
		snap.ByToken[tx.Token] = insertOrdered(snap.ByToken[tx.Token], tx)
		snap.ByWallet[tx.WalletID()] = insertOrdered(snap.ByWallet[tx.WalletID()], tx)
	}
	return snap
}

func TestCabalDetectorEmptyWindow(t *testing.T) {
	d := NewCabalDetector(cabalConfig())

	assignment := d.Detect(nil, time.Now())
	require.NotNil(t, assignment)
	assert.Empty(t, assignment.Clusters)
	assert.Empty(t, assignment.ByWallet)
}

func TestCabalDetectorFiveWalletsOneCluster(t *testing.T) {
	d := NewCabalDetector(cabalConfig())
	start := bucketStart(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), 3*time.Minute)

	var txs []*entity.Transaction
	wallets := []string{"w1", "w2", "w3", "w4", "w5"}
	for i, w := range wallets {
		txs = append(txs, windowTx("tx"+w, w, "tokenA", start.Add(time.Duration(i*10)*time.Second)))
	}

	assignment := d.Detect(cabalSnap(txs...), start.Add(time.Minute))

	require.Len(t, assignment.Clusters, 1)
	cluster := assignment.Clusters[0]
	assert.Equal(t, "tokenA", cluster.Token)
	assert.Len(t, cluster.Members, 5)
	assert.Greater(t, cluster.Score, 2.0)
	for _, w := range wallets {
		assert.Equal(t, cluster.ID, assignment.ByWallet[entity.WalletID("solana", w)])
	}
}

func TestCabalDetectorSinglePairBelowScore(t *testing.T) {
	d := NewCabalDetector(cabalConfig())
	start := bucketStart(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), 3*time.Minute)

	// One co-occurrence yields edge weight near 1: above the edge threshold
	// but below the cluster score floor.
	assignment := d.Detect(cabalSnap(
		windowTx("tx1", "w1", "tokenA", start),
		windowTx("tx2", "w2", "tokenA", start.Add(30*time.Second)),
	), start.Add(time.Minute))

	assert.Empty(t, assignment.Clusters)
}

func TestCabalDetectorDistantBucketsNoEdge(t *testing.T) {
	d := NewCabalDetector(cabalConfig())
	start := bucketStart(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), 3*time.Minute)

	assignment := d.Detect(cabalSnap(
		windowTx("tx1", "w1", "tokenA", start),
		windowTx("tx2", "w2", "tokenA", start.Add(time.Hour)),
	), start.Add(2*time.Hour))

	assert.Empty(t, assignment.Clusters)
}

func TestCabalDetectorWalletJoinsStrongestCluster(t *testing.T) {
	d := NewCabalDetector(cabalConfig())
	start := bucketStart(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), 3*time.Minute)

	var txs []*entity.Transaction
	// tokenA: w1, w2, w3 co-occur in three consecutive buckets.
	for b := 0; b < 3; b++ {
		ts := start.Add(time.Duration(b) * 3 * time.Minute)
		for i, w := range []string{"w1", "w2", "w3"} {
			txs = append(txs, windowTx(
				"a"+w+string(rune('0'+b)), w, "tokenA", ts.Add(time.Duration(i)*time.Second)))
		}
	}
	// tokenB: w4 and w5 co-occur alone first, then w3 joins them for two
	// buckets, a weaker attachment for w3.
	for i, w := range []string{"w4", "w5"} {
		txs = append(txs, windowTx("b"+w+"0", w, "tokenB", start.Add(time.Duration(i)*time.Second)))
	}
	for b := 1; b < 3; b++ {
		ts := start.Add(time.Duration(b) * 3 * time.Minute)
		for i, w := range []string{"w3", "w4", "w5"} {
			txs = append(txs, windowTx(
				"b"+w+string(rune('0'+b)), w, "tokenB", ts.Add(time.Duration(i)*time.Second)))
		}
	}

	assignment := d.Detect(cabalSnap(txs...), start.Add(6*time.Minute))

	require.Len(t, assignment.Clusters, 2)
	id3 := entity.WalletID("solana", "w3")
	var tokenA, tokenB *entity.Cluster
	for _, c := range assignment.Clusters {
		switch c.Token {
		case "tokenA":
			tokenA = c
		case "tokenB":
			tokenB = c
		}
	}
	require.NotNil(t, tokenA)
	require.NotNil(t, tokenB)

	assert.Contains(t, tokenA.Members, id3)
	assert.NotContains(t, tokenB.Members, id3, "a wallet connects to one cluster per cycle")
	assert.Equal(t, tokenA.ID, assignment.ByWallet[id3])
	assert.ElementsMatch(t, []string{
		entity.WalletID("solana", "w4"),
		entity.WalletID("solana", "w5"),
	}, tokenB.Members)
}

func TestCabalDetectorPruningDropsDisconnectedRemnant(t *testing.T) {
	d := NewCabalDetector(cabalConfig())
	start := bucketStart(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), 3*time.Minute)

	var txs []*entity.Transaction
	// tokenA: w3 bridges w1 and w2, who never co-occur with each other.
	for b := 0; b < 2; b++ {
		ts := start.Add(time.Duration(b) * 3 * time.Minute)
		txs = append(txs,
			windowTx("a1"+string(rune('0'+b)), "w1", "tokenA", ts),
			windowTx("a3"+string(rune('0'+b)), "w3", "tokenA", ts.Add(time.Second)),
		)
	}
	for b := 2; b < 4; b++ {
		ts := start.Add(time.Duration(b) * 3 * time.Minute)
		txs = append(txs,
			windowTx("a2"+string(rune('0'+b)), "w2", "tokenA", ts),
			windowTx("a3"+string(rune('0'+b)), "w3", "tokenA", ts.Add(time.Second)),
		)
	}
	// tokenB: w3, w4, w5 co-occur heavily, pulling w3 out of tokenA.
	for b := 1; b < 4; b++ {
		ts := start.Add(time.Duration(b) * 3 * time.Minute)
		for i, w := range []string{"w3", "w4", "w5"} {
			txs = append(txs, windowTx(
				"b"+w+string(rune('0'+b)), w, "tokenB", ts.Add(time.Duration(i)*time.Second)))
		}
	}

	assignment := d.Detect(cabalSnap(txs...), start.Add(9*time.Minute))

	// Without the bridge, w1 and w2 share no co-occurrence: the tokenA
	// remnant must not be reported as a cluster.
	require.Len(t, assignment.Clusters, 1)
	assert.Equal(t, "tokenB", assignment.Clusters[0].Token)
	assert.NotContains(t, assignment.ByWallet, entity.WalletID("solana", "w1"))
	assert.NotContains(t, assignment.ByWallet, entity.WalletID("solana", "w2"))
	assert.Equal(t, assignment.Clusters[0].ID, assignment.ByWallet[entity.WalletID("solana", "w3")])
}
