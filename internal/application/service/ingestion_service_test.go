package service

import (
	"context"
	"testing"
	"time"

	"crypto-alpha-tracker/internal/domain/entity"
	domainService "crypto-alpha-tracker/internal/domain/service"
	"crypto-alpha-tracker/internal/infrastructure/config"
	"crypto-alpha-tracker/internal/infrastructure/logger"
	"crypto-alpha-tracker/internal/infrastructure/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ingestionHarness struct {
	service    *IngestionService
	window     *domainService.WindowStore
	walletRepo *fakeWalletRepo
	txRepo     *fakeTxRepo
	registry   *metrics.Registry
}

func newIngestionHarness(t *testing.T) *ingestionHarness {
	t.Helper()
	log, err := logger.NewLogger("error")
	require.NoError(t, err)

	chains := map[string]config.ChainConfig{
		"solana": {
			NativeAsset:   "SOL",
			WrappedNative: []string{"WSOL", "wSOL"},
			Stablecoins:   []string{"USDC", "USDT"},
			MinAmount:     0.000001,
		},
	}

	h := &ingestionHarness{
		window:     domainService.NewWindowStore(24*time.Hour, 2000, 2000),
		walletRepo: newFakeWalletRepo(),
		txRepo:     newFakeTxRepo(),
		registry:   metrics.NewRegistry(),
	}
	h.service = NewIngestionService(
		domainService.NewNormalizer(chains),
		h.window,
		h.walletRepo,
		h.txRepo,
		h.registry,
		log,
	)
	return h
}

func buyEvent(txID, wallet string) *entity.RawEvent {
	return &entity.RawEvent{
		Family:    entity.FamilyAccount,
		Chain:     "solana",
		Wallet:    wallet,
		TxID:      txID,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Block:     100,
		Deltas: []entity.BalanceDelta{
			{Asset: "SOL", Symbol: "SOL", Pre: decimal.NewFromInt(10), Post: decimal.NewFromInt(8)},
			{Asset: "mintX", Symbol: "BONK", Pre: decimal.Zero, Post: decimal.NewFromInt(500)},
		},
	}
}

func TestIngestionRecordsAndPersists(t *testing.T) {
	h := newIngestionHarness(t)

	require.NoError(t, h.service.ProcessEvent(context.Background(), buyEvent("tx1", "w1")))

	got := h.window.RecentByToken("mintX", 24*time.Hour)
	require.Len(t, got, 1)
	assert.Equal(t, entity.DirectionBuy, got[0].Direction)

	assert.Equal(t, 1, h.txRepo.ids["solana:tx1"])
	_, ok := h.walletRepo.wallets["solana:w1"]
	assert.True(t, ok)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.registry.EventsConsumed.WithLabelValues("solana")))
}

func TestIngestionDeduplicatesRedelivery(t *testing.T) {
	h := newIngestionHarness(t)
	ctx := context.Background()

	require.NoError(t, h.service.ProcessEvent(ctx, buyEvent("tx1", "w1")))
	require.NoError(t, h.service.ProcessEvent(ctx, buyEvent("tx1", "w1")))

	assert.Len(t, h.window.RecentByToken("mintX", 24*time.Hour), 1)
	assert.Equal(t, 1, h.txRepo.ids["solana:tx1"], "redelivery must not re-append")
	assert.Equal(t, float64(1), testutil.ToFloat64(h.registry.EventsDropped.WithLabelValues("duplicate")))
}

func TestIngestionDropsUnclassifiableQuietly(t *testing.T) {
	h := newIngestionHarness(t)

	ev := buyEvent("tx1", "w1")
	ev.Deltas = []entity.BalanceDelta{
		{Asset: "mintX", Symbol: "BONK", Pre: decimal.Zero, Post: decimal.NewFromInt(100)},
	}

	require.NoError(t, h.service.ProcessEvent(context.Background(), ev))
	assert.Empty(t, h.window.RecentByToken("mintX", 24*time.Hour))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.registry.EventsDropped.WithLabelValues("unclassifiable")))
}

func TestIngestionMalformedReturnsError(t *testing.T) {
	h := newIngestionHarness(t)

	ev := buyEvent("tx1", "")
	assert.Error(t, h.service.ProcessEvent(context.Background(), ev))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.registry.EventsDropped.WithLabelValues("malformed")))
}
