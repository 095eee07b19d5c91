package service

import (
	"context"
	"fmt"
	"sync"

	"crypto-alpha-tracker/internal/domain/entity"
	"crypto-alpha-tracker/internal/domain/repository"
	domainService "crypto-alpha-tracker/internal/domain/service"
	"crypto-alpha-tracker/internal/infrastructure/logger"
	"crypto-alpha-tracker/internal/infrastructure/metrics"

	"go.uber.org/zap"
)

// IngestionService normalizes raw chain events into canonical transactions
// and feeds them into the sliding window and the durable log. The window is
// the source of truth for detection; persistence failures are logged and
// never block ingestion.
type IngestionService struct {
	normalizer *domainService.Normalizer
	window     *domainService.WindowStore

	walletRepo repository.WalletRepository
	txRepo     repository.TransactionRepository

	metrics *metrics.Registry
	logger  *logger.Logger

	evictMu     sync.Mutex
	lastEvicted uint64
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(
	normalizer *domainService.Normalizer,
	window *domainService.WindowStore,
	walletRepo repository.WalletRepository,
	txRepo repository.TransactionRepository,
	reg *metrics.Registry,
	logger *logger.Logger,
) *IngestionService {
	return &IngestionService{
		normalizer: normalizer,
		window:     window,
		walletRepo: walletRepo,
		txRepo:     txRepo,
		metrics:    reg,
		logger:     logger.WithComponent("ingestion-service"),
	}
}

// ProcessEvent normalizes one raw event and records the resulting
// transactions. Unclassifiable events are dropped with a counted reason and
// a nil error; only malformed input returns an error to the caller.
func (s *IngestionService) ProcessEvent(ctx context.Context, ev *entity.RawEvent) error {
	s.metrics.EventsConsumed.WithLabelValues(ev.Chain).Inc()

	txs, dropReason := s.normalizer.Normalize(ev)
	if dropReason != "" {
		s.metrics.EventsDropped.WithLabelValues(dropReason).Inc()
		s.logger.Debug("Dropped raw event",
			zap.String("chain", ev.Chain),
			zap.String("tx_id", ev.TxID),
			zap.String("reason", dropReason))
		if dropReason == domainService.DropMalformed {
			return fmt.Errorf("malformed event %s: dropped", ev.TxID)
		}
		return nil
	}

	for _, tx := range txs {
		if !s.window.Record(tx) {
			// Duplicate delivery. The window already holds this transaction
			// and the durable log append is idempotent, so skip both.
			s.metrics.EventsDropped.WithLabelValues(domainService.DropDuplicate).Inc()
			continue
		}
		s.persist(ctx, tx)
	}

	entries, evicted := s.window.Stats()
	s.metrics.WindowEntries.Set(float64(entries))
	s.setEvictions(evicted)
	return nil
}

// persist writes the transaction and its wallet to storage, best effort.
func (s *IngestionService) persist(ctx context.Context, tx *entity.Transaction) {
	wallet := &entity.Wallet{
		Chain:     tx.Chain,
		Address:   tx.Wallet,
		Tier:      entity.TierUnknown,
		FirstSeen: tx.Timestamp,
		LastSeen:  tx.Timestamp,
		TxCount:   1,
	}
	if err := s.walletRepo.CreateOrUpdateWallet(ctx, wallet); err != nil {
		s.logger.Error("Failed to persist wallet",
			zap.String("wallet", tx.WalletID()),
			zap.Error(err))
	}
	if err := s.txRepo.AppendTransaction(ctx, tx); err != nil {
		s.logger.Error("Failed to append transaction",
			zap.String("tx_id", tx.ID),
			zap.Error(err))
	}
}

// setEvictions advances the monotonic eviction counter to the store's total.
func (s *IngestionService) setEvictions(total uint64) {
	s.evictMu.Lock()
	defer s.evictMu.Unlock()
	if total > s.lastEvicted {
		s.metrics.WindowEvictions.Add(float64(total - s.lastEvicted))
		s.lastEvicted = total
	}
}
