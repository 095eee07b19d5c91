package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"crypto-alpha-tracker/internal/domain/entity"
	"crypto-alpha-tracker/internal/domain/repository"
	domainService "crypto-alpha-tracker/internal/domain/service"
	"crypto-alpha-tracker/internal/infrastructure/config"
	"crypto-alpha-tracker/internal/infrastructure/logger"
	"crypto-alpha-tracker/internal/infrastructure/metrics"

	"go.uber.org/zap"
)

// AlertPublisher publishes alerts to the outbound stream.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert *entity.Alert) error
}

// DetectionService runs the periodic analysis cycle over the sliding window:
// tier feedback, cluster detection, lead/follower correlation and alert
// aggregation. A cycle commits all of its derived state or none of it; a
// cycle aborted mid-flight leaves the previously committed state serving.
type DetectionService struct {
	cfg config.AnalysisConfig

	window *domainService.WindowStore
	cabal  *domainService.CabalDetector
	leads  *domainService.LeadFollowerAnalyzer
	scorer *domainService.TierScorer
	decay  *domainService.AlphaDecayTracker
	finder *domainService.PlayFinder

	snapshotRepo repository.SnapshotRepository
	walletRepo   repository.WalletRepository
	publisher    AlertPublisher

	metrics *metrics.Registry
	logger  *logger.Logger

	running atomic.Bool

	mu         sync.RWMutex
	assignment *entity.ClusterAssignment
	edges      []*entity.LeadEdge
}

// NewDetectionService creates a new detection service
func NewDetectionService(
	cfg config.AnalysisConfig,
	window *domainService.WindowStore,
	cabal *domainService.CabalDetector,
	leads *domainService.LeadFollowerAnalyzer,
	scorer *domainService.TierScorer,
	decay *domainService.AlphaDecayTracker,
	finder *domainService.PlayFinder,
	snapshotRepo repository.SnapshotRepository,
	walletRepo repository.WalletRepository,
	publisher AlertPublisher,
	reg *metrics.Registry,
	logger *logger.Logger,
) *DetectionService {
	return &DetectionService{
		cfg:          cfg,
		window:       window,
		cabal:        cabal,
		leads:        leads,
		scorer:       scorer,
		decay:        decay,
		finder:       finder,
		snapshotRepo: snapshotRepo,
		walletRepo:   walletRepo,
		publisher:    publisher,
		metrics:      reg,
		logger:       logger.WithComponent("detection-service"),
		assignment:   entity.EmptyClusterAssignment(time.Now()),
	}
}

// Run drives detection cycles on a fixed interval until ctx is cancelled.
func (s *DetectionService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle executes one detection cycle. If the previous cycle is still
// running the tick is skipped, never queued.
func (s *DetectionService) RunCycle(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.CyclesTotal.WithLabelValues("skipped").Inc()
		s.logger.Warn("Skipping detection cycle, previous cycle still running")
		return
	}
	defer s.running.Store(false)

	// A panicking detector aborts the cycle instead of taking the service
	// down; the previously committed state keeps serving.
	defer func() {
		if r := recover(); r != nil {
			s.abortCycle(fmt.Sprintf("panic in detection cycle: %v", r))
		}
	}()

	started := time.Now()
	now := started

	s.applyTierFeedback(ctx, now)

	snap := s.window.Snapshot()

	if ctx.Err() != nil {
		s.abortCycle("context cancelled before cluster detection")
		return
	}
	assignment := s.cabal.Detect(snap, now)

	if ctx.Err() != nil {
		s.abortCycle("context cancelled before lead analysis")
		return
	}
	leadRes := s.leads.Analyze(snap, now)

	if ctx.Err() != nil {
		s.abortCycle("context cancelled before commit")
		return
	}

	// Commit point. Everything below must see the new state together.
	s.leads.Commit(leadRes)
	edges := s.leads.Edges()
	s.mu.Lock()
	s.assignment = assignment
	s.edges = edges
	s.mu.Unlock()

	s.metrics.ActiveClusters.Set(float64(len(assignment.Clusters)))
	s.metrics.LeadEdges.Set(float64(len(edges)))

	alerts, suppressed := s.finder.FindPlays(assignment, edges, s.scorer, s.decay, snap, now)
	s.metrics.AlertsSuppressed.Add(float64(suppressed))
	s.publishAlerts(ctx, alerts)

	s.persistSnapshots(ctx, assignment, edges)

	s.metrics.CyclesTotal.WithLabelValues("committed").Inc()
	s.metrics.CycleDuration.Observe(time.Since(started).Seconds())
	s.logger.Info("Detection cycle committed",
		zap.Int("clusters", len(assignment.Clusters)),
		zap.Int("edges", len(edges)),
		zap.Int("alerts", len(alerts)),
		zap.Int("suppressed", suppressed),
		zap.Duration("took", time.Since(started)))
}

// RecordOutcome feeds one signal outcome into the decay tracker. Tier
// consequences are applied on the next cycle, not immediately.
func (s *DetectionService) RecordOutcome(wallet string, outcome entity.Outcome) {
	s.decay.RecordOutcome(wallet, outcome)
}

// CurrentAssignment returns the last committed cluster assignment.
func (s *DetectionService) CurrentAssignment() *entity.ClusterAssignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assignment
}

// CurrentEdges returns the last committed lead/follower edges.
func (s *DetectionService) CurrentEdges() []*entity.LeadEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edges
}

// TierSnapshot returns the current wallet tier map.
func (s *DetectionService) TierSnapshot() map[string]entity.Tier {
	return s.scorer.Snapshot()
}

func (s *DetectionService) abortCycle(reason string) {
	s.metrics.CyclesTotal.WithLabelValues("aborted").Inc()
	s.logger.Warn("Detection cycle aborted", zap.String("reason", reason))
}

// applyTierFeedback walks the decay records and promotes or demotes wallets
// whose recent hit rate crossed a threshold.
func (s *DetectionService) applyTierFeedback(ctx context.Context, now time.Time) {
	for _, rec := range s.decay.Records(now) {
		change, ok := s.scorer.ApplyDecayFeedback(rec)
		if !ok {
			continue
		}
		direction := "demote"
		if change.Promoted {
			direction = "promote"
		}
		s.metrics.TierTransitions.WithLabelValues(direction).Inc()
		s.logger.Info("Wallet tier transition",
			zap.String("wallet", change.Wallet),
			zap.String("from", string(change.From)),
			zap.String("to", string(change.To)),
			zap.Float64("hit_rate", rec.HitRate),
			zap.Int("samples", rec.Samples))

		chain, address := entity.SplitWalletID(change.Wallet)
		if err := s.walletRepo.UpdateTier(ctx, chain, address, change.To); err != nil {
			s.logger.Error("Failed to persist tier transition",
				zap.String("wallet", change.Wallet),
				zap.Error(err))
		}
	}
}

func (s *DetectionService) publishAlerts(ctx context.Context, alerts []*entity.Alert) {
	for _, alert := range alerts {
		if err := s.publisher.PublishAlert(ctx, alert); err != nil {
			s.logger.Error("Failed to publish alert",
				zap.String("alert_id", alert.ID),
				zap.String("kind", string(alert.Kind)),
				zap.Error(err))
			continue
		}
		s.metrics.AlertsEmitted.WithLabelValues(string(alert.Kind)).Inc()
	}
}

// persistSnapshots writes the committed cycle outputs to storage. The window
// remains the source of truth, so failures here degrade durability only.
func (s *DetectionService) persistSnapshots(ctx context.Context, assignment *entity.ClusterAssignment, edges []*entity.LeadEdge) {
	if err := s.snapshotRepo.ReplaceClusterAssignment(ctx, assignment); err != nil {
		s.logger.Error("Failed to persist cluster assignment", zap.Error(err))
	}
	if err := s.snapshotRepo.ReplaceLeadEdges(ctx, edges); err != nil {
		s.logger.Error("Failed to persist lead edges", zap.Error(err))
	}
}
