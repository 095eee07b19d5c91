package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	app_service "crypto-alpha-tracker/internal/application/service"
	"crypto-alpha-tracker/internal/domain/entity"
	"crypto-alpha-tracker/internal/domain/repository"
	domain_service "crypto-alpha-tracker/internal/domain/service"
	"crypto-alpha-tracker/internal/infrastructure/config"
	"crypto-alpha-tracker/internal/infrastructure/database"
	"crypto-alpha-tracker/internal/infrastructure/logger"
	"crypto-alpha-tracker/internal/infrastructure/messaging"
	"crypto-alpha-tracker/internal/infrastructure/metrics"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.NewLogger(cfg.App.LogLevel)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	// Create FX application
	app := fx.New(
		// Provide dependencies
		fx.Supply(cfg),
		fx.Supply(log),
		fx.Supply(&cfg.NATS),
		fx.Supply(&cfg.Neo4J),
		fx.Provide(func() *zap.Logger { return log.Logger }),

		// Infrastructure providers
		fx.Provide(
			metrics.NewRegistry,
			database.NewNeo4JClient,
			database.NewNeo4JWalletRepository,
			database.NewNeo4JTransactionRepository,
			database.NewNeo4JSnapshotRepository,
			func(natsCfg *config.NATSConfig, log *logger.Logger) *messaging.NATSConsumer {
				chains := make([]string, 0, len(cfg.Chains))
				for chain := range cfg.Chains {
					chains = append(chains, chain)
				}
				return messaging.NewNATSConsumer(natsCfg, chains, log)
			},
			messaging.NewNATSPublisher,
			func(p *messaging.NATSPublisher) app_service.AlertPublisher { return p },
		),

		// Domain services
		fx.Provide(
			func() *domain_service.Normalizer {
				return domain_service.NewNormalizer(cfg.Chains)
			},
			func() *domain_service.WindowStore {
				return domain_service.NewWindowStore(
					cfg.Analysis.RetentionHorizon,
					cfg.Analysis.MaxPerToken,
					cfg.Analysis.MaxPerWallet,
				)
			},
			func() *domain_service.CabalDetector {
				return domain_service.NewCabalDetector(cfg.Analysis)
			},
			func() *domain_service.LeadFollowerAnalyzer {
				return domain_service.NewLeadFollowerAnalyzer(cfg.Analysis)
			},
			func() *domain_service.TierScorer {
				return domain_service.NewTierScorer(cfg.Analysis, cfg.Tiers)
			},
			func() *domain_service.AlphaDecayTracker {
				return domain_service.NewAlphaDecayTracker(cfg.Analysis.DecayWindow)
			},
			func() *domain_service.PlayFinder {
				return domain_service.NewPlayFinder(cfg.Analysis)
			},
		),

		// Application providers
		fx.Provide(
			app_service.NewIngestionService,
			func(
				window *domain_service.WindowStore,
				cabal *domain_service.CabalDetector,
				leads *domain_service.LeadFollowerAnalyzer,
				scorer *domain_service.TierScorer,
				decay *domain_service.AlphaDecayTracker,
				finder *domain_service.PlayFinder,
				snapshotRepo repository.SnapshotRepository,
				walletRepo repository.WalletRepository,
				publisher app_service.AlertPublisher,
				reg *metrics.Registry,
				log *logger.Logger,
			) *app_service.DetectionService {
				return app_service.NewDetectionService(
					cfg.Analysis, window, cabal, leads, scorer, decay, finder,
					snapshotRepo, walletRepo, publisher, reg, log,
				)
			},
		),

		// Lifecycle hooks
		fx.Invoke(startIngestion),
		fx.Invoke(startDetection),
		fx.Invoke(startHealthServer),

		// Configure logging
		fx.WithLogger(func() fxevent.Logger {
			return fxevent.NopLogger
		}),
	)

	// Start the application
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start application", zap.Error(err))
		os.Exit(1)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down application...")

	// Stop the application
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Stop(stopCtx); err != nil {
		log.Error("Failed to stop application gracefully", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Application stopped successfully")
}

// startIngestion connects storage and messaging, seeds curated wallets and
// starts the ingestion worker pool and the outcome-feedback loop.
func startIngestion(
	lifecycle fx.Lifecycle,
	consumer *messaging.NATSConsumer,
	publisher *messaging.NATSPublisher,
	ingestion *app_service.IngestionService,
	detection *app_service.DetectionService,
	walletRepo repository.WalletRepository,
	neo4jClient *database.Neo4JClient,
	log *zap.Logger,
	cfg *config.Config,
) {
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting ingestion...")

			// Connect to Neo4J first
			if err := neo4jClient.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect to Neo4J: %w", err)
			}

			// Persist curated seed wallets so tier queries work from the
			// first cycle
			seedWallets(ctx, cfg, walletRepo, log)

			// Connect to NATS
			if err := consumer.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			if err := publisher.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect alert publisher: %w", err)
			}

			// Start ingestion workers
			for i := 0; i < cfg.App.WorkerPoolSize; i++ {
				wg.Add(1)
				go func(workerID int) {
					defer wg.Done()
					runIngestionWorker(workerCtx, workerID, consumer, ingestion, log)
				}(i)
			}

			// Start the outcome-feedback loop
			wg.Add(1)
			go func() {
				defer wg.Done()
				runOutcomeLoop(workerCtx, consumer, detection, log)
			}()

			log.Info("Ingestion started successfully",
				zap.Int("workers", cfg.App.WorkerPoolSize))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Stopping ingestion...")
			cancelWorkers()
			if err := consumer.Disconnect(); err != nil {
				log.Error("Failed to disconnect NATS consumer", zap.Error(err))
			}
			if err := publisher.Disconnect(); err != nil {
				log.Error("Failed to disconnect alert publisher", zap.Error(err))
			}
			wg.Wait()
			if err := neo4jClient.Close(ctx); err != nil {
				log.Error("Failed to close Neo4J connection", zap.Error(err))
			}
			return nil
		},
	})
}

// startDetection drives the periodic detection cycle.
func startDetection(
	lifecycle fx.Lifecycle,
	detection *app_service.DetectionService,
	log *zap.Logger,
	cfg *config.Config,
) {
	cycleCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting detection loop",
				zap.Duration("interval", cfg.Analysis.CycleInterval))
			go func() {
				defer close(done)
				detection.Run(cycleCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Stopping detection loop...")
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}

// startHealthServer serves health, metrics and snapshot endpoints.
func startHealthServer(
	lifecycle fx.Lifecycle,
	cfg *config.Config,
	reg *metrics.Registry,
	detection *app_service.DetectionService,
	logger *logger.Logger,
) {
	var server *http.Server

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting health server...", zap.Int("port", cfg.App.HTTPPort))

			mux := http.NewServeMux()
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"status":"ok"}`))
			})
			if cfg.Metrics.Enabled {
				mux.Handle("/metrics", reg.Handler())
			}
			mux.HandleFunc("/snapshot/clusters", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, detection.CurrentAssignment())
			})
			mux.HandleFunc("/snapshot/edges", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, detection.CurrentEdges())
			})
			mux.HandleFunc("/snapshot/tiers", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, detection.TierSnapshot())
			})

			server = &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.App.HTTPPort),
				Handler: mux,
			}

			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("Health server error", zap.Error(err))
				}
			}()

			logger.Info("Health server started successfully")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping health server...")
			if server != nil {
				return server.Shutdown(ctx)
			}
			return nil
		},
	})
}

// runIngestionWorker drains the raw-event channel into the ingestion service.
func runIngestionWorker(
	ctx context.Context,
	workerID int,
	consumer *messaging.NATSConsumer,
	ingestion *app_service.IngestionService,
	log *zap.Logger,
) {
	log.Info("Starting ingestion worker", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-consumer.Events():
			if ev == nil {
				// Channel closed
				return
			}
			if err := ingestion.ProcessEvent(ctx, ev); err != nil {
				log.Warn("Failed to process event",
					zap.Int("worker_id", workerID),
					zap.String("tx_id", ev.TxID),
					zap.Error(err))
			}
		}
	}
}

// runOutcomeLoop feeds realized-outcome messages into the decay tracker.
func runOutcomeLoop(
	ctx context.Context,
	consumer *messaging.NATSConsumer,
	detection *app_service.DetectionService,
	log *zap.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-consumer.Outcomes():
			if out == nil {
				return
			}
			detection.RecordOutcome(out.Wallet, entity.Outcome{
				SignalID:  out.SignalID,
				At:        out.At,
				Favorable: out.Favorable,
			})
		}
	}
}

// seedWallets persists the curated tier seed so labels and tiers survive
// restarts. Failures are logged; the in-memory scorer is seeded regardless.
func seedWallets(ctx context.Context, cfg *config.Config, walletRepo repository.WalletRepository, log *zap.Logger) {
	now := time.Now()
	for id, letter := range cfg.Tiers.Seed {
		tier := entity.Tier(letter)
		if !tier.Valid() {
			log.Warn("Skipping seed wallet with unknown tier",
				zap.String("wallet", id),
				zap.String("tier", letter))
			continue
		}
		chain, address := entity.SplitWalletID(id)
		wallet := &entity.Wallet{
			Chain:     chain,
			Address:   address,
			Label:     cfg.Tiers.Labels[id],
			Tier:      tier,
			FirstSeen: now,
			LastSeen:  now,
		}
		if err := walletRepo.CreateOrUpdateWallet(ctx, wallet); err != nil {
			log.Warn("Failed to persist seed wallet",
				zap.String("wallet", id),
				zap.Error(err))
			continue
		}
		if err := walletRepo.UpdateTier(ctx, chain, address, tier); err != nil {
			log.Warn("Failed to persist seed tier",
				zap.String("wallet", id),
				zap.Error(err))
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
