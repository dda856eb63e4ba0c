// Command aicounseld is the deliberation server entry point: it loads
// the YAML configuration, wires the adapter registry and decision
// graph stack, and serves the HTTP API until a shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"dev.aicounsel.server/internal/adapter"
	"dev.aicounsel.server/internal/cache"
	"dev.aicounsel.server/internal/config"
	"dev.aicounsel.server/internal/deliberation"
	"dev.aicounsel.server/internal/graph/integration"
	"dev.aicounsel.server/internal/graph/retriever"
	"dev.aicounsel.server/internal/graph/store"
	"dev.aicounsel.server/internal/graph/store/sqlitestore"
	"dev.aicounsel.server/internal/graph/worker"
	"dev.aicounsel.server/internal/server"
	"dev.aicounsel.server/internal/similarity"
	"dev.aicounsel.server/internal/transcript"
)

var (
	configPath  = flag.String("config", "config.yaml", "Path to configuration file (YAML)")
	port        = flag.String("port", "8080", "HTTP listen port")
	transcripts = flag.String("transcripts-dir", "transcripts", "Directory to write deliberation transcripts into")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.InfoLevel)

	if err := run(logger); err != nil {
		logger.WithError(err).Fatal("aicounseld exited with error")
	}
}

func run(logger *logrus.Logger) error {
	cfg, err := config.NewLoader(*configPath).Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build adapter registry: %w", err)
	}

	detector := similarity.NewDetector(logger)

	var (
		graphStore store.Store
		tiered     *cache.TieredCache
		graphWorker *worker.Worker
		graphInteg *integration.Integration
	)
	if cfg.DecisionGraph.Enabled {
		graphStore, err = sqlitestore.Open(cfg.DecisionGraph.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open decision graph store: %w", err)
		}

		tiered = cache.NewTieredCache(cfg.DecisionGraph.Cache.L1Capacity, cfg.DecisionGraph.Cache.L2Capacity, cfg.L1TTL())

		retr := retriever.New(graphStore, detector, tiered, cfg.DecisionGraph.QueryWindow, retriever.AdaptiveK{
			SmallDBMax:    cfg.DecisionGraph.AdaptiveK.SmallDBMax,
			MediumDBMax:   cfg.DecisionGraph.AdaptiveK.MediumDBMax,
			SmallResults:  cfg.DecisionGraph.AdaptiveK.SmallResults,
			MediumResults: cfg.DecisionGraph.AdaptiveK.MediumResults,
			LargeResults:  cfg.DecisionGraph.AdaptiveK.LargeResults,
		})

		graphWorker = worker.New(graphStore, detector, logger, 0, 0, cfg.DecisionGraph.EdgeSimilarityThreshold)
		graphWorker.Start()

		graphInteg = integration.New(retr, graphStore, tiered, graphWorker, cfg.DecisionGraph.MaxContextDecisions, cfg.DecisionGraph.ContextTokenBudget, integration.TierBoundaries{
			Strong:   cfg.DecisionGraph.TierBoundaries.Strong,
			Moderate: cfg.DecisionGraph.TierBoundaries.Moderate,
		})
	} else {
		logger.Info("decision graph disabled, deliberations will run without historical context")
		graphStore = noopStore{}
	}

	transcriptWriter := transcript.New(*transcripts)

	engine := deliberation.New(
		registry,
		cfg.Defaults,
		cfg.Deliberation.ConvergenceDetection,
		cfg.Deliberation.EarlyStopping,
		cfg.Deliberation.ToolSecurity,
		detector,
		graphInteg,
		transcriptWriter,
		deliberation.SummarizerSpec{
			AdapterName: cfg.Deliberation.Summarizer.AdapterName,
			ModelID:     cfg.Deliberation.Summarizer.ModelID,
		},
		logger,
	)

	srv := server.New(engine, graphStore, logger)

	httpServer := &http.Server{
		Addr:         ":" + *port,
		Handler:      srv.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Duration(cfg.Defaults.TimeoutPerRound*cfg.Defaults.MaxRounds+30) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("port", *port).Info("starting aicounsel deliberation server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if graphWorker != nil {
		graphWorker.Stop(10 * time.Second)
	}
	if graphStore != nil {
		if err := graphStore.Close(); err != nil {
			logger.WithError(err).Warn("failed to close decision graph store")
		}
	}

	logger.Info("server shutdown complete")
	return nil
}

// buildRegistry converts every configured adapter entry into a
// concrete adapter.Adapter via the factory and registers it by name.
func buildRegistry(cfg *config.Config, logger *logrus.Logger) (*adapter.Registry, error) {
	registry := adapter.NewRegistry()
	for name, a := range cfg.Adapters {
		spec := adapter.Spec{
			Name:                   name,
			Type:                   string(a.Type),
			Command:                a.Command,
			Args:                   a.Args,
			ProjectContextFlag:     a.ProjectContextFlag,
			PermissionEscalation:   a.PermissionEscalation,
			PermissionFlagTemplate: a.PermissionFlagTemplate,
			RefusalPhrase:          a.RefusalPhrase,
			ModelSearchDirs:        a.ModelSearchDirs,
			URL:                    a.URL,
			Shape:                  toAdapterShape(a.Shape),
			APIKey:                 a.APIKey,
			TimeoutSeconds:         a.TimeoutSeconds,
			MaxPromptLength:        a.MaxPromptLength,
			MaxRetries:             a.MaxRetries,
		}
		built, err := adapter.Build(spec, logger)
		if err != nil {
			return nil, fmt.Errorf("adapter %q: %w", name, err)
		}
		registry.Register(built)
	}
	return registry, nil
}

// noopStore backs the /decisions endpoint when the decision graph is
// disabled: every query returns an empty result instead of panicking
// on a nil store.Store.
type noopStore struct{}

func (noopStore) SaveDecision(store.DecisionNode) error                  { return nil }
func (noopStore) GetDecision(string) (*store.DecisionNode, error)        { return nil, nil }
func (noopStore) ListDecisions(int, int) ([]store.DecisionNode, error)   { return nil, nil }
func (noopStore) SaveStance(store.Stance) (int64, error)                 { return 0, nil }
func (noopStore) GetStances(string) ([]store.Stance, error)              { return nil, nil }
func (noopStore) SaveSimilarity(store.SimilarityEdge) error              { return nil }
func (noopStore) GetSimilar(string, float64, int) ([]store.ScoredNode, error) {
	return nil, nil
}
func (noopStore) Close() error { return nil }

func toAdapterShape(s config.HTTPShape) adapter.Shape {
	switch s {
	case config.HTTPShapeGenerate:
		return adapter.ShapeGenerate
	case config.HTTPShapeOpenAICompat:
		return adapter.ShapeOpenAICompatLocal
	case config.HTTPShapeOpenAICompatRem:
		return adapter.ShapeOpenAICompatHosted
	default:
		return adapter.ShapeGenerate
	}
}
