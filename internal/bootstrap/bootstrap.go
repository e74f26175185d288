package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/evidence-rag/internal/config"
	"github.com/kirillkom/evidence-rag/internal/core/domain"
	"github.com/kirillkom/evidence-rag/internal/core/ports"
	"github.com/kirillkom/evidence-rag/internal/core/usecase"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/embedcache"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/extractor"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/extractor/xlsx"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/queue/inline"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/source/fsdir"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/source/gitrepo"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/vector/memory"
	"github.com/kirillkom/evidence-rag/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue   ports.SyncJobQueue
	SyncUC  *usecase.SyncUseCase
	QueryUC *usecase.QueryUseCase

	closeFns []func()
}

// searchableStore is a vector index that also serves the lexical, pattern
// and path strategies.
type searchableStore interface {
	ports.VectorStore
	ports.LexicalSearcher
	ports.PatternSearcher
	ports.MetadataSearcher
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	executor := resilience.NewExecutor(resilienceConfig(cfg), resilience.WithLogger(logger))

	stateStore, err := app.newStateStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	vectors, err := newVectorStore(cfg, executor)
	if err != nil {
		app.Close()
		return nil, err
	}

	queue, err := app.newQueue(cfg, executor)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Queue = queue

	ollamaClient := ollama.New(
		cfg.OllamaURL,
		cfg.OllamaGenModel,
		cfg.OllamaEmbedModel,
		executor,
		ollama.WithThinking(cfg.OllamaThink),
	)
	embedder := embedcache.New(ollama.NewEmbedder(ollamaClient), cfg.EmbedCacheSize)
	generator := ollama.NewGenerator(ollamaClient)
	var classifier ports.IntentClassifier
	if cfg.IntentEnabled {
		classifier = ollama.NewIntentClassifier(ollamaClient)
	}

	sources, err := newSources(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.SyncUC = usecase.NewSyncUseCase(
		sources,
		stateStore,
		newExtractor(logger),
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		vectors,
		usecase.SyncOptions{
			DeleteBatchSize: cfg.SyncDeleteBatchSize,
			EmbedBatchSize:  cfg.SyncEmbedBatchSize,
			Workers:         cfg.SyncWorkers,
		},
		logger,
	)

	modes, err := modeStrategies(cfg.RAGModeStrategies)
	if err != nil {
		app.Close()
		return nil, err
	}
	router := usecase.NewRouter([]ports.Retriever{
		usecase.NewSemanticRetriever(embedder, vectors),
		usecase.NewLexicalRetriever(vectors),
		usecase.NewPatternRetriever(vectors),
		usecase.NewFileLookupRetriever(vectors),
	}, usecase.RouterOptions{
		Modes:           modes,
		ConfidenceFloor: cfg.RAGIntentConfidenceFloor,
	})

	queryOpts, err := queryOptions(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.QueryUC = usecase.NewQueryUseCase(router, classifier, generator, queryOpts, logger)

	return app, nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	if cfg.RetryMaxAttempts > 0 {
		rc.RetryMaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryInitialBackoff > 0 {
		rc.RetryInitialBackoff = cfg.RetryInitialBackoff
	}
	if cfg.RetryMaxBackoff > 0 {
		rc.RetryMaxBackoff = cfg.RetryMaxBackoff
	}
	if cfg.CapacityBackoffMultiplier > 0 {
		rc.CapacityBackoffMultiplier = cfg.CapacityBackoffMultiplier
	}
	rc.BreakerEnabled = cfg.BreakerEnabled
	return rc
}

func (a *App) newStateStore(ctx context.Context, cfg config.Config) (ports.SyncStateStore, error) {
	switch cfg.StateBackend {
	case "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.onClose(func() { closeDB(db) })
		repo := postgres.NewSyncStateRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	case "localfs":
		store, err := localfs.New(cfg.StatePath)
		if err != nil {
			return nil, fmt.Errorf("init state storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}

func closeDB(db *sql.DB) {
	_ = db.Close()
}

func newVectorStore(cfg config.Config, executor *resilience.Executor) (searchableStore, error) {
	switch cfg.VectorBackend {
	case "qdrant":
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor), nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

func (a *App) newQueue(cfg config.Config, executor *resilience.Executor) (ports.SyncJobQueue, error) {
	switch cfg.QueueBackend {
	case "nats":
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             a.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		a.onClose(queue.Close)
		return queue, nil
	case "inline":
		return inline.New(len(cfg.Sources)*2, a.Logger), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}

func newSources(cfg config.Config) (map[string]ports.SourceEnumerator, error) {
	sources := make(map[string]ports.SourceEnumerator, len(cfg.Sources))
	for _, src := range cfg.Sources {
		switch src.Kind {
		case config.SourceKindFS:
			sources[src.ID] = fsdir.New(src.ID, src.Path, fsdir.Options{
				Extensions:  src.Extensions,
				MaxFileSize: cfg.SyncMaxFileSize,
			})
		case config.SourceKindGit:
			sources[src.ID] = gitrepo.New(src.ID, src.Path, gitrepo.Options{
				Branch:      src.Branch,
				Extensions:  src.Extensions,
				MaxFileSize: cfg.SyncMaxFileSize,
			})
		default:
			return nil, fmt.Errorf("source %q: unknown kind %q", src.ID, src.Kind)
		}
	}
	return sources, nil
}

func newExtractor(logger *slog.Logger) ports.TextExtractor {
	return extractor.NewRouter(plaintext.NewExtractor()).
		Register(pdf.NewExtractor(logger), ".pdf").
		Register(xlsx.NewExtractor(), ".xlsx", ".xlsm")
}

func modeStrategies(raw map[string][]string) (map[domain.RouteMode][]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[domain.RouteMode][]string, len(raw))
	for name, strategies := range raw {
		mode := domain.RouteMode(name)
		switch mode {
		case domain.RouteFileLookup, domain.RouteChunk, domain.RouteBroad:
		default:
			return nil, fmt.Errorf("unknown retrieval mode %q", name)
		}
		out[mode] = strategies
	}
	return out, nil
}

func queryOptions(cfg config.Config) (usecase.QueryOptions, error) {
	rule := domain.FusionRule(cfg.RAGFusionRule)
	switch rule {
	case "", domain.FusionReciprocalRank, domain.FusionWeightedScore:
	default:
		return usecase.QueryOptions{}, fmt.Errorf("unknown fusion rule %q", cfg.RAGFusionRule)
	}
	return usecase.QueryOptions{
		TopK:            cfg.RAGTopK,
		BroadTopKFactor: cfg.RAGBroadTopKFactor,
		Fusion: usecase.FusionOptions{
			Rule:    rule,
			Weights: cfg.RAGFusionWeights,
			RRFK:    cfg.RAGFusionRRFK,
			Dedup:   cfg.RAGFusionDedup,
		},
		PostProcess: usecase.PostProcessOptions{
			SimilarityCutoff: cfg.RAGSimilarityCutoff,
			RerankEnabled:    cfg.RAGRerankEnabled,
			RerankTopN:       cfg.RAGRerankTopN,
		},
		FallbackMinScore:          cfg.RAGFallbackMinScore,
		RetrieverTimeout:          cfg.RAGRetrieverTimeout,
		SkipUnderstandingMaxWords: cfg.RAGSkipUnderstandingWords,
		HistoryDirectMaxTurns:     cfg.RAGHistoryDirectMaxTurns,
		HistoryConcatMaxTurns:     cfg.RAGHistoryConcatMaxTurns,
	}, nil
}
