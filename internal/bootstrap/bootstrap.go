package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/toolrank-io/toolrank/internal/config"
	"github.com/toolrank-io/toolrank/internal/core/ports"
	"github.com/toolrank-io/toolrank/internal/core/usecase"
	"github.com/toolrank-io/toolrank/internal/infrastructure/catalog"
	"github.com/toolrank-io/toolrank/internal/infrastructure/chunking"
	"github.com/toolrank-io/toolrank/internal/infrastructure/embedding"
	"github.com/toolrank-io/toolrank/internal/infrastructure/extractor"
	"github.com/toolrank-io/toolrank/internal/infrastructure/graph/neo4j"
	"github.com/toolrank-io/toolrank/internal/infrastructure/llm/ollama"
	"github.com/toolrank-io/toolrank/internal/infrastructure/queue/nats"
	"github.com/toolrank-io/toolrank/internal/infrastructure/repository/postgres"
	"github.com/toolrank-io/toolrank/internal/infrastructure/resilience"
	"github.com/toolrank-io/toolrank/internal/infrastructure/storage/localfs"
	"github.com/toolrank-io/toolrank/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config   config.Config
	Tunables config.Tunables
	Log      *slog.Logger

	SearchUC  *usecase.SearchService
	CatalogUC *usecase.CatalogUseCase
	WorkerUC  *usecase.SyncWorker

	Queue    *nats.Queue
	ToolRepo *postgres.ToolRepository

	db         *sql.DB
	executor   *usecase.PlanExecutor
	graph      *neo4j.RelationGraph
	embedCache *embedding.CachedEmbedder
}

// New wires the dependency graph. Postgres, NATS and Qdrant must be reachable;
// a missing Neo4j only disables context enrichment and relation upserts.
func New(ctx context.Context, cfg config.Config, tun config.Tunables, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	a := &App{Config: cfg, Tunables: tun, Log: log}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	a.db = db

	toolRepo := postgres.NewToolRepository(db)
	if err := toolRepo.EnsureSchema(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("ensure tools schema: %w", err)
	}
	taskRepo := postgres.NewSyncTaskRepository(db)
	if err := taskRepo.EnsureSchema(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("ensure sync tasks schema: %w", err)
	}
	a.ToolRepo = toolRepo

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Logger:     log,
		Resilience: dependencyPolicy(log, "nats"),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init sync queue: %w", err)
	}
	a.Queue = queue

	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		Resilience: dependencyPolicy(log, "ollama"),
	})
	planner := ollama.NewPlanner(ollamaClient, log)

	embedCache := embedding.NewCachedEmbedder(
		ollamaClient,
		time.Duration(cfg.EmbedCacheTTLSeconds)*time.Second,
		uint64(cfg.EmbedCacheCapacity),
	)
	a.embedCache = embedCache

	vectorIndex := qdrant.NewWithOptions(cfg.QdrantURL, cfg.QdrantCollectionPrefix, cfg.QdrantVectorSize, qdrant.Options{
		Resilience: dependencyPolicy(log, "qdrant"),
	})
	if err := vectorIndex.EnsureFacets(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("ensure vector facets: %w", err)
	}

	var relGraph ports.RelationGraph
	graph, err := neo4j.New(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
	if err != nil {
		log.Warn("neo4j unavailable, running without relation graph", "error", err)
	} else {
		a.graph = graph
		relGraph = graph
	}

	registry, err := usecase.NewStepRegistry(usecase.StepDeps{
		Logger:   log,
		Embedder: embedCache,
		Index:    vectorIndex,
		Tools:    toolRepo,
		Graph:    relGraph,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build step registry: %w", err)
	}

	executor, err := usecase.NewPlanExecutor(usecase.ExecutorConfig{
		Logger:   log,
		Registry: registry,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build plan executor: %w", err)
	}
	a.executor = executor

	searchUC, err := usecase.NewSearchService(usecase.SearchServiceConfig{
		Logger:         log,
		Planner:        planner,
		Executor:       executor,
		Fusion:         usecase.NewFusionEngine(log),
		Skipper:        usecase.NewStageSkipper(log, tun.SkipGains),
		Dedup:          tun.Dedup,
		ResultSetMerge: tun.ResultSetMerge,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build search service: %w", err)
	}
	a.SearchUC = searchUC

	a.CatalogUC = usecase.NewCatalogUseCase(toolRepo, taskRepo, queue, storage)

	workerUC, err := usecase.NewSyncWorker(usecase.SyncWorkerConfig{
		Logger:    log,
		Tools:     toolRepo,
		Tasks:     taskRepo,
		Queue:     queue,
		Storage:   storage,
		Parser:    catalog.NewXLSXParser(),
		Extractor: extractor.New(),
		Chunker:   chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		Embedder:  embedCache,
		Index:     vectorIndex,
		Graph:     relGraph,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build sync worker: %w", err)
	}
	a.WorkerUC = workerUC

	return a, nil
}

func dependencyPolicy(log *slog.Logger, name string) *resilience.Policy {
	policy := resilience.DefaultPolicy()
	policy.Logger = log.With("dependency", name)
	return &policy
}

// Close is safe to call on a partially constructed App.
func (a *App) Close() {
	if a.executor != nil {
		a.executor.Close()
	}
	if a.Queue != nil {
		a.Queue.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.graph != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.graph.Close(ctx)
		cancel()
	}
	if a.embedCache != nil {
		a.embedCache.Stop()
	}
}
