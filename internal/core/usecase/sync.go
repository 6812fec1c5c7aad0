package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/toolrank-io/toolrank/internal/core/domain"
	"github.com/toolrank-io/toolrank/internal/core/ports"
)

// Graph and Chunker are optional: without a graph relation upserts are
// skipped, without a chunker the semantic facet indexes one chunk per tool.
type SyncWorkerConfig struct {
	Logger    *slog.Logger
	Tools     ports.ToolStore
	Tasks     ports.SyncTaskStore
	Queue     ports.SyncQueue
	Storage   ports.ObjectStorage
	Parser    ports.CatalogParser
	Extractor ports.DatasheetExtractor
	Chunker   ports.Chunker
	Embedder  ports.Embedder
	Index     ports.VectorIndex
	Graph     ports.RelationGraph
}

func (c *SyncWorkerConfig) Validate() error {
	required := []struct {
		name string
		ok   bool
	}{
		{"tool store", c.Tools != nil},
		{"task store", c.Tasks != nil},
		{"sync queue", c.Queue != nil},
		{"object storage", c.Storage != nil},
		{"catalog parser", c.Parser != nil},
		{"datasheet extractor", c.Extractor != nil},
		{"embedder", c.Embedder != nil},
		{"vector index", c.Index != nil},
	}
	for _, dep := range required {
		if !dep.ok {
			return domain.WrapError(domain.ErrInvalidInput, "sync worker", fmt.Errorf("%s is required", dep.name))
		}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return nil
}

type SyncWorker struct {
	log       *slog.Logger
	tools     ports.ToolStore
	tasks     ports.SyncTaskStore
	queue     ports.SyncQueue
	storage   ports.ObjectStorage
	parser    ports.CatalogParser
	extractor ports.DatasheetExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	index     ports.VectorIndex
	graph     ports.RelationGraph
}

func NewSyncWorker(cfg SyncWorkerConfig) (*SyncWorker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SyncWorker{
		log:       cfg.Logger,
		tools:     cfg.Tools,
		tasks:     cfg.Tasks,
		queue:     cfg.Queue,
		storage:   cfg.Storage,
		parser:    cfg.Parser,
		extractor: cfg.Extractor,
		chunker:   cfg.Chunker,
		embedder:  cfg.Embedder,
		index:     cfg.Index,
		graph:     cfg.Graph,
	}, nil
}

// Run blocks until the context ends.
func (w *SyncWorker) Run(ctx context.Context) error {
	w.log.Info("sync worker started")
	if err := w.queue.SubscribeSyncTasks(ctx, w.Handle); err != nil {
		return fmt.Errorf("subscribe sync tasks: %w", err)
	}
	w.log.Info("sync worker stopping")
	return nil
}

// The returned error propagates to the queue's redelivery policy.
func (w *SyncWorker) Handle(ctx context.Context, task domain.SyncTask) error {
	log := w.log.With("task_id", task.ID, "task_type", string(task.Type))
	started := time.Now()

	if err := w.tasks.MarkTask(ctx, task.ID, domain.SyncStatusProcessing, ""); err != nil {
		log.Warn("set status=processing", "error", err)
	}

	if err := w.dispatch(ctx, task); err != nil {
		log.Error("sync task failed", "error", err, "duration", time.Since(started))
		if markErr := w.tasks.MarkTask(ctx, task.ID, domain.SyncStatusFailed, err.Error()); markErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, markErr)
		}
		return err
	}

	if err := w.tasks.MarkTask(ctx, task.ID, domain.SyncStatusDone, ""); err != nil {
		return fmt.Errorf("set status=done: %w", err)
	}
	log.Info("sync task done", "duration", time.Since(started))
	return nil
}

func (w *SyncWorker) dispatch(ctx context.Context, task domain.SyncTask) error {
	switch task.Type {
	case domain.TaskReindexTool:
		return w.reindexTool(ctx, task.ToolID)
	case domain.TaskImportCatalog:
		return w.importCatalog(ctx, task.ObjectKey)
	case domain.TaskAttachDatasheet:
		return w.attachDatasheet(ctx, task)
	default:
		return domain.WrapError(domain.ErrInvalidInput, "dispatch sync task", fmt.Errorf("unknown task type %q", task.Type))
	}
}

func (w *SyncWorker) reindexTool(ctx context.Context, toolID string) error {
	tool, err := w.tools.GetByID(ctx, toolID)
	if err != nil {
		return fmt.Errorf("fetch tool by id: %w", err)
	}
	for _, facet := range domain.AllFacets() {
		if err := w.indexFacet(ctx, *tool, facet); err != nil {
			return err
		}
	}
	return nil
}

// Stale points are dropped first; shrinking texts must not leave orphaned chunks.
func (w *SyncWorker) indexFacet(ctx context.Context, tool domain.Tool, facet string) error {
	if err := w.index.DeleteTool(ctx, facet, tool.ID); err != nil {
		return fmt.Errorf("drop stale %s points: %w", facet, err)
	}

	text := tool.FacetText(facet)
	if text == "" {
		return nil
	}

	chunks := []string{text}
	if facet == domain.SourceSemantic && w.chunker != nil {
		chunks = w.chunker.Split(text)
		if len(chunks) == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "chunk facet text", errors.New("chunking produced zero chunks"))
		}
	}

	vectors, err := w.embedder.Embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embed %s facet: %w", facet, err)
	}
	if len(vectors) != len(chunks) {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"embed facet",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}

	payload := tool.IndexPayload()
	points := make([]domain.FacetPoint, 0, len(vectors))
	for i, vector := range vectors {
		points = append(points, domain.FacetPoint{
			ToolID:     tool.ID,
			ChunkIndex: i,
			Vector:     vector,
			Payload:    payload,
		})
	}
	if err := w.index.IndexFacet(ctx, facet, points); err != nil {
		return fmt.Errorf("index %s facet: %w", facet, err)
	}
	return nil
}

// Row failures are isolated; the task fails only when no row imports at all.
func (w *SyncWorker) importCatalog(ctx context.Context, objectKey string) error {
	file, err := w.storage.Open(ctx, objectKey)
	if err != nil {
		return fmt.Errorf("open catalog upload: %w", err)
	}
	defer file.Close()

	rows, err := w.parser.Parse(file)
	if err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	if len(rows) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "import catalog", errors.New("catalog has no rows"))
	}

	imported := 0
	for i, row := range rows {
		if err := w.importRow(ctx, row); err != nil {
			w.log.Warn("catalog row skipped", "row", i+1, "tool", row.Tool.Name, "error", err)
			continue
		}
		imported++
	}
	if imported == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "import catalog", fmt.Errorf("all %d rows failed", len(rows)))
	}
	w.log.Info("catalog imported", "rows", len(rows), "imported", imported)
	return nil
}

func (w *SyncWorker) importRow(ctx context.Context, row domain.CatalogRow) error {
	tool := row.Tool
	if tool.Name == "" {
		return domain.WrapError(domain.ErrInvalidInput, "import row", errors.New("row has no tool name"))
	}
	if tool.ID == "" {
		// Re-imports keep ids stable by resolving the name first.
		if existing, err := w.tools.GetByName(ctx, tool.Name); err == nil && existing != nil {
			tool.ID = existing.ID
			tool.CreatedAt = existing.CreatedAt
		} else {
			tool.ID = uuid.NewString()
		}
	}
	now := time.Now().UTC()
	if tool.CreatedAt.IsZero() {
		tool.CreatedAt = now
	}
	tool.UpdatedAt = now

	if err := w.tools.Upsert(ctx, &tool); err != nil {
		return fmt.Errorf("upsert tool: %w", err)
	}
	if w.graph != nil && len(row.Relations) > 0 {
		if err := w.graph.UpsertRelations(ctx, tool.ID, tool.Name, row.Relations); err != nil {
			w.log.Warn("relation upsert failed", "tool", tool.Name, "error", err)
		}
	}
	return w.enqueueReindex(ctx, tool.ID)
}

func (w *SyncWorker) ReindexAll(ctx context.Context, toolIDs []string) int {
	enqueued := 0
	for _, id := range toolIDs {
		if err := w.enqueueReindex(ctx, id); err != nil {
			w.log.Warn("reindex enqueue failed", "tool_id", id, "error", err)
			continue
		}
		enqueued++
	}
	return enqueued
}

func (w *SyncWorker) enqueueReindex(ctx context.Context, toolID string) error {
	now := time.Now().UTC()
	task := domain.SyncTask{
		ID:        uuid.NewString(),
		Type:      domain.TaskReindexTool,
		ToolID:    toolID,
		CreatedAt: now,
	}
	record := &domain.SyncTaskRecord{
		ID:        task.ID,
		Type:      task.Type,
		ToolID:    toolID,
		Status:    domain.SyncStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := w.tasks.CreateTask(ctx, record); err != nil {
		return fmt.Errorf("create reindex task: %w", err)
	}
	if err := w.queue.PublishSyncTask(ctx, task); err != nil {
		return fmt.Errorf("publish reindex task: %w", err)
	}
	return nil
}

func (w *SyncWorker) attachDatasheet(ctx context.Context, task domain.SyncTask) error {
	file, err := w.storage.Open(ctx, task.ObjectKey)
	if err != nil {
		return fmt.Errorf("open datasheet upload: %w", err)
	}
	defer file.Close()

	text, err := w.extractor.Extract(ctx, filepath.Base(task.ObjectKey), file)
	if err != nil {
		return fmt.Errorf("extract datasheet text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "extract datasheet text", errors.New("empty extracted text"))
	}

	if err := w.tools.SetDatasheet(ctx, task.ToolID, text); err != nil {
		return fmt.Errorf("save datasheet: %w", err)
	}
	tool, err := w.tools.GetByID(ctx, task.ToolID)
	if err != nil {
		return fmt.Errorf("fetch tool by id: %w", err)
	}
	return w.indexFacet(ctx, *tool, domain.SourceSemantic)
}
