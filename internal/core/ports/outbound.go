package ports

import (
	"context"
	"io"

	"github.com/toolrank-io/toolrank/internal/core/domain"
)

// StepFunc is one entry of the step registry. Parameters arrive merged: the
// plan's parameters plus any dependency output under domain.ParamInput.
type StepFunc func(ctx context.Context, exec domain.ExecutionContext, params map[string]any) (domain.StepOutput, error)

// StepRegistry resolves plan step names; read-only after startup.
type StepRegistry interface {
	Lookup(name string) (StepFunc, bool)
	Names() []string
}

// Embedder builds vectors for facet texts and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex searches and maintains the per-facet vector collections.
type VectorIndex interface {
	EnsureFacets(ctx context.Context) error
	IndexFacet(ctx context.Context, facet string, points []domain.FacetPoint) error
	SearchFacet(ctx context.Context, facet string, vector []float32, limit int) ([]domain.FacetHit, error)
	DeleteTool(ctx context.Context, facet, toolID string) error
}

// ToolStore resolves and persists catalog records.
type ToolStore interface {
	GetByID(ctx context.Context, id string) (*domain.Tool, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Tool, error)
	GetByName(ctx context.Context, name string) (*domain.Tool, error)
	Upsert(ctx context.Context, tool *domain.Tool) error
	SetDatasheet(ctx context.Context, id, text string) error
	SearchStructured(ctx context.Context, filter domain.StructuredFilter) ([]domain.Tool, error)
}

// SyncTaskStore tracks background task progress for polling callers.
type SyncTaskStore interface {
	CreateTask(ctx context.Context, task *domain.SyncTaskRecord) error
	GetTask(ctx context.Context, id string) (*domain.SyncTaskRecord, error)
	MarkTask(ctx context.Context, id string, status domain.SyncTaskStatus, errMessage string) error
}

// SyncQueue publishes/consumes catalog synchronization tasks.
type SyncQueue interface {
	PublishSyncTask(ctx context.Context, task domain.SyncTask) error
	SubscribeSyncTasks(ctx context.Context, handler func(context.Context, domain.SyncTask) error) error
}

// ObjectStorage stores uploaded catalog files and datasheets.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// DatasheetExtractor extracts plain text from an uploaded datasheet.
type DatasheetExtractor interface {
	Extract(ctx context.Context, filename string, data io.Reader) (string, error)
}

// CatalogParser parses a catalog spreadsheet into tool rows.
type CatalogParser interface {
	Parse(data io.Reader) ([]domain.CatalogRow, error)
}

// Chunker splits long datasheet text into indexable chunks.
type Chunker interface {
	Split(text string) []string
}

// RelationGraph serves context enrichment and receives edges during import.
type RelationGraph interface {
	RelatedTools(ctx context.Context, toolID string, limit int) ([]domain.ToolRelation, error)
	UpsertRelations(ctx context.Context, toolID, toolName string, relations []domain.CatalogRelation) error
}

// PlanSource produces the draft plan plus intent signals and confidence.
type PlanSource interface {
	BuildPlan(ctx context.Context, query string) (domain.PlanDraft, error)
}
