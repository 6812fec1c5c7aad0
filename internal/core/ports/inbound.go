package ports

import (
	"context"
	"io"

	"github.com/toolrank-io/toolrank/internal/core/domain"
)

// ToolSearcher is the inbound contract for retrieval orchestration. Failures
// after planning degrade the outcome; only failing to plan is an error.
type ToolSearcher interface {
	Search(ctx context.Context, req domain.SearchRequest) (domain.SearchOutcome, error)
}

// ToolReader is the inbound read model for catalog records.
type ToolReader interface {
	GetTool(ctx context.Context, id string) (*domain.Tool, error)
}

// CatalogIngestor accepts catalog uploads and enqueues their processing.
type CatalogIngestor interface {
	ImportCatalog(ctx context.Context, filename string, body io.Reader) (*domain.SyncTaskRecord, error)
	AttachDatasheet(ctx context.Context, toolID, filename string, body io.Reader) (*domain.SyncTaskRecord, error)
}

// SyncTaskReader exposes background task progress for polling.
type SyncTaskReader interface {
	TaskStatus(ctx context.Context, id string) (*domain.SyncTaskRecord, error)
}

// SyncProcessor handles one queued sync task end to end.
type SyncProcessor interface {
	Handle(ctx context.Context, task domain.SyncTask) error
}
