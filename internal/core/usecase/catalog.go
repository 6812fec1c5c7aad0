package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/toolrank-io/toolrank/internal/core/domain"
	"github.com/toolrank-io/toolrank/internal/core/ports"
)

type CatalogUseCase struct {
	tools   ports.ToolStore
	tasks   ports.SyncTaskStore
	queue   ports.SyncQueue
	storage ports.ObjectStorage
}

func NewCatalogUseCase(
	tools ports.ToolStore,
	tasks ports.SyncTaskStore,
	queue ports.SyncQueue,
	storage ports.ObjectStorage,
) *CatalogUseCase {
	return &CatalogUseCase{
		tools:   tools,
		tasks:   tasks,
		queue:   queue,
		storage: storage,
	}
}

func (uc *CatalogUseCase) ImportCatalog(ctx context.Context, filename string, body io.Reader) (*domain.SyncTaskRecord, error) {
	id := uuid.NewString()
	key := fmt.Sprintf("catalog/%s_%s", id, sanitizeUploadName(filename))

	if err := uc.storage.Save(ctx, key, body); err != nil {
		return nil, fmt.Errorf("save catalog upload: %w", err)
	}
	return uc.enqueue(ctx, domain.SyncTask{
		ID:        id,
		Type:      domain.TaskImportCatalog,
		ObjectKey: key,
		CreatedAt: time.Now().UTC(),
	})
}

func (uc *CatalogUseCase) AttachDatasheet(ctx context.Context, toolID, filename string, body io.Reader) (*domain.SyncTaskRecord, error) {
	if _, err := uc.tools.GetByID(ctx, toolID); err != nil {
		return nil, fmt.Errorf("resolve tool: %w", err)
	}

	id := uuid.NewString()
	key := fmt.Sprintf("datasheets/%s/%s_%s", toolID, id, sanitizeUploadName(filename))

	if err := uc.storage.Save(ctx, key, body); err != nil {
		return nil, fmt.Errorf("save datasheet upload: %w", err)
	}
	return uc.enqueue(ctx, domain.SyncTask{
		ID:        id,
		Type:      domain.TaskAttachDatasheet,
		ToolID:    toolID,
		ObjectKey: key,
		CreatedAt: time.Now().UTC(),
	})
}

func (uc *CatalogUseCase) enqueue(ctx context.Context, task domain.SyncTask) (*domain.SyncTaskRecord, error) {
	record := &domain.SyncTaskRecord{
		ID:        task.ID,
		Type:      task.Type,
		ToolID:    task.ToolID,
		ObjectKey: task.ObjectKey,
		Status:    domain.SyncStatusQueued,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.CreatedAt,
	}
	if err := uc.tasks.CreateTask(ctx, record); err != nil {
		return nil, fmt.Errorf("create sync task: %w", err)
	}
	if err := uc.queue.PublishSyncTask(ctx, task); err != nil {
		return nil, fmt.Errorf("publish sync task: %w", err)
	}
	return record, nil
}

func (uc *CatalogUseCase) GetTool(ctx context.Context, id string) (*domain.Tool, error) {
	return uc.tools.GetByID(ctx, id)
}

func (uc *CatalogUseCase) TaskStatus(ctx context.Context, id string) (*domain.SyncTaskRecord, error) {
	return uc.tasks.GetTask(ctx, id)
}

func sanitizeUploadName(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "upload.bin"
	}
	return base
}
