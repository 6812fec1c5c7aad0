package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/toolrank-io/toolrank/internal/core/domain"
)

func newTaskRepoWithMock(t *testing.T) (*SyncTaskRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &SyncTaskRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestCreateTaskInsertsRecord(t *testing.T) {
	repo, mock, done := newTaskRepoWithMock(t)
	defer done()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO sync_tasks").
		WithArgs("task-1", "import-catalog", "", "catalog/task-1_file.xlsx", "queued", "", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateTask(context.Background(), &domain.SyncTaskRecord{
		ID:        "task-1",
		Type:      domain.TaskImportCatalog,
		ObjectKey: "catalog/task-1_file.xlsx",
		Status:    domain.SyncStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetTaskReturnsTaskNotFound(t *testing.T) {
	repo, mock, done := newTaskRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, type, tool_id, object_key").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetTask(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetTaskScansRecord(t *testing.T) {
	repo, mock, done := newTaskRepoWithMock(t)
	defer done()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, type, tool_id, object_key").
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "type", "tool_id", "object_key", "status", "error_message", "created_at", "updated_at",
		}).AddRow("task-1", "reindex-tool", "tool-1", "", "failed", "embed: model offline", now, now))

	record, err := repo.GetTask(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if record.Type != domain.TaskReindexTool {
		t.Fatalf("expected type reindex-tool, got %q", record.Type)
	}
	if record.Status != domain.SyncStatusFailed {
		t.Fatalf("expected status failed, got %q", record.Status)
	}
	if record.Error != "embed: model offline" {
		t.Fatalf("expected error message, got %q", record.Error)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkTaskReturnsNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newTaskRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE sync_tasks").
		WithArgs("missing", "done", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkTask(context.Background(), "missing", domain.SyncStatusDone, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
