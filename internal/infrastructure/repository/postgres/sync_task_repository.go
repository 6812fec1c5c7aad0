package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/toolrank-io/toolrank/internal/core/domain"
)

type SyncTaskRepository struct {
	db *sql.DB
}

func NewSyncTaskRepository(db *sql.DB) *SyncTaskRepository {
	return &SyncTaskRepository{db: db}
}

func (r *SyncTaskRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLock); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS sync_tasks (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	tool_id TEXT NOT NULL DEFAULT '',
	object_key TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_tasks_status ON sync_tasks(status);
CREATE INDEX IF NOT EXISTS idx_sync_tasks_created_at ON sync_tasks(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *SyncTaskRepository) CreateTask(ctx context.Context, task *domain.SyncTaskRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sync_tasks (id, type, tool_id, object_key, status, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, task.ID, string(task.Type), task.ToolID, task.ObjectKey, string(task.Status), task.Error, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create sync task: %w", err)
	}
	return nil
}

func (r *SyncTaskRepository) GetTask(ctx context.Context, id string) (*domain.SyncTaskRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, type, tool_id, object_key, status, error_message, created_at, updated_at
FROM sync_tasks
WHERE id = $1
`, id)

	record, err := scanSyncTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sync task %s: %w", id, domain.ErrTaskNotFound)
		}
		return nil, fmt.Errorf("get sync task: %w", err)
	}
	return &record, nil
}

func (r *SyncTaskRepository) MarkTask(ctx context.Context, id string, status domain.SyncTaskStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE sync_tasks
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark sync task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark sync task rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("sync task %s: %w", id, domain.ErrTaskNotFound)
	}
	return nil
}

type syncTaskScanner interface {
	Scan(dest ...interface{}) error
}

func scanSyncTask(row syncTaskScanner) (domain.SyncTaskRecord, error) {
	var record domain.SyncTaskRecord
	var taskType, status string

	err := row.Scan(
		&record.ID,
		&taskType,
		&record.ToolID,
		&record.ObjectKey,
		&status,
		&record.Error,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return domain.SyncTaskRecord{}, err
	}
	record.Type = domain.SyncTaskType(taskType)
	record.Status = domain.SyncTaskStatus(status)
	return record, nil
}
