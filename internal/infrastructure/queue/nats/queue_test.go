package nats

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/toolrank-io/toolrank/internal/core/domain"
)

func TestDecodeSyncTask(t *testing.T) {
	task, err := decodeSyncTask([]byte(`{"id":"task-1","type":"reindex-tool","tool_id":"tool-9","created_at":"2026-03-01T10:00:00Z"}`))
	if err != nil {
		t.Fatalf("decodeSyncTask() error = %v", err)
	}
	if task.Type != domain.TaskReindexTool {
		t.Fatalf("expected reindex-tool, got %q", task.Type)
	}
	if task.ToolID != "tool-9" {
		t.Fatalf("expected tool-9, got %q", task.ToolID)
	}
	if task.CreatedAt != time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) {
		t.Fatalf("unexpected created_at %v", task.CreatedAt)
	}
}

func TestDecodeSyncTaskRejectsInvalidPayloads(t *testing.T) {
	if _, err := decodeSyncTask([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if _, err := decodeSyncTask([]byte(`{"tool_id":"tool-9"}`)); err == nil {
		t.Fatal("expected error for missing id and type")
	}
}

func TestClassifyMarksConnectionLossRetryable(t *testing.T) {
	class := classify(nats.ErrConnectionClosed)
	if !class.Retryable || !class.CountsAsFailure {
		t.Fatalf("expected retryable recorded failure, got %+v", class)
	}
}

func TestWrapTemporaryTagsOnlyRetryableErrors(t *testing.T) {
	err := wrapTemporary("nats publish", nats.ErrTimeout)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary for timeout, got %v", err)
	}

	plain := wrapTemporary("nats publish", nats.ErrBadSubject)
	if domain.IsKind(plain, domain.ErrTemporary) {
		t.Fatalf("expected non-retryable error to stay plain, got %v", plain)
	}
}
