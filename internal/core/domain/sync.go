package domain

import "time"

type SyncTaskType string

const (
	TaskReindexTool     SyncTaskType = "reindex-tool"
	TaskImportCatalog   SyncTaskType = "import-catalog"
	TaskAttachDatasheet SyncTaskType = "attach-datasheet"
)

type SyncTask struct {
	ID        string       `json:"id"`
	Type      SyncTaskType `json:"type"`
	ToolID    string       `json:"tool_id,omitempty"`
	ObjectKey string       `json:"object_key,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

type SyncTaskStatus string

const (
	SyncStatusQueued     SyncTaskStatus = "queued"
	SyncStatusProcessing SyncTaskStatus = "processing"
	SyncStatusDone       SyncTaskStatus = "done"
	SyncStatusFailed     SyncTaskStatus = "failed"
)

type SyncTaskRecord struct {
	ID        string         `json:"id"`
	Type      SyncTaskType   `json:"type"`
	ToolID    string         `json:"tool_id,omitempty"`
	ObjectKey string         `json:"object_key,omitempty"`
	Status    SyncTaskStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type CatalogRow struct {
	Tool      Tool
	Relations []CatalogRelation
}

type CatalogRelation struct {
	Relation   string `json:"relation"`
	TargetName string `json:"target_name"`
}
