package model

import "time"

// Outbox entity types.
const (
	EntityRubric     = "rubric"
	EntityAssessment = "assessment"
	EntityComment    = "comment"
)

// Outbox operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Outbox statuses. Rows move pending -> in_progress -> completed|failed;
// failed rows return to pending only through an explicit retry.
const (
	SyncPending    = "pending"
	SyncInProgress = "in_progress"
	SyncCompleted  = "completed"
	SyncFailed     = "failed"
)

// SyncQueueItem is the durable outbox row: the single source of truth for
// what still needs to reach Canvas. Writers only ever append; rows are
// consumed and retired by the sync engine alone.
type SyncQueueItem struct {
	UUIDBase
	EntityType  string     `gorm:"size:16;not null;index" json:"entityType"`
	EntityID    string     `gorm:"type:varchar(36);not null;index" json:"entityId"`
	Operation   string     `gorm:"size:16;not null" json:"operation"`
	Status      string     `gorm:"size:16;default:'pending';index" json:"status"`
	RetryCount  int        `gorm:"default:0" json:"retryCount"`
	LastError   string     `gorm:"type:text" json:"lastError,omitempty"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

func (SyncQueueItem) TableName() string {
	return "sync_queue"
}
