package repository

import (
	"time"

	"palette_backend/internal/model"

	"gorm.io/gorm"
)

type SyncQueueRepository struct {
	DB *gorm.DB
}

func NewSyncQueueRepository(db *gorm.DB) *SyncQueueRepository {
	return &SyncQueueRepository{DB: db}
}

func (r *SyncQueueRepository) Tx(tx *gorm.DB) *SyncQueueRepository {
	return &SyncQueueRepository{DB: tx}
}

// Enqueue appends a pending outbox row. Rows are never coalesced: multiple
// pending operations for the same entity replay in creation order.
func (r *SyncQueueRepository) Enqueue(entityType, entityID, operation string) (*model.SyncQueueItem, error) {
	item := &model.SyncQueueItem{
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  operation,
		Status:     model.SyncPending,
	}
	if err := r.DB.Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

// PendingItems returns oldest-first pending rows, bounded so one sync pass
// stays time-bounded.
func (r *SyncQueueRepository) PendingItems(limit int) ([]model.SyncQueueItem, error) {
	var items []model.SyncQueueItem
	err := r.DB.Where("status = ?", model.SyncPending).
		Order("created_at asc").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *SyncQueueRepository) UpdateStatus(id, status, lastError string) error {
	now := time.Now()
	return r.DB.Model(&model.SyncQueueItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       status,
			"last_error":   lastError,
			"processed_at": &now,
		}).Error
}

// ResetFailed flips failed rows with remaining retry budget back to pending
// and burns one retry. Rows past maxRetries stay failed for inspection.
func (r *SyncQueueRepository) ResetFailed(maxRetries int) (int64, error) {
	res := r.DB.Model(&model.SyncQueueItem{}).
		Where("status = ? AND retry_count < ?", model.SyncFailed, maxRetries).
		Updates(map[string]interface{}{
			"status":      model.SyncPending,
			"retry_count": gorm.Expr("retry_count + 1"),
		})
	return res.RowsAffected, res.Error
}

// ReconcileStale returns rows abandoned mid-drain by a crash to pending.
// Run once at startup, before the first drain.
func (r *SyncQueueRepository) ReconcileStale() (int64, error) {
	res := r.DB.Model(&model.SyncQueueItem{}).
		Where("status = ?", model.SyncInProgress).
		Update("status", model.SyncPending)
	return res.RowsAffected, res.Error
}

func (r *SyncQueueRepository) PendingCount() (int64, error) {
	var count int64
	err := r.DB.Model(&model.SyncQueueItem{}).
		Where("status = ?", model.SyncPending).Count(&count).Error
	return count, err
}

func (r *SyncQueueRepository) LastSyncTime() (*time.Time, error) {
	var item model.SyncQueueItem
	err := r.DB.Where("status = ?", model.SyncCompleted).
		Order("processed_at desc").
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ProcessedAt, nil
}

// RetireEntities drops unfinished rows for entities that are being removed
// and can never sync. Completed rows stay as history.
func (r *SyncQueueRepository) RetireEntities(entityType string, entityIDs []string) (int64, error) {
	if len(entityIDs) == 0 {
		return 0, nil
	}
	res := r.DB.Where("entity_type = ? AND entity_id IN ? AND status <> ?",
		entityType, entityIDs, model.SyncCompleted).
		Unscoped().Delete(&model.SyncQueueItem{})
	return res.RowsAffected, res.Error
}

// ClearFinished removes retired rows; pending and in-progress rows are
// untouchable through this path.
func (r *SyncQueueRepository) ClearFinished() (int64, error) {
	res := r.DB.Where("status IN ?", []string{model.SyncCompleted, model.SyncFailed}).
		Unscoped().Delete(&model.SyncQueueItem{})
	return res.RowsAffected, res.Error
}
