package repository

import (
	"testing"

	"palette_backend/internal/config"
	"palette_backend/internal/model"
	"palette_backend/pkg/database"

	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitDB(&config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	return db
}

func TestEnqueueNeverCoalesces(t *testing.T) {
	repo := NewSyncQueueRepository(newTestDB(t))

	for i := 0; i < 3; i++ {
		if _, err := repo.Enqueue(model.EntityAssessment, "assessment-1", model.OpUpdate); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	count, err := repo.PendingCount()
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 pending rows for the same entity, got %d", count)
	}
}

func TestPendingItemsOldestFirstAndBounded(t *testing.T) {
	repo := NewSyncQueueRepository(newTestDB(t))

	first, err := repo.Enqueue(model.EntityRubric, "rubric-1", model.OpCreate)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, err := repo.Enqueue(model.EntityAssessment, "assessment-1", model.OpUpdate)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := repo.Enqueue(model.EntityComment, "comment-1", model.OpCreate); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	items, err := repo.PendingItems(2)
	if err != nil {
		t.Fatalf("pending items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected batch of 2, got %d", len(items))
	}
	if items[0].ID != first.ID || items[1].ID != second.ID {
		t.Fatalf("batch not oldest-first: got %s, %s", items[0].ID, items[1].ID)
	}
}

func TestUpdateStatusRecordsProcessedAt(t *testing.T) {
	repo := NewSyncQueueRepository(newTestDB(t))

	item, err := repo.Enqueue(model.EntityRubric, "rubric-1", model.OpCreate)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := repo.UpdateStatus(item.ID, model.SyncFailed, "boom"); err != nil {
		t.Fatalf("update status: %v", err)
	}

	var got model.SyncQueueItem
	if err := repo.DB.First(&got, "id = ?", item.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != model.SyncFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.LastError != "boom" {
		t.Errorf("lastError = %q, want boom", got.LastError)
	}
	if got.ProcessedAt == nil {
		t.Error("processedAt not recorded")
	}
}

func TestResetFailedRespectsRetryCeiling(t *testing.T) {
	repo := NewSyncQueueRepository(newTestDB(t))

	retryable, _ := repo.Enqueue(model.EntityRubric, "rubric-1", model.OpCreate)
	exhausted, _ := repo.Enqueue(model.EntityRubric, "rubric-2", model.OpCreate)

	if err := repo.UpdateStatus(retryable.ID, model.SyncFailed, "x"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := repo.UpdateStatus(exhausted.ID, model.SyncFailed, "x"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := repo.DB.Model(&model.SyncQueueItem{}).
		Where("id = ?", exhausted.ID).
		Update("retry_count", 3).Error; err != nil {
		t.Fatalf("seed retry count: %v", err)
	}

	reset, err := repo.ResetFailed(3)
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 reset row, got %d", reset)
	}

	var got model.SyncQueueItem
	repo.DB.First(&got, "id = ?", retryable.ID)
	if got.Status != model.SyncPending || got.RetryCount != 1 {
		t.Errorf("retryable row: status=%q retries=%d, want pending/1", got.Status, got.RetryCount)
	}
	got = model.SyncQueueItem{}
	repo.DB.First(&got, "id = ?", exhausted.ID)
	if got.Status != model.SyncFailed {
		t.Errorf("exhausted row reset, want it left failed")
	}
}

func TestReconcileStale(t *testing.T) {
	repo := NewSyncQueueRepository(newTestDB(t))

	item, _ := repo.Enqueue(model.EntityAssessment, "assessment-1", model.OpUpdate)
	if err := repo.UpdateStatus(item.ID, model.SyncInProgress, ""); err != nil {
		t.Fatalf("update status: %v", err)
	}

	reclaimed, err := repo.ReconcileStale()
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed row, got %d", reclaimed)
	}

	count, _ := repo.PendingCount()
	if count != 1 {
		t.Fatalf("expected row returned to pending, pending count = %d", count)
	}
}

func TestClearFinishedKeepsPendingWork(t *testing.T) {
	repo := NewSyncQueueRepository(newTestDB(t))

	done, _ := repo.Enqueue(model.EntityRubric, "rubric-1", model.OpCreate)
	failed, _ := repo.Enqueue(model.EntityRubric, "rubric-2", model.OpCreate)
	repo.Enqueue(model.EntityRubric, "rubric-3", model.OpCreate)

	repo.UpdateStatus(done.ID, model.SyncCompleted, "")
	repo.UpdateStatus(failed.ID, model.SyncFailed, "x")

	removed, err := repo.ClearFinished()
	if err != nil {
		t.Fatalf("clear finished: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed rows, got %d", removed)
	}

	count, _ := repo.PendingCount()
	if count != 1 {
		t.Fatalf("pending work disturbed, pending count = %d", count)
	}
}
