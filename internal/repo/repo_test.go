package jobrepo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/vendorqueue/internal/locks"
	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/dbctx"
	"github.com/yungbote/vendorqueue/internal/pkg/logger"
	"github.com/yungbote/vendorqueue/internal/pkg/pointers"
)

var errSample = errors.New("vendor request failed")

func newTestRepo(t *testing.T) (Repository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=private"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.Job{}, &model.JobLog{}, &model.DeadLetterEntry{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	repo := New(db, log, SQLiteCapabilities(), locks.NewMemoryLocker(), model.DefaultMaxAttempts)
	return repo, db
}

func dbc() dbctx.Context {
	return dbctx.Context{Ctx: context.Background()}
}

func TestEnqueueDeduplicatesOnIdempotencyKey(t *testing.T) {
	repo, _ := newTestRepo(t)

	id1, err := repo.Enqueue(dbc(), model.TypeCreateConsignment, []byte(`{"a":1}`), pointers.String("order-123"), 5)
	if err != nil {
		t.Fatalf("enqueue 1: %v", err)
	}
	id2, err := repo.Enqueue(dbc(), model.TypeCreateConsignment, []byte(`{"a":2}`), pointers.String("order-123"), 5)
	if err != nil {
		t.Fatalf("enqueue 2: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same id for duplicate idempotency key, got %d and %d", id1, id2)
	}
}

func TestEnqueueClampsPriorityAndDefaults(t *testing.T) {
	repo, db := newTestRepo(t)
	id, err := repo.Enqueue(dbc(), model.TypeSyncProduct, nil, nil, 99)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	var job model.Job
	if err := db.First(&job, id).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	if job.Priority != model.MaxPriority {
		t.Fatalf("expected priority clamped to %d, got %d", model.MaxPriority, job.Priority)
	}

	defaultID, err := repo.Enqueue(dbc(), model.TypeSyncProduct, nil, nil, 0)
	if err != nil {
		t.Fatalf("enqueue default: %v", err)
	}
	var defaulted model.Job
	if err := db.First(&defaulted, defaultID).Error; err != nil {
		t.Fatalf("find default: %v", err)
	}
	if defaulted.Priority != model.DefaultPriority {
		t.Fatalf("expected unset priority to default to %d, got %d", model.DefaultPriority, defaulted.Priority)
	}
}

func TestClaimBatchBySubqueryNoDoubleClaim(t *testing.T) {
	repo, _ := newTestRepo(t)
	for i := 0; i < 5; i++ {
		if _, err := repo.Enqueue(dbc(), model.TypeSyncInventory, []byte(`{}`), nil, 5); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	batch1, err := repo.ClaimBatch(dbc(), 3, model.TypeSyncInventory)
	if err != nil {
		t.Fatalf("claim 1: %v", err)
	}
	if len(batch1) != 3 {
		t.Fatalf("expected 3 claimed, got %d", len(batch1))
	}

	batch2, err := repo.ClaimBatch(dbc(), 3, model.TypeSyncInventory)
	if err != nil {
		t.Fatalf("claim 2: %v", err)
	}
	if len(batch2) != 2 {
		t.Fatalf("expected remaining 2 claimed, got %d", len(batch2))
	}

	seen := map[int64]bool{}
	for _, j := range append(batch1, batch2...) {
		if seen[j.ID] {
			t.Fatalf("job %d claimed twice", j.ID)
		}
		seen[j.ID] = true
		if j.Status != model.JobWorking {
			t.Fatalf("expected status working, got %s", j.Status)
		}
	}
}

func TestHeartbeatOnlyAffectsWorkingJobs(t *testing.T) {
	repo, db := newTestRepo(t)
	id, err := repo.Enqueue(dbc(), model.TypeSyncCustomer, []byte(`{}`), nil, 5)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := repo.Heartbeat(dbc(), id); err != nil {
		t.Fatalf("heartbeat on pending job should be a no-op, not error: %v", err)
	}
	var pending model.Job
	if err := db.First(&pending, id).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	if pending.HeartbeatAt != nil {
		t.Fatalf("expected heartbeat on a pending job to leave heartbeat_at unset, got %v", pending.HeartbeatAt)
	}

	if _, err := repo.ClaimBatch(dbc(), 1, model.TypeSyncCustomer); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := repo.Heartbeat(dbc(), id); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	repo, _ := newTestRepo(t)
	id, err := repo.Enqueue(dbc(), model.TypeSyncSale, []byte(`{}`), nil, 5)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := repo.ClaimBatch(dbc(), 1, model.TypeSyncSale); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := repo.Complete(dbc(), id); err != nil {
		t.Fatalf("complete 1: %v", err)
	}
	if err := repo.Complete(dbc(), id); err != nil {
		t.Fatalf("complete 2 (idempotent) should not error: %v", err)
	}
}

func TestFailSchedulesRetryThenMovesToDeadLetter(t *testing.T) {
	repo, db := newTestRepo(t)
	id, err := repo.Enqueue(dbc(), model.TypePullProducts, []byte(`{}`), nil, 5)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for i := 0; i < model.DefaultMaxAttempts-1; i++ {
		if _, err := repo.ClaimBatch(dbc(), 1, model.TypePullProducts); err != nil {
			t.Fatalf("claim: %v", err)
		}
		if err := repo.Fail(dbc(), id, errSample); err != nil {
			t.Fatalf("fail: %v", err)
		}
		var job model.Job
		if err := db.First(&job, id).Error; err != nil {
			t.Fatalf("find: %v", err)
		}
		if job.Status != model.JobPending {
			t.Fatalf("expected pending after retry %d, got %s", i, job.Status)
		}
		// force job immediately runnable for the next claim in this test
		if err := db.Model(&model.Job{}).Where("id = ?", id).Update("next_run_at", time.Now().Add(-time.Minute)).Error; err != nil {
			t.Fatalf("force next_run_at: %v", err)
		}
	}

	if _, err := repo.ClaimBatch(dbc(), 1, model.TypePullProducts); err != nil {
		t.Fatalf("final claim: %v", err)
	}
	if err := repo.Fail(dbc(), id, errSample); err != nil {
		t.Fatalf("final fail: %v", err)
	}

	var job model.Job
	if err := db.First(&job, id).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	if job.Status != model.JobFailed {
		t.Fatalf("expected failed status after exhausting retries, got %s", job.Status)
	}

	var dlq model.DeadLetterEntry
	if err := db.Where("job_id = ?", id).First(&dlq).Error; err != nil {
		t.Fatalf("expected DLQ row: %v", err)
	}
}

func TestRedriveDeadLetterResetsAttemptsAndStatus(t *testing.T) {
	repo, db := newTestRepo(t)
	id, err := repo.Enqueue(dbc(), model.TypePullInventory, []byte(`{}`), nil, 5)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	for i := 0; i < model.DefaultMaxAttempts; i++ {
		if _, err := repo.ClaimBatch(dbc(), 1, model.TypePullInventory); err != nil {
			t.Fatalf("claim: %v", err)
		}
		if err := repo.Fail(dbc(), id, errSample); err != nil {
			t.Fatalf("fail: %v", err)
		}
		if err := db.Model(&model.Job{}).Where("id = ?", id).Update("next_run_at", time.Now().Add(-time.Minute)).Error; err != nil {
			t.Fatalf("force next_run_at: %v", err)
		}
	}

	if err := repo.RedriveDeadLetter(dbc(), id); err != nil {
		t.Fatalf("redrive: %v", err)
	}

	var job model.Job
	if err := db.First(&job, id).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	if job.Status != model.JobPending {
		t.Fatalf("expected pending after redrive, got %s", job.Status)
	}
	if job.Attempts != model.DefaultMaxAttempts-1 {
		t.Fatalf("expected attempts decremented by one, got %d", job.Attempts)
	}

	var count int64
	db.Model(&model.DeadLetterEntry{}).Where("job_id = ?", id).Count(&count)
	if count != 0 {
		t.Fatalf("expected DLQ row removed after redrive")
	}
}
