package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"flowcore/pkg/domain"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dn := &domain.DataNode{
		Base:       domain.Base{ID: "DATANODE_out"},
		Storage:    domain.StorageInMemory,
		Edits:      []domain.Edit{domain.NewJobEdit("JOB_1", at)},
		Properties: domain.NewProperties(map[string]any{"owner": "ops"}),
	}
	if err := store.Repository(domain.KindDataNode).Set(ctx, dn); err != nil {
		t.Fatalf("set data node: %v", err)
	}
	job := &domain.Job{Base: domain.Base{ID: "JOB_1"}, Status: domain.StatusCompleted, Stacktrace: []string{}}
	if err := store.Repository(domain.KindJob).Set(ctx, job); err != nil {
		t.Fatalf("set job: %v", err)
	}
	job.Status = domain.StatusFailed
	if err := store.Repository(domain.KindJob).Set(ctx, job); err != nil {
		t.Fatalf("overwrite job: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })

	got, ok, err := reloaded.Repository(domain.KindJob).Get(ctx, "JOB_1")
	if err != nil || !ok {
		t.Fatalf("expected job after reload: ok=%v err=%v", ok, err)
	}
	if got.(*domain.Job).Status != domain.StatusFailed {
		t.Fatalf("expected last write to win, got %s", got.(*domain.Job).Status)
	}
	gotDN, ok, _ := reloaded.Repository(domain.KindDataNode).Get(ctx, "DATANODE_out")
	if !ok {
		t.Fatalf("expected data node after reload")
	}
	edits := gotDN.(*domain.DataNode).Edits
	if len(edits) != 1 {
		t.Fatalf("expected one edit, got %d", len(edits))
	}
	if id, _ := edits[0].JobID(); id != "JOB_1" {
		t.Fatalf("expected edit job id JOB_1, got %q", id)
	}
	var rows int
	if err := reloaded.DB().QueryRow(`SELECT COUNT(*) FROM entities`).Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 2 {
		t.Fatalf("expected 2 rows, got %d", rows)
	}
}

func TestSQLiteStoreDeleteAndValidation(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "state.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	tasks := store.Repository(domain.KindTask)

	if err := tasks.Set(ctx, &domain.Job{Base: domain.Base{ID: "JOB_x"}}); !errors.Is(err, domain.ErrKindMismatch) {
		t.Fatalf("expected kind mismatch, got %v", err)
	}
	if err := tasks.Set(ctx, &domain.Task{Base: domain.Base{ID: "TASK_x"}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := tasks.Delete(ctx, "TASK_x"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := tasks.Delete(ctx, "TASK_x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLiteStoreSetFailureIsPersistenceError(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	_ = store.DB().Close()

	err = store.Repository(domain.KindJob).Set(ctx, &domain.Job{Base: domain.Base{ID: "JOB_y"}})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error after close, got %v", err)
	}
	if _, ok, _ := store.Repository(domain.KindJob).Get(ctx, "JOB_y"); ok {
		t.Fatalf("failed write must not reach the hydrated copy")
	}
}
