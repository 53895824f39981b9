package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"flowcore/internal/blob/core"
)

func TestFilesystemPutGetOverwrite(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	first, err := s.Put(ctx, "values/DATANODE_a.json", strings.NewReader(`[1,2]`), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	second, err := s.Put(ctx, "values/DATANODE_a.json", strings.NewReader(`[1,2,3]`), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if first.ETag == second.ETag {
		t.Fatalf("expected etag to change on overwrite")
	}
	info, rc, err := s.Get(ctx, "values/DATANODE_a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, _ := io.ReadAll(rc)
	if string(body) != `[1,2,3]` || info.Size != 7 || info.ContentType != "application/json" {
		t.Fatalf("unexpected blob %q %+v", body, info)
	}
	head, err := s.Head(ctx, "values/DATANODE_a.json")
	if err != nil || head.ETag != second.ETag {
		t.Fatalf("head mismatch: %+v %v", head, err)
	}
}

func TestFilesystemListDeleteAndMissing(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, key := range []string{"jobs/JOB_2.json", "jobs/JOB_1.json", "values/x"} {
		if _, err := s.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := s.List(ctx, "jobs/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "jobs/JOB_1.json" {
		t.Fatalf("unexpected list %+v", list)
	}
	ok, err := s.Delete(ctx, "jobs/JOB_1.json")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(root, "jobs", "JOB_1.json.meta")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected sidecar removed, got %v", err)
	}
	ok, _ = s.Delete(ctx, "jobs/JOB_1.json")
	if ok {
		t.Fatalf("expected missing delete to report false")
	}
	if _, _, err := s.Get(ctx, "jobs/JOB_1.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found on get, got %v", err)
	}
	if _, err := s.Head(ctx, "jobs/JOB_1.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found on head, got %v", err)
	}
}

func TestSanitizeKeyErrors(t *testing.T) {
	for _, key := range []string{"", "../escape", "/abs", "a/../b", "x.meta"} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestFilesystemCorruptSidecar(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := s.Put(ctx, "k", strings.NewReader("v"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "k.meta"), []byte("{"), 0o600); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if _, err := s.List(ctx, ""); err == nil {
		t.Fatalf("expected list to fail on corrupt sidecar")
	}
	if _, _, err := s.Get(ctx, "k"); err == nil || errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
