// Package jobarchive is an extended-edition extension that copies every job
// reaching a terminal status into the blob store as <prefix>/<job id>.json.
package jobarchive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"flowcore/internal/blob"
	"flowcore/internal/core"
	"flowcore/pkg/domain"
)

// DefaultPrefix is used when Extension.Prefix is empty.
const DefaultPrefix = "jobs"

// Extension decorates the job manager with archiving.
type Extension struct {
	Enabled bool
	Store   blob.Store
	Prefix  string
}

var _ core.Extension = Extension{}

// Name implements core.Extension.
func (Extension) Name() string { return "jobarchive" }

// Active reports whether the extended edition enabled archiving.
func (e Extension) Active() bool { return e.Enabled }

// Managers wraps the built job manager.
func (e Extension) Managers(_ context.Context, built core.Managers) (map[domain.Kind]domain.Repository, error) {
	if e.Store == nil {
		return nil, errors.New("jobarchive: blob store required")
	}
	jobs, ok := built[domain.KindJob]
	if !ok {
		return nil, errors.New("jobarchive: job manager not built")
	}
	return map[domain.Kind]domain.Repository{
		domain.KindJob: &Repository{Repository: jobs, store: e.Store, prefix: prefixOrDefault(e.Prefix)},
	}, nil
}

// Repository is a job repository that archives terminal jobs after each
// successful Set.
type Repository struct {
	domain.Repository
	store  blob.Store
	prefix string
}

// Set stores e through the wrapped repository, then archives it when it is
// a terminal job.
func (r *Repository) Set(ctx context.Context, e domain.Entity) error {
	if err := r.Repository.Set(ctx, e); err != nil {
		return err
	}
	job, ok := e.(*domain.Job)
	if !ok || !job.Status.IsTerminal() {
		return nil
	}
	raw, err := domain.EncodeEntity(job)
	if err == nil {
		_, err = r.store.Put(ctx, Key(r.prefix, job.ID), bytes.NewReader(raw), blob.PutOptions{
			ContentType: "application/json",
			Metadata:    map[string]string{"status": string(job.Status), "task-id": job.TaskID},
		})
	}
	if err != nil {
		return &domain.PersistenceError{Kind: domain.KindJob, ID: job.ID, Op: "archive", Err: err}
	}
	return nil
}

// Key returns the blob key of an archived job.
func Key(prefix, jobID string) string {
	return path.Join(prefixOrDefault(prefix), jobID+".json")
}

// Load reads an archived job back from store.
func Load(ctx context.Context, store blob.Store, prefix, jobID string) (*domain.Job, error) {
	_, rc, err := store.Get(ctx, Key(prefix, jobID))
	if err != nil {
		return nil, fmt.Errorf("load archived job %s: %w", jobID, err)
	}
	defer func() { _ = rc.Close() }()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("load archived job %s: %w", jobID, err)
	}
	e, err := domain.DecodeEntity(domain.KindJob, raw)
	if err != nil {
		return nil, err
	}
	return e.(*domain.Job), nil
}

// List returns the ids of archived jobs, sorted.
func List(ctx context.Context, store blob.Store, prefix string) ([]string, error) {
	p := prefixOrDefault(prefix) + "/"
	infos, err := store.List(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("list archived jobs: %w", err)
	}
	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		name := path.Base(info.Key)
		if path.Ext(name) == ".json" {
			ids = append(ids, name[:len(name)-len(".json")])
		}
	}
	return ids, nil
}

func prefixOrDefault(p string) string {
	if p == "" {
		return DefaultPrefix
	}
	return p
}
