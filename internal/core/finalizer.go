package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flowcore/pkg/domain"
)

// Finalizer turns the outcome of a task execution into a durable job
// status, stacktrace and output data node edit records. It is the single
// point through which jobs reach a terminal status.
type Finalizer struct {
	r      *Reloader
	logger Logger
	clock  Clock
}

// NewFinalizer returns a finalizer committing through r.
func NewFinalizer(r *Reloader, logger Logger, clock Clock) *Finalizer {
	if logger == nil {
		logger = noopLogger{}
	}
	if clock == nil {
		clock = ClockFunc(func() time.Time { return time.Now().UTC() })
	}
	return &Finalizer{r: r, logger: logger, clock: clock}
}

// Finalize records the outcome of one execution of job. With no errors the
// job completes and every output data node of its task gains one edit
// record and is unlocked. Otherwise the job fails with one formatted
// traceback per error. Execution errors are recorded, never returned; the
// returned error reports a rejected transition or a persistence failure.
func (f *Finalizer) Finalize(ctx context.Context, job *domain.Job, errs []error) error {
	errs = collectErrors(errs)
	target := domain.StatusCompleted
	traces := []string{}
	if len(errs) > 0 {
		target = domain.StatusFailed
		traces = make([]string, len(errs))
		for i, err := range errs {
			traces[i] = FormatTraceback(err)
		}
	}
	if err := f.checkTransition(ctx, job, target); err != nil {
		return err
	}
	if err := f.commitStatus(ctx, job, target, traces); err != nil {
		return err
	}
	if err := f.settleOutputs(ctx, job, target == domain.StatusCompleted); err != nil {
		return err
	}
	f.refreshSubmission(ctx, job)
	if target == domain.StatusFailed {
		f.logger.Warn("job failed", "job_id", job.ID, "task_id", job.TaskID, "errors", len(errs))
	} else {
		f.logger.Info("job completed", "job_id", job.ID, "task_id", job.TaskID)
	}
	return nil
}

// Cancel moves job to CANCELED, ABANDONED or SKIPPED. Output data nodes are
// unlocked without edit records.
func (f *Finalizer) Cancel(ctx context.Context, job *domain.Job, status domain.Status) error {
	switch status {
	case domain.StatusCanceled, domain.StatusAbandoned, domain.StatusSkipped:
	default:
		return fmt.Errorf("cancel job %s: %s is not a cancellation status", job.ID, status)
	}
	if err := f.checkTransition(ctx, job, status); err != nil {
		return err
	}
	if err := f.commitStatus(ctx, job, status, []string{}); err != nil {
		return err
	}
	if err := f.settleOutputs(ctx, job, false); err != nil {
		return err
	}
	f.refreshSubmission(ctx, job)
	f.logger.Info("job canceled", "job_id", job.ID, "status", status)
	return nil
}

func (f *Finalizer) checkTransition(ctx context.Context, job *domain.Job, target domain.Status) error {
	current, err := Fresh(ctx, f.r, job)
	if err != nil {
		return err
	}
	if !domain.CanTransition(current.Status, target) {
		return domain.InvalidTransitionError{JobID: job.ID, From: current.Status, To: target}
	}
	return nil
}

// commitStatus moves job to status under the entity lock, rejecting the
// change when the stored job can no longer make that transition. A nil
// traces leaves the stacktrace untouched. On rejection the handle is
// resynced with the stored status.
func (f *Finalizer) commitStatus(ctx context.Context, job *domain.Job, status domain.Status, traces []string) error {
	guard := func(e domain.Entity) error {
		canonical, ok := e.(*domain.Job)
		if !ok {
			return fmt.Errorf("%w: job %s is %T", domain.ErrKindMismatch, job.ID, e)
		}
		if !domain.CanTransition(canonical.Status, status) {
			return domain.InvalidTransitionError{JobID: job.ID, From: canonical.Status, To: status}
		}
		return nil
	}
	err := editIf(ctx, f.r, job, guard, func() error {
		if err := Write(ctx, f.r, job, JobStatus, status); err != nil {
			return err
		}
		if traces == nil {
			return nil
		}
		return Write(ctx, f.r, job, JobStacktrace, traces)
	})
	var rejected domain.InvalidTransitionError
	if errors.As(err, &rejected) {
		if stored, gerr := getTyped[*domain.Job](ctx, f.r, domain.KindJob, job.ID); gerr == nil {
			job.Status = stored.Status
			job.Stacktrace = stored.Stacktrace
		}
	}
	return err
}

// settleOutputs unlocks every output data node of the job's task in one
// commit per node. When edited is set each node also gains the edit record
// of this job.
func (f *Finalizer) settleOutputs(ctx context.Context, job *domain.Job, edited bool) error {
	outputs, err := f.outputs(ctx, job)
	if err != nil {
		return err
	}
	for _, dn := range outputs {
		now := f.clock.Now()
		err := Edit(ctx, f.r, dn, func() error {
			if edited {
				if err := TrackEdit(ctx, f.r, dn, domain.NewJobEdit(job.ID, now)); err != nil {
					return err
				}
				if err := Write(ctx, f.r, dn, DataNodeLastEditDate, &now); err != nil {
					return err
				}
			}
			return UnlockEdit(ctx, f.r, dn)
		})
		if err != nil {
			return fmt.Errorf("job %s output %s: %w", job.ID, dn.ID, err)
		}
	}
	return nil
}

func (f *Finalizer) outputs(ctx context.Context, job *domain.Job) ([]*domain.DataNode, error) {
	if job.TaskID == "" {
		return nil, nil
	}
	task, err := getTyped[*domain.Task](ctx, f.r, domain.KindTask, job.TaskID)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.ID, err)
	}
	out := make([]*domain.DataNode, 0, len(task.OutputIDs))
	for _, id := range task.OutputIDs {
		dn, err := getTyped[*domain.DataNode](ctx, f.r, domain.KindDataNode, id)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", task.ID, err)
		}
		out = append(out, dn)
	}
	return out, nil
}

// refreshSubmission folds the statuses of the submission's jobs into its
// status. A missing submission is logged and skipped.
func (f *Finalizer) refreshSubmission(ctx context.Context, job *domain.Job) {
	if job.SubmitID == "" {
		return
	}
	sub, err := getTyped[*domain.Submission](ctx, f.r, domain.KindSubmission, job.SubmitID)
	if err != nil {
		f.logger.Warn("submission refresh skipped", "submission_id", job.SubmitID, "job_id", job.ID, "error", err)
		return
	}
	jobs, err := f.r.Manager(domain.KindJob)
	if err != nil {
		f.logger.Warn("submission refresh skipped", "submission_id", sub.ID, "error", err)
		return
	}
	statuses := make([]domain.Status, 0, len(sub.JobIDs))
	for _, id := range sub.JobIDs {
		e, ok, err := jobs.Get(ctx, id)
		if err != nil || !ok {
			continue
		}
		if j, ok := e.(*domain.Job); ok {
			statuses = append(statuses, j.Status)
		}
	}
	derived := domain.DeriveSubmissionStatus(statuses)
	if derived == sub.Status {
		return
	}
	if err := Write(ctx, f.r, sub, SubmissionStatus, derived); err != nil {
		f.logger.Error("submission refresh failed", "submission_id", sub.ID, "error", err)
	}
}

// getTyped loads the canonical entity kind/id and asserts its type.
func getTyped[E domain.Entity](ctx context.Context, r *Reloader, kind domain.Kind, id string) (E, error) {
	var zero E
	repo, err := r.Manager(kind)
	if err != nil {
		return zero, err
	}
	e, ok, err := repo.Get(ctx, id)
	if err != nil {
		return zero, persistenceErr(kind, id, "get", err)
	}
	if !ok {
		return zero, domain.NotFoundError{Kind: kind, ID: id}
	}
	typed, ok := e.(E)
	if !ok {
		return zero, fmt.Errorf("%s %s: %w: got %T", kind, id, domain.ErrKindMismatch, e)
	}
	return typed, nil
}
