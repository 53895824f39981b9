package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"flowcore/internal/data"
	"flowcore/pkg/domain"
)

// Function is the body of a task. It receives the values of the task's
// input data nodes in declaration order and returns one value per output.
type Function func(ctx context.Context, inputs []any) ([]any, error)

// FunctionRegistry maps task function names to implementations.
type FunctionRegistry struct {
	mu  sync.RWMutex
	fns map[string]Function
}

// NewFunctionRegistry returns an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{fns: make(map[string]Function)}
}

// Register adds fn under name.
func (f *FunctionRegistry) Register(name string, fn Function) error {
	if name == "" {
		return errors.New("function name required")
	}
	if fn == nil {
		return fmt.Errorf("function %s is nil", name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.fns[name]; exists {
		return fmt.Errorf("function %s already registered", name)
	}
	f.fns[name] = fn
	return nil
}

// Lookup returns the function registered under name.
func (f *FunctionRegistry) Lookup(name string) (Function, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fn, ok := f.fns[name]
	return fn, ok
}

// Names returns the registered names sorted.
func (f *FunctionRegistry) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.fns))
	for name := range f.fns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dispatcher submits tasks as jobs and executes them locally.
type Dispatcher struct {
	r         *Reloader
	finalizer *Finalizer
	values    *data.Store
	functions *FunctionRegistry
	logger    Logger
	clock     Clock
	workers   int
}

// NewDispatcher wires a dispatcher. workers bounds RunAll when the caller
// passes no limit.
func NewDispatcher(r *Reloader, fin *Finalizer, values *data.Store, functions *FunctionRegistry, logger Logger, clock Clock, workers int) *Dispatcher {
	if values == nil {
		values = data.New(nil)
	}
	if functions == nil {
		functions = NewFunctionRegistry()
	}
	if logger == nil {
		logger = noopLogger{}
	}
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{r: r, finalizer: fin, values: values, functions: functions, logger: logger, clock: clock, workers: workers}
}

// Submit creates a submission and a SUBMITTED job for taskID and locks the
// task's output data nodes for editing.
func (d *Dispatcher) Submit(ctx context.Context, taskID string) (*domain.Submission, *domain.Job, error) {
	task, err := getTyped[*domain.Task](ctx, d.r, domain.KindTask, taskID)
	if err != nil {
		return nil, nil, err
	}
	now := d.clock.Now()
	sub := &domain.Submission{TargetID: task.ID, TargetKind: domain.KindTask}
	stampNew(sub, now)
	job := &domain.Job{TaskID: task.ID, SubmitID: sub.ID, SubmitEntityID: task.ID}
	stampNew(job, now)
	sub.JobIDs = []string{job.ID}

	if err := d.r.Create(ctx, job); err != nil {
		return nil, nil, err
	}
	if err := d.r.Create(ctx, sub); err != nil {
		return nil, nil, err
	}
	ev := domain.NewEvent(sub, domain.OperationSubmission, "", nil, now)
	ev.Metadata = map[string]any{"job_ids": append([]string(nil), sub.JobIDs...), "entity_id": task.ID}
	d.r.publisher.Publish(ev)

	for _, id := range task.OutputIDs {
		dn, err := getTyped[*domain.DataNode](ctx, d.r, domain.KindDataNode, id)
		if err != nil {
			return nil, nil, fmt.Errorf("lock output of task %s: %w", task.ID, err)
		}
		if err := LockEdit(ctx, d.r, dn, "", nil); err != nil {
			return nil, nil, fmt.Errorf("lock output of task %s: %w", task.ID, err)
		}
	}
	d.logger.Info("job submitted", "job_id", job.ID, "task_id", task.ID, "submission_id", sub.ID)
	return sub, job, nil
}

// Run executes jobID once and finalizes it. Function failures, panics and
// output problems end up in the job's stacktrace; the returned error only
// reports failures to load, transition or persist the job.
func (d *Dispatcher) Run(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := getTyped[*domain.Job](ctx, d.r, domain.KindJob, jobID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(job.Status, domain.StatusRunning) {
		return job, domain.InvalidTransitionError{JobID: job.ID, From: job.Status, To: domain.StatusRunning}
	}
	if err := d.finalizer.commitStatus(ctx, job, domain.StatusRunning, nil); err != nil {
		return job, err
	}
	d.finalizer.refreshSubmission(ctx, job)
	d.logger.Debug("job running", "job_id", job.ID, "task_id", job.TaskID)

	errs := d.execute(ctx, job)
	if err := d.finalizer.Finalize(ctx, job, errs); err != nil {
		return job, err
	}
	return job, nil
}

// RunAll runs jobIDs with at most workers in flight. workers <= 0 uses the
// dispatcher default. Every job is run even when another one fails; the
// first error is returned.
func (d *Dispatcher) RunAll(ctx context.Context, jobIDs []string, workers int) ([]*domain.Job, error) {
	if workers <= 0 {
		workers = d.workers
	}
	out := make([]*domain.Job, len(jobIDs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, id := range jobIDs {
		g.Go(func() error {
			job, err := d.Run(ctx, id)
			out[i] = job
			return err
		})
	}
	return out, g.Wait()
}

// Cancel moves jobID to status, one of CANCELED, ABANDONED or SKIPPED.
func (d *Dispatcher) Cancel(ctx context.Context, jobID string, status domain.Status) (*domain.Job, error) {
	job, err := getTyped[*domain.Job](ctx, d.r, domain.KindJob, jobID)
	if err != nil {
		return nil, err
	}
	return job, d.finalizer.Cancel(ctx, job, status)
}

func (d *Dispatcher) execute(ctx context.Context, job *domain.Job) []error {
	task, err := getTyped[*domain.Task](ctx, d.r, domain.KindTask, job.TaskID)
	if err != nil {
		return []error{err}
	}
	fn, ok := d.functions.Lookup(task.Function)
	if !ok {
		return []error{fmt.Errorf("task %s: function %q is not registered", task.ID, task.Function)}
	}
	inputs := make([]any, 0, len(task.InputIDs))
	for _, id := range task.InputIDs {
		dn, err := getTyped[*domain.DataNode](ctx, d.r, domain.KindDataNode, id)
		if err != nil {
			return []error{err}
		}
		v, err := d.values.Read(ctx, dn)
		if err != nil {
			return []error{err}
		}
		inputs = append(inputs, v)
	}

	results, err := call(ctx, fn, inputs)
	if err != nil {
		return []error{err}
	}
	if len(results) != len(task.OutputIDs) {
		return []error{&OutputMismatchError{TaskID: task.ID, Want: len(task.OutputIDs), Got: len(results)}}
	}
	var errs []error
	for i, id := range task.OutputIDs {
		dn, err := getTyped[*domain.DataNode](ctx, d.r, domain.KindDataNode, id)
		if err == nil {
			err = d.values.Write(ctx, dn, results[i])
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func call(ctx context.Context, fn Function, inputs []any) (out []any, err error) {
	defer func() {
		if v := recover(); v != nil {
			out, err = nil, NewPanicError(v)
		}
	}()
	return fn(ctx, inputs)
}
