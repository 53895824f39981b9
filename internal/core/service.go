package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"flowcore/internal/data"
	"flowcore/internal/notify"
	"flowcore/pkg/domain"
)

// Service owns the manager registry, the reloader and the job pipeline
// built on top of them. Every public operation is logged, timed and traced.
type Service struct {
	factories  Factories
	extensions []Extension
	clock      Clock
	logger     Logger
	metrics    MetricsRecorder
	tracer     Tracer
	closers    []func() error

	once     sync.Once
	registry *Registry
	buildErr error

	bus        *notify.Bus
	reloader   *Reloader
	values     *data.Store
	functions  *FunctionRegistry
	finalizer  *Finalizer
	dispatcher *Dispatcher
	closeOnce  sync.Once
}

// NewService constructs a service over factories. The registry is built
// lazily on first use.
func NewService(factories Factories, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.values == nil {
		o.values = data.New(nil)
	}
	if o.functions == nil {
		o.functions = NewFunctionRegistry()
	}
	s := &Service{
		factories:  factories,
		extensions: o.extensions,
		clock:      o.clock,
		logger:     o.logger,
		metrics:    o.metrics,
		tracer:     o.tracer,
		closers:    o.closers,
		values:     o.values,
		functions:  o.functions,
	}
	s.bus = notify.New(notify.WithLogger(o.logger), notify.WithDefaultBuffer(o.notifyBuffer))
	s.reloader = NewReloader(s,
		WithMissing(o.missing),
		WithLocks(o.locks),
		WithPublisher(s.bus),
		WithReloaderClock(o.clock),
	)
	s.finalizer = NewFinalizer(s.reloader, o.logger, o.clock)
	s.dispatcher = NewDispatcher(s.reloader, s.finalizer, o.values, o.functions, o.logger, o.clock, o.workers)
	return s
}

// Registry builds the registry once and returns it.
func (s *Service) Registry(ctx context.Context) (*Registry, error) {
	s.once.Do(func() {
		s.registry, s.buildErr = BuildRegistry(ctx, s.factories, s.extensions...)
		if s.buildErr != nil {
			s.logger.Error("registry build failed", "error", s.buildErr)
			return
		}
		s.logger.Debug("registry built", "kinds", len(s.registry.Kinds()), "extensions", s.registry.Extensions())
	})
	return s.registry, s.buildErr
}

// Manager implements ManagerSource over the lazily built registry.
func (s *Service) Manager(kind domain.Kind) (domain.Repository, error) {
	reg, err := s.Registry(context.Background())
	if err != nil {
		return nil, err
	}
	return reg.Manager(kind)
}

// Reloader returns the service reloader.
func (s *Service) Reloader() *Reloader { return s.reloader }

// Notifier returns the event bus commits publish to.
func (s *Service) Notifier() *notify.Bus { return s.bus }

// Functions returns the task function registry.
func (s *Service) Functions() *FunctionRegistry { return s.functions }

// Values returns the data node value store.
func (s *Service) Values() *data.Store { return s.values }

// Finalizer returns the job finalizer.
func (s *Service) Finalizer() *Finalizer { return s.finalizer }

// Dispatcher returns the job dispatcher.
func (s *Service) Dispatcher() *Dispatcher { return s.dispatcher }

// Create assigns an id and creation defaults to e when missing, stores it
// and publishes a CREATE event.
func (s *Service) Create(ctx context.Context, e domain.Entity) error {
	if e == nil {
		return errors.New("create: nil entity")
	}
	return s.run(ctx, "create_"+string(e.EntityKind()), func(ctx context.Context) error {
		stampNew(e, s.clock.Now())
		return s.reloader.Create(ctx, e)
	})
}

// Get loads the canonical entity kind/id.
func (s *Service) Get(ctx context.Context, kind domain.Kind, id string) (domain.Entity, error) {
	var out domain.Entity
	err := s.run(ctx, "get_"+string(kind), func(ctx context.Context) error {
		repo, err := s.Manager(kind)
		if err != nil {
			return err
		}
		e, ok, err := repo.Get(ctx, id)
		if err != nil {
			return persistenceErr(kind, id, "get", err)
		}
		if !ok {
			return domain.NotFoundError{Kind: kind, ID: id}
		}
		out = e
		return nil
	})
	return out, err
}

// Submit creates a submission and job for taskID.
func (s *Service) Submit(ctx context.Context, taskID string) (*domain.Submission, *domain.Job, error) {
	var (
		sub *domain.Submission
		job *domain.Job
	)
	err := s.run(ctx, "submit", func(ctx context.Context) error {
		var err error
		sub, job, err = s.dispatcher.Submit(ctx, taskID)
		return err
	})
	return sub, job, err
}

// Run executes and finalizes jobID.
func (s *Service) Run(ctx context.Context, jobID string) (*domain.Job, error) {
	var job *domain.Job
	err := s.run(ctx, "run", func(ctx context.Context) error {
		var err error
		job, err = s.dispatcher.Run(ctx, jobID)
		return err
	})
	return job, err
}

// RunAll executes jobIDs with bounded concurrency.
func (s *Service) RunAll(ctx context.Context, jobIDs []string, workers int) ([]*domain.Job, error) {
	var jobs []*domain.Job
	err := s.run(ctx, "run_all", func(ctx context.Context) error {
		var err error
		jobs, err = s.dispatcher.RunAll(ctx, jobIDs, workers)
		return err
	})
	return jobs, err
}

// Cancel moves jobID to a cancellation status.
func (s *Service) Cancel(ctx context.Context, jobID string, status domain.Status) (*domain.Job, error) {
	var job *domain.Job
	err := s.run(ctx, "cancel", func(ctx context.Context) error {
		var err error
		job, err = s.dispatcher.Cancel(ctx, jobID, status)
		return err
	})
	return job, err
}

// Finalize records an execution outcome for job.
func (s *Service) Finalize(ctx context.Context, job *domain.Job, errs []error) error {
	return s.run(ctx, "finalize", func(ctx context.Context) error {
		return s.finalizer.Finalize(ctx, job, errs)
	})
}

// Close drains the notifier then runs the registered closers.
func (s *Service) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		s.bus.Close()
		for i := len(s.closers) - 1; i >= 0; i-- {
			if err := s.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	if len(errs) > 0 {
		return fmt.Errorf("close service: %w", errors.Join(errs...))
	}
	return nil
}

func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	err := fn(ctx)
	elapsed := s.clock.Now().Sub(start)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	span.End(err)
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "duration", elapsed, "error", err)
		return err
	}
	s.logger.Debug("operation completed", "operation", op, "duration", elapsed)
	return nil
}
