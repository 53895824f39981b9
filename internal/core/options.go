package core

import (
	"context"
	"time"

	"flowcore/internal/data"
)

// Logger is the structured logger used across core. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies timestamps for events, edit records and creation dates.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// MetricsRecorder observes service operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended with the operation error, or nil.
type TraceSpan interface {
	End(err error)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// ServiceOption customizes a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	clock        Clock
	logger       Logger
	metrics      MetricsRecorder
	tracer       Tracer
	missing      MissingEntityPolicy
	locks        LockProvider
	extensions   []Extension
	values       *data.Store
	functions    *FunctionRegistry
	workers      int
	notifyBuffer int
	closers      []func() error
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:        ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:       noopLogger{},
		metrics:      noopMetrics{},
		tracer:       noopTracer{},
		missing:      MissingStrict,
		workers:      4,
		notifyBuffer: 64,
	}
}

// WithLogger sets the logger. nil keeps the default.
func WithLogger(l Logger) ServiceOption {
	return func(o *serviceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the clock. nil keeps the default.
func WithClock(c Clock) ServiceOption {
	return func(o *serviceOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithMetricsRecorder sets the metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithMissingEntityPolicy selects how reload treats ids absent from the store.
func WithMissingEntityPolicy(p MissingEntityPolicy) ServiceOption {
	return func(o *serviceOptions) { o.missing = p }
}

// WithLockProvider replaces the per-entity lock provider.
func WithLockProvider(l LockProvider) ServiceOption {
	return func(o *serviceOptions) {
		if l != nil {
			o.locks = l
		}
	}
}

// WithExtensions registers capability-gated manager extensions.
func WithExtensions(exts ...Extension) ServiceOption {
	return func(o *serviceOptions) {
		for _, ext := range exts {
			if ext != nil {
				o.extensions = append(o.extensions, ext)
			}
		}
	}
}

// WithValueStore sets the store backing data node values.
func WithValueStore(v *data.Store) ServiceOption {
	return func(o *serviceOptions) {
		if v != nil {
			o.values = v
		}
	}
}

// WithFunctions sets the function registry used by the dispatcher.
func WithFunctions(f *FunctionRegistry) ServiceOption {
	return func(o *serviceOptions) {
		if f != nil {
			o.functions = f
		}
	}
}

// WithWorkers bounds RunAll concurrency.
func WithWorkers(n int) ServiceOption {
	return func(o *serviceOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithNotifyBuffer sets the default subscriber queue size.
func WithNotifyBuffer(n int) ServiceOption {
	return func(o *serviceOptions) {
		if n > 0 {
			o.notifyBuffer = n
		}
	}
}

// WithCloser registers fn to run on Service.Close, after the notifier has
// drained. Closers run in reverse registration order.
func WithCloser(fn func() error) ServiceOption {
	return func(o *serviceOptions) {
		if fn != nil {
			o.closers = append(o.closers, fn)
		}
	}
}
