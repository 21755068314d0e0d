package docql

import (
	"context"
	"errors"
	"sync/atomic"
)

// TrackingInitializer is the host's identity-resolution hook. It runs once
// per query execution, on the first materialized document.
type TrackingInitializer func(ctx context.Context)

// ExecutionContext is the per-execution runtime state: the named parameter
// table the compiled prologue fills in, the logger, the optional
// concurrency-violation detector and the one-time tracking initializer.
// Compiled queries are shared across executions; execution contexts never
// are.
type ExecutionContext struct {
	params       map[string]any
	logger       Logger
	detectShared bool
	inUse        int32
	trackingInit TrackingInitializer
	trackingDone bool
}

func newExecutionContext(logger Logger, detectShared bool, init TrackingInitializer) *ExecutionContext {
	return &ExecutionContext{
		params:       map[string]any{},
		logger:       logger,
		detectShared: detectShared,
		trackingInit: init,
	}
}

// SetParameter registers a live parameter value. Values passed as func() any
// are deferred extractors, evaluated here rather than at compile time.
func (ec *ExecutionContext) SetParameter(name string, value any) {
	if fn, ok := value.(func() any); ok {
		value = fn()
	}
	ec.params[name] = value
}

func (ec *ExecutionContext) Parameter(name string) (any, bool) {
	v, ok := ec.params[name]
	return v, ok
}

// enter begins the concurrency-detection critical section around one
// advancement. Detection is optional; when enabled, concurrent use of the
// same context from two goroutines surfaces as ErrConcurrentIteration
// instead of a data race.
func (ec *ExecutionContext) enter() error {
	if !ec.detectShared {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&ec.inUse, 0, 1) {
		return ErrConcurrentIteration
	}
	return nil
}

func (ec *ExecutionContext) exit() {
	if ec.detectShared {
		atomic.StoreInt32(&ec.inUse, 0)
	}
}

// initTracking fires the tracking initializer exactly once per execution.
// Advancement is single-threaded by contract, so a plain flag suffices.
func (ec *ExecutionContext) initTracking(ctx context.Context) {
	if ec.trackingDone || ec.trackingInit == nil {
		ec.trackingDone = true
		return
	}
	ec.trackingDone = true
	ec.trackingInit(ctx)
}

// isCancellation classifies an iteration error so cancellations and genuine
// store failures are logged apart. The error itself is always rethrown
// unchanged.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
