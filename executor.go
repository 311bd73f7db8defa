package keel

import (
	"context"
	"sync"
)

// Task is a unit of work run by an Executor. It must observe ctx for
// cooperative cancellation.
type Task func(ctx context.Context)

// Executor schedules units of work keyed by caller-supplied scheduler
// keys, so different call sites can target the same logical slot:
// replace cancels whatever is in flight under the key, reuse joins it.
//
// The executor is itself an ordinary feature; see RegisterExecutor.
type Executor struct {
	mu       sync.Mutex
	nextID   uint64
	inflight map[any]*Execution
}

// NewExecutor creates an executor with an empty scheduling table.
func NewExecutor() *Executor {
	return &Executor{inflight: make(map[any]*Execution)}
}

// Execution is the handle for one scheduled unit of work. Its ID is
// unique per scheduled attempt, distinct from the scheduler key used
// for replace/reuse matching.
type Execution struct {
	id     uint64
	key    any
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// ID returns the unique identity of this scheduled attempt.
func (e *Execution) ID() uint64 {
	return e.id
}

// complete releases all waiters. Safe to call from multiple paths; only
// the first call closes the channel.
func (e *Execution) complete() {
	e.once.Do(func() {
		close(e.done)
	})
}

// Cancel requests cooperative cancellation of the unit of work and
// releases all waiters. Idempotent. The task keeps running until it
// observes its context; cancellation is never preemptive.
func (e *Execution) Cancel() {
	e.cancel()
	e.complete()
}

// Wait suspends the caller until the unit finishes, normally or via
// cancellation. All concurrent waiters are released together. The
// caller's own ctx bounds the wait; its error is returned if it expires
// first.
func (e *Execution) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done exposes the completion channel for select-based callers.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Schedule starts an independent unit of work under a fresh identifier
// that never matches replace/reuse lookups.
func (x *Executor) Schedule(task Task) *Execution {
	x.mu.Lock()
	defer x.mu.Unlock()

	return x.start(nil, task)
}

// ScheduleReplacing cancels any in-flight unit whose scheduler key
// matches, releasing its waiters, then starts task under the key.
// Waiters of the cancelled unit observe completion before the new
// task's own completion can be observed.
func (x *Executor) ScheduleReplacing(key any, task Task) *Execution {
	x.mu.Lock()
	defer x.mu.Unlock()

	if current, ok := x.inflight[key]; ok {
		current.Cancel()
		delete(x.inflight, key)
	}

	return x.start(key, task)
}

// ScheduleReusing returns the in-flight execution for the key if one
// exists, without starting a duplicate; otherwise it behaves like
// Schedule under the key.
func (x *Executor) ScheduleReusing(key any, task Task) *Execution {
	x.mu.Lock()
	defer x.mu.Unlock()

	if current, ok := x.inflight[key]; ok {
		return current
	}

	return x.start(key, task)
}

// CancelAll cancels every in-flight unit and clears the table.
func (x *Executor) CancelAll() {
	x.mu.Lock()
	defer x.mu.Unlock()

	for key, execution := range x.inflight {
		execution.Cancel()
		delete(x.inflight, key)
	}
}

// start launches the task. Caller holds x.mu.
func (x *Executor) start(key any, task Task) *Execution {
	ctx, cancel := context.WithCancel(context.Background())

	x.nextID++
	execution := &Execution{
		id:     x.nextID,
		key:    key,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if key != nil {
		x.inflight[key] = execution
	}

	go func() {
		defer execution.complete()
		defer x.finish(execution)
		defer cancel()

		task(ctx)
	}()

	return execution
}

// finish drops the execution from the table unless it was already
// replaced by a newer one under the same key.
func (x *Executor) finish(e *Execution) {
	if e.key == nil {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.inflight[e.key] == e {
		delete(x.inflight, e.key)
	}
}

// RegisterExecutor registers the executor as a disposable feature, so
// every resolution hands out an independent scheduler.
func RegisterExecutor(b *Builder) {
	RegisterDisposable[*Executor](b, func(Context, *Container) (*Executor, error) {
		return NewExecutor(), nil
	})
}
