package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// RuntimeObserver is notified about the life cycle of runtime tasks.
type RuntimeObserver interface {
	// TaskQueued is called when a task enters the queue.
	TaskQueued()
	// TaskStarted is called when a worker picks a task up.
	TaskStarted()
	// TaskFinished is called when a worker is done with a task.
	TaskFinished()
}

// Runtime is a fixed pool of worker goroutines draining an unbounded FIFO queue.
// Submitting never blocks the caller. The worker count bounds the work run on
// the workers themselves; continuations started by SubmitDetached wait on I/O
// on their own goroutines and hold no worker.
type Runtime struct {
	// mu guards pending and closed.
	mu sync.Mutex
	// cond wakes idle workers when a job is queued or the runtime closes.
	cond *sync.Cond
	// pending holds queued jobs in submission order.
	pending []func()
	// closed rejects new submissions; workers exit once pending drains.
	closed bool
	// workers is the number of worker goroutines.
	workers int
	// wg tracks running workers.
	wg sync.WaitGroup
	// detached tracks continuations started by SubmitDetached.
	detached sync.WaitGroup
	// observer receives task life cycle notifications.
	observer RuntimeObserver
}

// RuntimeOption customizes a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeObserver sets the observer notified about task life cycle events.
func WithRuntimeObserver(observer RuntimeObserver) RuntimeOption {
	return func(rt *Runtime) {
		if observer != nil {
			rt.observer = observer
		}
	}
}

// NewRuntime starts a runtime with the given number of workers.
// A non-positive count starts one worker per CPU.
func NewRuntime(workers int, options ...RuntimeOption) *Runtime {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	rt := &Runtime{
		workers:  workers,
		observer: noopObserver{},
	}
	rt.cond = sync.NewCond(&rt.mu)

	for _, option := range options {
		option(rt)
	}

	rt.wg.Add(workers)

	for range workers {
		go rt.work()
	}

	return rt
}

// Workers returns the number of worker goroutines.
func (rt *Runtime) Workers() int {
	return rt.workers
}

// Close stops accepting tasks, lets the workers drain the queue and waits for
// them and for every detached continuation. The process-wide runtime is never closed.
func (rt *Runtime) Close() {
	rt.mu.Lock()
	rt.closed = true
	rt.mu.Unlock()

	rt.cond.Broadcast()
	rt.wg.Wait()
	// Workers start continuations before exiting, so none is added after this point.
	rt.detached.Wait()
}

func (rt *Runtime) enqueue(job func()) bool {
	rt.mu.Lock()

	if rt.closed {
		rt.mu.Unlock()

		return false
	}

	rt.pending = append(rt.pending, job)
	rt.observer.TaskQueued()
	rt.mu.Unlock()

	rt.cond.Signal()

	return true
}

func (rt *Runtime) work() {
	defer rt.wg.Done()

	for {
		rt.mu.Lock()

		for len(rt.pending) == 0 && !rt.closed {
			rt.cond.Wait()
		}

		if len(rt.pending) == 0 {
			rt.mu.Unlock()

			return
		}

		job := rt.pending[0]
		rt.pending[0] = nil
		rt.pending = rt.pending[1:]
		rt.mu.Unlock()

		rt.observer.TaskStarted()
		job()
		rt.observer.TaskFinished()
	}
}

// Task is the future of a unit of work submitted to a Runtime.
type Task[T any] struct {
	// done is closed once value and err are set.
	done chan struct{}
	// value is the result of the work.
	value T
	// err is the error of the work.
	err error
}

func newTask[T any]() *Task[T] {
	return &Task[T]{done: make(chan struct{})}
}

// CompletedTask returns a task that is already resolved with the given outcome.
func CompletedTask[T any](value T, err error) *Task[T] {
	task := newTask[T]()
	task.resolve(value, err)

	return task
}

func (t *Task[T]) resolve(value T, err error) {
	t.value, t.err = value, err
	close(t.done)
}

// Done returns a channel closed when the task has finished.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Await blocks until the task finishes or ctx is done.
// Giving up on ctx does not stop the task itself.
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero T

		return zero, ctx.Err()
	}
}

// Submit schedules fn on rt and returns its task immediately.
// A panic inside fn resolves the task with ErrTaskPanicked instead of crashing the process.
func Submit[T any](rt *Runtime, fn func() (T, error)) *Task[T] {
	task := newTask[T]()

	if !rt.enqueue(func() { task.resolve(protect(fn)) }) {
		var zero T

		task.resolve(zero, ErrRuntimeClosed)
	}

	return task
}

// SubmitDetached schedules prepare on rt and returns its task immediately.
// A worker runs prepare; the continuation it returns runs on a goroutine of
// its own, so a continuation blocked on the network never holds a worker.
// An error from prepare resolves the task without starting a continuation.
func SubmitDetached[T any](rt *Runtime, prepare func() (func() (T, error), error)) *Task[T] {
	task := newTask[T]()

	job := func() {
		var zero T

		continuation, err := protect(prepare)
		if err != nil {
			task.resolve(zero, err)

			return
		}

		rt.detached.Go(func() {
			task.resolve(protect(continuation))
		})
	}

	if !rt.enqueue(job) {
		var zero T

		task.resolve(zero, ErrRuntimeClosed)
	}

	return task
}

// protect calls fn and turns a panic into ErrTaskPanicked.
func protect[T any](fn func() (T, error)) (value T, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			var zero T

			value, err = zero, fmt.Errorf("%w: %v", ErrTaskPanicked, recovered)
		}
	}()

	return fn()
}

type noopObserver struct{}

func (noopObserver) TaskQueued()   {}
func (noopObserver) TaskStarted()  {}
func (noopObserver) TaskFinished() {}
