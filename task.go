package bgtask

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/jaeyoung0509/bgtask/logging"
)

// State is the controller-side lifecycle state of a Task.
type State int32

const (
	// StateActive means no terminal message has been observed yet.
	StateActive State = iota
	// StateCompleted means the generator was exhausted and every item fetched.
	StateCompleted
	// StateCanceled means the worker stopped on the termination flag or
	// closed its channel without a terminal message.
	StateCanceled
	// StateFailed means Fetch surfaced a WorkerError.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateCanceled:
		return "canceled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Task runs one generator in a background worker and hands its items to the
// caller on demand.
//
// Fetch, Cancel and Close are meant to be called by the goroutine that owns
// the task. State observers are safe from any goroutine.
type Task[T any] struct {
	name   string
	id     string
	cfg    config
	logger logging.Logger

	flag  *terminationFlag
	ch    *channel[T]
	state atomic.Int32

	cancel    context.CancelCauseFunc
	stopWatch func() bool
	exited    chan struct{}

	// mu guards channel reads, state transitions and eg.
	mu sync.Mutex
	eg *errgroup.Group
}

// New starts a task named name whose worker runs the generator factory
// builds from args. It returns as soon as the worker is spawned.
//
// Canceling ctx raises the task's termination flag; the worker then stops at
// its next item.
func New[T any](ctx context.Context, name string, factory Factory[T], args Args, opts ...Option) (*Task[T], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if factory == nil {
		return nil, ErrNilFactory
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	id := uuid.NewString()
	logger := logging.With(cfg.logger, "task", name, "task_id", id)

	baseCtx, cancel := context.WithCancelCause(ctx)
	eg, runCtx := errgroup.WithContext(baseCtx)

	gen, err := factory(runCtx, args)
	if err != nil {
		cancel(err)
		return nil, fmt.Errorf("bgtask: build generator for task %q: %w", name, err)
	}
	if gen == nil {
		cancel(ErrNilGenerator)
		return nil, ErrNilGenerator
	}

	t := &Task[T]{
		name:   name,
		id:     id,
		cfg:    cfg,
		logger: logger,
		flag:   &terminationFlag{},
		ch:     newChannel[T](cfg.buffer),
		cancel: cancel,
		exited: make(chan struct{}),
		eg:     eg,
	}
	t.stopWatch = context.AfterFunc(baseCtx, t.flag.raise)

	w := &worker[T]{
		ctx:          baseCtx,
		ch:           t.ch,
		flag:         t.flag,
		gen:          gen,
		logger:       logger,
		panicToError: cfg.panicToError,
	}
	eg.Go(w.run)
	go t.await(eg)

	logger.Debug("task started", "buffer", cfg.buffer)
	return t, nil
}

// Run starts a task, passes it to fn and closes it on every exit path,
// including a panic in fn. A Close timeout is reported only if fn succeeded.
func Run[T any](ctx context.Context, name string, factory Factory[T], args Args, fn func(*Task[T]) error, opts ...Option) (err error) {
	t, err := New(ctx, name, factory, args, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := t.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn(t)
}

// Name returns the diagnostic name given to New.
func (t *Task[T]) Name() string {
	return t.name
}

// ID returns the unique identifier attached to the task's log entries.
func (t *Task[T]) ID() string {
	return t.id
}

// State returns the current lifecycle state.
func (t *Task[T]) State() State {
	return State(t.state.Load())
}

// Completed reports whether the generator was exhausted and fully fetched.
func (t *Task[T]) Completed() bool {
	return t.State() == StateCompleted
}

// Canceled reports whether the worker stopped because of cancellation.
func (t *Task[T]) Canceled() bool {
	return t.State() == StateCanceled
}

// Failed reports whether Fetch has surfaced a WorkerError.
func (t *Task[T]) Failed() bool {
	return t.State() == StateFailed
}

// Done returns a channel closed once the worker goroutine has exited.
func (t *Task[T]) Done() <-chan struct{} {
	return t.exited
}

// Fetch returns the items the worker has produced since the last call.
//
// The sequence never blocks: it ends as soon as nothing more is pending or
// the task reaches a terminal state. A generator failure is yielded once as
// (zero, *WorkerError) and moves the task to StateFailed. Breaking out of the
// loop early leaves the remaining items for the next call.
func (t *Task[T]) Fetch() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			v, ok, err := t.pull()
			if !ok {
				return
			}
			if err != nil {
				yield(v, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// FetchAll collects one Fetch pass. Items fetched before a failure are
// returned along with the error.
func (t *Task[T]) FetchAll() ([]T, error) {
	var items []T
	for v, err := range t.Fetch() {
		if err != nil {
			return items, err
		}
		items = append(items, v)
	}
	return items, nil
}

// Cancel asks the worker to stop and waits up to timeout for it to exit.
//
// Pending items are discarded. On a task that is already terminal Cancel
// only waits for the worker. The worker handle is released afterwards whether
// or not the worker exited in time, so repeated calls return immediately.
func (t *Task[T]) Cancel(timeout time.Duration) {
	t.cancelAndJoin(timeout)
}

// CancelDefault is Cancel with the timeout set by WithCancelTimeout.
func (t *Task[T]) CancelDefault() {
	t.cancelAndJoin(t.cfg.cancelTimeout)
}

// Close cancels the task with the timeout set by WithCloseTimeout. It returns
// ErrWorkerTimeout if the worker is still running afterwards.
func (t *Task[T]) Close() error {
	if !t.cancelAndJoin(t.cfg.closeTimeout) {
		return fmt.Errorf("task %q: %w", t.name, ErrWorkerTimeout)
	}
	return nil
}

func (t *Task[T]) cancelAndJoin(timeout time.Duration) bool {
	if t.State() == StateActive {
		t.logger.Debug("canceling task")
		t.flag.raise()
		t.cancel(errCanceled)
		t.flush()
	}
	return t.join(timeout)
}

// flush drains whatever the worker already sent. It frees buffer space so a
// worker blocked in send can reach its next flag check.
func (t *Task[T]) flush() {
	for {
		_, ok, err := t.pull()
		if !ok {
			return
		}
		if err != nil {
			t.logger.Warn("worker failed while canceling", "error", err)
			return
		}
	}
}

// join waits up to timeout for the worker, consuming messages while the task
// is still active, then drops the worker handle.
func (t *Task[T]) join(timeout time.Duration) bool {
	t.mu.Lock()
	held := t.eg != nil
	t.mu.Unlock()
	if !held {
		return t.exitedNow()
	}
	defer t.release()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		var in <-chan message[T]
		if t.State() == StateActive {
			in = t.ch.recv()
		}

		select {
		case <-t.exited:
			// The channel is closed by now; read up to its terminal message.
			t.flush()
			return true
		case <-timer.C:
			t.logger.Warn("worker did not exit in time", "timeout", timeout)
			t.flush()
			return t.exitedNow()
		case m, ok := <-in:
			t.mu.Lock()
			if !ok {
				t.transition(StateCanceled)
			} else if m.terminal() {
				if _, _, err := t.decode(m); err != nil {
					t.logger.Warn("worker failed while canceling", "error", err)
				}
			}
			t.mu.Unlock()
		}
	}
}

func (t *Task[T]) release() {
	t.mu.Lock()
	t.eg = nil
	t.mu.Unlock()
}

func (t *Task[T]) exitedNow() bool {
	select {
	case <-t.exited:
		return true
	default:
		return false
	}
}

func (t *Task[T]) await(eg *errgroup.Group) {
	defer close(t.exited)

	err := eg.Wait()
	t.stopWatch()
	t.cancel(errCanceled)
	t.logger.Debug("worker exited", "error", err)
}

// pull performs one non-blocking read. ok is false when nothing is pending or
// the task is terminal; otherwise the result is an item or a WorkerError.
func (t *Task[T]) pull() (T, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.State() != StateActive {
		return lo.Empty[T](), false, nil
	}

	m, status := t.ch.poll()
	switch status {
	case pollEmpty:
		return lo.Empty[T](), false, nil
	case pollBroken:
		t.logger.Debug("channel closed without terminal message")
		t.transition(StateCanceled)
		return lo.Empty[T](), false, nil
	}
	return t.decode(m)
}

// decode applies m to the task state. Callers hold mu.
func (t *Task[T]) decode(m message[T]) (T, bool, error) {
	switch m.kind {
	case kindItem:
		return m.value, true, nil
	case kindEnd:
		t.transition(StateCompleted)
	case kindFailure:
		if m.code == FailureCanceled {
			t.transition(StateCanceled)
			break
		}
		if t.transition(StateFailed) {
			return lo.Empty[T](), true, m.workerError(t.name)
		}
	}
	return lo.Empty[T](), false, nil
}

// transition moves an active task to a terminal state exactly once.
func (t *Task[T]) transition(to State) bool {
	if !t.state.CompareAndSwap(int32(StateActive), int32(to)) {
		return false
	}
	t.logger.Debug("task state changed", "state", to.String())
	return true
}
