package bgtask

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/jaeyoung0509/bgtask/logging"
)

// worker forwards a generator's output over the channel until the generator
// ends, fails, or the termination flag is raised.
type worker[T any] struct {
	// ctx is the task's base context; it is done once Cancel or the parent
	// context asked the worker to stop.
	ctx          context.Context
	ch           *channel[T]
	flag         *terminationFlag
	gen          Generator[T]
	logger       logging.Logger
	panicToError bool

	// set once the terminal message is sent
	terminated bool
}

func (w *worker[T]) run() (retErr error) {
	w.logger.Debug("worker started")

	// runtime.Goexit in the generator leaves outcome at "aborted" and the
	// controller sees a closed channel with no terminal message.
	outcome := "aborted"
	defer func() {
		w.ch.close()
		w.logger.Debug("worker closed", "outcome", outcome)
	}()

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if !w.panicToError {
			panic(r)
		}
		err := fmt.Errorf("bgtask: panic recovered: %v", r)
		if w.terminated {
			// Generator kept iterating after the loop stopped it.
			w.logger.Error("generator panicked after termination", "error", err)
			return
		}
		w.logger.Error("generator panicked", "error", err, "stack", string(debug.Stack()))
		w.finish(failureMessage[T](FailurePanic, err))
		outcome = "failed"
		retErr = err
	}()

	for v, err := range w.gen {
		if err != nil && w.stopRequested() && isContextErr(err) {
			// The generator watched its context and gave up after a cancel request.
			w.finish(failureMessage[T](FailureCanceled, errCanceled))
			outcome = "canceled"
			return nil
		}
		if err != nil {
			w.logger.Error("generator failed", "error", err, "error_type", fmt.Sprintf("%T", err))
			w.finish(failureMessage[T](FailureError, err))
			outcome = "failed"
			return err
		}
		if w.stopRequested() {
			w.finish(failureMessage[T](FailureCanceled, errCanceled))
			outcome = "canceled"
			return nil
		}
		w.ch.send(itemMessage(v))
	}

	w.finish(endMessage[T]())
	outcome = "completed"
	return nil
}

// stopRequested also consults ctx because the termination flag is raised for a
// canceled parent context asynchronously, after the generator may already have
// observed ctx.Done.
func (w *worker[T]) stopRequested() bool {
	return w.flag.raised() || w.ctx.Err() != nil
}

func (w *worker[T]) finish(m message[T]) {
	w.terminated = true
	w.ch.send(m)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
