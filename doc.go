// Package bgtask runs one long-lived generator in a background worker while
// the caller stays free to poll for partial results, observe completion, or
// cancel cooperatively.
//
// It combines:
//   - errgroup to spawn and join the single worker goroutine
//   - a bounded channel of tagged messages (item / failure / end)
//   - an atomic termination flag the worker checks between items
//
// Core behavior:
//   - start a task with New (the worker starts immediately)
//   - drain newly produced items with Fetch, which never blocks
//   - stop the worker with Cancel(timeout), or Close for scoped teardown
//   - observe Completed, Canceled and Failed at any time
//
// Semantics:
//   - items arrive in exactly the order the generator produced them
//   - a generator error is surfaced once by Fetch as a *WorkerError and
//     leaves the task Failed; later Fetch calls are empty
//   - cancellation takes effect at the worker's next item, so one item may
//     still be produced after Cancel is called
//   - a worker that exits without a terminal message is reported as Canceled
//
// Teardown:
//   - defer t.Close() or use Run so no worker outlives its owner by more than
//     the close timeout
//
// Policy options:
//   - WithBuffer(n): messages the worker may queue before blocking
//   - WithLogger(l): diagnostic sink for worker failures and lifecycle events
//   - WithPanicToError(true): convert generator panics to WorkerError (default)
//   - WithCloseTimeout(d), WithCancelTimeout(d): bounds for Close and CancelDefault
package bgtask
