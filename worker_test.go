package bgtask

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaeyoung0509/bgtask/logging"
)

func newTestWorker[T any](gen Generator[T], capacity int) (*worker[T], *channel[T]) {
	ch := newChannel[T](capacity)
	return &worker[T]{
		ctx:          context.Background(),
		ch:           ch,
		flag:         &terminationFlag{},
		gen:          gen,
		logger:       logging.NoOpLogger{},
		panicToError: true,
	}, ch
}

func collect[T any](ch *channel[T]) []message[T] {
	var out []message[T]
	for m := range ch.recv() {
		out = append(out, m)
	}
	return out
}

func TestWorkerSendsItemsThenEnd(t *testing.T) {
	t.Parallel()

	w, ch := newTestWorker(FromSeq[string](func(yield func(string) bool) {
		for _, s := range []string{"a", "b"} {
			if !yield(s) {
				return
			}
		}
	}), 8)

	require.NoError(t, w.run())
	msgs := collect(ch)

	require.Len(t, msgs, 3)
	assert.Equal(t, itemMessage("a"), msgs[0])
	assert.Equal(t, itemMessage("b"), msgs[1])
	assert.Equal(t, kindEnd, msgs[2].kind)
}

func TestWorkerChecksFlagBeforeEachItem(t *testing.T) {
	t.Parallel()

	produced := 0
	w, ch := newTestWorker(Generator[int](func(yield func(int, error) bool) {
		for i := 0; i < 10; i++ {
			produced++
			if !yield(i, nil) {
				return
			}
		}
	}), 8)
	w.flag.raise()

	require.NoError(t, w.run())
	msgs := collect(ch)

	// The first item is produced but never sent.
	assert.Equal(t, 1, produced)
	require.Len(t, msgs, 1)
	assert.Equal(t, kindFailure, msgs[0].kind)
	assert.Equal(t, FailureCanceled, msgs[0].code)
}

func TestWorkerTreatsDoneContextAsCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w, ch := newTestWorker(Generator[int](func(yield func(int, error) bool) {
		yield(0, ctx.Err())
	}), 8)
	w.ctx = ctx

	// The flag is still down; only the context reports the stop.
	require.False(t, w.flag.raised())
	require.NoError(t, w.run())
	msgs := collect(ch)

	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].terminal())
	assert.Equal(t, FailureCanceled, msgs[0].code)
}

func TestWorkerForwardsGeneratorError(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	w, ch := newTestWorker(failAfter(2, errBoom), 8)

	assert.ErrorIs(t, w.run(), errBoom)
	msgs := collect(ch)

	require.Len(t, msgs, 3)
	last := msgs[2]
	assert.True(t, last.terminal())
	assert.Equal(t, FailureError, last.code)
	assert.Equal(t, "boom", last.text)

	werr := last.workerError("job")
	assert.ErrorIs(t, werr, errBoom)
	assert.Equal(t, `bgtask: task "job" failed (error): boom`, werr.Error())
}

func TestWorkerRecoversPanic(t *testing.T) {
	t.Parallel()

	w, ch := newTestWorker(Generator[int](func(yield func(int, error) bool) {
		panic("kaboom")
	}), 8)

	err := w.run()
	require.Error(t, err)
	msgs := collect(ch)

	require.Len(t, msgs, 1)
	assert.Equal(t, FailurePanic, msgs[0].code)
	assert.Contains(t, msgs[0].text, "kaboom")
}

func TestWorkerRethrowsPanicWhenConfigured(t *testing.T) {
	t.Parallel()

	w, ch := newTestWorker(Generator[int](func(yield func(int, error) bool) {
		panic("kaboom")
	}), 8)
	w.panicToError = false

	assert.PanicsWithValue(t, "kaboom", func() { _ = w.run() })
	assert.Empty(t, collect(ch))
}

func TestChannelPoll(t *testing.T) {
	t.Parallel()

	ch := newChannel[int](2)

	_, status := ch.poll()
	assert.Equal(t, pollEmpty, status)

	ch.send(itemMessage(5))
	m, status := ch.poll()
	assert.Equal(t, pollReady, status)
	assert.Equal(t, 5, m.value)

	ch.close()
	_, status = ch.poll()
	assert.Equal(t, pollBroken, status)
}

func TestTerminationFlagIsMonotonic(t *testing.T) {
	t.Parallel()

	var f terminationFlag
	assert.False(t, f.raised())
	f.raise()
	f.raise()
	assert.True(t, f.raised())
}

func TestFailureCodeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "canceled", FailureCanceled.String())
	assert.Equal(t, "error", FailureError.String())
	assert.Equal(t, "panic", FailurePanic.String())
	assert.Equal(t, "unknown", FailureCode(0).String())
}
