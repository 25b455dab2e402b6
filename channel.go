package bgtask

type pollStatus uint8

const (
	pollEmpty pollStatus = iota
	pollReady
	pollBroken
)

// channel is the one-directional FIFO transport from worker to controller.
// The worker owns send and close; the controller only polls or receives.
type channel[T any] struct {
	c chan message[T]
}

func newChannel[T any](capacity int) *channel[T] {
	return &channel[T]{c: make(chan message[T], capacity)}
}

// send blocks while the buffer is full.
func (ch *channel[T]) send(m message[T]) {
	ch.c <- m
}

func (ch *channel[T]) close() {
	close(ch.c)
}

// poll returns the next message if one is already available. pollBroken means
// the worker closed the channel and nothing is left to read.
func (ch *channel[T]) poll() (message[T], pollStatus) {
	select {
	case m, ok := <-ch.c:
		if !ok {
			return m, pollBroken
		}
		return m, pollReady
	default:
		return message[T]{}, pollEmpty
	}
}

func (ch *channel[T]) recv() <-chan message[T] {
	return ch.c
}
