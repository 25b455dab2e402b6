package bgtask

import (
	"time"

	"github.com/jaeyoung0509/bgtask/logging"
)

const (
	defaultBuffer        = 64
	defaultCloseTimeout  = 100 * time.Millisecond
	defaultCancelTimeout = time.Second
)

// Option configures a Task.
type Option func(*config)

type config struct {
	buffer        int
	logger        logging.Logger
	panicToError  bool
	closeTimeout  time.Duration
	cancelTimeout time.Duration
}

func defaultConfig() config {
	return config{
		buffer:        defaultBuffer,
		logger:        logging.NoOpLogger{},
		panicToError:  true,
		closeTimeout:  defaultCloseTimeout,
		cancelTimeout: defaultCancelTimeout,
	}
}

// WithBuffer sets how many messages the worker may send before it blocks
// waiting for the controller to fetch. 0 makes every send a handoff.
func WithBuffer(size int) Option {
	if size < 0 {
		panic("bgtask: buffer cannot be negative")
	}

	return func(c *config) {
		c.buffer = size
	}
}

// WithLogger sets the diagnostic sink for the task and its worker.
func WithLogger(l logging.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPanicToError converts generator panics to worker errors.
func WithPanicToError(enabled bool) Option {
	return func(c *config) {
		c.panicToError = enabled
	}
}

// WithCloseTimeout bounds how long Close waits for the worker to exit.
func WithCloseTimeout(d time.Duration) Option {
	if d < 0 {
		panic("bgtask: close timeout cannot be negative")
	}

	return func(c *config) {
		c.closeTimeout = d
	}
}

// WithCancelTimeout sets the bound used by CancelDefault.
func WithCancelTimeout(d time.Duration) Option {
	if d < 0 {
		panic("bgtask: cancel timeout cannot be negative")
	}

	return func(c *config) {
		c.cancelTimeout = d
	}
}
