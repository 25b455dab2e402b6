package bgtask

import "sync/atomic"

// terminationFlag is written only by the controller and read only by the
// worker between items. It moves from false to true once and never back.
//
// The worker polls it before forwarding each item, not while the generator is
// producing one, so it may still send a single item after raise returns.
type terminationFlag struct {
	v atomic.Bool
}

func (f *terminationFlag) raise() {
	f.v.Store(true)
}

func (f *terminationFlag) raised() bool {
	return f.v.Load()
}
