package session

import "time"

// Timer is a pending deferred call.
type Timer interface {
	Stop() bool
}

// Clock schedules deferred calls. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock returns the wall clock backed by time.AfterFunc.
func RealClock() Clock {
	return realClock{}
}

// timeout is the one-shot scan timer. gen identifies it so a fire that raced
// a cancellation can be recognised as stale.
type timeout struct {
	gen       uint64
	timer     Timer
	cancelled bool
}

// Cancel stops the timer. Cancelling an already fired or cancelled timer is a no-op.
func (t *timeout) Cancel() {
	if t == nil || t.cancelled {
		return
	}
	t.cancelled = true
	t.timer.Stop()
}
