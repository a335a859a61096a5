// Package schedule provides the single-flight timer that drives a shipper.
package schedule

import (
	"sync"
	"time"
)

// Timer runs fn at most once per Start call, always on the same goroutine,
// so two invocations of fn never overlap.
type Timer struct {
	fn    func()
	clock Clock

	arm     chan time.Duration
	done    chan struct{}
	exited  chan struct{}
	dispose sync.Once
}

// NewTimer starts the timer's worker goroutine. Nothing fires until Start.
func NewTimer(fn func(), clock Clock) *Timer {
	if clock == nil {
		clock = RealClock()
	}
	t := &Timer{
		fn:     fn,
		clock:  clock,
		arm:    make(chan time.Duration, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go t.run()
	return t
}

// Start arms one fire after d. A pending arm that has not been picked up yet
// is replaced. Start never blocks and may be called from fn.
func (t *Timer) Start(d time.Duration) {
	for {
		select {
		case <-t.done:
			return
		default:
		}
		select {
		case t.arm <- d:
			return
		default:
		}
		select {
		case <-t.arm:
		default:
		}
	}
}

// Dispose stops further fires and waits for an in-flight fn to return.
// It is idempotent and must not be called from fn.
func (t *Timer) Dispose() {
	t.dispose.Do(func() { close(t.done) })
	<-t.exited
}

func (t *Timer) run() {
	defer close(t.exited)

	var (
		current ClockTimer
		fire    <-chan time.Time
	)
	stop := func() {
		if current != nil {
			current.Stop()
			current, fire = nil, nil
		}
	}

	for {
		select {
		case <-t.done:
			stop()
			return
		case d := <-t.arm:
			stop()
			current = t.clock.NewTimer(d)
			fire = current.C()
		case <-fire:
			current, fire = nil, nil
			select {
			case <-t.done:
				return
			default:
			}
			t.fn()
		}
	}
}
