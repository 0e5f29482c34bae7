package topology

import (
	"sync"
	"time"
)

// Stopper is a pending timer.
type Stopper interface {
	Stop() bool
}

// TimerFunc runs f once after d. time.AfterFunc is the default.
type TimerFunc func(d time.Duration, f func()) Stopper

func afterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Scheduler runs at most one pending tick at a time. Each tick is responsible
// for arming the next one.
// Thread-safe: All methods are safe for concurrent access.
type Scheduler struct {
	// timer creates the underlying one-shot timers.
	timer TimerFunc
	// pending is the armed tick that has not fired yet, or nil.
	pending *Tick
	// running counts ticks currently executing; Stop waits on it.
	running sync.WaitGroup
	mu      sync.Mutex
	// stopped refuses further arming once set.
	stopped bool
}

// Tick is a handle to one scheduled run.
type Tick struct {
	s       *Scheduler
	t       Stopper
	Delay   time.Duration
	fired   bool
	expired bool
}

// NewScheduler returns a scheduler backed by time.AfterFunc.
func NewScheduler() *Scheduler {
	return NewSchedulerWithTimer(afterFunc)
}

// NewSchedulerWithTimer returns a scheduler using the given timer source.
// This is useful for tests that need to observe delays and fire ticks by hand.
func NewSchedulerWithTimer(timer TimerFunc) *Scheduler {
	return &Scheduler{timer: timer}
}

// Arm schedules fn to run once after delay.
//
// At most one tick is outstanding: the pending slot is cleared just before
// fn runs, so fn itself may call Arm to schedule the next run.
//
// Parameters:
//   - delay: How long to wait before running fn
//   - fn: The work to run; it executes on the timer's goroutine
//
// Returns:
//   - *Tick: Handle for cancelling the run, or nil when the scheduler is
//     stopped or another tick is still pending
//
// Example:
//
//	var loop func()
//	loop = func() {
//	    doWork()
//	    s.Arm(interval, loop)
//	}
//	s.Arm(interval, loop)
func (s *Scheduler) Arm(delay time.Duration, fn func()) *Tick {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.pending != nil {
		return nil
	}

	tick := &Tick{s: s, Delay: delay}
	s.pending = tick
	tick.t = s.timer(delay, func() { s.fire(tick, fn) })
	return tick
}

func (s *Scheduler) fire(tick *Tick, fn func()) {
	s.mu.Lock()
	if s.pending == tick {
		s.pending = nil
	}
	if s.stopped || tick.expired {
		s.mu.Unlock()
		return
	}
	tick.fired = true
	tick.expired = true
	s.running.Add(1)
	s.mu.Unlock()

	defer s.running.Done()
	fn()
}

// Cancel prevents a pending tick from running. It returns false if the tick
// already ran or was cancelled. A tick that is already executing is not
// interrupted.
func (t *Tick) Cancel() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if t.expired {
		return false
	}
	t.expired = true
	if t.s.pending == t {
		t.s.pending = nil
	}
	t.t.Stop()
	return true
}

// Fired reports whether the tick started running.
func (t *Tick) Fired() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.fired
}

// Pending reports whether a tick is armed and has not fired yet.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Stop cancels the pending tick, refuses further arming and waits for an
// executing tick to finish. Must not be called from inside a tick.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	if p := s.pending; p != nil {
		p.expired = true
		p.t.Stop()
		s.pending = nil
	}
	s.mu.Unlock()

	s.running.Wait()
}

// Stopped reports whether Stop has been called.
func (s *Scheduler) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
