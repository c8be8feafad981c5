package project

import (
	"time"
)

type TimerState string

const (
	TimerClean   TimerState = "clean"
	TimerStarted TimerState = "started"
	TimerStopped TimerState = "stopped"
)

/*
	StragglerTimer bounds how long assigned jobs may stay outstanding.

	It starts on the first assignment (and on any assignment after it has
	stopped); when it fires, the owning project re-queues every job
	assigned before `now - timeout`.  The timer holds no lock of its own:
	the project calls every method under its own lock, and the fire
	callback is handed a generation number so the project can tell a
	current expiry from one that was overtaken by a restart or stop.
*/
type StragglerTimer struct {
	timeout time.Duration
	fire    func(gen int)
	state   TimerState
	gen     int
	timer   *time.Timer
}

func NewStragglerTimer(timeout time.Duration, fire func(gen int)) *StragglerTimer {
	return &StragglerTimer{
		timeout: timeout,
		fire:    fire,
		state:   TimerClean,
	}
}

func (t *StragglerTimer) State() TimerState { return t.state }

func (t *StragglerTimer) Timeout() time.Duration { return t.timeout }

// Start the timer unless it's already running.
func (t *StragglerTimer) Touch() {
	if t.state != TimerStarted {
		t.Start()
	}
}

// (Re)start the timer from now.
func (t *StragglerTimer) Start() {
	if t.timeout <= 0 {
		return
	}
	t.halt()
	t.gen++
	gen := t.gen
	t.state = TimerStarted
	t.timer = time.AfterFunc(t.timeout, func() { t.fire(gen) })
}

func (t *StragglerTimer) Stop() {
	t.halt()
	t.gen++
	if t.state == TimerStarted {
		t.state = TimerStopped
	}
}

/*
	Called by the project from the fire callback.  Returns true if the
	expiry is current, in which case the timer is now stopped and the
	project should re-queue its stragglers.
*/
func (t *StragglerTimer) Expire(gen int) bool {
	if gen != t.gen || t.state != TimerStarted {
		return false
	}
	t.timer = nil
	t.state = TimerStopped
	return true
}

func (t *StragglerTimer) halt() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
