package app

import (
	"sync"
	"time"
)

// TimerState is the lifecycle position of an attempt timer.
type TimerState int

const (
	TimerIdle TimerState = iota
	TimerRunning
	TimerExpired
	TimerStopped
)

func (s TimerState) String() string {
	switch s {
	case TimerIdle:
		return "idle"
	case TimerRunning:
		return "running"
	case TimerExpired:
		return "expired"
	case TimerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	lowTimeThreshold = 60
	tickThreshold    = 10
)

// TimerHooks receive timer signals. Any hook may be nil. OnWarning and OnTick run with the
// timer lock held, so they never fire after Stop returns and must not call into the Timer.
// OnExpire runs without the lock and may call Stop.
type TimerHooks struct {
	OnWarning func(remaining int)
	OnTick    func(remaining int)
	OnExpire  func()
}

// TickSource yields a tick channel and a function releasing it.
type TickSource func() (<-chan time.Time, func())

// EveryTicker is the production tick source.
func EveryTicker(interval time.Duration) TickSource {
	return func() (<-chan time.Time, func()) {
		t := time.NewTicker(interval)
		return t.C, t.Stop
	}
}

// Timer counts an attempt down one second per tick. It is started once and ends
// either Expired or Stopped; it cannot be resumed.
type Timer struct {
	hooks  TimerHooks
	source TickSource

	mu        sync.Mutex
	state     TimerState
	remaining int
	warned    bool
	stop      chan struct{}
	done      chan struct{}
}

func NewTimer(seconds int, source TickSource, hooks TimerHooks) *Timer {
	if source == nil {
		source = EveryTicker(time.Second)
	}
	return &Timer{
		hooks:     hooks,
		source:    source,
		remaining: seconds,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start moves Idle -> Running and launches the countdown. Calling it twice is a no-op.
func (t *Timer) Start() {
	t.mu.Lock()
	if t.state != TimerIdle {
		t.mu.Unlock()
		return
	}
	t.state = TimerRunning
	t.mu.Unlock()

	ticks, release := t.source()
	go t.run(ticks, release)
}

// Stop moves Running -> Stopped and reports whether this call stopped the timer.
// Once Stop returns no further decrement or hook runs.
func (t *Timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TimerRunning {
		if t.state == TimerIdle {
			t.state = TimerStopped
			close(t.done)
		}
		return false
	}
	t.state = TimerStopped
	close(t.stop)
	return true
}

// State returns the current state.
func (t *Timer) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Remaining returns the seconds left.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Done is closed once the countdown goroutine has exited.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}

func (t *Timer) run(ticks <-chan time.Time, release func()) {
	defer close(t.done)
	defer release()

	for {
		select {
		case <-t.stop:
			return
		case <-ticks:
			if !t.decrement() {
				return
			}
		}
	}
}

// decrement applies one tick and fires hooks. It returns false when the countdown is over.
func (t *Timer) decrement() bool {
	t.mu.Lock()
	if t.state != TimerRunning {
		t.mu.Unlock()
		return false
	}
	if t.remaining > 0 {
		t.remaining--
	}
	remaining := t.remaining

	if !t.warned && remaining > 0 && remaining <= lowTimeThreshold {
		t.warned = true
		if t.hooks.OnWarning != nil {
			t.hooks.OnWarning(remaining)
		}
	}
	if remaining >= 1 && remaining <= tickThreshold && t.hooks.OnTick != nil {
		t.hooks.OnTick(remaining)
	}
	expired := remaining == 0
	if expired {
		t.state = TimerExpired
	}
	t.mu.Unlock()

	if expired {
		if t.hooks.OnExpire != nil {
			t.hooks.OnExpire()
		}
		return false
	}
	return true
}
