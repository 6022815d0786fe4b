// Package countdown implements the session countdown: one tick per interval,
// and exactly one expiry when the remaining seconds reach zero.
package countdown

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrAlreadyStarted = errors.New("countdown already started")
	ErrStopped        = errors.New("countdown stopped")
)

// TickSource creates the recurring signal driving the countdown. The returned
// release func must stop the signal and is called exactly once.
type TickSource func(interval time.Duration) (ticks <-chan time.Time, release func())

func tickerSource(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}

// Option configures a Timer.
type Option func(*Timer)

// WithInterval overrides the one-second tick interval.
func WithInterval(d time.Duration) Option {
	return func(t *Timer) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithTickSource replaces the wall-clock ticker, e.g. with a manual channel in tests.
func WithTickSource(src TickSource) Option {
	return func(t *Timer) {
		if src != nil {
			t.source = src
		}
	}
}

// WithClock replaces time.Now when computing the deadline.
func WithClock(now func() time.Time) Option {
	return func(t *Timer) {
		if now != nil {
			t.now = now
		}
	}
}

// Timer is a one-shot countdown. It is safe for concurrent use.
// Remaining time follows a fixed deadline, so ticks dropped by a slow
// consumer never make it fall behind the wall clock.
type Timer struct {
	interval time.Duration
	source   TickSource
	now      func() time.Time
	deadline time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	quit    chan struct{}
	done    chan struct{}

	remaining atomic.Int64
}

// New creates an idle Timer.
func New(opts ...Option) *Timer {
	t := &Timer{
		interval: time.Second,
		source:   tickerSource,
		now:      time.Now,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins counting down from totalSeconds. onTick receives the remaining
// seconds after every tick; onExpire fires once when zero is reached. Both run
// on the timer goroutine and may be nil.
func (t *Timer) Start(totalSeconds int, onTick func(remaining int), onExpire func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return ErrStopped
	}
	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true

	if totalSeconds < 0 {
		totalSeconds = 0
	}
	t.remaining.Store(int64(totalSeconds))
	t.deadline = t.now().Add(time.Duration(totalSeconds) * t.interval)

	if totalSeconds == 0 {
		go func() {
			defer close(t.done)
			if onExpire != nil {
				onExpire()
			}
		}()
		return nil
	}

	ticks, release := t.source(t.interval)
	go t.run(ticks, release, onTick, onExpire)
	return nil
}

func (t *Timer) run(ticks <-chan time.Time, release func(), onTick func(int), onExpire func()) {
	defer close(t.done)
	defer release()

	for {
		select {
		case <-t.quit:
			return
		case <-ticks:
			// A stop may race the tick; stop wins.
			select {
			case <-t.quit:
				return
			default:
			}

			left := t.advance()
			if onTick != nil {
				onTick(int(left))
			}
			if left <= 0 {
				if onExpire != nil {
					onExpire()
				}
				return
			}
		}
	}
}

// advance moves the countdown at least one step and catches up with the
// deadline when ticks were missed.
func (t *Timer) advance() int64 {
	left := t.remaining.Load() - 1
	if byClock := t.unitsUntil(t.deadline); byClock < left {
		left = byClock
	}
	if left < 0 {
		left = 0
	}
	t.remaining.Store(left)
	return left
}

// unitsUntil rounds the time to deadline up to whole intervals.
func (t *Timer) unitsUntil(deadline time.Time) int64 {
	rem := deadline.Sub(t.now())
	if rem <= 0 {
		return 0
	}
	return int64((rem + t.interval - 1) / t.interval)
}

// Stop cancels all future signals. It is idempotent and never blocks on the
// timer goroutine; use Done to wait for the release.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	t.stopped = true
	close(t.quit)
	if !t.started {
		close(t.done)
	}
}

// Remaining returns the seconds left on the countdown.
func (t *Timer) Remaining() int {
	return int(t.remaining.Load())
}

// Done is closed once the countdown resource has been released.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}
