// Package proctor turns host-environment signals into an append-only log of
// typed, timestamped violations.
package proctor

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// blockedShortcuts are the keys that, combined with Ctrl or Meta, count as
// copy/paste-class violations (copy, paste, select-all, cut, save, find, print, refresh).
var blockedShortcuts = map[string]struct{}{
	"c": {}, "v": {}, "a": {}, "x": {}, "s": {}, "f": {}, "p": {}, "r": {},
}

// reservedKeyCodes are suppressed without a violation: F1, F5, F12.
var reservedKeyCodes = map[int]struct{}{112: {}, 116: {}, 123: {}}

var reservedKeys = map[string]struct{}{"F1": {}, "F5": {}, "F12": {}}

// Outcome tells the host what to do with a signal.
type Outcome struct {
	Suppressed bool
	Violation  *model.ViolationEvent
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithViolationHandler registers a push callback invoked for every recorded violation.
func WithViolationHandler(fn func(model.ViolationEvent)) Option {
	return func(m *Monitor) {
		m.onViolation = fn
	}
}

// Monitor owns the host listener for one session.
//
// A Monitor is not safe for concurrent use: Activate, Deactivate, Handle and
// the getters must run on the goroutine that owns the session. EnterFullscreen
// only talks to the host and may run anywhere.
type Monitor struct {
	host        Host
	log         zerolog.Logger
	now         func() time.Time
	onViolation func(model.ViolationEvent)

	active     bool
	fullscreen bool
	violations []model.ViolationEvent
	release    func()
}

// NewMonitor creates an inactive Monitor bound to host.
func NewMonitor(host Host, log zerolog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		host: host,
		log:  log.With().Str("component", "proctor_monitor").Logger(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Activate acquires the host listener. route decides how raw signals reach
// Handle; pass nil to handle them inline on the host's goroutine.
func (m *Monitor) Activate(route func(Signal)) {
	if m.active {
		return
	}
	if route == nil {
		route = func(sig Signal) { m.Handle(sig) }
	}
	m.active = true
	m.release = m.host.Listen(route)
	m.log.Debug().Msg("Monitoring activated")
}

// Deactivate releases the host listener. The violation log is frozen until
// the next Activate. Safe to call repeatedly.
func (m *Monitor) Deactivate() {
	if !m.active {
		return
	}
	m.active = false
	if m.release != nil {
		m.release()
		m.release = nil
	}
	m.log.Debug().Int("violations", len(m.violations)).Msg("Monitoring deactivated")
}

// Handle applies the derivation rules to one signal. While inactive every
// signal is ignored.
func (m *Monitor) Handle(sig Signal) Outcome {
	if !m.active {
		return Outcome{}
	}

	switch sig.Kind {
	case SignalFullscreenChange:
		was := m.fullscreen
		m.fullscreen = sig.Fullscreen
		if was && !sig.Fullscreen {
			return Outcome{Violation: m.record(model.ViolationFullscreenExit)}
		}

	case SignalVisibilityChange:
		if sig.Hidden {
			return Outcome{Violation: m.record(model.ViolationTabChange)}
		}

	case SignalContextMenu:
		return Outcome{Suppressed: true, Violation: m.record(model.ViolationRightClick)}

	case SignalKeyDown:
		if sig.Ctrl || sig.Meta {
			if _, ok := blockedShortcuts[strings.ToLower(sig.Key)]; ok {
				return Outcome{Suppressed: true, Violation: m.record(model.ViolationCopyPaste)}
			}
		}
		if isReservedKey(sig) {
			return Outcome{Suppressed: true}
		}

	default:
		m.log.Debug().Str("kind", string(sig.Kind)).Msg("Ignoring unknown signal")
	}

	return Outcome{}
}

func isReservedKey(sig Signal) bool {
	if _, ok := reservedKeyCodes[sig.KeyCode]; ok {
		return true
	}
	_, ok := reservedKeys[strings.ToUpper(sig.Key)]
	return ok
}

func (m *Monitor) record(t model.ViolationType) *model.ViolationEvent {
	ev := model.ViolationEvent{Type: t, Timestamp: m.now().UTC()}
	m.violations = append(m.violations, ev)

	m.log.Info().
		Str("type", string(t)).
		Int("count", len(m.violations)).
		Msg("Violation recorded")

	if m.onViolation != nil {
		m.onViolation(ev)
	}
	return &ev
}

// EnterFullscreen asks the host for exclusive full-screen presentation.
// A refusal is logged and returned as *EnvironmentError; it never ends the session.
// The full-screen flag itself only follows SignalFullscreenChange.
func (m *Monitor) EnterFullscreen(ctx context.Context) error {
	if err := m.host.RequestFullscreen(ctx); err != nil {
		m.log.Warn().Err(err).Msg("Full-screen request denied, continuing unsecured")
		return &EnvironmentError{Op: "fullscreen", Err: err}
	}
	return nil
}

// ExitFullscreen releases full-screen presentation. No-op when not full-screen.
func (m *Monitor) ExitFullscreen(ctx context.Context) error {
	if !m.fullscreen {
		return nil
	}
	if err := m.host.ExitFullscreen(ctx); err != nil {
		m.log.Warn().Err(err).Msg("Full-screen exit failed")
		return &EnvironmentError{Op: "fullscreen exit", Err: err}
	}
	m.fullscreen = false
	return nil
}

// IsActive reports whether monitoring is on.
func (m *Monitor) IsActive() bool { return m.active }

// IsFullscreen reports the last known full-screen state.
func (m *Monitor) IsFullscreen() bool { return m.fullscreen }

// Count returns the number of recorded violations.
func (m *Monitor) Count() int { return len(m.violations) }

// Violations returns a copy of the log in emission order.
func (m *Monitor) Violations() []model.ViolationEvent {
	out := make([]model.ViolationEvent, len(m.violations))
	copy(out, m.violations)
	return out
}
