package proctor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(host Host, opts ...Option) *Monitor {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	clock := func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return NewMonitor(host, zerolog.Nop(), append([]Option{WithClock(clock)}, opts...)...)
}

func types(events []model.ViolationEvent) []model.ViolationType {
	out := make([]model.ViolationType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestMonitor_FullscreenExitTwice(t *testing.T) {
	host := NewMemoryHost()
	m := newTestMonitor(host)
	m.Activate(nil)

	require.NoError(t, m.EnterFullscreen(context.Background()))
	assert.True(t, m.IsFullscreen())

	host.Emit(Signal{Kind: SignalFullscreenChange, Fullscreen: false})
	assert.False(t, m.IsFullscreen())
	host.Emit(Signal{Kind: SignalFullscreenChange, Fullscreen: true})
	host.Emit(Signal{Kind: SignalFullscreenChange, Fullscreen: false})

	got := m.Violations()
	assert.Equal(t, []model.ViolationType{model.ViolationFullscreenExit, model.ViolationFullscreenExit}, types(got))
	assert.True(t, got[0].Timestamp.Before(got[1].Timestamp), "emission order")
	assert.Equal(t, 2, m.Count())
}

func TestMonitor_DerivationRules(t *testing.T) {
	tests := []struct {
		name       string
		sig        Signal
		want       model.ViolationType
		suppressed bool
	}{
		{"tab hidden", Signal{Kind: SignalVisibilityChange, Hidden: true}, model.ViolationTabChange, false},
		{"tab visible", Signal{Kind: SignalVisibilityChange, Hidden: false}, "", false},
		{"right click", Signal{Kind: SignalContextMenu}, model.ViolationRightClick, true},
		{"ctrl+c", Signal{Kind: SignalKeyDown, Key: "c", Ctrl: true}, model.ViolationCopyPaste, true},
		{"meta+V upper", Signal{Kind: SignalKeyDown, Key: "V", Meta: true}, model.ViolationCopyPaste, true},
		{"ctrl+r", Signal{Kind: SignalKeyDown, Key: "r", Ctrl: true}, model.ViolationCopyPaste, true},
		{"ctrl+p", Signal{Kind: SignalKeyDown, Key: "p", Ctrl: true}, model.ViolationCopyPaste, true},
		{"ctrl+z allowed", Signal{Kind: SignalKeyDown, Key: "z", Ctrl: true}, "", false},
		{"plain c", Signal{Kind: SignalKeyDown, Key: "c"}, "", false},
		{"F12 by code", Signal{Kind: SignalKeyDown, Key: "F12", KeyCode: 123}, "", true},
		{"F5 by code", Signal{Kind: SignalKeyDown, KeyCode: 116}, "", true},
		{"F1 by name", Signal{Kind: SignalKeyDown, Key: "f1"}, "", true},
		{"enter", Signal{Kind: SignalKeyDown, Key: "Enter", KeyCode: 13}, "", false},
		{"fullscreen without prior", Signal{Kind: SignalFullscreenChange, Fullscreen: false}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMonitor(NewMemoryHost())
			m.Activate(nil)

			out := m.Handle(tt.sig)
			assert.Equal(t, tt.suppressed, out.Suppressed)
			if tt.want == "" {
				assert.Nil(t, out.Violation)
				assert.Zero(t, m.Count())
				return
			}
			require.NotNil(t, out.Violation)
			assert.Equal(t, tt.want, out.Violation.Type)
			assert.Equal(t, 1, m.Count())
		})
	}
}

func TestMonitor_InactiveGate(t *testing.T) {
	host := NewMemoryHost()
	var pushed []model.ViolationEvent
	m := newTestMonitor(host, WithViolationHandler(func(ev model.ViolationEvent) {
		pushed = append(pushed, ev)
	}))

	assert.False(t, host.Emit(Signal{Kind: SignalContextMenu}), "no listener before activation")
	assert.Equal(t, Outcome{}, m.Handle(Signal{Kind: SignalContextMenu}))

	m.Activate(nil)
	assert.True(t, host.Listening())
	host.Emit(Signal{Kind: SignalContextMenu})

	m.Deactivate()
	m.Deactivate()
	assert.False(t, host.Listening())
	assert.False(t, host.Emit(Signal{Kind: SignalVisibilityChange, Hidden: true}))
	m.Handle(Signal{Kind: SignalVisibilityChange, Hidden: true})

	assert.Equal(t, 1, m.Count())
	assert.Equal(t, []model.ViolationType{model.ViolationRightClick}, types(pushed))
}

func TestMonitor_RouteReceivesSignals(t *testing.T) {
	host := NewMemoryHost()
	m := newTestMonitor(host)

	var routed []Signal
	m.Activate(func(sig Signal) { routed = append(routed, sig) })
	host.Emit(Signal{Kind: SignalContextMenu})

	require.Len(t, routed, 1)
	assert.Zero(t, m.Count(), "routing defers handling to the owner")
	m.Handle(routed[0])
	assert.Equal(t, 1, m.Count())
}

func TestMonitor_FullscreenDenied(t *testing.T) {
	host := NewMemoryHost()
	denied := errors.New("user gesture required")
	host.Deny(denied)

	m := newTestMonitor(host)
	m.Activate(nil)

	err := m.EnterFullscreen(context.Background())
	var envErr *EnvironmentError
	require.ErrorAs(t, err, &envErr)
	assert.ErrorIs(t, err, denied)
	assert.False(t, m.IsFullscreen())
	assert.True(t, m.IsActive(), "denial is not fatal")
}

func TestMonitor_ExitFullscreen(t *testing.T) {
	host := NewMemoryHost()
	m := newTestMonitor(host)

	require.NoError(t, m.ExitFullscreen(context.Background()))
	assert.Zero(t, host.Exits(), "no-op when not full-screen")

	m.Activate(nil)
	require.NoError(t, m.EnterFullscreen(context.Background()))
	m.Deactivate()

	require.NoError(t, m.ExitFullscreen(context.Background()))
	assert.Equal(t, 1, host.Exits())
	assert.False(t, m.IsFullscreen())
	assert.Zero(t, m.Count(), "exit after deactivation is not a violation")
}

func TestMonitor_ViolationsIsACopy(t *testing.T) {
	m := newTestMonitor(NewMemoryHost())
	m.Activate(nil)
	m.Handle(Signal{Kind: SignalContextMenu})

	got := m.Violations()
	got[0].Type = model.ViolationTabChange
	assert.Equal(t, model.ViolationRightClick, m.Violations()[0].Type)
}
