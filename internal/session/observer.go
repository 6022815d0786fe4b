package session

import (
	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// EventKind enumerates the notifications a controller pushes to observers.
type EventKind string

const (
	EventStateChanged     EventKind = "state"
	EventTick             EventKind = "tick"
	EventViolation        EventKind = "violation"
	EventSuppressed       EventKind = "suppressed"
	EventFullscreenDenied EventKind = "fullscreen_denied"
	EventFinalized        EventKind = "finalized"
	EventSubmitFailed     EventKind = "submit_failed"
)

// Event is a push notification from a controller.
type Event struct {
	Kind      EventKind
	SessionID uuid.UUID
	ModuleID  uuid.UUID
	UserID    string

	View       *View
	Remaining  int
	Violation  *model.ViolationEvent
	Violations int
	Signal     *proctor.Signal
	Trigger    model.FinalizeTrigger
	Outcome    *Outcome
	Err        error
}

// Observer receives controller events on the controller goroutine.
// Implementations must not block and must not call back into the controller
// synchronously.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Observers fans an event out in order.
type Observers []Observer

func (o Observers) Observe(ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ev)
		}
	}
}
