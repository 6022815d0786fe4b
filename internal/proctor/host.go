package proctor

import (
	"context"
	"fmt"
)

// SignalKind enumerates raw host-environment signals.
type SignalKind string

const (
	SignalFullscreenChange SignalKind = "fullscreen_change"
	SignalVisibilityChange SignalKind = "visibility_change"
	SignalContextMenu      SignalKind = "context_menu"
	SignalKeyDown          SignalKind = "key_down"
)

// Signal is a raw event observed by the host (the candidate's browser).
type Signal struct {
	Kind       SignalKind `json:"kind" validate:"required,oneof=fullscreen_change visibility_change context_menu key_down"`
	Fullscreen bool       `json:"fullscreen,omitempty"`
	Hidden     bool       `json:"hidden,omitempty"`
	Key        string     `json:"key,omitempty" validate:"max=32"`
	KeyCode    int        `json:"key_code,omitempty" validate:"min=0,max=1024"`
	Ctrl       bool       `json:"ctrl,omitempty"`
	Meta       bool       `json:"meta,omitempty"`
}

// Host wraps the environment the candidate sits in.
//
// Listen registers the single signal listener and returns its release func.
// Implementations must be safe for concurrent use.
type Host interface {
	RequestFullscreen(ctx context.Context) error
	ExitFullscreen(ctx context.Context) error
	Listen(fn func(Signal)) (release func())
}

// EnvironmentError is returned when the host refuses a request, e.g. a
// full-screen request without a user gesture.
type EnvironmentError struct {
	Op  string
	Err error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("host refused %s: %v", e.Op, e.Err)
}

func (e *EnvironmentError) Unwrap() error {
	return e.Err
}
