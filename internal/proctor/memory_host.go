package proctor

import (
	"context"
	"sync"
)

// MemoryHost is an in-process Host. It behaves like a browser that grants
// full-screen unless told to deny, and lets callers inject raw signals.
type MemoryHost struct {
	mu         sync.Mutex
	listener   func(Signal)
	gen        int
	denyErr    error
	fullscreen bool
	requests   int
	exits      int
}

// NewMemoryHost creates a MemoryHost that grants full-screen requests.
func NewMemoryHost() *MemoryHost {
	return &MemoryHost{}
}

// Deny makes subsequent full-screen requests fail with err (nil grants again).
func (h *MemoryHost) Deny(err error) {
	h.mu.Lock()
	h.denyErr = err
	h.mu.Unlock()
}

func (h *MemoryHost) RequestFullscreen(_ context.Context) error {
	h.mu.Lock()
	h.requests++
	if h.denyErr != nil {
		err := h.denyErr
		h.mu.Unlock()
		return err
	}
	changed := !h.fullscreen
	h.fullscreen = true
	l := h.listener
	h.mu.Unlock()

	if changed && l != nil {
		l(Signal{Kind: SignalFullscreenChange, Fullscreen: true})
	}
	return nil
}

func (h *MemoryHost) ExitFullscreen(_ context.Context) error {
	h.mu.Lock()
	h.exits++
	changed := h.fullscreen
	h.fullscreen = false
	l := h.listener
	h.mu.Unlock()

	if changed && l != nil {
		l(Signal{Kind: SignalFullscreenChange, Fullscreen: false})
	}
	return nil
}

func (h *MemoryHost) Listen(fn func(Signal)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gen++
	gen := h.gen
	h.listener = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.gen == gen {
			h.listener = nil
		}
	}
}

// Emit delivers sig to the registered listener, if any. It reports whether a
// listener was registered. Full-screen changes also update the host's own state.
func (h *MemoryHost) Emit(sig Signal) bool {
	h.mu.Lock()
	if sig.Kind == SignalFullscreenChange {
		h.fullscreen = sig.Fullscreen
	}
	l := h.listener
	h.mu.Unlock()

	if l == nil {
		return false
	}
	l(sig)
	return true
}

// Listening reports whether a listener is registered.
func (h *MemoryHost) Listening() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listener != nil
}

// Requests returns how many full-screen requests were made.
func (h *MemoryHost) Requests() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requests
}

// Exits returns how many full-screen exits were made.
func (h *MemoryHost) Exits() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exits
}
