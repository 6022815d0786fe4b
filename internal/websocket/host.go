package websocket

import (
	"context"
	"errors"
	"sync"

	"github.com/stemsi/exstem-proctor/internal/proctor"
)

var (
	errOutboxUnavailable = errors.New("client connection unavailable")
	errDeniedByClient    = errors.New("denied by client")
)

// Sender queues a frame without blocking.
type Sender interface {
	Send(v any) bool
}

type fullscreenResult struct {
	granted bool
	reason  string
}

// Host is the candidate's browser as seen through a WebSocket. Full-screen
// requests become fullscreen_request events and wait for the client's
// fullscreen_result; signal actions are routed to the registered listener.
type Host struct {
	out Sender

	mu       sync.Mutex
	listener func(proctor.Signal)
	gen      uint64
	pending  chan fullscreenResult
}

var _ proctor.Host = (*Host)(nil)

// NewHost creates a Host that writes through out.
func NewHost(out Sender) *Host {
	return &Host{out: out}
}

// RequestFullscreen asks the client to enter full-screen and waits for its
// answer or ctx. A newer request supersedes an unanswered one.
func (h *Host) RequestFullscreen(ctx context.Context) error {
	ch := make(chan fullscreenResult, 1)
	h.mu.Lock()
	h.pending = ch
	h.mu.Unlock()

	if !h.out.Send(FullscreenResponse{Event: EventFullscreenRequest}) {
		h.clearPending(ch)
		return errOutboxUnavailable
	}

	select {
	case res := <-ch:
		if res.granted {
			h.Dispatch(proctor.Signal{Kind: proctor.SignalFullscreenChange, Fullscreen: true})
			return nil
		}
		if res.reason != "" {
			return errors.New(res.reason)
		}
		return errDeniedByClient
	case <-ctx.Done():
		h.clearPending(ch)
		return ctx.Err()
	}
}

func (h *Host) clearPending(ch chan fullscreenResult) {
	h.mu.Lock()
	if h.pending == ch {
		h.pending = nil
	}
	h.mu.Unlock()
}

// ResolveFullscreen delivers the client's answer to the outstanding request.
// It reports false when nothing was waiting.
func (h *Host) ResolveFullscreen(granted bool, reason string) bool {
	h.mu.Lock()
	ch := h.pending
	h.pending = nil
	h.mu.Unlock()

	if ch == nil {
		return false
	}
	ch <- fullscreenResult{granted: granted, reason: reason}
	return true
}

func (h *Host) ExitFullscreen(_ context.Context) error {
	if !h.out.Send(FullscreenResponse{Event: EventFullscreenExit}) {
		return errOutboxUnavailable
	}
	return nil
}

// Listen installs fn as the only listener. The returned release only clears
// the listener it installed.
func (h *Host) Listen(fn func(proctor.Signal)) func() {
	h.mu.Lock()
	h.gen++
	gen := h.gen
	h.listener = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		if h.gen == gen {
			h.listener = nil
		}
		h.mu.Unlock()
	}
}

// Dispatch routes a client signal to the listener and reports whether one was registered.
func (h *Host) Dispatch(sig proctor.Signal) bool {
	h.mu.Lock()
	fn := h.listener
	h.mu.Unlock()

	if fn == nil {
		return false
	}
	fn(sig)
	return true
}
