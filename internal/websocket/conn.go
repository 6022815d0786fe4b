package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// DefaultOutbox is the number of frames buffered per connection.
	DefaultOutbox = 256
)

// Conn owns a gorilla connection. Writes go through a buffered outbox drained
// by a single writer goroutine so senders never block; reads stay on the
// caller's goroutine.
type Conn struct {
	ws  *websocket.Conn
	log zerolog.Logger
	out chan any

	mu     sync.Mutex
	closed bool

	done    chan struct{}
	dropped atomic.Int64
}

// NewConn wraps ws and starts its writer. outbox <= 0 uses DefaultOutbox.
func NewConn(ws *websocket.Conn, log zerolog.Logger, outbox int) *Conn {
	if outbox <= 0 {
		outbox = DefaultOutbox
	}
	c := &Conn{
		ws:   ws,
		log:  log,
		out:  make(chan any, outbox),
		done: make(chan struct{}),
	}

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.writeLoop()
	return c
}

// Send queues v for writing as JSON. It returns false when the connection is
// closed or the outbox is full; the frame is dropped in both cases.
func (c *Conn) Send(v any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.out <- v:
		return true
	default:
		n := c.dropped.Add(1)
		c.log.Warn().Int64("dropped", n).Msg("Outbox full, dropping frame")
		return false
	}
}

// SendError queues an error event.
func (c *Conn) SendError(code, msg string) bool {
	return c.Send(ErrorResponse{Event: EventError, Code: code, Error: msg})
}

// ReadMessage blocks for the next client frame. Any frame extends the read deadline.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	return data, nil
}

// Dropped returns how many frames were discarded because the outbox was full.
func (c *Conn) Dropped() int64 {
	return c.dropped.Load()
}

// Done is closed once the writer has exited and the socket is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close flushes queued frames, sends a normal close frame and closes the
// socket. Safe to call more than once.
func (c *Conn) Close() {
	c.shut()
	<-c.done
}

func (c *Conn) shut() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
	c.mu.Unlock()
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		close(c.done)
	}()

	for {
		select {
		case v, ok := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteJSON(v); err != nil {
				c.log.Debug().Err(err).Msg("Write failed, closing connection")
				c.shut()
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug().Err(err).Msg("Ping failed, closing connection")
				c.shut()
				return
			}
		}
	}
}
