package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve upgrades one connection, hands it to fn and returns the client side.
func serve(t *testing.T, fn func(c *Conn)) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fn(NewConn(raw, zerolog.Nop(), 4))
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConn_SendWritesJSON(t *testing.T) {
	client := serve(t, func(c *Conn) {
		c.Send(TickResponse{Event: EventTick, Remaining: 42})
		c.SendError("NOT_ACTIVE", "session is not active")
	})

	var tick TickResponse
	require.NoError(t, client.ReadJSON(&tick))
	assert.Equal(t, TickResponse{Event: EventTick, Remaining: 42}, tick)

	var e ErrorResponse
	require.NoError(t, client.ReadJSON(&e))
	assert.Equal(t, EventError, e.Event)
	assert.Equal(t, "NOT_ACTIVE", e.Code)
}

func TestConn_CloseFlushesThenSendsCloseFrame(t *testing.T) {
	closed := make(chan *Conn, 1)
	client := serve(t, func(c *Conn) {
		c.Send(PongResponse{Event: EventPong})
		c.Close()
		closed <- c
	})

	var pong PongResponse
	require.NoError(t, client.ReadJSON(&pong))
	assert.Equal(t, EventPong, pong.Event)

	_, _, err := client.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	c := <-closed
	assert.False(t, c.Send(PongResponse{Event: EventPong}))
	c.Close()
}

func TestConn_ReadMessage(t *testing.T) {
	got := make(chan string, 1)
	client := serve(t, func(c *Conn) {
		data, err := c.ReadMessage()
		if err == nil {
			got <- string(data)
		}
		c.Close()
	})

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"action":"ping"}`)))
	select {
	case s := <-got:
		assert.JSONEq(t, `{"action":"ping"}`, s)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not read the frame")
	}
}

func TestConn_DropsWhenOutboxFull(t *testing.T) {
	c := &Conn{log: zerolog.Nop(), out: make(chan any, 1), done: make(chan struct{})}

	assert.True(t, c.Send(PongResponse{Event: EventPong}))
	assert.False(t, c.Send(PongResponse{Event: EventPong}))
	assert.EqualValues(t, 1, c.Dropped())
}
