package transport

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// WSConn adapts a gorilla websocket connection to the Conn interface. A
// write mutex serializes writers, which gorilla requires.
type WSConn struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex
}

// NewWSConn wraps an upgraded websocket connection.
func NewWSConn(ws *websocket.Conn) *WSConn {
	return &WSConn{id: uuid.NewString(), ws: ws}
}

// ID returns the connection id.
func (c *WSConn) ID() string { return c.id }

// WriteJSON writes one JSON frame.
func (c *WSConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

// Close closes the underlying socket.
func (c *WSConn) Close() error {
	return c.ws.Close()
}

// ReadLoop reads frames until the connection dies, feeding each one to the
// multiplexer. It removes the connection on exit.
func (c *WSConn) ReadLoop(mux *Multiplexer) {
	defer func() {
		mux.Remove(c)
		c.ws.Close()
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		// Each frame dispatches on its own goroutine. A handler blocked on
		// a dialog reply must not park the read loop, because this same
		// loop is the only thing that can deliver that reply.
		go mux.HandleFrame(c, data)
	}
}
