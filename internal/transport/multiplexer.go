// Package transport owns the live client connections and the fan-out of
// broadcast events. It is deliberately dumb: frames in, frames out, no
// knowledge of command semantics.
package transport

import (
	"encoding/json"
	"sync"

	"github.com/agentdeck/agentdeck/internal/event"
	"github.com/agentdeck/agentdeck/internal/logging"
	"github.com/agentdeck/agentdeck/pkg/protocol"
)

// Conn is one live client connection. Implementations must serialize their
// own writes.
type Conn interface {
	ID() string
	WriteJSON(v any) error
	Close() error
}

// FrameHandler consumes one parsed inbound command.
type FrameHandler func(conn Conn, cmd *protocol.Command)

// Multiplexer tracks open connections and fans broadcasts out to all of
// them. Broadcasts go to every connection, including the one whose command
// triggered them; clients reconcile events idempotently so no initiator
// suppression is needed.
type Multiplexer struct {
	mu      sync.RWMutex
	conns   map[string]Conn
	handler FrameHandler

	onClose func(conn Conn)
}

// NewMultiplexer creates an empty Multiplexer dispatching inbound frames to
// handler.
func NewMultiplexer(handler FrameHandler) *Multiplexer {
	return &Multiplexer{
		conns:   make(map[string]Conn),
		handler: handler,
	}
}

// SetCloseHook registers fn to run after a connection is removed.
func (m *Multiplexer) SetCloseHook(fn func(conn Conn)) {
	m.onClose = fn
}

// Add registers a connection.
func (m *Multiplexer) Add(conn Conn) {
	m.mu.Lock()
	m.conns[conn.ID()] = conn
	count := len(m.conns)
	m.mu.Unlock()

	logging.Info().Str("connId", conn.ID()).Int("clients", count).Msg("client connected")
}

// Remove unregisters a connection. Removing an unknown connection is a
// no-op.
func (m *Multiplexer) Remove(conn Conn) {
	m.mu.Lock()
	_, ok := m.conns[conn.ID()]
	delete(m.conns, conn.ID())
	count := len(m.conns)
	m.mu.Unlock()

	if !ok {
		return
	}
	logging.Info().Str("connId", conn.ID()).Int("clients", count).Msg("client disconnected")
	if m.onClose != nil {
		m.onClose(conn)
	}
}

// ClientCount returns the number of open connections.
func (m *Multiplexer) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Send writes v to a single connection. A connection that closed
// mid-dispatch drops the write silently; that is not an error condition.
func (m *Multiplexer) Send(conn Conn, v any) {
	if err := conn.WriteJSON(v); err != nil {
		logging.Debug().Str("connId", conn.ID()).Err(err).Msg("unicast dropped")
	}
}

// Broadcast writes v to every open connection.
func (m *Multiplexer) Broadcast(v any) {
	m.mu.RLock()
	conns := make([]Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if err := c.WriteJSON(v); err != nil {
			logging.Debug().Str("connId", c.ID()).Err(err).Msg("broadcast dropped")
		}
	}
}

// Attach subscribes the multiplexer to bus so every published event is
// broadcast. Returns the unsubscribe function.
func (m *Multiplexer) Attach(bus *event.Bus) func() {
	return bus.SubscribeAll(func(ev protocol.Event) {
		m.Broadcast(ev)
	})
}

// HandleFrame parses one inbound frame and dispatches it. Unparseable or
// non-object frames are logged and dropped without a Response: no id in the
// frame can be trusted.
func (m *Multiplexer) HandleFrame(conn Conn, data []byte) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		logging.Warn().Str("connId", conn.ID()).Err(err).Msg("dropping unparseable frame")
		return
	}

	var cmd protocol.Command
	if err := json.Unmarshal(data, &cmd); err != nil || cmd.Type == "" {
		logging.Warn().Str("connId", conn.ID()).Msg("dropping frame without command type")
		return
	}

	if m.handler != nil {
		m.handler(conn, &cmd)
	}
}
