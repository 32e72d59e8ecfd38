package transport

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/event"
	"github.com/agentdeck/agentdeck/pkg/protocol"
)

type memConn struct {
	id   string
	fail bool

	mu     sync.Mutex
	frames []any
}

func (c *memConn) ID() string { return c.id }
func (c *memConn) WriteJSON(v any) error {
	if c.fail {
		return errors.New("connection closed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, v)
	return nil
}
func (c *memConn) Close() error { return nil }

func (c *memConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestHandleFrameDispatchesCommand(t *testing.T) {
	var got *protocol.Command
	m := NewMultiplexer(func(conn Conn, cmd *protocol.Command) { got = cmd })
	conn := &memConn{id: "a"}

	m.HandleFrame(conn, []byte(`{"id":"1","type":"get_state"}`))

	require.NotNil(t, got)
	assert.Equal(t, "1", got.ID)
	assert.Equal(t, protocol.CommandGetState, got.Type)
}

func TestHandleFrameDropsGarbage(t *testing.T) {
	called := false
	m := NewMultiplexer(func(Conn, *protocol.Command) { called = true })
	conn := &memConn{id: "a"}

	m.HandleFrame(conn, []byte(`not json at all`))
	m.HandleFrame(conn, []byte(`[1,2,3]`))
	m.HandleFrame(conn, []byte(`"a string"`))
	m.HandleFrame(conn, []byte(`{"id":"1"}`)) // object but no type

	assert.False(t, called)
	assert.Equal(t, 0, conn.count(), "dropped frames get no Response")
}

func TestBroadcastIncludesInitiator(t *testing.T) {
	m := NewMultiplexer(nil)
	a := &memConn{id: "a"}
	b := &memConn{id: "b"}
	m.Add(a)
	m.Add(b)

	m.Broadcast(protocol.Event{Type: protocol.EventAgentStart})

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestSendToClosedConnIsSilent(t *testing.T) {
	m := NewMultiplexer(nil)
	dead := &memConn{id: "dead", fail: true}
	m.Add(dead)

	m.Send(dead, protocol.Event{Type: protocol.EventAgentStart})
	m.Broadcast(protocol.Event{Type: protocol.EventAgentEnd})
	// No panic, no error surfaced.
}

func TestAddRemoveClientCount(t *testing.T) {
	m := NewMultiplexer(nil)
	a := &memConn{id: "a"}
	b := &memConn{id: "b"}

	m.Add(a)
	m.Add(b)
	assert.Equal(t, 2, m.ClientCount())

	m.Remove(a)
	assert.Equal(t, 1, m.ClientCount())

	// Removing an unknown connection is a no-op.
	m.Remove(a)
	assert.Equal(t, 1, m.ClientCount())
}

func TestCloseHookRunsOnce(t *testing.T) {
	m := NewMultiplexer(nil)
	closed := 0
	m.SetCloseHook(func(Conn) { closed++ })

	a := &memConn{id: "a"}
	m.Add(a)
	m.Remove(a)
	m.Remove(a)

	assert.Equal(t, 1, closed)
}

func TestAttachBroadcastsBusEvents(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	m := NewMultiplexer(nil)
	a := &memConn{id: "a"}
	m.Add(a)

	unsubscribe := m.Attach(bus)
	bus.Publish(protocol.Event{Type: protocol.EventAgentStart})
	assert.Equal(t, 1, a.count())

	unsubscribe()
	bus.Publish(protocol.Event{Type: protocol.EventAgentEnd})
	assert.Equal(t, 1, a.count())
}
