package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/pkg/protocol"
)

// stubServer answers get_state and pushes a scripted event stream.
type stubServer struct {
	srv *httptest.Server

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newStubServer(t *testing.T) *stubServer {
	t.Helper()
	s := &stubServer{}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, ws)
		s.mu.Unlock()

		for {
			var cmd protocol.Command
			if err := ws.ReadJSON(&cmd); err != nil {
				return
			}
			switch cmd.Type {
			case protocol.CommandGetState:
				ws.WriteJSON(protocol.NewResponse(&cmd, map[string]any{"isStreaming": false}))
			case protocol.CommandExtensionUIResponse:
				// Echo the resolution back as an event so tests can see it.
				ws.WriteJSON(protocol.Event{
					Type:  protocol.EventExtensionError,
					Error: "resolved:" + cmd.RequestID,
				})
			default:
				ws.WriteJSON(protocol.NewErrorResponse(&cmd, "Unknown command: "+string(cmd.Type)))
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *stubServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *stubServer) push(t *testing.T, ev protocol.Event) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.conns)
	require.NoError(t, s.conns[0].WriteJSON(ev))
}

func TestCallRoundTrip(t *testing.T) {
	s := newStubServer(t)
	c, err := Dial(context.Background(), Config{URL: s.url(), CallTimeout: 2 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Call(context.Background(), protocol.Command{Type: protocol.CommandGetState})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "get_state", resp.Command)
}

func TestCallFillsInID(t *testing.T) {
	s := newStubServer(t)
	c, err := Dial(context.Background(), Config{URL: s.url(), CallTimeout: 2 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Call(context.Background(), protocol.Command{Type: protocol.CommandGetState})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ID)
}

func TestCallErrorResponse(t *testing.T) {
	s := newStubServer(t)
	c, err := Dial(context.Background(), Config{URL: s.url(), CallTimeout: 2 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Call(context.Background(), protocol.Command{Type: "bogus"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Unknown command: bogus", resp.Error)
}

func TestEventsStream(t *testing.T) {
	s := newStubServer(t)
	c, err := Dial(context.Background(), Config{URL: s.url()})
	require.NoError(t, err)
	defer c.Close()

	s.push(t, protocol.Event{Type: protocol.EventAgentStart})
	s.push(t, protocol.Event{Type: protocol.EventAgentEnd})

	var got []protocol.EventType
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-c.Events():
			got = append(got, ev.Type)
		case <-timeout:
			t.Fatal("events did not arrive")
		}
	}
	assert.Equal(t, []protocol.EventType{protocol.EventAgentStart, protocol.EventAgentEnd}, got)
}

func TestDialogHandlerAutoReplies(t *testing.T) {
	s := newStubServer(t)
	c, err := Dial(context.Background(), Config{URL: s.url()})
	require.NoError(t, err)
	defer c.Close()

	c.OnDialog(func(req protocol.UIRequest) (string, bool, bool) {
		assert.Equal(t, "confirm", req.Method)
		return "", true, false
	})

	s.push(t, protocol.Event{
		Type:      protocol.EventExtensionUIRequest,
		UIRequest: &protocol.UIRequest{ID: "d-1", Method: "confirm", Title: "go?"},
	})

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Type == protocol.EventExtensionError && ev.Error == "resolved:d-1" {
				return
			}
		case <-timeout:
			t.Fatal("dialog reply never reached the server")
		}
	}
}

func TestDialFailsFastOnAuthRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	start := time.Now()
	_, err := Dial(context.Background(), Config{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		MaxDialElapsed: 10 * time.Second,
	})
	require.Error(t, err)
	// Permanent rejection must not burn the whole retry window.
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCallAfterClose(t *testing.T) {
	s := newStubServer(t)
	c, err := Dial(context.Background(), Config{URL: s.url()})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.Call(context.Background(), protocol.Command{Type: protocol.CommandGetState})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTokenHeaderSent(t *testing.T) {
	var gotAuth string
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.Close()
	}))
	defer srv.Close()

	c, err := Dial(context.Background(), Config{
		URL:   "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token: "tok",
	})
	require.NoError(t, err)
	c.Close()
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestUnparseableFramesIgnored(t *testing.T) {
	s := newStubServer(t)
	c, err := Dial(context.Background(), Config{URL: s.url()})
	require.NoError(t, err)
	defer c.Close()

	s.mu.Lock()
	s.conns[0].WriteMessage(websocket.TextMessage, []byte("not json"))
	s.conns[0].WriteMessage(websocket.TextMessage, []byte(`{"type":""}`))
	s.mu.Unlock()
	s.push(t, protocol.Event{Type: protocol.EventAgentStart})

	select {
	case ev := <-c.Events():
		assert.Equal(t, protocol.EventAgentStart, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("stream stalled on garbage frames")
	}
}
