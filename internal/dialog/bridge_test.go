package dialog

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/pkg/protocol"
)

// recorder captures emitted events and exposes the last request id.
type recorder struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (r *recorder) emit(ev protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) lastRequestID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].UIRequest != nil {
			return r.events[i].UIRequest.ID
		}
	}
	return ""
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func waitForRequest(t *testing.T, r *recorder) string {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if id := r.lastRequestID(); id != "" {
			return id
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("no ui request broadcast")
	return ""
}

func TestConfirmTimesOutToFalse(t *testing.T) {
	r := &recorder{}
	b := New(r.emit, 10*time.Millisecond)

	start := time.Now()
	confirmed := b.Confirm(context.Background(), "Sure?", "msg")
	assert.False(t, confirmed)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, b.PendingCount())
}

func TestSelectTimesOutToEmpty(t *testing.T) {
	r := &recorder{}
	b := New(r.emit, 10*time.Millisecond)

	assert.Empty(t, b.Select(context.Background(), "pick", []string{"a", "b"}))
}

func TestConfirmResolvedByResponse(t *testing.T) {
	r := &recorder{}
	b := New(r.emit, 5*time.Second)

	done := make(chan bool, 1)
	go func() {
		done <- b.Confirm(context.Background(), "Sure?", "msg")
	}()

	id := waitForRequest(t, r)
	yes := true
	assert.True(t, b.Resolve(id, nil, &yes, false))

	select {
	case confirmed := <-done:
		assert.True(t, confirmed)
	case <-time.After(time.Second):
		t.Fatal("confirm did not resolve")
	}
	assert.Equal(t, 0, b.PendingCount())
}

func TestInputResolvedWithValue(t *testing.T) {
	r := &recorder{}
	b := New(r.emit, 5*time.Second)

	done := make(chan string, 1)
	go func() {
		done <- b.Input(context.Background(), "Name?", "")
	}()

	id := waitForRequest(t, r)
	require.True(t, b.Resolve(id, json.RawMessage(`"gopher"`), nil, false))
	assert.Equal(t, "gopher", <-done)
}

func TestCancelledResponseYieldsDefault(t *testing.T) {
	r := &recorder{}
	b := New(r.emit, 5*time.Second)

	done := make(chan bool, 1)
	go func() {
		done <- b.Confirm(context.Background(), "Sure?", "msg")
	}()

	id := waitForRequest(t, r)
	require.True(t, b.Resolve(id, nil, nil, true))
	assert.False(t, <-done)
}

func TestPreCancelledContextNeverBroadcasts(t *testing.T) {
	r := &recorder{}
	b := New(r.emit, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, b.Confirm(ctx, "Sure?", "msg"))
	assert.Equal(t, 0, r.count())
	assert.Equal(t, 0, b.PendingCount())
}

func TestContextCancelMidFlight(t *testing.T) {
	r := &recorder{}
	b := New(r.emit, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan string, 1)
	go func() {
		done <- b.Select(ctx, "pick", []string{"a"})
	}()

	waitForRequest(t, r)
	cancel()

	select {
	case v := <-done:
		assert.Empty(t, v)
	case <-time.After(time.Second):
		t.Fatal("select did not resolve on cancel")
	}
}

func TestResolveUnknownID(t *testing.T) {
	b := New((&recorder{}).emit, time.Second)
	assert.False(t, b.Resolve("nope", nil, nil, false))
}

func TestFirstResolutionWins(t *testing.T) {
	r := &recorder{}
	b := New(r.emit, 5*time.Second)

	done := make(chan bool, 1)
	go func() {
		done <- b.Confirm(context.Background(), "Sure?", "msg")
	}()

	id := waitForRequest(t, r)
	yes := true
	no := false
	assert.True(t, b.Resolve(id, nil, &yes, false))
	assert.False(t, b.Resolve(id, nil, &no, false), "second resolution must lose")
	assert.True(t, <-done)
}

func TestRequestIDsUnique(t *testing.T) {
	r := &recorder{}
	b := New(r.emit, 10*time.Millisecond)

	b.Confirm(context.Background(), "a", "")
	firstID := r.lastRequestID()
	b.Confirm(context.Background(), "b", "")
	assert.NotEqual(t, firstID, r.lastRequestID())
}

func TestFireAndForgetHasNoPending(t *testing.T) {
	r := &recorder{}
	b := New(r.emit, time.Second)

	b.Notify("info", "hello")
	b.SetStatus("busy")
	b.SetTitle("deck")
	b.SetEditorText("draft")

	assert.Equal(t, 4, r.count())
	assert.Equal(t, 0, b.PendingCount())

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, "notify", r.events[0].UIRequest.Method)
	assert.Equal(t, "setStatus", r.events[1].UIRequest.Method)
}
