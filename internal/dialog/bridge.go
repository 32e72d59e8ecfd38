// Package dialog bridges session-initiated UI calls to the attached clients.
// A dialog call looks synchronous to the caller: it broadcasts an
// extension_ui_request event, parks the caller, and resolves with the first
// of an inbound extension_ui_response, a timeout, or context cancellation.
// Timeouts and cancellation are never errors; every kind has a safe default.
package dialog

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentdeck/agentdeck/internal/logging"
	"github.com/agentdeck/agentdeck/pkg/protocol"
)

// Answer is the resolved outcome of one dialog call.
type Answer struct {
	Value     string
	Confirmed bool
	Cancelled bool
}

// pendingRequest is one outstanding dialog waiting for its answer. The
// resolved flag guarantees exactly one of the three race outcomes wins.
type pendingRequest struct {
	mu       sync.Mutex
	resolved bool
	result   chan Answer
}

// resolve delivers a once; later calls are dropped.
func (p *pendingRequest) resolve(a Answer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return false
	}
	p.resolved = true
	p.result <- a
	return true
}

// Bridge turns dialog calls into correlated request/response exchanges over
// the broadcast channel.
type Bridge struct {
	emit    func(protocol.Event)
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// New creates a Bridge broadcasting through emit. timeout bounds how long a
// dialog waits for a client reply.
func New(emit func(protocol.Event), timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Bridge{
		emit:    emit,
		timeout: timeout,
		pending: make(map[string]*pendingRequest),
	}
}

// ask runs the request/response exchange for one dialog. An already
// cancelled ctx resolves with the default immediately, without touching the
// network.
func (b *Bridge) ask(ctx context.Context, req protocol.UIRequest) Answer {
	if ctx.Err() != nil {
		return Answer{Cancelled: true}
	}

	req.ID = ulid.Make().String()
	p := &pendingRequest{result: make(chan Answer, 1)}

	b.mu.Lock()
	b.pending[req.ID] = p
	b.mu.Unlock()

	b.emit(protocol.Event{Type: protocol.EventExtensionUIRequest, UIRequest: &req})

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	var answer Answer
	select {
	case answer = <-p.result:
	case <-timer.C:
		p.resolve(Answer{Cancelled: true})
		answer = <-p.result
	case <-ctx.Done():
		p.resolve(Answer{Cancelled: true})
		answer = <-p.result
	}

	b.mu.Lock()
	delete(b.pending, req.ID)
	b.mu.Unlock()

	return answer
}

// Resolve answers a pending dialog from an inbound extension_ui_response.
// Returns false when the id is unknown or the dialog already resolved.
func (b *Bridge) Resolve(requestID string, value json.RawMessage, confirmed *bool, cancelled bool) bool {
	b.mu.Lock()
	p := b.pending[requestID]
	b.mu.Unlock()

	if p == nil {
		logging.Debug().Str("requestId", requestID).Msg("dialog response for unknown request")
		return false
	}

	answer := Answer{Cancelled: cancelled}
	if !cancelled {
		if confirmed != nil {
			answer.Confirmed = *confirmed
		}
		if len(value) > 0 {
			var s string
			if err := json.Unmarshal(value, &s); err == nil {
				answer.Value = s
			} else {
				answer.Value = string(value)
			}
		}
	}
	return p.resolve(answer)
}

// PendingCount reports outstanding dialogs, for tests and introspection.
func (b *Bridge) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// --- dialog kinds -------------------------------------------------------

// Select asks the user to pick one of options. Returns "" on timeout or
// cancellation.
func (b *Bridge) Select(ctx context.Context, title string, options []string) string {
	a := b.ask(ctx, protocol.UIRequest{Method: "select", Title: title, Options: options})
	return a.Value
}

// Confirm asks a yes/no question. Returns false on timeout or cancellation.
func (b *Bridge) Confirm(ctx context.Context, title, message string) bool {
	a := b.ask(ctx, protocol.UIRequest{Method: "confirm", Title: title, Text: message})
	if a.Cancelled {
		return false
	}
	return a.Confirmed
}

// Input asks for a line of text. Returns "" on timeout or cancellation.
func (b *Bridge) Input(ctx context.Context, title, placeholder string) string {
	a := b.ask(ctx, protocol.UIRequest{Method: "input", Title: title, Default: placeholder})
	return a.Value
}

// Editor opens a multi-line editor seeded with initial. Returns "" on
// timeout or cancellation.
func (b *Bridge) Editor(ctx context.Context, title, initial string) string {
	a := b.ask(ctx, protocol.UIRequest{Method: "editor", Title: title, Text: initial})
	return a.Value
}

// --- fire-and-forget variants ------------------------------------------

// Notify shows a notification. No reply is expected.
func (b *Bridge) Notify(level, text string) {
	b.emit(protocol.Event{Type: protocol.EventExtensionUIRequest, UIRequest: &protocol.UIRequest{
		Method: "notify", Level: level, Text: text,
	}})
}

// SetStatus updates the client status line.
func (b *Bridge) SetStatus(status string) {
	b.emit(protocol.Event{Type: protocol.EventExtensionUIRequest, UIRequest: &protocol.UIRequest{
		Method: "setStatus", Status: status,
	}})
}

// SetWidget replaces the client status widget.
func (b *Bridge) SetWidget(widget any) {
	b.emit(protocol.Event{Type: protocol.EventExtensionUIRequest, UIRequest: &protocol.UIRequest{
		Method: "setWidget", Widget: widget,
	}})
}

// SetTitle sets the client window title.
func (b *Bridge) SetTitle(title string) {
	b.emit(protocol.Event{Type: protocol.EventExtensionUIRequest, UIRequest: &protocol.UIRequest{
		Method: "setTitle", Title: title,
	}})
}

// SetEditorText replaces the client editor buffer.
func (b *Bridge) SetEditorText(text string) {
	b.emit(protocol.Event{Type: protocol.EventExtensionUIRequest, UIRequest: &protocol.UIRequest{
		Method: "set_editor_text", Text: text,
	}})
}
