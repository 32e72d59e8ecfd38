// Package reconcile folds the server's event stream into a render-ready
// transcript. The engine keeps its own derived copy of the session state;
// session_changed is the sole trust boundary for which session the transcript
// belongs to, never Response timing.
package reconcile

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/agentdeck/agentdeck/pkg/protocol"
)

// Kind classifies a transcript message.
type Kind string

const (
	KindUser      Kind = "user"
	KindAssistant Kind = "assistant"
	KindThinking  Kind = "thinking"
	KindTool      Kind = "tool"
	KindBash      Kind = "bash"
	KindError     Kind = "error"
	KindSystem    Kind = "system"
)

// Phase is a tool step's lifecycle position. Transitions are monotonic:
// calling -> running -> done|error.
type Phase string

const (
	PhaseCalling Phase = "calling"
	PhaseRunning Phase = "running"
	PhaseDone    Phase = "done"
	PhaseError   Phase = "error"
)

// maxArgsPreview bounds the rendered tool-args JSON.
const maxArgsPreview = 120

// ToolStep tracks one tool invocation's lifecycle inside a UiMessage.
type ToolStep struct {
	ToolName    string
	ArgsPreview string
	Phase       Phase
	Result      string
}

// UiMessage is one transcript entry. The transcript is append-only except for
// in-place mutation of the currently streaming message or active tool step.
type UiMessage struct {
	ID       string
	Kind     Kind
	Text     string
	ToolStep *ToolStep
	Images   []string
}

// Fetcher loads a session's history, typically by issuing get_messages.
type Fetcher interface {
	Messages(ctx context.Context) ([]protocol.AgentMessage, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context) ([]protocol.AgentMessage, error)

func (f FetcherFunc) Messages(ctx context.Context) ([]protocol.AgentMessage, error) {
	return f(ctx)
}

// Engine maintains the derived transcript for one client. Malformed or
// out-of-order events are dropped, never raised: the engine must survive any
// event sequence.
type Engine struct {
	mu sync.Mutex

	sessionID string
	messages  []*UiMessage
	scheduled []*UiMessage

	activeText     *UiMessage
	activeThinking *UiMessage
	activeTool     *UiMessage
	toolByCallID   map[string]*UiMessage

	fetcher Fetcher
}

// NewEngine creates an Engine. fetcher may be nil; session_changed then
// resets to an empty transcript instead of refetching.
func NewEngine(fetcher Fetcher) *Engine {
	return &Engine{
		fetcher:      fetcher,
		toolByCallID: make(map[string]*UiMessage),
	}
}

// SessionID returns the id carried by the last session_changed event.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// Messages returns a snapshot of the transcript.
func (e *Engine) Messages() []UiMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]UiMessage, len(e.messages))
	for i, m := range e.messages {
		out[i] = snapshotMessage(m)
	}
	return out
}

// Scheduled returns the pending steering messages, oldest first.
func (e *Engine) Scheduled() []UiMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]UiMessage, len(e.scheduled))
	for i, m := range e.scheduled {
		out[i] = snapshotMessage(m)
	}
	return out
}

func snapshotMessage(m *UiMessage) UiMessage {
	out := *m
	if m.ToolStep != nil {
		step := *m.ToolStep
		out.ToolStep = &step
	}
	return out
}

// Schedule holds a user message out of the transcript until the backend
// echoes it back via message_start. Returns the held message's id.
func (e *Engine) Schedule(text string, images []string) string {
	msg := &UiMessage{
		ID:     newID(),
		Kind:   KindUser,
		Text:   text,
		Images: images,
	}
	e.mu.Lock()
	e.scheduled = append(e.scheduled, msg)
	e.mu.Unlock()
	return msg.ID
}

// Apply folds one event into the transcript.
func (e *Engine) Apply(ev protocol.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.Type {
	case protocol.EventAgentStart:
		// Turn framing carries no transcript content.

	case protocol.EventAgentEnd:
		e.activeText = nil
		e.activeThinking = nil

	case protocol.EventMessageStart:
		e.applyMessageStart(ev.Message)

	case protocol.EventMessageUpdate:
		e.applyAssistantEvent(ev.AssistantEvent)

	case protocol.EventMessageEnd:
		e.activeText = nil
		e.activeThinking = nil

	case protocol.EventToolExecutionStart:
		if e.activeTool != nil && e.activeTool.ToolStep != nil && e.activeTool.ToolStep.Phase == PhaseCalling {
			e.activeTool.ToolStep.Phase = PhaseRunning
		}

	case protocol.EventToolExecutionEnd:
		if e.activeTool != nil && e.activeTool.ToolStep != nil {
			step := e.activeTool.ToolStep
			if step.Phase == PhaseCalling || step.Phase == PhaseRunning {
				if ev.IsError {
					step.Phase = PhaseError
				} else {
					step.Phase = PhaseDone
				}
				step.Result = protocol.ExtractResultText(ev.Result)
			}
			e.activeTool = nil
		}

	case protocol.EventSessionChanged:
		e.resetLocked(ev.SessionID)

	case protocol.EventExtensionError:
		if ev.Error != "" {
			e.messages = append(e.messages, &UiMessage{ID: newID(), Kind: KindError, Text: ev.Error})
		}
	}
}

// applyMessageStart opens a new transcript message. A user message matching
// the oldest scheduled message (by exact rendered text) moves that scheduled
// message into the transcript instead of creating a duplicate; the backend
// does not echo client-side ids, so text is the only correlation available.
func (e *Engine) applyMessageStart(msg *protocol.AgentMessage) {
	if msg == nil || msg.Role != "user" {
		return
	}
	text := msg.UserText()
	if text == "" {
		return
	}

	if len(e.scheduled) > 0 && e.scheduled[0].Text == text {
		held := e.scheduled[0]
		e.scheduled = e.scheduled[1:]
		e.messages = append(e.messages, held)
		return
	}
	e.messages = append(e.messages, &UiMessage{ID: newID(), Kind: KindUser, Text: text})
}

func (e *Engine) applyAssistantEvent(sub *protocol.AssistantEvent) {
	if sub == nil {
		return
	}

	switch sub.Type {
	case protocol.TextStart:
		if e.activeText == nil {
			e.activeText = e.appendLocked(KindAssistant)
		}
	case protocol.TextDelta:
		if e.activeText == nil {
			e.activeText = e.appendLocked(KindAssistant)
		}
		e.activeText.Text += sub.Delta
	case protocol.TextEnd:
		e.activeText = nil

	case protocol.ThinkingStart:
		if e.activeThinking == nil {
			e.activeThinking = e.appendLocked(KindThinking)
		}
	case protocol.ThinkingDelta:
		if e.activeThinking == nil {
			e.activeThinking = e.appendLocked(KindThinking)
		}
		e.activeThinking.Text += sub.Delta
	case protocol.ThinkingEnd:
		e.activeThinking = nil

	case protocol.ToolCallStart:
		// The terminal toolcall_end carries the full call; nothing to show yet.

	case protocol.ToolCallEnd:
		if sub.ToolCall == nil {
			return
		}
		msg := &UiMessage{
			ID:   newID(),
			Kind: toolKind(sub.ToolCall.Name),
			ToolStep: &ToolStep{
				ToolName:    sub.ToolCall.Name,
				ArgsPreview: argsPreview(sub.ToolCall.Args),
				Phase:       PhaseCalling,
			},
		}
		e.messages = append(e.messages, msg)
		if sub.ToolCall.ID != "" {
			e.toolByCallID[sub.ToolCall.ID] = msg
		}
		e.activeTool = msg
		// A tool call always interrupts running prose.
		e.activeText = nil
		e.activeThinking = nil
	}
}

func (e *Engine) appendLocked(kind Kind) *UiMessage {
	msg := &UiMessage{ID: newID(), Kind: kind}
	e.messages = append(e.messages, msg)
	return msg
}

// resetLocked discards all derived per-session state and reloads history.
// Safe to run repeatedly; replaying the same session_changed is idempotent.
func (e *Engine) resetLocked(sessionID string) {
	e.sessionID = sessionID
	e.messages = nil
	e.scheduled = nil
	e.activeText = nil
	e.activeThinking = nil
	e.activeTool = nil
	e.toolByCallID = make(map[string]*UiMessage)

	if e.fetcher == nil {
		return
	}
	history, err := e.fetcher.Messages(context.Background())
	if err != nil {
		// Degrade to an empty transcript; the next session_changed or an
		// explicit reload recovers.
		return
	}
	e.loadHistoryLocked(history)
}

// LoadHistory replaces the transcript with the converted history.
func (e *Engine) LoadHistory(history []protocol.AgentMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = nil
	e.activeText = nil
	e.activeThinking = nil
	e.activeTool = nil
	e.toolByCallID = make(map[string]*UiMessage)
	e.loadHistoryLocked(history)
}

func newID() string {
	return ulid.Make().String()
}

// toolKind distinguishes shell executions from ordinary tool calls so they
// can render differently.
func toolKind(name string) Kind {
	if name == "bash" {
		return KindBash
	}
	return KindTool
}

func argsPreview(args json.RawMessage) string {
	if len(args) == 0 {
		return ""
	}
	preview := string(args)
	if len(preview) > maxArgsPreview {
		preview = preview[:maxArgsPreview] + "..."
	}
	return preview
}
