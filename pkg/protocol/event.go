package protocol

import "encoding/json"

// EventType identifies a broadcast event.
type EventType string

const (
	EventAgentStart EventType = "agent_start"
	EventAgentEnd   EventType = "agent_end"

	EventMessageStart  EventType = "message_start"
	EventMessageUpdate EventType = "message_update"
	EventMessageEnd    EventType = "message_end"

	EventToolExecutionStart EventType = "tool_execution_start"
	EventToolExecutionEnd   EventType = "tool_execution_end"

	EventSessionChanged EventType = "session_changed"

	EventExtensionUIRequest EventType = "extension_ui_request"
	EventExtensionError     EventType = "extension_error"
)

// SessionChangeReason describes why the active session changed.
type SessionChangeReason string

const (
	ReasonNew    SessionChangeReason = "new"
	ReasonSwitch SessionChangeReason = "switch"
	ReasonFork   SessionChangeReason = "fork"
	ReasonTree   SessionChangeReason = "tree"
	ReasonReload SessionChangeReason = "reload"
)

// Event is a server broadcast. Events go to every open connection, including
// the one whose command triggered them; clients reconcile them idempotently.
type Event struct {
	Type EventType `json:"type"`

	// message_start / message_update / message_end
	Message *AgentMessage `json:"message,omitempty"`

	// message_update
	AssistantEvent *AssistantEvent `json:"assistantMessageEvent,omitempty"`

	// tool_execution_start / tool_execution_end
	ToolName string          `json:"toolName,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	IsError  bool            `json:"isError,omitempty"`

	// session_changed
	Reason       SessionChangeReason `json:"reason,omitempty"`
	SessionID    string              `json:"sessionId,omitempty"`
	SessionFile  string              `json:"sessionFile,omitempty"`
	SessionName  string              `json:"sessionName,omitempty"`
	MessageCount int                 `json:"messageCount,omitempty"`
	LeafID       string              `json:"leafId,omitempty"`

	// extension_ui_request
	UIRequest *UIRequest `json:"uiRequest,omitempty"`

	// extension_error
	Error string `json:"error,omitempty"`
}

// AssistantEventType identifies a streaming sub-event inside message_update.
type AssistantEventType string

const (
	TextStart     AssistantEventType = "text_start"
	TextDelta     AssistantEventType = "text_delta"
	TextEnd       AssistantEventType = "text_end"
	ThinkingStart AssistantEventType = "thinking_start"
	ThinkingDelta AssistantEventType = "thinking_delta"
	ThinkingEnd   AssistantEventType = "thinking_end"
	ToolCallStart AssistantEventType = "toolcall_start"
	ToolCallEnd   AssistantEventType = "toolcall_end"
)

// AssistantEvent is the nested streaming sub-union carried by message_update.
type AssistantEvent struct {
	Type AssistantEventType `json:"type"`

	// text_* / thinking_*: Delta carries the increment, Text the full
	// accumulated content on *_end.
	Delta string `json:"delta,omitempty"`
	Text  string `json:"text,omitempty"`

	// toolcall_*
	ToolCall *ToolCall `json:"toolCall,omitempty"`
}

// ToolCall describes one tool invocation requested by the assistant.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// UIRequest is the payload of an extension_ui_request event. Methods
// select/confirm/input/editor expect an extension_ui_response reply; the
// fire-and-forget methods expect none.
type UIRequest struct {
	ID     string `json:"id"`
	Method string `json:"method"`

	Title   string   `json:"title,omitempty"`
	Text    string   `json:"text,omitempty"`
	Options []string `json:"options,omitempty"`
	Default string   `json:"default,omitempty"`

	// setStatus / setWidget / setTitle / notify
	Status string `json:"status,omitempty"`
	Widget any    `json:"widget,omitempty"`
	Level  string `json:"level,omitempty"`
}

// AgentMessage is one entry of a session's conversation log as the agent
// runner reports it.
type AgentMessage struct {
	Role    string         `json:"role"` // "user" | "assistant"
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one typed chunk of an AgentMessage.
type ContentBlock struct {
	Type string `json:"type"` // "text" | "thinking" | "toolCall" | "toolResult"

	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`

	// toolCall
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name,omitempty"`
	Args json.RawMessage `json:"args,omitempty"`

	// toolResult
	ToolCallID string          `json:"toolCallId,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	IsError    bool            `json:"isError,omitempty"`
}

// UserText renders the user-visible text of a message: text blocks joined by
// newlines. Used by the steering reconciliation text match.
func (m *AgentMessage) UserText() string {
	var out string
	for _, block := range m.Content {
		if block.Type != "text" || block.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += block.Text
	}
	return out
}
