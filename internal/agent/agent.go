// Package agent defines the boundary to the agent execution loop. The LLM
// loop itself (model calls, tool selection, retries, compaction) lives behind
// the Runner interface; the dispatcher only starts turns and consumes the
// event stream a runner emits.
package agent

import (
	"context"

	"github.com/agentdeck/agentdeck/pkg/protocol"
)

// Emitter receives the events a runner produces during a turn. Events must
// be emitted in causal order; the server broadcasts them as-is.
type Emitter func(ev protocol.Event)

// ToolInfo describes one tool a runner can invoke.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// TurnRequest carries everything a runner needs for one turn.
type TurnRequest struct {
	SessionID     string
	Cwd           string
	Message       protocol.AgentMessage
	History       []protocol.AgentMessage
	ThinkingLevel string
	ActiveTools   []string
	Images        []string
}

// Usage reports approximate context consumption for a history.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	MaxTokens    int `json:"maxTokens"`
}

// Runner executes agent turns. Implementations must emit, at minimum,
// message_start for the echoed user message, message_update streaming
// sub-events, message_end for each completed assistant message, and
// tool_execution_start/end around tool invocations. agent_start/agent_end
// framing is added by the caller, not the runner.
//
// RunTurn returns the messages the turn appended to the conversation
// (assistant output and tool results). A cancelled ctx must stop the turn
// promptly; ctx.Err() is then an expected return value.
type Runner interface {
	RunTurn(ctx context.Context, req TurnRequest, emit Emitter) ([]protocol.AgentMessage, error)
	Tools() []ToolInfo
	ContextUsage(history []protocol.AgentMessage) Usage
}
