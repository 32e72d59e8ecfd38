package agent

import (
	"context"
	"fmt"

	"github.com/agentdeck/agentdeck/pkg/protocol"
)

// EchoRunner is a development stand-in that echoes the prompt back as a
// single streamed assistant message. It exists so the server runs end-to-end
// without a model wired in; real deployments supply their own Runner.
type EchoRunner struct{}

var _ Runner = (*EchoRunner)(nil)

// RunTurn emits the canonical event sequence for one echoed reply.
func (EchoRunner) RunTurn(ctx context.Context, req TurnRequest, emit Emitter) ([]protocol.AgentMessage, error) {
	userMsg := req.Message
	emit(protocol.Event{Type: protocol.EventMessageStart, Message: &userMsg})

	reply := fmt.Sprintf("echo: %s", req.Message.UserText())
	assistant := protocol.AgentMessage{
		Role:    "assistant",
		Content: []protocol.ContentBlock{{Type: "text", Text: reply}},
	}

	emit(protocol.Event{
		Type:           protocol.EventMessageUpdate,
		Message:        &assistant,
		AssistantEvent: &protocol.AssistantEvent{Type: protocol.TextStart},
	})
	emit(protocol.Event{
		Type:           protocol.EventMessageUpdate,
		Message:        &assistant,
		AssistantEvent: &protocol.AssistantEvent{Type: protocol.TextDelta, Delta: reply},
	})
	emit(protocol.Event{
		Type:           protocol.EventMessageUpdate,
		Message:        &assistant,
		AssistantEvent: &protocol.AssistantEvent{Type: protocol.TextEnd, Text: reply},
	})
	emit(protocol.Event{Type: protocol.EventMessageEnd, Message: &assistant})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []protocol.AgentMessage{req.Message, assistant}, nil
}

// Tools reports no tools.
func (EchoRunner) Tools() []ToolInfo { return nil }

// ContextUsage estimates four characters per token.
func (EchoRunner) ContextUsage(history []protocol.AgentMessage) Usage {
	var chars int
	for _, msg := range history {
		for _, block := range msg.Content {
			chars += len(block.Text) + len(block.Thinking)
		}
	}
	return Usage{InputTokens: chars / 4, MaxTokens: 200000}
}
