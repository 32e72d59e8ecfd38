package reconcile

import "github.com/agentdeck/agentdeck/pkg/protocol"

// loadHistoryLocked converts a persisted message log into transcript entries.
// A toolResult block never creates a message of its own; it finds the tool
// step created by the preceding toolCall block and completes it in place.
// Empty text and thinking parts are dropped. Callers hold e.mu.
func (e *Engine) loadHistoryLocked(history []protocol.AgentMessage) {
	for _, msg := range history {
		switch msg.Role {
		case "user":
			e.loadUserLocked(msg)
		case "assistant":
			e.loadAssistantLocked(msg)
		default:
			// Unknown roles may still carry tool results.
			e.loadToolResultsLocked(msg)
		}
	}
}

func (e *Engine) loadUserLocked(msg protocol.AgentMessage) {
	if text := msg.UserText(); text != "" {
		e.messages = append(e.messages, &UiMessage{ID: newID(), Kind: KindUser, Text: text})
	}
	e.loadToolResultsLocked(msg)
}

func (e *Engine) loadAssistantLocked(msg protocol.AgentMessage) {
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				e.messages = append(e.messages, &UiMessage{ID: newID(), Kind: KindAssistant, Text: block.Text})
			}
		case "thinking":
			if block.Thinking != "" {
				e.messages = append(e.messages, &UiMessage{ID: newID(), Kind: KindThinking, Text: block.Thinking})
			}
		case "toolCall":
			step := &UiMessage{
				ID:   newID(),
				Kind: toolKind(block.Name),
				ToolStep: &ToolStep{
					ToolName:    block.Name,
					ArgsPreview: argsPreview(block.Args),
					Phase:       PhaseCalling,
				},
			}
			e.messages = append(e.messages, step)
			if block.ID != "" {
				e.toolByCallID[block.ID] = step
			}
		case "toolResult":
			e.applyToolResultLocked(block)
		}
	}
}

func (e *Engine) loadToolResultsLocked(msg protocol.AgentMessage) {
	for _, block := range msg.Content {
		if block.Type == "toolResult" {
			e.applyToolResultLocked(block)
		}
	}
}

func (e *Engine) applyToolResultLocked(block protocol.ContentBlock) {
	step := e.toolByCallID[block.ToolCallID]
	if step == nil || step.ToolStep == nil {
		return
	}
	if block.IsError {
		step.ToolStep.Phase = PhaseError
	} else {
		step.ToolStep.Phase = PhaseDone
	}
	step.ToolStep.Result = protocol.ExtractResultText(block.Result)
}
