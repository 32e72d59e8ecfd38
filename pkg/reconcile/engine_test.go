package reconcile

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/pkg/protocol"
)

func textDelta(delta string) protocol.Event {
	return protocol.Event{
		Type:           protocol.EventMessageUpdate,
		AssistantEvent: &protocol.AssistantEvent{Type: protocol.TextDelta, Delta: delta},
	}
}

func thinkingDelta(delta string) protocol.Event {
	return protocol.Event{
		Type:           protocol.EventMessageUpdate,
		AssistantEvent: &protocol.AssistantEvent{Type: protocol.ThinkingDelta, Delta: delta},
	}
}

func toolCallEnd(id, name string, args string) protocol.Event {
	return protocol.Event{
		Type: protocol.EventMessageUpdate,
		AssistantEvent: &protocol.AssistantEvent{
			Type:     protocol.ToolCallEnd,
			ToolCall: &protocol.ToolCall{ID: id, Name: name, Args: json.RawMessage(args)},
		},
	}
}

func userStart(text string) protocol.Event {
	msg := protocol.AgentMessage{
		Role:    "user",
		Content: []protocol.ContentBlock{{Type: "text", Text: text}},
	}
	return protocol.Event{Type: protocol.EventMessageStart, Message: &msg}
}

func TestStreamingTextAccumulates(t *testing.T) {
	e := NewEngine(nil)

	e.Apply(protocol.Event{Type: protocol.EventAgentStart})
	e.Apply(textDelta("Hi"))
	e.Apply(textDelta(" there"))
	e.Apply(protocol.Event{
		Type:           protocol.EventMessageUpdate,
		AssistantEvent: &protocol.AssistantEvent{Type: protocol.TextEnd, Text: "Hi there"},
	})
	e.Apply(protocol.Event{Type: protocol.EventAgentEnd})

	msgs := e.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, KindAssistant, msgs[0].Kind)
	assert.Equal(t, "Hi there", msgs[0].Text)
}

func TestTextAfterEndStartsNewMessage(t *testing.T) {
	e := NewEngine(nil)

	e.Apply(textDelta("first"))
	e.Apply(protocol.Event{
		Type:           protocol.EventMessageUpdate,
		AssistantEvent: &protocol.AssistantEvent{Type: protocol.TextEnd},
	})
	e.Apply(textDelta("second"))

	msgs := e.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
}

func TestTextAndThinkingStreamIndependently(t *testing.T) {
	e := NewEngine(nil)

	e.Apply(thinkingDelta("hmm"))
	e.Apply(textDelta("answer"))
	e.Apply(thinkingDelta(" more"))

	msgs := e.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, KindThinking, msgs[0].Kind)
	assert.Equal(t, "hmm more", msgs[0].Text)
	assert.Equal(t, KindAssistant, msgs[1].Kind)
	assert.Equal(t, "answer", msgs[1].Text)
}

func TestToolLifecycle(t *testing.T) {
	e := NewEngine(nil)

	e.Apply(toolCallEnd("tc1", "read", `{"path":"a.txt"}`))
	msgs := e.Messages()
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].ToolStep)
	assert.Equal(t, PhaseCalling, msgs[0].ToolStep.Phase)
	assert.Equal(t, "read", msgs[0].ToolStep.ToolName)
	assert.Equal(t, `{"path":"a.txt"}`, msgs[0].ToolStep.ArgsPreview)

	e.Apply(protocol.Event{Type: protocol.EventToolExecutionStart, ToolName: "read"})
	assert.Equal(t, PhaseRunning, e.Messages()[0].ToolStep.Phase)

	e.Apply(protocol.Event{
		Type:     protocol.EventToolExecutionEnd,
		ToolName: "read",
		Result:   json.RawMessage(`"contents"`),
	})
	step := e.Messages()[0].ToolStep
	assert.Equal(t, PhaseDone, step.Phase)
	assert.Equal(t, "contents", step.Result)
}

func TestToolErrorPhase(t *testing.T) {
	e := NewEngine(nil)

	e.Apply(toolCallEnd("tc1", "bash", `{}`))
	e.Apply(protocol.Event{Type: protocol.EventToolExecutionStart, ToolName: "bash"})
	e.Apply(protocol.Event{
		Type:     protocol.EventToolExecutionEnd,
		ToolName: "bash",
		Result:   json.RawMessage(`"boom"`),
		IsError:  true,
	})

	step := e.Messages()[0].ToolStep
	assert.Equal(t, PhaseError, step.Phase)
	assert.Equal(t, "boom", step.Result)
}

func TestBashRunRendersAsToolStep(t *testing.T) {
	e := NewEngine(nil)

	// The exact sequence the server's bash executor broadcasts.
	e.Apply(toolCallEnd("b1", "bash", `{"command":"ls"}`))
	e.Apply(protocol.Event{Type: protocol.EventToolExecutionStart, ToolName: "bash"})
	e.Apply(protocol.Event{
		Type:     protocol.EventToolExecutionEnd,
		ToolName: "bash",
		Result:   json.RawMessage(`"a.txt\n"`),
	})

	msgs := e.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, KindBash, msgs[0].Kind)
	require.NotNil(t, msgs[0].ToolStep)
	assert.Equal(t, "bash", msgs[0].ToolStep.ToolName)
	assert.Equal(t, PhaseDone, msgs[0].ToolStep.Phase)
	assert.Equal(t, "a.txt\n", msgs[0].ToolStep.Result)
}

func TestToolCallInterruptsProse(t *testing.T) {
	e := NewEngine(nil)

	e.Apply(textDelta("before"))
	e.Apply(toolCallEnd("tc1", "read", `{}`))
	e.Apply(textDelta("after"))

	msgs := e.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "before", msgs[0].Text)
	assert.Equal(t, KindTool, msgs[1].Kind)
	assert.Equal(t, "after", msgs[2].Text)
}

func TestPhaseNeverRegresses(t *testing.T) {
	e := NewEngine(nil)

	e.Apply(toolCallEnd("tc1", "read", `{}`))
	e.Apply(protocol.Event{Type: protocol.EventToolExecutionStart, ToolName: "read"})
	e.Apply(protocol.Event{Type: protocol.EventToolExecutionEnd, ToolName: "read", Result: json.RawMessage(`"x"`)})

	// A stray start after completion must not reopen the step.
	e.Apply(protocol.Event{Type: protocol.EventToolExecutionStart, ToolName: "read"})
	assert.Equal(t, PhaseDone, e.Messages()[0].ToolStep.Phase)
}

func TestArgsPreviewTruncated(t *testing.T) {
	e := NewEngine(nil)

	long := `{"data":"` + strings.Repeat("x", 500) + `"}`
	e.Apply(toolCallEnd("tc1", "write", long))

	preview := e.Messages()[0].ToolStep.ArgsPreview
	assert.LessOrEqual(t, len(preview), maxArgsPreview+3)
	assert.True(t, strings.HasSuffix(preview, "..."))
}

func TestSteeringMessageMovedNotDuplicated(t *testing.T) {
	e := NewEngine(nil)

	id := e.Schedule("run the tests", nil)
	require.Len(t, e.Scheduled(), 1)

	e.Apply(userStart("run the tests"))

	msgs := e.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID, "held message keeps its client-side id")
	assert.Empty(t, e.Scheduled())
}

func TestSteeringMatchesOldestOnly(t *testing.T) {
	e := NewEngine(nil)

	first := e.Schedule("alpha", nil)
	second := e.Schedule("beta", nil)

	// beta arrives first but only the oldest scheduled message is matched,
	// so a fresh message is constructed and beta stays queued.
	e.Apply(userStart("beta"))
	msgs := e.Messages()
	require.Len(t, msgs, 1)
	assert.NotEqual(t, second, msgs[0].ID)
	require.Len(t, e.Scheduled(), 2)

	e.Apply(userStart("alpha"))
	msgs = e.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, first, msgs[1].ID)
	require.Len(t, e.Scheduled(), 1)
}

func TestUnscheduledUserMessageAppended(t *testing.T) {
	e := NewEngine(nil)

	e.Apply(userStart("hello"))
	msgs := e.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, KindUser, msgs[0].Kind)
	assert.Equal(t, "hello", msgs[0].Text)
}

func TestHistoryRoundTripFoldsToolResult(t *testing.T) {
	e := NewEngine(nil)

	history := []protocol.AgentMessage{
		{Role: "user", Content: []protocol.ContentBlock{{Type: "text", Text: "read a file"}}},
		{Role: "assistant", Content: []protocol.ContentBlock{
			{Type: "text", Text: "Reading it now."},
			{Type: "toolCall", ID: "tc1", Name: "read", Args: json.RawMessage(`{"path":"a.txt"}`)},
		}},
		{Role: "user", Content: []protocol.ContentBlock{
			{Type: "toolResult", ToolCallID: "tc1", Result: json.RawMessage(`"contents"`)},
		}},
	}
	e.LoadHistory(history)

	msgs := e.Messages()
	require.Len(t, msgs, 3, "toolResult must not create a fourth message")
	assert.Equal(t, KindUser, msgs[0].Kind)
	assert.Equal(t, KindAssistant, msgs[1].Kind)
	require.NotNil(t, msgs[2].ToolStep)
	assert.Equal(t, PhaseDone, msgs[2].ToolStep.Phase)
	assert.Equal(t, "contents", msgs[2].ToolStep.Result)
}

func TestHistoryDropsEmptyParts(t *testing.T) {
	e := NewEngine(nil)

	e.LoadHistory([]protocol.AgentMessage{
		{Role: "assistant", Content: []protocol.ContentBlock{
			{Type: "text", Text: ""},
			{Type: "thinking", Thinking: ""},
			{Type: "text", Text: "real"},
		}},
	})

	msgs := e.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "real", msgs[0].Text)
}

func TestHistoryContentArrayResult(t *testing.T) {
	e := NewEngine(nil)

	e.LoadHistory([]protocol.AgentMessage{
		{Role: "assistant", Content: []protocol.ContentBlock{
			{Type: "toolCall", ID: "tc1", Name: "grep"},
		}},
		{Role: "user", Content: []protocol.ContentBlock{
			{Type: "toolResult", ToolCallID: "tc1",
				Result: json.RawMessage(`{"content":[{"type":"text","text":"one"},{"type":"text","text":"two"}]}`)},
		}},
	})

	assert.Equal(t, "one\ntwo", e.Messages()[0].ToolStep.Result)
}

func TestSessionChangedResetsAndRefetches(t *testing.T) {
	fetched := 0
	fetcher := FetcherFunc(func(ctx context.Context) ([]protocol.AgentMessage, error) {
		fetched++
		return []protocol.AgentMessage{
			{Role: "user", Content: []protocol.ContentBlock{{Type: "text", Text: "from history"}}},
		}, nil
	})
	e := NewEngine(fetcher)

	e.Apply(textDelta("streaming leftovers"))
	e.Schedule("queued", nil)

	e.Apply(protocol.Event{Type: protocol.EventSessionChanged, Reason: protocol.ReasonSwitch, SessionID: "s2"})

	assert.Equal(t, "s2", e.SessionID())
	assert.Empty(t, e.Scheduled())
	msgs := e.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "from history", msgs[0].Text)
	assert.Equal(t, 1, fetched)

	// Streaming after the switch starts clean; no stale active pointers.
	e.Apply(textDelta("fresh"))
	msgs = e.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "fresh", msgs[1].Text)
}

func TestSessionChangedIdempotent(t *testing.T) {
	fetcher := FetcherFunc(func(ctx context.Context) ([]protocol.AgentMessage, error) {
		return []protocol.AgentMessage{
			{Role: "user", Content: []protocol.ContentBlock{{Type: "text", Text: "hi"}}},
		}, nil
	})
	e := NewEngine(fetcher)

	ev := protocol.Event{Type: protocol.EventSessionChanged, Reason: protocol.ReasonNew, SessionID: "s1"}
	e.Apply(ev)
	e.Apply(ev)

	require.Len(t, e.Messages(), 1, "replaying session_changed leaves exactly one transcript")
}

func TestMalformedEventsAreNoOps(t *testing.T) {
	e := NewEngine(nil)

	e.Apply(protocol.Event{
		Type:           protocol.EventMessageUpdate,
		AssistantEvent: &protocol.AssistantEvent{Type: protocol.ThinkingEnd},
	})
	e.Apply(protocol.Event{Type: protocol.EventToolExecutionStart, ToolName: "read"})
	e.Apply(protocol.Event{Type: protocol.EventToolExecutionEnd, ToolName: "read"})
	e.Apply(protocol.Event{Type: protocol.EventMessageUpdate})
	e.Apply(protocol.Event{Type: protocol.EventMessageStart})
	e.Apply(protocol.Event{
		Type:           protocol.EventMessageUpdate,
		AssistantEvent: &protocol.AssistantEvent{Type: protocol.ToolCallEnd},
	})

	assert.Empty(t, e.Messages())
}

func TestExtensionErrorRendered(t *testing.T) {
	e := NewEngine(nil)
	e.Apply(protocol.Event{Type: protocol.EventExtensionError, Error: "turn failed"})

	msgs := e.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, KindError, msgs[0].Kind)
	assert.Equal(t, "turn failed", msgs[0].Text)
}

func TestGroupTurns(t *testing.T) {
	msgs := []UiMessage{
		{ID: "0", Kind: KindSystem, Text: "welcome"},
		{ID: "1", Kind: KindUser, Text: "q1"},
		{ID: "2", Kind: KindAssistant, Text: "a1"},
		{ID: "3", Kind: KindTool},
		{ID: "4", Kind: KindUser, Text: "q2"},
		{ID: "5", Kind: KindAssistant, Text: "a2"},
	}

	orphans, turns := GroupTurns(msgs)
	require.Len(t, orphans, 1)
	assert.Equal(t, "0", orphans[0].ID)
	require.Len(t, turns, 2)
	assert.Len(t, turns[0].Messages, 3)
	assert.Len(t, turns[1].Messages, 2)
	assert.Equal(t, "q2", turns[1].Messages[0].Text)
}

func TestGroupTurnsEmpty(t *testing.T) {
	orphans, turns := GroupTurns(nil)
	assert.Empty(t, orphans)
	assert.Empty(t, turns)
}
