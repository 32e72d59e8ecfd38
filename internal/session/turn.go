package session

import (
	"context"
	"errors"

	"github.com/agentdeck/agentdeck/internal/agent"
	"github.com/agentdeck/agentdeck/internal/logging"
	"github.com/agentdeck/agentdeck/pkg/protocol"
)

// Prompt submits a user message. With no turn in flight it starts one
// immediately; while streaming, the prompt is queued according to the
// current drain mode. The returned bool reports whether the prompt was
// queued rather than started.
func (m *Manager) Prompt(text string, images []string) (bool, error) {
	m.mu.Lock()
	if m.cur == nil {
		m.mu.Unlock()
		return false, ErrNoSession
	}
	if m.streaming {
		m.queue.Push(QueuedPrompt{Text: text, Images: images})
		m.mu.Unlock()
		return true, nil
	}
	m.startTurnLocked(QueuedPrompt{Text: text, Images: images})
	m.mu.Unlock()
	return false, nil
}

// Steer queues a prompt to run as the next turn. Outside a turn it behaves
// like Prompt.
func (m *Manager) Steer(text string, images []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return ErrNoSession
	}
	if !m.streaming {
		m.startTurnLocked(QueuedPrompt{Text: text, Images: images})
		return nil
	}
	m.queue.PushFront(QueuedPrompt{Text: text, Images: images})
	return nil
}

// FollowUp queues a prompt to run after all queued work.
func (m *Manager) FollowUp(text string, images []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return ErrNoSession
	}
	if !m.streaming {
		m.startTurnLocked(QueuedPrompt{Text: text, Images: images})
		return nil
	}
	m.queue.PushBack(QueuedPrompt{Text: text, Images: images})
	return nil
}

// Abort cancels the in-flight turn. The turn still closes with agent_end.
// Queued prompts are kept; clear_queue drops them separately.
func (m *Manager) Abort() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.streaming {
		return ErrNotStreaming
	}
	m.abortLocked()
	return nil
}

// ClearQueue drops all queued prompts.
func (m *Manager) ClearQueue() {
	m.queue.Clear()
}

// SetDrainMode selects the queue behavior for prompts sent while streaming.
func (m *Manager) SetDrainMode(mode DrainMode) {
	m.queue.SetMode(mode)
}

// startTurnLocked launches the turn goroutine. Callers hold m.mu.
func (m *Manager) startTurnLocked(p QueuedPrompt) {
	ctx, cancel := context.WithCancel(context.Background())
	m.streaming = true
	m.cancel = cancel

	req := agent.TurnRequest{
		SessionID:     m.cur.ID,
		Cwd:           m.cur.Cwd,
		Message:       userMessage(p.Text),
		History:       append([]protocol.AgentMessage(nil), m.messages...),
		ThinkingLevel: m.cur.ThinkingLevel,
		ActiveTools:   append([]string(nil), m.cur.ActiveTools...),
		Images:        p.Images,
	}
	go m.runTurn(ctx, req)
}

// runTurn executes one turn to completion, persists its output, closes the
// agent_start/agent_end frame, and drains the queue.
func (m *Manager) runTurn(ctx context.Context, req agent.TurnRequest) {
	m.emit(protocol.Event{Type: protocol.EventAgentStart})

	produced, err := m.runner.RunTurn(ctx, req, m.emit)

	m.mu.Lock()
	aborted := errors.Is(err, context.Canceled)
	if aborted && len(produced) == 0 {
		// message_start already showed the prompt to every client; keep it
		// in the log so a later refetch matches the live transcript.
		produced = []protocol.AgentMessage{req.Message}
	}
	if (err == nil || aborted) && m.cur != nil && m.cur.ID == req.SessionID {
		m.messages = append(m.messages, produced...)
		m.tree.Entries = append(m.tree.Entries, TreeEntry{
			ID:           generateID(),
			ParentID:     m.tree.LeafID,
			MessageIndex: len(m.messages),
			Created:      nowMillis(),
		})
		m.tree.LeafID = m.tree.Entries[len(m.tree.Entries)-1].ID
		m.cur.LeafID = m.tree.LeafID
		m.cur.Updated = nowMillis()

		rec := *m.cur
		msgs := append([]protocol.AgentMessage(nil), m.messages...)
		tree := m.tree
		if perr := m.persist(context.Background(), &rec, msgs, &tree); perr != nil {
			logging.Error().Err(perr).Str("sessionId", rec.ID).Msg("persist turn output")
		}
	}
	m.streaming = false
	m.cancel = nil
	m.mu.Unlock()

	// agent_end must close this turn before any queued turn opens its own
	// agent_start frame.
	m.emit(protocol.Event{Type: protocol.EventAgentEnd})

	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Warn().Err(err).Str("sessionId", req.SessionID).Msg("turn failed")
		m.emit(protocol.Event{Type: protocol.EventExtensionError, Error: err.Error()})
	}

	m.mu.Lock()
	if !m.streaming && m.cur != nil && m.cur.ID == req.SessionID {
		if next, ok := m.queue.Pop(); ok {
			m.startTurnLocked(next)
		}
	}
	m.mu.Unlock()
}

func userMessage(text string) protocol.AgentMessage {
	return protocol.AgentMessage{
		Role:    "user",
		Content: []protocol.ContentBlock{{Type: "text", Text: text}},
	}
}
