package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agentdeck/agentdeck/internal/agent"
	"github.com/agentdeck/agentdeck/internal/storage"
	"github.com/agentdeck/agentdeck/pkg/protocol"
)

var (
	ErrNoSession    = errors.New("no active session")
	ErrNotStreaming = errors.New("no turn in flight")
	ErrStreaming    = errors.New("a turn is already in flight")
)

// Manager owns the active session's mutable state. It is the only writer of
// session records, message logs and trees; everything clients observe is
// derived from the events it emits.
type Manager struct {
	store  *storage.Store
	runner agent.Runner
	emit   agent.Emitter

	defaultThinking string

	mu        sync.Mutex
	cur       *Record
	messages  []protocol.AgentMessage
	tree      Tree
	queue     *Queue
	streaming bool
	cancel    context.CancelFunc
}

// NewManager creates a Manager persisting into store and executing turns
// against runner. emit receives every event the manager produces, in order.
func NewManager(store *storage.Store, runner agent.Runner, emit agent.Emitter, defaultThinking string) *Manager {
	if defaultThinking == "" {
		defaultThinking = ThinkingNormal
	}
	return &Manager{
		store:           store,
		runner:          runner,
		emit:            emit,
		defaultThinking: defaultThinking,
		queue:           NewQueue(),
	}
}

// --- session lifecycle -------------------------------------------------

// NewSession creates and activates a fresh session. A parent session id may
// be given to inherit its cwd.
func (m *Manager) NewSession(ctx context.Context, cwd, parentSession string) (*Record, error) {
	if cwd == "" && parentSession != "" {
		var parent Record
		if err := m.store.Get(ctx, []string{"session", parentSession}, &parent); err == nil {
			cwd = parent.Cwd
		}
	}
	if cwd == "" {
		cwd = "."
	}

	now := nowMillis()
	root := TreeEntry{ID: generateID(), MessageIndex: 0, Created: now}
	rec := &Record{
		ID:            generateID(),
		Cwd:           cwd,
		Created:       now,
		Updated:       now,
		LeafID:        root.ID,
		ThinkingLevel: m.defaultThinking,
	}
	tree := Tree{Entries: []TreeEntry{root}, LeafID: root.ID}

	if err := m.persist(ctx, rec, nil, &tree); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.abortLocked()
	m.cur = rec
	m.messages = nil
	m.tree = tree
	m.queue.Clear()
	m.mu.Unlock()

	return rec, nil
}

// SwitchSession activates a previously persisted session by id.
func (m *Manager) SwitchSession(ctx context.Context, sessionID string) (*Record, error) {
	var rec Record
	if err := m.store.Get(ctx, []string{"session", sessionID}, &rec); err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var log messageLog
	if err := m.store.Get(ctx, []string{"log", sessionID}, &log); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load message log: %w", err)
	}
	var tree Tree
	if err := m.store.Get(ctx, []string{"tree", sessionID}, &tree); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load tree: %w", err)
	}

	m.mu.Lock()
	m.abortLocked()
	m.cur = &rec
	m.messages = log.Messages
	m.tree = tree
	m.queue.Clear()
	m.mu.Unlock()

	return &rec, nil
}

// Fork creates a new session whose history is the current session's prefix
// up to the given tree entry, then activates it.
func (m *Manager) Fork(ctx context.Context, entryID string) (*Record, error) {
	m.mu.Lock()
	if m.cur == nil {
		m.mu.Unlock()
		return nil, ErrNoSession
	}
	entry, ok := m.findEntryLocked(entryID)
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("unknown tree entry: %s", entryID)
	}

	now := nowMillis()
	cut := entry.MessageIndex
	if cut > len(m.messages) {
		cut = len(m.messages)
	}
	msgs := append([]protocol.AgentMessage(nil), m.messages[:cut]...)

	leaf := TreeEntry{ID: generateID(), ParentID: entry.ID, MessageIndex: cut, Created: now}
	tree := Tree{
		Entries: append(append([]TreeEntry(nil), m.tree.Entries...), leaf),
		LeafID:  leaf.ID,
	}
	rec := &Record{
		ID:            generateID(),
		Name:          m.cur.Name,
		Cwd:           m.cur.Cwd,
		Created:       now,
		Updated:       now,
		LeafID:        leaf.ID,
		ThinkingLevel: m.cur.ThinkingLevel,
		ActiveTools:   m.cur.ActiveTools,
	}
	m.mu.Unlock()

	if err := m.persist(ctx, rec, msgs, &tree); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.abortLocked()
	m.cur = rec
	m.messages = msgs
	m.tree = tree
	m.queue.Clear()
	m.mu.Unlock()

	return rec, nil
}

// NavigateTree moves the leaf pointer to targetID. The visible message log
// becomes the prefix recorded at that entry; the session id is unchanged.
func (m *Manager) NavigateTree(ctx context.Context, targetID string) (*Record, error) {
	m.mu.Lock()
	if m.cur == nil {
		m.mu.Unlock()
		return nil, ErrNoSession
	}
	entry, ok := m.findEntryLocked(targetID)
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("unknown tree entry: %s", targetID)
	}

	cut := entry.MessageIndex
	if cut > len(m.messages) {
		cut = len(m.messages)
	}
	m.messages = m.messages[:cut]
	m.tree.LeafID = entry.ID
	m.cur.LeafID = entry.ID
	m.cur.Updated = nowMillis()
	rec := *m.cur
	msgs := append([]protocol.AgentMessage(nil), m.messages...)
	tree := m.tree
	m.mu.Unlock()

	if err := m.persist(ctx, &rec, msgs, &tree); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SetEntryLabel sets or clears (nil) the label of a tree entry.
func (m *Manager) SetEntryLabel(ctx context.Context, targetID string, label *string) error {
	m.mu.Lock()
	if m.cur == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	found := false
	for i := range m.tree.Entries {
		if m.tree.Entries[i].ID == targetID {
			if label == nil {
				m.tree.Entries[i].Label = ""
			} else {
				m.tree.Entries[i].Label = *label
			}
			found = true
			break
		}
	}
	if !found {
		m.mu.Unlock()
		return fmt.Errorf("unknown tree entry: %s", targetID)
	}
	rec := *m.cur
	tree := m.tree
	m.mu.Unlock()

	return m.store.Put(ctx, []string{"tree", rec.ID}, &tree)
}

// GetTree returns the active session's entry tree.
func (m *Manager) GetTree() (Tree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return Tree{}, ErrNoSession
	}
	return m.tree, nil
}

// ListSessions lists persisted sessions. scope "cwd" keeps only sessions
// sharing the active session's working directory.
func (m *Manager) ListSessions(ctx context.Context, scope string) ([]Info, error) {
	m.mu.Lock()
	var cwd string
	if m.cur != nil {
		cwd = m.cur.Cwd
	}
	m.mu.Unlock()

	ids, err := m.store.List(ctx, []string{"session"})
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(ids))
	for _, id := range ids {
		var rec Record
		if err := m.store.Get(ctx, []string{"session", id}, &rec); err != nil {
			continue
		}
		if scope == "cwd" && cwd != "" && rec.Cwd != cwd {
			continue
		}
		var log messageLog
		_ = m.store.Get(ctx, []string{"log", id}, &log)
		infos = append(infos, Info{
			ID:           rec.ID,
			Name:         rec.Name,
			Cwd:          rec.Cwd,
			Updated:      rec.Updated,
			MessageCount: len(log.Messages),
		})
	}
	return infos, nil
}

// --- state access ------------------------------------------------------

// State returns the snapshot served by get_state. Valid with no active
// session; the zero SessionID signals "none yet" to clients.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := State{
		IsStreaming:   m.streaming,
		QueuedCount:   m.queue.Len(),
		ThinkingLevel: m.defaultThinking,
	}
	if m.cur != nil {
		st.SessionID = m.cur.ID
		st.SessionName = m.cur.Name
		st.Cwd = m.cur.Cwd
		st.MessageCount = len(m.messages)
		st.ThinkingLevel = m.cur.ThinkingLevel
		st.LeafID = m.cur.LeafID
	}
	return st
}

// Messages returns a copy of the active session's message log.
func (m *Manager) Messages() []protocol.AgentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.AgentMessage(nil), m.messages...)
}

// SessionFilePath returns the on-disk path of a session record, the form
// clients use to address sessions in switch_session.
func (m *Manager) SessionFilePath(id string) string {
	return filepath.Join(m.store.BasePath(), "session", id+".json")
}

// SessionIDFromPath extracts the session id from either a bare id or a
// session file path.
func SessionIDFromPath(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Current returns the active session record, or nil.
func (m *Manager) Current() *Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return nil
	}
	rec := *m.cur
	return &rec
}

// SetThinkingLevel updates the active session's thinking level.
func (m *Manager) SetThinkingLevel(ctx context.Context, level string) error {
	if !ValidThinkingLevel(level) {
		return fmt.Errorf("invalid thinking level: %s", level)
	}
	m.mu.Lock()
	if m.cur == nil {
		m.defaultThinking = level
		m.mu.Unlock()
		return nil
	}
	m.cur.ThinkingLevel = level
	m.cur.Updated = nowMillis()
	rec := *m.cur
	m.mu.Unlock()

	return m.store.Put(ctx, []string{"session", rec.ID}, &rec)
}

// Tools returns the runner's advertised tools.
func (m *Manager) Tools() []agent.ToolInfo {
	return m.runner.Tools()
}

// SetActiveTools restricts turns to the named tools. Unknown names error.
func (m *Manager) SetActiveTools(ctx context.Context, names []string) error {
	known := make(map[string]bool)
	for _, t := range m.runner.Tools() {
		known[t.Name] = true
	}
	for _, name := range names {
		if !known[name] {
			return fmt.Errorf("unknown tool: %s", name)
		}
	}

	m.mu.Lock()
	if m.cur == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	m.cur.ActiveTools = append([]string(nil), names...)
	m.cur.Updated = nowMillis()
	rec := *m.cur
	m.mu.Unlock()

	return m.store.Put(ctx, []string{"session", rec.ID}, &rec)
}

// ContextUsage reports the runner's context estimate for the current log.
func (m *Manager) ContextUsage() agent.Usage {
	return m.runner.ContextUsage(m.Messages())
}

// --- internals ---------------------------------------------------------

func (m *Manager) persist(ctx context.Context, rec *Record, msgs []protocol.AgentMessage, tree *Tree) error {
	if err := m.store.Put(ctx, []string{"session", rec.ID}, rec); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := m.store.Put(ctx, []string{"log", rec.ID}, &messageLog{Messages: msgs}); err != nil {
		return fmt.Errorf("save message log: %w", err)
	}
	if err := m.store.Put(ctx, []string{"tree", rec.ID}, tree); err != nil {
		return fmt.Errorf("save tree: %w", err)
	}
	return nil
}

func (m *Manager) findEntryLocked(id string) (TreeEntry, bool) {
	for _, e := range m.tree.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// abortLocked cancels any in-flight turn. Callers hold m.mu.
func (m *Manager) abortLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}
