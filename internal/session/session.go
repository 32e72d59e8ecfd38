// Package session owns the server side of the agent session: the persisted
// session records, their message logs and entry trees, the steering queue,
// and turn execution against the agent runner. All mutation goes through the
// Manager; clients only ever see derived state through the event stream.
package session

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentdeck/agentdeck/pkg/protocol"
)

// Record is the persisted description of one session.
type Record struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Cwd     string `json:"cwd"`
	Created int64  `json:"created"`
	Updated int64  `json:"updated"`

	// LeafID is the tree entry the conversation currently points at.
	LeafID string `json:"leafId,omitempty"`

	ThinkingLevel string   `json:"thinkingLevel,omitempty"`
	ActiveTools   []string `json:"activeTools,omitempty"`
}

// TreeEntry is one node of a session's entry tree. Entries form a DAG rooted
// at the empty parent; forking creates a sibling branch at an entry and
// navigation moves the leaf pointer.
type TreeEntry struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId,omitempty"`
	Label    string `json:"label,omitempty"`

	// MessageIndex is the position in the message log this entry closed at.
	MessageIndex int   `json:"messageIndex"`
	Created      int64 `json:"created"`
}

// Tree is a session's full entry tree plus its current leaf.
type Tree struct {
	Entries []TreeEntry `json:"entries"`
	LeafID  string      `json:"leafId,omitempty"`
}

// State is the dispatcher-visible snapshot returned by get_state.
type State struct {
	SessionID     string `json:"sessionId"`
	SessionName   string `json:"sessionName,omitempty"`
	Cwd           string `json:"cwd"`
	IsStreaming   bool   `json:"isStreaming"`
	MessageCount  int    `json:"messageCount"`
	QueuedCount   int    `json:"queuedCount"`
	ThinkingLevel string `json:"thinkingLevel"`
	LeafID        string `json:"leafId,omitempty"`
}

// Thinking levels accepted by set_thinking_level.
const (
	ThinkingOff    = "off"
	ThinkingNormal = "normal"
	ThinkingDeep   = "deep"
)

// ValidThinkingLevel reports whether level is one of the accepted values.
func ValidThinkingLevel(level string) bool {
	switch level {
	case ThinkingOff, ThinkingNormal, ThinkingDeep:
		return true
	}
	return false
}

// generateID returns a new ULID.
func generateID() string {
	return ulid.Make().String()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// Info is the listing shape returned by list_sessions.
type Info struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	Cwd          string `json:"cwd"`
	Updated      int64  `json:"updated"`
	MessageCount int    `json:"messageCount"`
}

// messageLog is the persisted message list for one session.
type messageLog struct {
	Messages []protocol.AgentMessage `json:"messages"`
}
