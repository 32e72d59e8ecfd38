// Package protocol defines the wire vocabulary shared by the agentdeck
// server and its clients: Commands (client -> server, optionally correlated),
// Responses (server -> requesting client, exactly one per Command) and Events
// (server -> all clients, uncorrelated broadcasts).
package protocol

import "encoding/json"

// CommandType identifies a client command.
type CommandType string

const (
	// Turn lifecycle.
	CommandPrompt     CommandType = "prompt"
	CommandSteer      CommandType = "steer"
	CommandFollowUp   CommandType = "follow_up"
	CommandAbort      CommandType = "abort"
	CommandClearQueue CommandType = "clear_queue"

	// Queue drain behavior.
	CommandSetSteeringMode CommandType = "set_steering_mode"
	CommandSetFollowUpMode CommandType = "set_follow_up_mode"

	// Session lifecycle.
	CommandNewSession      CommandType = "new_session"
	CommandSwitchSession   CommandType = "switch_session"
	CommandFork            CommandType = "fork"
	CommandGetState        CommandType = "get_state"
	CommandGetMessages     CommandType = "get_messages"
	CommandListSessions    CommandType = "list_sessions"
	CommandGetSessionTree  CommandType = "get_session_tree"
	CommandNavigateTree    CommandType = "navigate_tree"
	CommandSetEntryLabel   CommandType = "set_entry_label"
	CommandReloadResources CommandType = "reload_resources"

	// Session settings and introspection.
	CommandGetContextUsage  CommandType = "get_context_usage"
	CommandSetThinkingLevel CommandType = "set_thinking_level"
	CommandGetTools         CommandType = "get_tools"
	CommandSetActiveTools   CommandType = "set_active_tools"

	// Shell access.
	CommandBash          CommandType = "bash"
	CommandAbortBash     CommandType = "abort_bash"
	CommandListDirectory CommandType = "list_directory"

	// Reply to an extension_ui_request event. Routed to the dialog
	// bridge rather than a session operation.
	CommandExtensionUIResponse CommandType = "extension_ui_response"
)

// Command is a client request. ID is client-chosen and opaque: it is echoed
// back on the Response and never inspected for routing. A Command without an
// ID still receives a Response with no ID.
//
// Parameters are flattened onto the object; only the fields relevant to Type
// are consulted by the server.
type Command struct {
	ID   string      `json:"id,omitempty"`
	Type CommandType `json:"type"`

	// prompt / steer / follow_up
	Message           string   `json:"message,omitempty"`
	Images            []string `json:"images,omitempty"`
	StreamingBehavior string   `json:"streamingBehavior,omitempty"`

	// new_session
	ParentSession string `json:"parentSession,omitempty"`
	Cwd           string `json:"cwd,omitempty"`

	// switch_session
	SessionPath string `json:"sessionPath,omitempty"`

	// fork
	EntryID string `json:"entryId,omitempty"`

	// list_sessions
	Scope string `json:"scope,omitempty"`

	// set_thinking_level
	Level string `json:"level,omitempty"`

	// bash
	BashCommand string `json:"command,omitempty"`

	// list_directory
	Path string `json:"path,omitempty"`

	// set_active_tools
	ToolNames []string `json:"toolNames,omitempty"`

	// navigate_tree / set_entry_label
	TargetID string  `json:"targetId,omitempty"`
	Label    *string `json:"label,omitempty"`

	// extension_ui_response
	RequestID string          `json:"requestId,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	Confirmed *bool           `json:"confirmed,omitempty"`
	Cancelled bool            `json:"cancelled,omitempty"`
}

// KnownCommands lists every command type the protocol defines. The dispatcher
// keeps a handler per entry; a test enforces the mapping stays total.
var KnownCommands = []CommandType{
	CommandPrompt,
	CommandSteer,
	CommandFollowUp,
	CommandAbort,
	CommandClearQueue,
	CommandSetSteeringMode,
	CommandSetFollowUpMode,
	CommandNewSession,
	CommandSwitchSession,
	CommandFork,
	CommandGetState,
	CommandGetMessages,
	CommandListSessions,
	CommandGetSessionTree,
	CommandNavigateTree,
	CommandSetEntryLabel,
	CommandReloadResources,
	CommandGetContextUsage,
	CommandSetThinkingLevel,
	CommandGetTools,
	CommandSetActiveTools,
	CommandBash,
	CommandAbortBash,
	CommandListDirectory,
	CommandExtensionUIResponse,
}

// Response is the server's reply to a single Command. It is sent only to the
// connection the Command arrived on.
type Response struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"` // always "response"
	Command string `json:"command"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewResponse builds a successful Response for cmd carrying data.
func NewResponse(cmd *Command, data any) Response {
	return Response{
		ID:      cmd.ID,
		Type:    "response",
		Command: string(cmd.Type),
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse builds a failed Response for cmd.
func NewErrorResponse(cmd *Command, message string) Response {
	return Response{
		ID:      cmd.ID,
		Type:    "response",
		Command: string(cmd.Type),
		Success: false,
		Error:   message,
	}
}
