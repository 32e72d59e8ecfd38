// Package dispatch turns inbound commands into session operations,
// correlated responses, and broadcast events. It is the only component that
// mutates session state; clients observe it exclusively through the event
// stream.
package dispatch

import (
	"context"
	"fmt"

	"github.com/agentdeck/agentdeck/internal/dialog"
	"github.com/agentdeck/agentdeck/internal/event"
	"github.com/agentdeck/agentdeck/internal/logging"
	"github.com/agentdeck/agentdeck/internal/session"
	"github.com/agentdeck/agentdeck/internal/transport"
	"github.com/agentdeck/agentdeck/pkg/protocol"
)

// handlerFunc executes one command and returns the response data. Errors
// become {success:false} responses; they never escape the dispatcher.
type handlerFunc func(ctx context.Context, cmd *protocol.Command) (any, error)

// Dispatcher routes commands to handlers over the closed command-type set.
type Dispatcher struct {
	mgr       *session.Manager
	bash      *session.BashExecutor
	bridge    *dialog.Bridge
	resources *session.Resources
	bus       *event.Bus
	mux       *transport.Multiplexer

	handlers map[protocol.CommandType]handlerFunc
}

// New wires a Dispatcher. The multiplexer is set later via SetMultiplexer
// because the multiplexer needs the dispatcher as its frame handler first.
func New(mgr *session.Manager, bash *session.BashExecutor, bridge *dialog.Bridge, resources *session.Resources, bus *event.Bus) *Dispatcher {
	d := &Dispatcher{
		mgr:       mgr,
		bash:      bash,
		bridge:    bridge,
		resources: resources,
		bus:       bus,
	}
	d.handlers = map[protocol.CommandType]handlerFunc{
		protocol.CommandPrompt:     d.handlePrompt,
		protocol.CommandSteer:      d.handleSteer,
		protocol.CommandFollowUp:   d.handleFollowUp,
		protocol.CommandAbort:      d.handleAbort,
		protocol.CommandClearQueue: d.handleClearQueue,

		protocol.CommandSetSteeringMode: d.handleSetSteeringMode,
		protocol.CommandSetFollowUpMode: d.handleSetFollowUpMode,

		protocol.CommandNewSession:      d.handleNewSession,
		protocol.CommandSwitchSession:   d.handleSwitchSession,
		protocol.CommandFork:            d.handleFork,
		protocol.CommandGetState:        d.handleGetState,
		protocol.CommandGetMessages:     d.handleGetMessages,
		protocol.CommandListSessions:    d.handleListSessions,
		protocol.CommandGetSessionTree:  d.handleGetSessionTree,
		protocol.CommandNavigateTree:    d.handleNavigateTree,
		protocol.CommandSetEntryLabel:   d.handleSetEntryLabel,
		protocol.CommandReloadResources: d.handleReloadResources,

		protocol.CommandGetContextUsage:  d.handleGetContextUsage,
		protocol.CommandSetThinkingLevel: d.handleSetThinkingLevel,
		protocol.CommandGetTools:         d.handleGetTools,
		protocol.CommandSetActiveTools:   d.handleSetActiveTools,

		protocol.CommandBash:          d.handleBash,
		protocol.CommandAbortBash:     d.handleAbortBash,
		protocol.CommandListDirectory: d.handleListDirectory,

		protocol.CommandExtensionUIResponse: nil, // routed, not dispatched
	}
	return d
}

// SetMultiplexer attaches the transport used for unicast responses.
func (d *Dispatcher) SetMultiplexer(mux *transport.Multiplexer) {
	d.mux = mux
}

// HasHandler reports whether t maps to a handler or a routed special case.
func (d *Dispatcher) HasHandler(t protocol.CommandType) bool {
	_, ok := d.handlers[t]
	return ok
}

// Dispatch executes one command and sends the correlated Response back to
// the originating connection. A command is never left unanswered: unknown
// types, handler errors and handler panics all produce an error Response.
func (d *Dispatcher) Dispatch(conn transport.Conn, cmd *protocol.Command) {
	// Dialog replies correlate to the *request* id, not a command id, and
	// expect no Response of their own.
	if cmd.Type == protocol.CommandExtensionUIResponse {
		requestID := cmd.RequestID
		if requestID == "" {
			requestID = cmd.ID
		}
		d.bridge.Resolve(requestID, cmd.Value, cmd.Confirmed, cmd.Cancelled)
		return
	}

	h, ok := d.handlers[cmd.Type]
	if !ok || h == nil {
		d.mux.Send(conn, protocol.NewErrorResponse(cmd, fmt.Sprintf("Unknown command: %s", cmd.Type)))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("command", string(cmd.Type)).Any("panic", r).Msg("handler panicked")
			d.mux.Send(conn, protocol.NewErrorResponse(cmd, fmt.Sprintf("internal error: %v", r)))
		}
	}()

	data, err := h(context.Background(), cmd)
	if err != nil {
		d.mux.Send(conn, protocol.NewErrorResponse(cmd, err.Error()))
		return
	}
	d.mux.Send(conn, protocol.NewResponse(cmd, data))
}

// broadcastSessionChanged emits the authoritative session-switch signal.
// Clients must reset all derived per-session state on it, regardless of how
// Responses interleave.
func (d *Dispatcher) broadcastSessionChanged(reason protocol.SessionChangeReason, rec *session.Record) {
	ev := protocol.Event{Type: protocol.EventSessionChanged, Reason: reason}
	if rec != nil {
		st := d.mgr.State()
		ev.SessionID = rec.ID
		ev.SessionFile = d.mgr.SessionFilePath(rec.ID)
		ev.SessionName = rec.Name
		ev.MessageCount = st.MessageCount
		ev.LeafID = rec.LeafID
	}
	d.bus.Publish(ev)
}
