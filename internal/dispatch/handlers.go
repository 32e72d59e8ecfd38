package dispatch

import (
	"context"
	"errors"

	"github.com/agentdeck/agentdeck/internal/session"
	"github.com/agentdeck/agentdeck/pkg/protocol"
)

// --- turn control -------------------------------------------------------

// Prompt, steer and follow_up acknowledge immediately. The work happens in
// the turn goroutine; failures surface as events, not as this Response.
// streamingBehavior overrides the session drain mode for this one prompt.
func (d *Dispatcher) handlePrompt(ctx context.Context, cmd *protocol.Command) (any, error) {
	switch cmd.StreamingBehavior {
	case "steer":
		return nil, d.mgr.Steer(cmd.Message, cmd.Images)
	case "followUp", "follow_up":
		return nil, d.mgr.FollowUp(cmd.Message, cmd.Images)
	}
	_, err := d.mgr.Prompt(cmd.Message, cmd.Images)
	return nil, err
}

func (d *Dispatcher) handleSteer(ctx context.Context, cmd *protocol.Command) (any, error) {
	return nil, d.mgr.Steer(cmd.Message, cmd.Images)
}

func (d *Dispatcher) handleFollowUp(ctx context.Context, cmd *protocol.Command) (any, error) {
	return nil, d.mgr.FollowUp(cmd.Message, cmd.Images)
}

// Aborting an idle session is a no-op, not an error. Clients send abort on
// a keypress and must not see failures for losing the race with agent_end.
func (d *Dispatcher) handleAbort(ctx context.Context, cmd *protocol.Command) (any, error) {
	if err := d.mgr.Abort(); err != nil && !errors.Is(err, session.ErrNotStreaming) {
		return nil, err
	}
	return nil, nil
}

func (d *Dispatcher) handleClearQueue(ctx context.Context, cmd *protocol.Command) (any, error) {
	d.mgr.ClearQueue()
	return nil, nil
}

func (d *Dispatcher) handleSetSteeringMode(ctx context.Context, cmd *protocol.Command) (any, error) {
	d.mgr.SetDrainMode(session.DrainSteering)
	return nil, nil
}

func (d *Dispatcher) handleSetFollowUpMode(ctx context.Context, cmd *protocol.Command) (any, error) {
	d.mgr.SetDrainMode(session.DrainFollowUp)
	return nil, nil
}

// --- session lifecycle --------------------------------------------------

func (d *Dispatcher) handleNewSession(ctx context.Context, cmd *protocol.Command) (any, error) {
	rec, err := d.mgr.NewSession(ctx, cmd.Cwd, cmd.ParentSession)
	if err != nil {
		return nil, err
	}
	d.broadcastSessionChanged(protocol.ReasonNew, rec)
	return map[string]any{"sessionId": rec.ID}, nil
}

func (d *Dispatcher) handleSwitchSession(ctx context.Context, cmd *protocol.Command) (any, error) {
	rec, err := d.mgr.SwitchSession(ctx, session.SessionIDFromPath(cmd.SessionPath))
	if err != nil {
		return nil, err
	}
	d.broadcastSessionChanged(protocol.ReasonSwitch, rec)
	return map[string]any{"sessionId": rec.ID}, nil
}

func (d *Dispatcher) handleFork(ctx context.Context, cmd *protocol.Command) (any, error) {
	rec, err := d.mgr.Fork(ctx, cmd.EntryID)
	if err != nil {
		return nil, err
	}
	d.broadcastSessionChanged(protocol.ReasonFork, rec)
	return map[string]any{"sessionId": rec.ID}, nil
}

func (d *Dispatcher) handleNavigateTree(ctx context.Context, cmd *protocol.Command) (any, error) {
	rec, err := d.mgr.NavigateTree(ctx, cmd.TargetID)
	if err != nil {
		return nil, err
	}
	d.broadcastSessionChanged(protocol.ReasonTree, rec)
	return nil, nil
}

func (d *Dispatcher) handleSetEntryLabel(ctx context.Context, cmd *protocol.Command) (any, error) {
	return nil, d.mgr.SetEntryLabel(ctx, cmd.TargetID, cmd.Label)
}

func (d *Dispatcher) handleGetSessionTree(ctx context.Context, cmd *protocol.Command) (any, error) {
	tree, err := d.mgr.GetTree()
	if err != nil {
		return nil, err
	}
	return tree, nil
}

func (d *Dispatcher) handleListSessions(ctx context.Context, cmd *protocol.Command) (any, error) {
	infos, err := d.mgr.ListSessions(ctx, cmd.Scope)
	if err != nil {
		return nil, err
	}
	return map[string]any{"sessions": infos}, nil
}

func (d *Dispatcher) handleReloadResources(ctx context.Context, cmd *protocol.Command) (any, error) {
	d.resources.Reload()
	d.broadcastSessionChanged(protocol.ReasonReload, d.mgr.Current())
	return map[string]any{"resources": d.resources.Names()}, nil
}

// --- state queries ------------------------------------------------------

func (d *Dispatcher) handleGetState(ctx context.Context, cmd *protocol.Command) (any, error) {
	return d.mgr.State(), nil
}

func (d *Dispatcher) handleGetMessages(ctx context.Context, cmd *protocol.Command) (any, error) {
	return map[string]any{"messages": d.mgr.Messages()}, nil
}

func (d *Dispatcher) handleGetContextUsage(ctx context.Context, cmd *protocol.Command) (any, error) {
	return d.mgr.ContextUsage(), nil
}

func (d *Dispatcher) handleSetThinkingLevel(ctx context.Context, cmd *protocol.Command) (any, error) {
	return nil, d.mgr.SetThinkingLevel(ctx, cmd.Level)
}

func (d *Dispatcher) handleGetTools(ctx context.Context, cmd *protocol.Command) (any, error) {
	return map[string]any{"tools": d.mgr.Tools()}, nil
}

func (d *Dispatcher) handleSetActiveTools(ctx context.Context, cmd *protocol.Command) (any, error) {
	return nil, d.mgr.SetActiveTools(ctx, cmd.ToolNames)
}

// --- host access --------------------------------------------------------

func (d *Dispatcher) handleBash(ctx context.Context, cmd *protocol.Command) (any, error) {
	rec := d.mgr.Current()
	cwd := "."
	if rec != nil {
		cwd = rec.Cwd
	}
	output, err := d.bash.Run(ctx, cmd.BashCommand, cwd)
	if err != nil {
		return nil, err
	}
	return map[string]any{"output": output}, nil
}

func (d *Dispatcher) handleAbortBash(ctx context.Context, cmd *protocol.Command) (any, error) {
	return nil, d.bash.Abort()
}

func (d *Dispatcher) handleListDirectory(ctx context.Context, cmd *protocol.Command) (any, error) {
	rec := d.mgr.Current()
	root := "."
	if rec != nil {
		root = rec.Cwd
	}
	entries, err := session.NewLister(root).List(cmd.Path)
	if err != nil {
		return nil, err
	}
	return map[string]any{"entries": entries}, nil
}
