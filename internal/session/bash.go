package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/agentdeck/agentdeck/internal/logging"
	"github.com/agentdeck/agentdeck/pkg/protocol"
)

// Confirmer asks the attached clients to approve an action. The dialog
// bridge satisfies this; a nil Confirmer approves everything.
type Confirmer interface {
	Confirm(ctx context.Context, title, message string) bool
}

// ErrBashBusy is returned when a bash command is already running.
var ErrBashBusy = errors.New("a bash command is already running")

// BashExecutor runs shell commands on behalf of clients, framing each run
// with tool_execution events so transcripts show it as a tool step.
type BashExecutor struct {
	confirmer Confirmer
	emit      func(protocol.Event)

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewBashExecutor creates an executor emitting through emit.
func NewBashExecutor(confirmer Confirmer, emit func(protocol.Event)) *BashExecutor {
	return &BashExecutor{confirmer: confirmer, emit: emit}
}

// Run executes one shell line in cwd and returns its combined output.
// Dangerous commands (rm, dd, chmod, ...) must be confirmed by a client
// first; a declined dialog aborts the run without executing anything.
func (b *BashExecutor) Run(ctx context.Context, command, cwd string) (string, error) {
	commands, err := ParseBashCommand(command)
	if err != nil {
		return "", err
	}

	if RequiresConfirmation(commands) && b.confirmer != nil {
		ok := b.confirmer.Confirm(ctx, "Run command?", CommandPreview(commands))
		if !ok {
			return "", fmt.Errorf("command not confirmed: %s", CommandPreview(commands))
		}
	}

	b.mu.Lock()
	if b.cancel != nil {
		b.mu.Unlock()
		return "", ErrBashBusy
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.cancel = nil
		b.mu.Unlock()
		cancel()
	}()

	// Direct runs have no assistant tool call behind them; synthesize the
	// call frame so transcripts render the execution as a tool step.
	args, _ := json.Marshal(map[string]string{"command": command})
	b.emit(protocol.Event{
		Type: protocol.EventMessageUpdate,
		AssistantEvent: &protocol.AssistantEvent{
			Type:     protocol.ToolCallEnd,
			ToolCall: &protocol.ToolCall{ID: generateID(), Name: "bash", Args: args},
		},
	})
	b.emit(protocol.Event{Type: protocol.EventToolExecutionStart, ToolName: "bash"})

	cmd := exec.CommandContext(runCtx, "bash", "-c", command)
	cmd.Dir = cwd
	output, runErr := cmd.CombinedOutput()

	isError := runErr != nil
	result := string(output)
	if isError && result == "" {
		result = runErr.Error()
	}

	raw, _ := json.Marshal(result)
	b.emit(protocol.Event{
		Type:     protocol.EventToolExecutionEnd,
		ToolName: "bash",
		Result:   json.RawMessage(raw),
		IsError:  isError,
	})

	if isError {
		logging.Debug().Err(runErr).Str("command", command).Msg("bash command failed")
		return result, fmt.Errorf("command failed: %w", runErr)
	}
	return result, nil
}

// Abort cancels the running command, if any.
func (b *BashExecutor) Abort() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel == nil {
		return errors.New("no bash command running")
	}
	b.cancel()
	return nil
}
