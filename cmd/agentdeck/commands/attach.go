package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/pkg/client"
	"github.com/agentdeck/agentdeck/pkg/protocol"
	"github.com/agentdeck/agentdeck/pkg/reconcile"
)

var (
	attachURL   string
	attachToken string
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach a terminal client to a running server",
	Long: `Attach connects to an agentdeck server, streams the session
transcript to stdout, and sends each stdin line as a prompt.`,
	RunE: runAttach,
}

func init() {
	attachCmd.Flags().StringVar(&attachURL, "url", "ws://127.0.0.1:8080/ws", "Server websocket URL")
	attachCmd.Flags().StringVar(&attachToken, "token", "", "Auth token")
}

func runAttach(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	c, err := client.Dial(ctx, client.Config{URL: attachURL, Token: attachToken})
	if err != nil {
		return err
	}
	defer c.Close()

	// Dialogs cannot be answered interactively while stdin feeds prompts;
	// decline them and let the server fall back to each kind's default.
	c.OnDialog(func(req protocol.UIRequest) (string, bool, bool) {
		fmt.Printf("[dialog %s declined: %s]\n", req.Method, req.Title)
		return "", false, true
	})

	engine := reconcile.NewEngine(reconcile.FetcherFunc(func(ctx context.Context) ([]protocol.AgentMessage, error) {
		resp, err := c.Call(ctx, protocol.Command{Type: protocol.CommandGetMessages})
		if err != nil || !resp.Success {
			return nil, err
		}
		return decodeMessages(resp.Data)
	}))

	if _, err := c.Call(ctx, protocol.Command{Type: protocol.CommandNewSession}); err != nil {
		return err
	}

	go func() {
		rendered := 0
		for ev := range c.Events() {
			engine.Apply(ev)
			if ev.Type == protocol.EventSessionChanged {
				rendered = 0
				fmt.Printf("[session %s]\n", ev.SessionID)
			}
			msgs := engine.Messages()
			// The last message may still be streaming; hold it back until
			// the turn closes.
			limit := len(msgs)
			if ev.Type != protocol.EventAgentEnd && limit > 0 {
				limit--
			}
			for ; rendered < limit; rendered++ {
				printMessage(msgs[rendered])
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		engine.Schedule(line, nil)
		if err := c.Send(protocol.Command{Type: protocol.CommandPrompt, Message: line}); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func printMessage(m reconcile.UiMessage) {
	switch m.Kind {
	case reconcile.KindTool:
		if m.ToolStep != nil {
			fmt.Printf("[tool %s %s] %s\n", m.ToolStep.ToolName, m.ToolStep.Phase, m.ToolStep.Result)
		}
	case reconcile.KindError:
		fmt.Printf("[error] %s\n", m.Text)
	default:
		fmt.Printf("%s> %s\n", m.Kind, m.Text)
	}
}

// decodeMessages converts a get_messages response payload back into typed
// messages. Over the wire Data arrives as generic JSON.
func decodeMessages(data any) ([]protocol.AgentMessage, error) {
	m, ok := data.(map[string]any)
	if !ok {
		return nil, nil
	}
	raw, err := json.Marshal(m["messages"])
	if err != nil {
		return nil, err
	}
	var msgs []protocol.AgentMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}
