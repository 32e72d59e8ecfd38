package session

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// BashCommand is one parsed command within a shell line.
type BashCommand struct {
	Name       string   // command name (e.g. "rm", "git")
	Args       []string // arguments
	Subcommand string   // first non-flag argument ("commit" in "git commit")
}

// ParseBashCommand parses a shell line into its constituent commands,
// walking pipelines, chains and substitutions.
func ParseBashCommand(command string) ([]BashCommand, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}

	var commands []BashCommand
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := extractCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})

	return commands, nil
}

func extractCommand(call *syntax.CallExpr) *BashCommand {
	if len(call.Args) == 0 {
		return nil
	}

	cmd := &BashCommand{}
	cmd.Name = wordToString(call.Args[0])
	if cmd.Name == "" {
		return nil
	}

	for _, arg := range call.Args[1:] {
		argStr := wordToString(arg)
		cmd.Args = append(cmd.Args, argStr)
		if cmd.Subcommand == "" && !strings.HasPrefix(argStr, "-") {
			cmd.Subcommand = argStr
		}
	}
	return cmd
}

func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			// Content is dynamic; mark it rather than guessing.
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// dangerousCommands modify files or system state and require confirmation
// before the executor runs them.
var dangerousCommands = map[string]bool{
	"rm":    true,
	"rmdir": true,
	"mv":    true,
	"dd":    true,
	"chmod": true,
	"chown": true,
	"mkfs":  true,
}

// RequiresConfirmation reports whether any command in the line is in the
// dangerous set.
func RequiresConfirmation(commands []BashCommand) bool {
	for _, cmd := range commands {
		if dangerousCommands[cmd.Name] {
			return true
		}
	}
	return false
}

// CommandPreview renders a short summary of the parsed commands for display
// in confirmation dialogs and tool steps.
func CommandPreview(commands []BashCommand) string {
	var names []string
	for _, cmd := range commands {
		if cmd.Subcommand != "" {
			names = append(names, cmd.Name+" "+cmd.Subcommand)
		} else {
			names = append(names, cmd.Name)
		}
	}
	return strings.Join(names, ", ")
}
