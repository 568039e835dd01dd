// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lanternchat/lantern-tui/internal/compare"
	"github.com/lanternchat/lantern-tui/internal/storage"
)

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// parsedCommand is a slash command split into name and arguments.
type parsedCommand struct {
	Name string
	Args []string
}

// parseCommand splits "/export md notes.md" into {export, [md notes.md]}.
// Returns ok=false for input that is not a command.
func parseCommand(input string) (parsedCommand, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return parsedCommand{}, false
	}
	fields := strings.Fields(input[1:])
	if len(fields) == 0 {
		return parsedCommand{}, false
	}
	return parsedCommand{Name: strings.ToLower(fields[0]), Args: fields[1:]}, true
}

// runCommand dispatches a slash command.
func (m Model) runCommand(input string) (tea.Model, tea.Cmd) {
	cmd, ok := parseCommand(input)
	if !ok {
		return m, nil
	}

	switch cmd.Name {
	case "quit", "q", "exit":
		return m, tea.Quit

	case "help", "h":
		m.statusMsg = helpText
		return m, nil

	case "new":
		m.orch.StartNewConversation(false)
		m.statusMsg = "new conversation"
		m.refreshViewport()
		return m, nil

	case "temp":
		// Temporary conversations are purged from storage on exit.
		m.orch.StartNewConversation(true)
		m.statusMsg = "temporary conversation (not kept after exit)"
		m.refreshViewport()
		return m, nil

	case "list":
		return m, m.listCmd()

	case "resume":
		if len(cmd.Args) != 1 {
			m.statusMsg = "usage: /resume <id>"
			return m, nil
		}
		return m, m.hydrateCmd(cmd.Args[0])

	case "title":
		if len(cmd.Args) == 0 {
			m.statusMsg = "usage: /title <text>"
			return m, nil
		}
		title := strings.Join(cmd.Args, " ")
		if err := m.orch.SetTitle(title); err != nil {
			m.statusMsg = "title not saved: " + err.Error()
			return m, nil
		}
		m.statusMsg = "title set"
		return m, nil

	case "export":
		return m.runExport(cmd.Args)

	case "compare":
		return m.runCompare(cmd.Args)

	case "use":
		if len(cmd.Args) != 1 {
			m.statusMsg = "usage: /use <n>"
			return m, nil
		}
		idx, err := strconv.Atoi(cmd.Args[0])
		if err != nil {
			m.statusMsg = "usage: /use <n>"
			return m, nil
		}
		return m.useCompareResponse(idx - 1)

	default:
		m.statusMsg = "unknown command: /" + cmd.Name
		return m, nil
	}
}

const helpText = "/new /temp /list /resume <id> /title <text> /export [md|json] [path] /compare <prompt> /use <n> /quit"

// =============================================================================
// LIST AND EXPORT
// =============================================================================

func (m Model) listCmd() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		metas, err := store.ListConversations()
		return ConversationListMsg{Metas: metas, Err: err}
	}
}

func (m Model) runExport(args []string) (tea.Model, tea.Cmd) {
	format := "md"
	if len(args) > 0 {
		format = strings.ToLower(args[0])
	}
	if format != "md" && format != "json" {
		m.statusMsg = "usage: /export [md|json] [path]"
		return m, nil
	}

	conv := m.orch.Conversation()
	if conv == nil {
		m.statusMsg = "nothing to export"
		return m, nil
	}

	path := ""
	if len(args) > 1 {
		path = args[1]
	} else {
		stamp := time.Now().Format("20060102-150405")
		path = filepath.Join(".", fmt.Sprintf("lantern-%s.%s", stamp, format))
	}

	return m, func() tea.Msg {
		var data []byte
		var err error
		if format == "json" {
			data, err = storage.ExportJSON(conv)
		} else {
			data = []byte(storage.ExportMarkdown(conv))
		}
		if err == nil {
			err = storage.WriteExport(path, data)
		}
		return ExportDoneMsg{Path: path, Err: err}
	}
}

// =============================================================================
// COMPARISON
// =============================================================================

func (m Model) runCompare(args []string) (tea.Model, tea.Cmd) {
	if len(m.cfg.CompareTargets) == 0 {
		m.statusMsg = "no compare targets configured"
		return m, nil
	}
	if len(args) == 0 {
		m.statusMsg = "usage: /compare <prompt>"
		return m, nil
	}

	prompt := strings.Join(args, " ")
	c := compare.New(m.transport, m.cfg.CompareTargets, m.cfg.Options)
	if err := c.Compare(context.Background(), prompt, m.cfg.SystemPrompt); err != nil {
		m.statusMsg = "compare failed: " + err.Error()
		return m, nil
	}

	m.comparator = c
	m.comparePrompt = prompt
	m.compareIndex = 0
	m.mode = modeCompare
	m.input.Blur()

	done := c.Done()
	waitCmd := func() tea.Msg {
		<-done
		return CompareFinishedMsg{}
	}

	cmds := []tea.Cmd{waitCmd}
	if !m.refreshing {
		m.refreshing = true
		cmds = append(cmds, refreshTickCmd())
	}
	return m, tea.Batch(cmds...)
}

// useCompareResponse commits one attempt's output to the conversation.
func (m Model) useCompareResponse(idx int) (tea.Model, tea.Cmd) {
	if m.comparator == nil {
		m.statusMsg = "no comparison to pick from"
		return m, nil
	}

	sel, err := m.comparator.UseResponse(idx)
	if err != nil {
		m.statusMsg = "cannot use that response: " + err.Error()
		return m, nil
	}

	orch := m.orch
	prompt := m.comparePrompt
	return m, func() tea.Msg {
		err := orch.CommitResponse(prompt, sel.Content)
		return CommitDoneMsg{Target: sel.Target, Err: err}
	}
}
