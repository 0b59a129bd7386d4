package chat

import (
	"fmt"
	"strings"

	"github.com/adamavenir/streamsync/internal/paging"
	tea "github.com/charmbracelet/bubbletea"
)

const helpText = `/edit #id text · /delete #id · /pin #id · /unpin #id · /react #id emoji
/jump #id · /reload · /purge · /quit    (or type "#id /command args")`

func (m *Model) handleSlashCommand(input string) (bool, tea.Cmd) {
	trimmed := strings.TrimSpace(input)

	if rewritten, ok := rewriteClickThenCommand(trimmed); ok {
		trimmed = rewritten
	} else if !strings.HasPrefix(trimmed, "/") {
		return false, nil
	}

	cmd, err := m.runSlashCommand(trimmed)
	if err != nil {
		m.status = err.Error()
		m.input.SetValue(input)
		m.input.CursorEnd()
		return true, nil
	}
	m.input.Reset()
	return true, cmd
}

// rewriteClickThenCommand turns "#id /command args" into "/command #id args".
func rewriteClickThenCommand(input string) (string, bool) {
	fields := strings.Fields(input)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "#") || !strings.HasPrefix(fields[1], "/") {
		return "", false
	}
	result := fields[1] + " " + fields[0]
	if len(fields) > 2 {
		result += " " + strings.Join(fields[2:], " ")
	}
	return result, true
}

func (m *Model) runSlashCommand(input string) (tea.Cmd, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return nil, nil
	}

	switch fields[0] {
	case "/quit", "/exit":
		return tea.Quit, nil
	case "/help":
		m.status = helpText
		return nil, nil
	case "/reload":
		m.status = "reloading…"
		ctx, view := m.ctx, m.view
		return func() tea.Msg {
			return pageLoadedMsg{kind: paging.KindInitial, err: view.Reload(ctx)}
		}, nil
	case "/purge":
		n := m.view.PurgeTransient()
		m.status = fmt.Sprintf("dropped %d unsent messages", n)
		return nil, nil
	}

	if len(fields) < 2 {
		return nil, fmt.Errorf("usage: %s #id", fields[0])
	}
	id := strings.TrimPrefix(fields[1], "#")
	rest := strings.TrimSpace(strings.Join(fields[2:], " "))

	switch fields[0] {
	case "/jump":
		m.status = "jumping to #" + id + "…"
		m.anchored = false
		return m.jumpCmd(id), nil
	case "/edit":
		if rest == "" {
			return nil, fmt.Errorf("usage: /edit #id text")
		}
		return m.actionCmd("edit", func() error { return m.view.Edit(id, rest) }), nil
	case "/delete", "/rm":
		return m.actionCmd("delete", func() error { return m.view.Delete(id) }), nil
	case "/pin":
		return m.actionCmd("pin", func() error { return m.view.Pin(id) }), nil
	case "/unpin":
		return m.actionCmd("unpin", func() error { return m.view.Unpin(id) }), nil
	case "/react":
		if rest == "" {
			return nil, fmt.Errorf("usage: /react #id emoji")
		}
		return m.actionCmd("react", func() error { return m.view.ToggleReaction(id, rest) }), nil
	default:
		return nil, fmt.Errorf("unknown command %s", fields[0])
	}
}

func (m *Model) actionCmd(what string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{what: what, err: fn()}
	}
}
