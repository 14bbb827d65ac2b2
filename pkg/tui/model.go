// Package tui provides the terminal front-end of the configuration editor.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/openfroyo/cfgtree/pkg/editor"
	"github.com/openfroyo/cfgtree/pkg/engine"
)

// Model is the bubbletea model for the configuration editor.
type Model struct {
	session *editor.Session
	err     error

	// UI state
	keys     KeyMap
	help     help.Model
	input    textinput.Model
	showHelp bool
	width    int
	height   int
}

// New creates a model driving session.
func New(session *editor.Session) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 256

	return Model{
		session: session,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		input:   ti,
	}
}

// Session returns the underlying editor session.
func (m Model) Session() *editor.Session { return m.session }

// Err returns the last error reported by the session, if any.
func (m Model) Err() error { return m.err }

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.input.Width = max(msg.Width-4, 0)
		return m, nil

	case tea.KeyMsg:
		if m.session.State().Kind == editor.Editing {
			return m.updateEditing(msg)
		}
		return m.updateBrowsing(msg)
	}

	return m, nil
}

func (m Model) updateBrowsing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.session
	m.err = nil

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.record(s.Cancel())
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp

	case key.Matches(msg, m.keys.Up):
		m.record(s.Up())

	case key.Matches(msg, m.keys.Down):
		m.record(s.Down())

	case key.Matches(msg, m.keys.Select):
		m.record(s.Select())
		if s.State().Kind == editor.Editing {
			m.input.SetValue(s.Buffer())
			m.input.CursorEnd()
			cmd := m.input.Focus()
			return m, cmd
		}

	case key.Matches(msg, m.keys.Back):
		_, err := s.Back()
		m.record(err)

	case key.Matches(msg, m.keys.Reset):
		m.record(s.Reset())

	case key.Matches(msg, m.keys.Save):
		if err := s.Save(); err != nil {
			m.err = err
			return m, nil
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.session

	switch {
	case msg.Type == tea.KeyCtrlC:
		m.input.Blur()
		m.record(s.Cancel())
		return m, tea.Quit

	case key.Matches(msg, m.keys.Commit):
		m.record(s.SetBuffer(m.input.Value()))
		m.record(s.Commit())
		m.input.Blur()
		return m, nil

	case key.Matches(msg, m.keys.Abort):
		m.record(s.Abort())
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// record keeps err for display. Rejected inputs such as Enter on an option
// are not errors worth showing.
func (m *Model) record(err error) {
	if err != nil && !errors.Is(err, editor.ErrInvalidTransition) {
		m.err = err
	}
}

// View renders the model.
func (m Model) View() string {
	s := m.session
	var b strings.Builder

	b.WriteString(TitleStyle.Render(s.Title()))
	b.WriteString("\n")
	b.WriteString(BreadcrumbStyle.Render(m.truncate(strings.Join(s.Breadcrumb(), " > "))))
	b.WriteString("\n\n")

	rows := s.Rows()
	if len(rows) == 0 {
		b.WriteString(DisabledStyle.Render("  (no options)"))
		b.WriteString("\n")
	}
	for i, row := range rows {
		marker := "  "
		if i == s.Cursor() {
			marker = "> "
		}
		line := m.truncate(marker + RowText(row))
		switch {
		case !row.Active:
			line = DisabledStyle.Render(line)
		case i == s.Cursor():
			line = SelectedStyle.Render(line)
		case hasError(row.Diagnostics):
			line = ErrorStyle.Render(line)
		case len(row.Diagnostics) > 0:
			line = WarningStyle.Render(line)
		default:
			line = RowStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if row, ok := s.Current(); ok && len(row.Diagnostics) > 0 {
		b.WriteString("\n")
		for _, d := range row.Diagnostics {
			text := m.truncate(fmt.Sprintf("%s: %s", d.Kind, d.Message))
			if d.Severity == engine.SeverityError {
				b.WriteString(ErrorStyle.Render(text))
			} else {
				b.WriteString(WarningStyle.Render(text))
			}
			b.WriteString("\n")
		}
	}

	if s.State().Kind == editor.Editing {
		b.WriteString("\n")
		b.WriteString(PromptStyle.Render(s.State().Path))
		b.WriteString("\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(m.truncate("error: " + m.err.Error())))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if s.State().Kind == editor.Editing {
		b.WriteString(m.help.View(editingHelp{keys: m.keys}))
	} else {
		b.WriteString(m.help.View(m.keys))
	}
	return b.String()
}

// RowText is the plain text of a menu row: `name --->` for menus,
// `name (value)` or `name (DEFAULT = value)` for options.
func RowText(row editor.Row) string {
	n := row.Node
	name := n.Name
	if n.Description != "" {
		name = n.Description
	}

	if n.IsMenu() {
		return name + "  --->"
	}

	var value string
	switch {
	case !row.Active:
		value = "(disabled)"
	case !row.HasValue:
		value = "(unset)"
	case row.Defaulted:
		value = fmt.Sprintf("(DEFAULT = %s)", n.Label(row.Value))
	default:
		value = fmt.Sprintf("(%s)", n.Label(row.Value))
	}

	text := name + " " + value
	if len(row.Diagnostics) > 0 {
		text += " !"
	}
	return text
}

func hasError(diags []engine.Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == engine.SeverityError {
			return true
		}
	}
	return false
}

// truncate cuts s to the terminal width, counting wide characters as two cells.
func (m Model) truncate(s string) string {
	if m.width <= 0 || runewidth.StringWidth(s) <= m.width {
		return s
	}
	return runewidth.Truncate(s, m.width, "…")
}
