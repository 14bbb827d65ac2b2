package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/openfroyo/cfgtree/pkg/editor"
	"github.com/openfroyo/cfgtree/pkg/engine"
	"github.com/openfroyo/cfgtree/pkg/schema"
)

func newSession(t *testing.T, raw engine.RawValues, opts ...editor.Option) *editor.Session {
	t.Helper()
	tree, err := schema.Merge([]*schema.Component{{
		Name: "hal",
		Options: []*schema.Definition{
			{
				Name:        "psram",
				Description: "PSRAM",
				Options: []*schema.Definition{
					{Name: "enable", Type: "bool", Default: true},
					{
						Name:    "mode",
						Type:    "enum",
						Depends: `enabled(".enable")`,
						Values:  []schema.EnumValue{{Literal: "quad", Label: "Quad SPI"}, {Literal: "octal", Label: "Octal SPI"}},
						Default: "quad",
					},
				},
			},
			{Name: "heap", Type: "u32", Valid: "value <= 80000"},
		},
	}})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	order, err := engine.BuildOrder(tree)
	if err != nil {
		t.Fatalf("BuildOrder failed: %v", err)
	}
	return editor.NewSession(order, engine.NewFeatureSet(), raw, opts...)
}

func press(t *testing.T, m Model, keys ...tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(k)
		m = next.(Model)
	}
	return m, cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var (
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keyEsc   = tea.KeyMsg{Type: tea.KeyEsc}
	keyBack  = tea.KeyMsg{Type: tea.KeyBackspace}
)

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestModel_ViewShowsValues(t *testing.T) {
	m := New(newSession(t, engine.RawValues{"hal.heap": int64(100)}))
	m, _ = press(t, m, keyEnter)

	view := m.View()
	for _, want := range []string{"PSRAM  --->", "heap (100)", "Configuration > hal"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	m, _ = press(t, m, keyEnter)
	view = m.View()
	for _, want := range []string{"enable (DEFAULT = true)", "mode (DEFAULT = Quad SPI)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModel_ToggleDisablesDependents(t *testing.T) {
	m := New(newSession(t, nil))
	m, _ = press(t, m, keyEnter, keyEnter, runes(" "))

	view := m.View()
	if !strings.Contains(view, "enable (false)") {
		t.Errorf("toggle not applied:\n%s", view)
	}
	if !strings.Contains(view, "mode (disabled)") {
		t.Errorf("dependent option should be disabled:\n%s", view)
	}
}

func TestModel_EditAndCommit(t *testing.T) {
	m := New(newSession(t, nil))
	m, _ = press(t, m, keyEnter, keyDown, keyEnter)
	if m.Session().State().Kind != editor.Editing {
		t.Fatalf("expected Editing, got %v", m.Session().State().Kind)
	}

	m, _ = press(t, m, runes("4"), runes("2"), keyEnter)
	if m.Session().State().Kind != editor.Browsing {
		t.Fatalf("expected Browsing after commit")
	}
	if got := m.Session().Raw()["hal.heap"]; got != int64(42) {
		t.Errorf("hal.heap = %v, want 42", got)
	}
}

func TestModel_EscAbortsEditOnly(t *testing.T) {
	m := New(newSession(t, nil))
	m, _ = press(t, m, keyEnter, keyDown, keyEnter, runes("7"))
	m, cmd := press(t, m, keyEsc)

	if isQuit(cmd) {
		t.Fatal("esc while editing must not quit")
	}
	if m.Session().State().Kind != editor.Browsing {
		t.Errorf("expected Browsing, got %v", m.Session().State().Kind)
	}
	if _, ok := m.Session().Raw()["hal.heap"]; ok {
		t.Error("aborted edit must not store a value")
	}
}

func TestModel_SaveAndQuit(t *testing.T) {
	var saved engine.RawValues
	p := editor.PersisterFunc(func(v engine.RawValues) error {
		saved = v
		return nil
	})
	m := New(newSession(t, nil, editor.WithPersister(p)))
	m, _ = press(t, m, keyEnter, keyEnter, runes(" "), keyBack)
	m, cmd := press(t, m, runes("s"))

	if !isQuit(cmd) {
		t.Fatal("save should quit")
	}
	if st := m.Session().State(); st.Exit != editor.ExitSave {
		t.Errorf("State() = %+v", st)
	}
	if saved["hal.psram.enable"] != false {
		t.Errorf("saved = %v", saved)
	}
}

func TestModel_QuitDiscards(t *testing.T) {
	m := New(newSession(t, nil))
	m, cmd := press(t, m, runes("q"))

	if !isQuit(cmd) {
		t.Fatal("q should quit")
	}
	if st := m.Session().State(); st.Kind != editor.Exiting || st.Exit != editor.ExitDiscard {
		t.Errorf("State() = %+v", st)
	}
}

func TestModel_Truncate(t *testing.T) {
	m := New(newSession(t, nil))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 8, Height: 10})
	m = next.(Model)

	if got := m.truncate("configuration"); got != "configu…" {
		t.Errorf("truncate() = %q", got)
	}
	if got := m.truncate("short"); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
}
