package editor

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/openfroyo/cfgtree/pkg/engine"
	"github.com/openfroyo/cfgtree/pkg/expr"
	"github.com/openfroyo/cfgtree/pkg/schema"
)

// StateKind is the top-level state of a session.
type StateKind int

const (
	Browsing StateKind = iota
	Editing
	Exiting
)

func (k StateKind) String() string {
	switch k {
	case Editing:
		return "editing"
	case Exiting:
		return "exiting"
	default:
		return "browsing"
	}
}

// ExitReason says how a session ended.
type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitSave
	ExitDiscard
)

// State is the current session state. Path is set while Editing; Exit is
// set once Exiting.
type State struct {
	Kind StateKind
	Path string
	Exit ExitReason
}

// ErrInvalidTransition is returned when an input is not accepted in the
// current state.
var ErrInvalidTransition = errors.New("invalid transition")

// Persister stores the pruned raw values when a session is saved.
type Persister interface {
	Save(values engine.RawValues) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(values engine.RawValues) error

// Save implements Persister.
func (f PersisterFunc) Save(values engine.RawValues) error { return f(values) }

// Row is one line of the current menu.
type Row struct {
	Node        *schema.Node
	Active      bool
	Value       expr.Value
	HasValue    bool
	Defaulted   bool
	Diagnostics []engine.Diagnostic
}

// Option configures a Session.
type Option func(*Session)

// WithMode sets the resolution mode. Sessions default to ModeLenient so
// problems surface as warnings while editing.
func WithMode(mode engine.Mode) Option {
	return func(s *Session) { s.mode = mode }
}

// WithPersister sets where Save writes to.
func WithPersister(p Persister) Option {
	return func(s *Session) { s.persister = p }
}

type location struct {
	menu   schema.NodeID
	cursor int
}

// Session is an interactive editing session over one resolved tree. It owns
// its raw value map and re-resolves synchronously after every edit, so the
// view never shows an intermediate state. A Session is not safe for
// concurrent use.
type Session struct {
	order     *engine.EvaluationOrder
	features  engine.FeatureSet
	mode      engine.Mode
	persister Persister

	raw     engine.RawValues
	initial engine.RawValues
	res     *engine.Resolution

	state  State
	menu   schema.NodeID
	stack  []location
	rows   []Row
	cursor int
	buffer string
}

// NewSession starts a session seeded with a copy of raw.
func NewSession(order *engine.EvaluationOrder, features engine.FeatureSet, raw engine.RawValues, opts ...Option) *Session {
	s := &Session{
		order:    order,
		features: features,
		mode:     engine.ModeLenient,
		raw:      raw.Clone(),
		initial:  raw.Clone(),
		menu:     schema.NoNode,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resolve()
	s.cursor = s.nextActive(-1, 1)
	return s
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Resolution returns the result of the latest resolution pass.
func (s *Session) Resolution() *engine.Resolution { return s.res }

// Raw returns a copy of the session's raw value map.
func (s *Session) Raw() engine.RawValues { return s.raw.Clone() }

// Dirty reports whether the raw values differ from those the session started with.
func (s *Session) Dirty() bool { return !reflect.DeepEqual(s.raw, s.initial) }

// Rows returns the rows of the current menu, inactive ones included.
func (s *Session) Rows() []Row { return s.rows }

// Cursor returns the index of the selected row, or -1 when no row is active.
func (s *Session) Cursor() int { return s.cursor }

// Current returns the selected row.
func (s *Session) Current() (Row, bool) {
	if s.cursor < 0 || s.cursor >= len(s.rows) {
		return Row{}, false
	}
	return s.rows[s.cursor], true
}

// Buffer returns the text being edited.
func (s *Session) Buffer() string { return s.buffer }

// Title returns the description of the current menu.
func (s *Session) Title() string {
	if s.menu == schema.NoNode {
		return "Configuration"
	}
	return displayName(s.order.Tree.Node(s.menu))
}

// Breadcrumb returns the titles from the top level down to the current menu.
func (s *Session) Breadcrumb() []string {
	out := []string{"Configuration"}
	for _, loc := range s.stack {
		if loc.menu != schema.NoNode {
			out = append(out, displayName(s.order.Tree.Node(loc.menu)))
		}
	}
	if s.menu != schema.NoNode {
		out = append(out, displayName(s.order.Tree.Node(s.menu)))
	}
	return out
}

// DiagnosticsAt returns the latest diagnostics for path.
func (s *Session) DiagnosticsAt(path string) []engine.Diagnostic {
	return s.res.DiagnosticsFor(path)
}

func displayName(n *schema.Node) string {
	if n.Description != "" {
		return n.Description
	}
	return n.Name
}

// Up moves the cursor to the previous active row.
func (s *Session) Up() error {
	if s.state.Kind != Browsing {
		return s.invalid("up")
	}
	if i := s.nextActive(s.cursor, -1); i >= 0 {
		s.cursor = i
	}
	return nil
}

// Down moves the cursor to the next active row.
func (s *Session) Down() error {
	if s.state.Kind != Browsing {
		return s.invalid("down")
	}
	if i := s.nextActive(s.cursor, 1); i >= 0 {
		s.cursor = i
	}
	return nil
}

// Enter descends into the selected menu.
func (s *Session) Enter() error {
	row, ok := s.Current()
	if s.state.Kind != Browsing || !ok || !row.Node.IsMenu() {
		return s.invalid("enter")
	}
	s.stack = append(s.stack, location{menu: s.menu, cursor: s.cursor})
	s.menu = row.Node.ID
	s.refreshRows()
	s.cursor = s.nextActive(-1, 1)
	return nil
}

// Back returns to the parent menu. It reports false at the top level.
func (s *Session) Back() (bool, error) {
	if s.state.Kind != Browsing {
		return false, s.invalid("back")
	}
	if len(s.stack) == 0 {
		return false, nil
	}
	loc := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	s.menu = loc.menu
	s.refreshRows()
	s.cursor = loc.cursor
	s.fixCursor()
	return true, nil
}

// Select enters a selected menu or activates a selected option.
func (s *Session) Select() error {
	row, ok := s.Current()
	if ok && row.Node.IsMenu() {
		return s.Enter()
	}
	return s.Activate()
}

// Activate acts on the selected option: a bool is toggled, an enum moves to
// its next value (wrapping) and integers and strings enter Editing.
func (s *Session) Activate() error {
	row, ok := s.Current()
	if s.state.Kind != Browsing || !ok || row.Node.IsMenu() {
		return s.invalid("activate")
	}
	n := row.Node

	switch n.Type {
	case schema.TypeBool:
		s.raw[n.Path] = !row.Value.AsBool()
		s.resolve()
	case schema.TypeEnum:
		next := 0
		if row.HasValue {
			next = (n.EnumIndex(row.Value.AsString()) + 1) % len(n.Values)
		}
		s.raw[n.Path] = n.Values[next].Literal
		s.resolve()
	default:
		s.state = State{Kind: Editing, Path: n.Path}
		s.buffer = s.editText(row)
	}
	return nil
}

// editText is the buffer prefill: the user's text if it was rejected,
// otherwise the current value.
func (s *Session) editText(row Row) string {
	if raw, ok := s.raw[row.Node.Path]; ok && (!row.HasValue || row.Defaulted) {
		return fmt.Sprint(raw)
	}
	if row.HasValue {
		return row.Value.Text()
	}
	return ""
}

// SetBuffer replaces the edit buffer.
func (s *Session) SetBuffer(text string) error {
	if s.state.Kind != Editing {
		return s.invalid("type")
	}
	s.buffer = text
	return nil
}

// Commit stores the edit buffer and re-resolves. Integer input is parsed when
// possible; unparsable text is stored as is and reported as a TypeMismatch.
// An empty buffer for an integer option clears the value.
func (s *Session) Commit() error {
	if s.state.Kind != Editing {
		return s.invalid("commit")
	}
	n, ok := s.order.Tree.Lookup(s.state.Path)
	if !ok {
		return fmt.Errorf("editing unknown option %s", s.state.Path)
	}

	text := s.buffer
	if n.Type == schema.TypeInteger {
		text = strings.TrimSpace(text)
		if text == "" {
			delete(s.raw, n.Path)
		} else if i, err := strconv.ParseInt(text, 0, 64); err == nil {
			s.raw[n.Path] = i
		} else {
			s.raw[n.Path] = text
		}
	} else {
		s.raw[n.Path] = text
	}

	s.state = State{Kind: Browsing}
	s.buffer = ""
	s.resolve()
	return nil
}

// Abort leaves Editing without touching the raw values.
func (s *Session) Abort() error {
	if s.state.Kind != Editing {
		return s.invalid("abort")
	}
	s.state = State{Kind: Browsing}
	s.buffer = ""
	return nil
}

// Reset removes the user value of the selected option so its default applies.
func (s *Session) Reset() error {
	row, ok := s.Current()
	if s.state.Kind != Browsing || !ok || row.Node.IsMenu() {
		return s.invalid("reset")
	}
	delete(s.raw, row.Node.Path)
	s.resolve()
	return nil
}

// Cancel ends the session without saving. It is accepted in every state
// except Exiting.
func (s *Session) Cancel() error {
	if s.state.Kind == Exiting {
		return s.invalid("cancel")
	}
	s.state = State{Kind: Exiting, Exit: ExitDiscard}
	s.buffer = ""
	return nil
}

// Save persists the raw values pruned to active options and ends the
// session. On a persistence error the session stays in Browsing.
func (s *Session) Save() error {
	if s.state.Kind != Browsing {
		return s.invalid("save")
	}
	values := s.res.PrunedValues()
	if s.persister != nil {
		if err := s.persister.Save(values); err != nil {
			return fmt.Errorf("save configuration: %w", err)
		}
	}
	s.state = State{Kind: Exiting, Exit: ExitSave}
	return nil
}

func (s *Session) invalid(input string) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, input, s.state.Kind)
}

// resolve runs a full pass and refreshes the view.
func (s *Session) resolve() {
	s.res = engine.Resolve(s.order, s.features, s.raw, s.mode)
	s.refreshRows()
	s.fixCursor()
}

func (s *Session) refreshRows() {
	tree := s.order.Tree
	var ids []schema.NodeID
	if s.menu == schema.NoNode {
		ids = tree.Roots()
	} else {
		ids = tree.Node(s.menu).Children
	}

	s.rows = make([]Row, len(ids))
	for i, id := range ids {
		n := tree.Node(id)
		row := Row{Node: n, Active: s.res.IsActive(n.Path), Diagnostics: s.res.DiagnosticsFor(n.Path)}
		if e, ok := s.res.Config.Get(n.Path); ok {
			row.Value = e.Value
			row.HasValue = e.HasValue
			row.Defaulted = e.Defaulted
		}
		s.rows[i] = row
	}
}

// fixCursor moves the cursor off an inactive row.
func (s *Session) fixCursor() {
	if s.cursor >= 0 && s.cursor < len(s.rows) && s.rows[s.cursor].Active {
		return
	}
	if i := s.nextActive(s.cursor, 1); i >= 0 {
		s.cursor = i
		return
	}
	s.cursor = s.nextActive(s.cursor, -1)
}

// nextActive returns the first active row after from in direction dir, or -1.
func (s *Session) nextActive(from, dir int) int {
	for i := from + dir; i >= 0 && i < len(s.rows); i += dir {
		if s.rows[i].Active {
			return i
		}
	}
	return -1
}
