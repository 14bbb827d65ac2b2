package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/openfroyo/cfgtree/pkg/expr"
	"github.com/openfroyo/cfgtree/pkg/schema"
)

// Mode controls how strictly a resolution pass treats problems.
type Mode int

const (
	// ModeStrict reports every problem as an error; any error fails the pass.
	ModeStrict Mode = iota
	// ModeLenient downgrades problems to warnings and falls back to defaults.
	ModeLenient
	// ModeForce is ModeLenient that also drops orphan keys without a warning.
	ModeForce
)

// ModeFor maps the fix/force command flags to a Mode.
func ModeFor(fix, force bool) Mode {
	switch {
	case fix && force:
		return ModeForce
	case fix:
		return ModeLenient
	default:
		return ModeStrict
	}
}

func (m Mode) String() string {
	switch m {
	case ModeLenient:
		return "lenient"
	case ModeForce:
		return "force"
	default:
		return "strict"
	}
}

// Severity is derived from the Mode only, never from the diagnostic kind.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "error":
		*s = SeverityError
	case "warning":
		*s = SeverityWarning
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// DiagnosticKind classifies a per-path problem found while resolving.
type DiagnosticKind string

const (
	// MissingValue: an active option has neither a user value nor a default.
	MissingValue DiagnosticKind = "MissingValue"
	// TypeMismatch: the user value cannot be coerced to the declared type.
	TypeMismatch DiagnosticKind = "TypeMismatch"
	// InvalidValue: the value is rejected by the option's valid clause.
	InvalidValue DiagnosticKind = "InvalidValue"
	// OrphanKey: a user value for a path that is not an active option.
	OrphanKey DiagnosticKind = "OrphanKey"
	// EvalFailure: a depends clause could not be evaluated; the option is treated as inactive.
	EvalFailure DiagnosticKind = "EvalFailure"
)

// Diagnostic is one problem found during a resolution pass.
type Diagnostic struct {
	Path     string         `json:"path"`
	Kind     DiagnosticKind `json:"kind"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s %s: %s", d.Severity, d.Path, d.Kind, d.Message)
}

// FeatureSet is an immutable set of feature flags.
type FeatureSet struct {
	set map[string]struct{}
}

// NewFeatureSet builds a feature set. Empty names are ignored.
func NewFeatureSet(names ...string) FeatureSet {
	fs := FeatureSet{set: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			fs.set[n] = struct{}{}
		}
	}
	return fs
}

// Has reports membership.
func (f FeatureSet) Has(name string) bool {
	_, ok := f.set[name]
	return ok
}

// Names returns the features sorted.
func (f FeatureSet) Names() []string {
	out := make([]string, 0, len(f.set))
	for n := range f.set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// RawValues is the sparse user-supplied path to literal map. Paths are full
// paths including the component segment. The engine never modifies it.
type RawValues map[string]any

// Clone returns a shallow copy.
func (r RawValues) Clone() RawValues {
	out := make(RawValues, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// SortedKeys returns the keys in lexicographic order.
func (r RawValues) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entry is the resolved state of one active scalar.
type Entry struct {
	Path string
	Node *schema.Node
	// Value is null when HasValue is false.
	Value    expr.Value
	HasValue bool
	// Defaulted is true when Value came from the declared default.
	Defaulted bool
}

// ResolvedConfig holds every active scalar in declaration order.
// It is immutable once returned.
type ResolvedConfig struct {
	entries []Entry
	index   map[string]int
}

// Entries returns the active scalars in declaration order.
func (c *ResolvedConfig) Entries() []Entry { return c.entries }

// Len returns the number of active scalars.
func (c *ResolvedConfig) Len() int { return len(c.entries) }

// Get returns the entry for path. Inactive options and menus are absent.
func (c *ResolvedConfig) Get(path string) (Entry, bool) {
	i, ok := c.index[path]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Value returns the typed value at path, if the option is active and valued.
func (c *ResolvedConfig) Value(path string) (expr.Value, bool) {
	e, ok := c.Get(path)
	if !ok || !e.HasValue {
		return expr.Null(), false
	}
	return e.Value, true
}

// Values exports every valued entry as plain Go values keyed by path.
func (c *ResolvedConfig) Values() map[string]any {
	out := make(map[string]any, len(c.entries))
	for _, e := range c.entries {
		if e.HasValue {
			out[e.Path] = e.Value.Interface()
		}
	}
	return out
}

// Nested groups valued entries by component and then by local path segments,
// the shape user configuration documents use.
func (c *ResolvedConfig) Nested() map[string]any {
	out := make(map[string]any)
	for _, e := range c.entries {
		if e.HasValue {
			setNested(out, strings.Split(e.Path, "."), e.Value.Interface())
		}
	}
	return out
}

// MarshalJSON renders the config as an ordered list of path/value pairs.
func (c *ResolvedConfig) MarshalJSON() ([]byte, error) {
	type item struct {
		Path      string `json:"path"`
		Type      string `json:"type"`
		Value     any    `json:"value"`
		Defaulted bool   `json:"defaulted,omitempty"`
	}
	items := make([]item, 0, len(c.entries))
	for _, e := range c.entries {
		items = append(items, item{Path: e.Path, Type: e.Node.TypeName, Value: e.Value.Interface(), Defaulted: e.Defaulted})
	}
	return json.Marshal(items)
}

func setNested(m map[string]any, segs []string, v any) {
	for _, s := range segs[:len(segs)-1] {
		sub, ok := m[s].(map[string]any)
		if !ok {
			sub = make(map[string]any)
			m[s] = sub
		}
		m = sub
	}
	m[segs[len(segs)-1]] = v
}
