package engine

import (
	"fmt"
	"sort"

	"github.com/openfroyo/cfgtree/pkg/expr"
	"github.com/openfroyo/cfgtree/pkg/schema"
)

// Resolution is the outcome of one resolution pass.
type Resolution struct {
	Mode        Mode
	Config      *ResolvedConfig
	Diagnostics []Diagnostic

	order    *EvaluationOrder
	states   []expr.State
	accepted []bool
	raw      RawValues
}

// Failed reports whether the pass must be treated as unsuccessful: strict
// mode with at least one error diagnostic.
func (r *Resolution) Failed() bool {
	if r.Mode != ModeStrict {
		return false
	}
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Err returns a *ResolutionError when the pass failed, nil otherwise.
func (r *Resolution) Err() error {
	if !r.Failed() {
		return nil
	}
	return &ResolutionError{Diagnostics: r.Errors()}
}

// Errors returns the error-severity diagnostics.
func (r *Resolution) Errors() []Diagnostic { return r.filter(SeverityError) }

// Warnings returns the warning-severity diagnostics.
func (r *Resolution) Warnings() []Diagnostic { return r.filter(SeverityWarning) }

func (r *Resolution) filter(sev Severity) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == sev {
			out = append(out, d)
		}
	}
	return out
}

// DiagnosticsFor returns the diagnostics recorded at path.
func (r *Resolution) DiagnosticsFor(path string) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Path == path {
			out = append(out, d)
		}
	}
	return out
}

// State returns the resolved state of any node, menus and inactive ones included.
func (r *Resolution) State(path string) (expr.State, bool) {
	n, ok := r.order.Tree.Lookup(path)
	if !ok {
		return expr.State{}, false
	}
	return r.states[n.ID], true
}

// IsActive reports whether the node at path is active.
func (r *Resolution) IsActive(path string) bool {
	st, ok := r.State(path)
	return ok && st.Active
}

// PrunedValues returns the raw values restricted to active scalars: the map
// an interactive session persists. Accepted values are stored in their
// coerced form; rejected ones are kept as the user wrote them.
func (r *Resolution) PrunedValues() RawValues {
	out := make(RawValues)
	for path, raw := range r.raw {
		n, ok := r.order.Tree.Lookup(path)
		if !ok || n.Kind != schema.KindScalar || !r.states[n.ID].Active {
			continue
		}
		if r.accepted[n.ID] {
			out[path] = r.states[n.ID].Value.Interface()
		} else {
			out[path] = raw
		}
	}
	return out
}

// Values exports the resolved values keyed by path for code generators.
func (r *Resolution) Values() map[string]any { return r.Config.Values() }

// FixedValues is PrunedValues without the values that were rejected, so that
// the affected options fall back to their defaults on the next pass.
func (r *Resolution) FixedValues() RawValues {
	out := make(RawValues)
	for path := range r.raw {
		n, ok := r.order.Tree.Lookup(path)
		if !ok || n.Kind != schema.KindScalar || !r.states[n.ID].Active || !r.accepted[n.ID] {
			continue
		}
		out[path] = r.states[n.ID].Value.Interface()
	}
	return out
}

// Resolve runs one full resolution pass over order. It never modifies raw and
// never returns early: every active option is evaluated and reported.
func Resolve(order *EvaluationOrder, features FeatureSet, raw RawValues, mode Mode) *Resolution {
	tree := order.Tree
	r := &resolver{
		order:    order,
		features: features,
		raw:      raw,
		mode:     mode,
		states:   make([]expr.State, tree.Len()),
		resolved: make([]bool, tree.Len()),
		accepted: make([]bool, tree.Len()),
		entries:  make([]*Entry, tree.Len()),
	}

	for _, id := range order.Order {
		r.resolveNode(tree.Node(id))
	}
	r.checkOrphans()

	cfg := &ResolvedConfig{index: make(map[string]int)}
	for _, n := range tree.Nodes() {
		if e := r.entries[n.ID]; e != nil {
			cfg.index[e.Path] = len(cfg.entries)
			cfg.entries = append(cfg.entries, *e)
		}
	}

	r.sortDiagnostics()

	return &Resolution{
		Mode:        mode,
		Config:      cfg,
		Diagnostics: r.diags,
		order:       order,
		states:      r.states,
		accepted:    r.accepted,
		raw:         raw,
	}
}

type resolver struct {
	order    *EvaluationOrder
	features FeatureSet
	raw      RawValues
	mode     Mode

	states   []expr.State
	resolved []bool
	accepted []bool
	entries  []*Entry
	diags    []Diagnostic
}

func (r *resolver) severity() Severity {
	if r.mode == ModeStrict {
		return SeverityError
	}
	return SeverityWarning
}

func (r *resolver) report(path string, kind DiagnosticKind, format string, args ...any) {
	r.diags = append(r.diags, Diagnostic{
		Path:     path,
		Kind:     kind,
		Severity: r.severity(),
		Message:  fmt.Sprintf(format, args...),
	})
}

func (r *resolver) resolveNode(n *schema.Node) {
	active := true
	if n.Parent != schema.NoNode {
		active = r.states[n.Parent].Active
	}
	// An inactive ancestor short-circuits: the node's own clauses are skipped.
	if active && n.Depends != nil {
		ok, err := n.Depends.Test(r.context(n, nil))
		if err != nil {
			r.report(n.Path, EvalFailure, "depends: %v", err)
			ok = false
		}
		active = ok
	}

	r.states[n.ID] = expr.State{Active: active, Menu: n.Kind == schema.KindMenu}
	r.resolved[n.ID] = true
	if !active || n.Kind == schema.KindMenu {
		return
	}

	entry := &Entry{Path: n.Path, Node: n}
	if v, defaulted, ok := r.scalarValue(n); ok {
		entry.Value = v
		entry.HasValue = true
		entry.Defaulted = defaulted
		r.states[n.ID].Value = v
	}
	r.entries[n.ID] = entry
}

// scalarValue determines the value of an active scalar: the coerced user
// value, else the default. ok is false when the option ends up without one.
func (r *resolver) scalarValue(n *schema.Node) (v expr.Value, defaulted, ok bool) {
	raw, present := r.raw[n.Path]
	if !present {
		if !n.HasDefault {
			r.report(n.Path, MissingValue, "no value set and no default declared")
			return expr.Null(), false, false
		}
		if err := r.validate(n, n.Default); err != nil {
			r.report(n.Path, InvalidValue, "default %s: %v", n.Label(n.Default), err)
			if r.mode == ModeStrict {
				return expr.Null(), false, false
			}
			r.report(n.Path, MissingValue, "default value is not valid")
			return expr.Null(), false, false
		}
		return n.Default, true, true
	}

	v, err := n.Coerce(raw)
	if err != nil {
		r.report(n.Path, TypeMismatch, "%v", err)
		if r.mode == ModeStrict {
			return expr.Null(), false, false
		}
		return r.fallback(n)
	}

	if err := r.validate(n, v); err != nil {
		r.report(n.Path, InvalidValue, "%s: %v", v.Text(), err)
		if r.mode == ModeStrict {
			return expr.Null(), false, false
		}
		return r.fallback(n)
	}

	r.accepted[n.ID] = true
	return v, false, true
}

// fallback replaces a rejected value in lenient modes.
func (r *resolver) fallback(n *schema.Node) (expr.Value, bool, bool) {
	if n.HasDefault && r.validate(n, n.Default) == nil {
		return n.Default, true, true
	}
	r.report(n.Path, MissingValue, "rejected value has no valid default to fall back to")
	return expr.Null(), false, false
}

// validate evaluates the valid clause with value bound to v.
func (r *resolver) validate(n *schema.Node, v expr.Value) error {
	if n.Valid == nil {
		return nil
	}
	ok, err := n.Valid.Test(r.context(n, &v))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("rejected by %s", n.Valid.Source())
	}
	return nil
}

func (r *resolver) checkOrphans() {
	if r.mode == ModeForce {
		return
	}
	for _, path := range r.raw.SortedKeys() {
		n, ok := r.order.Tree.Lookup(path)
		switch {
		case !ok:
			r.report(path, OrphanKey, "no such option")
		case n.Kind == schema.KindMenu:
			r.report(path, OrphanKey, "%s is a menu and takes no value", path)
		case !r.states[n.ID].Active:
			r.report(path, OrphanKey, "option is not active")
		}
	}
}

// sortDiagnostics orders diagnostics by declaration position of their path,
// unknown paths last, keeping the emission order per path.
func (r *resolver) sortDiagnostics() {
	tree := r.order.Tree
	rank := func(path string) int {
		if n, ok := tree.Lookup(path); ok {
			return int(n.ID)
		}
		return tree.Len()
	}
	sort.SliceStable(r.diags, func(i, j int) bool {
		ri, rj := rank(r.diags[i].Path), rank(r.diags[j].Path)
		if ri != rj {
			return ri < rj
		}
		if ri == tree.Len() {
			return r.diags[i].Path < r.diags[j].Path
		}
		return false
	})
}

func (r *resolver) context(owner *schema.Node, candidate *expr.Value) expr.Context {
	return &evalContext{r: r, owner: owner, candidate: candidate}
}

// evalContext exposes the states resolved so far to one node's expressions.
type evalContext struct {
	r         *resolver
	owner     *schema.Node
	candidate *expr.Value
}

func (c *evalContext) Owner() string { return c.owner.Path }

func (c *evalContext) HasFeature(name string) bool { return c.r.features.Has(name) }

func (c *evalContext) Lookup(ref string) (expr.State, bool) {
	id, ok := c.r.order.Target(c.owner.ID, ref)
	if !ok || !c.r.resolved[id] {
		return expr.State{}, false
	}
	return c.r.states[id], true
}

func (c *evalContext) Candidate() (expr.Value, bool) {
	if c.candidate == nil {
		return expr.Null(), false
	}
	return *c.candidate, true
}
