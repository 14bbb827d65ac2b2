package expr

import "fmt"

// State is the resolved state of an option as seen by expressions.
type State struct {
	Active bool
	Menu   bool
	Value  Value
}

// Context supplies everything an expression can observe during evaluation.
type Context interface {
	// Owner is the path of the option whose expression is being evaluated.
	Owner() string
	// HasFeature reports membership in the feature set.
	HasFeature(name string) bool
	// Lookup returns the resolved state of the option referenced by path,
	// exactly as written in the expression. The boolean is false when the
	// option has not been resolved yet.
	Lookup(path string) (State, bool)
	// Candidate returns the value under validation. The boolean is false
	// outside of a valid clause.
	Candidate() (Value, bool)
}

// Eval evaluates the expression against ctx. Evaluation has no side effects.
func (e *Expression) Eval(ctx Context) (Value, error) {
	ev := evaluator{ctx: ctx}
	return ev.eval(e.root)
}

// Test evaluates the expression and reports whether the result is truthy.
func (e *Expression) Test(ctx Context) (bool, error) {
	v, err := e.Eval(ctx)
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

type evaluator struct {
	ctx Context
}

func (ev evaluator) fail(n Node, format string, args ...any) error {
	return &EvalError{Owner: ev.ctx.Owner(), Expr: n.String(), Msg: fmt.Sprintf(format, args...)}
}

func (ev evaluator) eval(n Node) (Value, error) {
	switch n := n.(type) {
	case *Literal:
		return n.Value, nil
	case *ValueRef:
		v, ok := ev.ctx.Candidate()
		if !ok {
			return Null(), ev.fail(n, "value is only available in a valid clause")
		}
		return v, nil
	case *Unary:
		x, err := ev.eval(n.X)
		if err != nil {
			return Null(), err
		}
		return Bool(!x.Truthy()), nil
	case *Binary:
		return ev.binary(n)
	case *Call:
		return ev.call(n)
	}
	return Null(), fmt.Errorf("unknown expression node %T", n)
}

func (ev evaluator) binary(n *Binary) (Value, error) {
	x, err := ev.eval(n.X)
	if err != nil {
		return Null(), err
	}
	switch n.Op {
	case OpAnd:
		if !x.Truthy() {
			return Bool(false), nil
		}
		y, err := ev.eval(n.Y)
		if err != nil {
			return Null(), err
		}
		return Bool(y.Truthy()), nil
	case OpOr:
		if x.Truthy() {
			return Bool(true), nil
		}
		y, err := ev.eval(n.Y)
		if err != nil {
			return Null(), err
		}
		return Bool(y.Truthy()), nil
	}

	y, err := ev.eval(n.Y)
	if err != nil {
		return Null(), err
	}
	return ev.compare(n, x, y)
}

func (ev evaluator) compare(n *Binary, x, y Value) (Value, error) {
	// Null is equal only to null and may be tested against any kind.
	if n.Op == OpEq || n.Op == OpNeq {
		if x.IsNull() || y.IsNull() || x.Kind() == y.Kind() {
			eq := x.Equal(y)
			if n.Op == OpNeq {
				eq = !eq
			}
			return Bool(eq), nil
		}
		return Null(), ev.fail(n, "cannot compare %s with %s", x.Kind(), y.Kind())
	}

	if x.Kind() != y.Kind() {
		return Null(), ev.fail(n, "cannot compare %s with %s", x.Kind(), y.Kind())
	}
	var c int
	switch x.Kind() {
	case KindInt:
		c = cmp(x.AsInt(), y.AsInt())
	case KindString:
		c = cmp(x.AsString(), y.AsString())
	default:
		return Null(), ev.fail(n, "operator %s is not defined on %s", n.Op, x.Kind())
	}
	switch n.Op {
	case OpLt:
		return Bool(c < 0), nil
	case OpLe:
		return Bool(c <= 0), nil
	case OpGt:
		return Bool(c > 0), nil
	default:
		return Bool(c >= 0), nil
	}
}

func cmp[T int64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (ev evaluator) call(n *Call) (Value, error) {
	arg, err := ev.eval(n.Args[0])
	if err != nil {
		return Null(), err
	}
	if arg.Kind() != KindString {
		return Null(), ev.fail(n, "%s expects a string argument, got %s", n.Func, arg.Kind())
	}
	name := arg.AsString()

	if n.Func == BuiltinFeature {
		return Bool(ev.ctx.HasFeature(name)), nil
	}

	st, ok := ev.ctx.Lookup(name)
	if !ok {
		return Null(), ev.fail(n, "option %q is not resolved", name)
	}
	switch n.Func {
	case BuiltinActive:
		return Bool(st.Active), nil
	case BuiltinEnabled:
		if !st.Active {
			return Bool(false), nil
		}
		if st.Menu {
			return Bool(true), nil
		}
		return Bool(st.Value.Truthy()), nil
	default: // BuiltinOption
		if !st.Active {
			return Null(), nil
		}
		return st.Value, nil
	}
}

// Env is a map-backed Context.
type Env struct {
	OwnerPath string
	Features  map[string]bool
	States    map[string]State
	Value     *Value
}

// Owner implements Context.
func (e *Env) Owner() string { return e.OwnerPath }

// HasFeature implements Context.
func (e *Env) HasFeature(name string) bool { return e.Features[name] }

// Lookup implements Context.
func (e *Env) Lookup(path string) (State, bool) {
	st, ok := e.States[path]
	return st, ok
}

// Candidate implements Context.
func (e *Env) Candidate() (Value, bool) {
	if e.Value == nil {
		return Null(), false
	}
	return *e.Value, true
}
