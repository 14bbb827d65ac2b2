package expr

import (
	"fmt"
	"strings"
)

// Node is a node of a parsed expression tree. The set of node types is closed:
// Literal, ValueRef, Unary, Binary and Call.
type Node interface {
	// Pos is the byte offset of the node in the source text.
	Pos() int
	// String renders the node back to canonical source form.
	String() string

	node()
}

// Literal is a constant bool, integer or string.
type Literal struct {
	Value Value
	At    int
}

// ValueRef is the `value` identifier: the candidate value inside a valid clause.
type ValueRef struct {
	At int
}

// Unary is a prefix operator application. The only unary operator is `!`.
type Unary struct {
	Op Op
	X  Node
	At int
}

// Binary is an infix operator application.
type Binary struct {
	Op   Op
	X, Y Node
	At   int
}

// Call is a builtin function call.
type Call struct {
	Func Builtin
	Args []Node
	At   int
}

func (n *Literal) Pos() int  { return n.At }
func (n *ValueRef) Pos() int { return n.At }
func (n *Unary) Pos() int    { return n.At }
func (n *Binary) Pos() int   { return n.At }
func (n *Call) Pos() int     { return n.At }

func (*Literal) node()  {}
func (*ValueRef) node() {}
func (*Unary) node()    {}
func (*Binary) node()   {}
func (*Call) node()     {}

func (n *Literal) String() string  { return n.Value.String() }
func (n *ValueRef) String() string { return "value" }
func (n *Unary) String() string    { return n.Op.String() + operand(n.X) }

func (n *Binary) String() string {
	return fmt.Sprintf("%s %s %s", operand(n.X), n.Op, operand(n.Y))
}

func (n *Call) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", n.Func, strings.Join(args, ", "))
}

// operand parenthesizes nested binary expressions so String output reparses
// to the same tree.
func operand(n Node) string {
	if _, ok := n.(*Binary); ok {
		return "(" + n.String() + ")"
	}
	return n.String()
}

// Op is an operator.
type Op int

const (
	OpNot Op = iota
	OpAnd
	OpOr
	OpEq
	OpNeq
	OpLt
	OpLe
	OpGt
	OpGe
)

var opText = [...]string{
	OpNot: "!",
	OpAnd: "&&",
	OpOr:  "||",
	OpEq:  "==",
	OpNeq: "!=",
	OpLt:  "<",
	OpLe:  "<=",
	OpGt:  ">",
	OpGe:  ">=",
}

func (o Op) String() string {
	if int(o) < len(opText) {
		return opText[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// IsComparison reports whether o compares two operands.
func (o Op) IsComparison() bool { return o >= OpEq && o <= OpGe }

// Builtin is one of the predicate functions available to expressions.
type Builtin string

const (
	// BuiltinFeature tests membership in the feature set.
	BuiltinFeature Builtin = "feature"
	// BuiltinEnabled is true when the referenced option is active and its value is truthy.
	// For a menu it is true when the menu is active.
	BuiltinEnabled Builtin = "enabled"
	// BuiltinActive is true when the referenced option is active.
	BuiltinActive Builtin = "active"
	// BuiltinOption yields the referenced option's value, or null when it is inactive or unset.
	BuiltinOption Builtin = "option"
)

// TakesPath reports whether the builtin's argument is an option path.
func (b Builtin) TakesPath() bool {
	return b == BuiltinEnabled || b == BuiltinActive || b == BuiltinOption
}

var builtins = map[string]Builtin{
	string(BuiltinFeature): BuiltinFeature,
	string(BuiltinEnabled): BuiltinEnabled,
	string(BuiltinActive):  BuiltinActive,
	string(BuiltinOption):  BuiltinOption,
}
