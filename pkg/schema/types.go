package schema

import (
	"math"
	"strings"

	"github.com/openfroyo/cfgtree/pkg/expr"
)

// NodeKind distinguishes grouping menus from valued scalars.
type NodeKind int

const (
	// KindMenu groups child nodes and carries no value.
	KindMenu NodeKind = iota
	// KindScalar is a typed, valued option.
	KindScalar
)

func (k NodeKind) String() string {
	if k == KindMenu {
		return "menu"
	}
	return "scalar"
}

// ValueType is the declared type of a scalar.
type ValueType int

const (
	TypeBool ValueType = iota
	TypeInteger
	TypeEnum
	TypeString
)

func (t ValueType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInteger:
		return "integer"
	case TypeEnum:
		return "enum"
	default:
		return "string"
	}
}

// integerTypes maps the accepted integer type names to inclusive bounds.
var integerTypes = map[string][2]int64{
	"u8":      {0, math.MaxUint8},
	"u16":     {0, math.MaxUint16},
	"u32":     {0, math.MaxUint32},
	"u64":     {0, math.MaxInt64},
	"i8":      {math.MinInt8, math.MaxInt8},
	"i16":     {math.MinInt16, math.MaxInt16},
	"i32":     {math.MinInt32, math.MaxInt32},
	"i64":     {math.MinInt64, math.MaxInt64},
	"int":     {math.MinInt64, math.MaxInt64},
	"integer": {math.MinInt64, math.MaxInt64},
}

// ParseType maps a definition `type` string to a ValueType and, for integers,
// its inclusive bounds.
func ParseType(name string) (t ValueType, minVal, maxVal int64, ok bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "bool", "boolean":
		return TypeBool, 0, 0, true
	case "enum":
		return TypeEnum, 0, 0, true
	case "string", "str":
		return TypeString, 0, 0, true
	}
	if b, found := integerTypes[name]; found {
		return TypeInteger, b[0], b[1], true
	}
	return 0, 0, 0, false
}

// EnumValue is one declared literal of an enum scalar.
type EnumValue struct {
	Literal string
	Label   string
}

// NodeID indexes a node in its Tree.
type NodeID int

// NoNode is the parent of component roots.
const NoNode NodeID = -1

// Node is one option in a merged tree. Nodes are immutable once the tree is built.
type Node struct {
	ID        NodeID
	Parent    NodeID
	Children  []NodeID
	Component string

	// Path is the full dot-separated path including the component segment.
	Path string
	// Name is the last path segment.
	Name        string
	Description string
	Kind        NodeKind
	Depth       int

	// Scalar attributes.
	Type       ValueType
	TypeName   string
	Min, Max   int64
	Values     []EnumValue
	Default    expr.Value
	HasDefault bool

	Depends *expr.Expression
	Valid   *expr.Expression
}

// IsMenu reports whether n is a menu.
func (n *Node) IsMenu() bool { return n.Kind == KindMenu }

// LocalPath is the path with the component segment removed. Component roots
// return "".
func (n *Node) LocalPath() string {
	return strings.TrimPrefix(strings.TrimPrefix(n.Path, n.Component), ".")
}

// EnumIndex returns the position of literal in the enum's declared values, or -1.
func (n *Node) EnumIndex(literal string) int {
	for i, v := range n.Values {
		if v.Literal == literal {
			return i
		}
	}
	return -1
}

// Label returns the display label for a value of this node: the enum label
// when one is declared, the plain value text otherwise.
func (n *Node) Label(v expr.Value) string {
	if n.Type == TypeEnum {
		if i := n.EnumIndex(v.AsString()); i >= 0 && n.Values[i].Label != "" {
			return n.Values[i].Label
		}
	}
	return v.Text()
}

// Tree is a merged forest of component option trees. Nodes live in an arena in
// declaration pre-order and refer to each other by NodeID.
type Tree struct {
	nodes []*Node
	index map[string]NodeID
	roots []NodeID
}

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns the node with the given ID.
func (t *Tree) Node(id NodeID) *Node { return t.nodes[id] }

// Nodes returns every node in declaration pre-order.
func (t *Tree) Nodes() []*Node { return t.nodes }

// Roots returns the component root menus in merge order.
func (t *Tree) Roots() []NodeID { return t.roots }

// Lookup finds a node by full path.
func (t *Tree) Lookup(path string) (*Node, bool) {
	id, ok := t.index[path]
	if !ok {
		return nil, false
	}
	return t.nodes[id], true
}

// Parent returns the parent of n, or nil for a component root.
func (t *Tree) Parent(n *Node) *Node {
	if n.Parent == NoNode {
		return nil
	}
	return t.nodes[n.Parent]
}

// Children returns the child nodes of n in declaration order.
func (t *Tree) Children(n *Node) []*Node {
	out := make([]*Node, len(n.Children))
	for i, id := range n.Children {
		out[i] = t.nodes[id]
	}
	return out
}

// Scalars returns every scalar node in declaration order.
func (t *Tree) Scalars() []*Node {
	var out []*Node
	t.Walk(func(n *Node) bool {
		if n.Kind == KindScalar {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Components returns the component identities in merge order.
func (t *Tree) Components() []string {
	out := make([]string, len(t.roots))
	for i, id := range t.roots {
		out[i] = t.nodes[id].Path
	}
	return out
}

// ComponentOf returns the component that owns path.
func (t *Tree) ComponentOf(path string) (string, bool) {
	comp, _, _ := strings.Cut(path, ".")
	for _, id := range t.roots {
		if t.nodes[id].Path == comp {
			return comp, true
		}
	}
	return "", false
}

// Walk visits nodes in pre-order. Returning false from fn skips the node's subtree.
func (t *Tree) Walk(fn func(n *Node) bool) {
	var visit func(id NodeID)
	visit = func(id NodeID) {
		n := t.nodes[id]
		if !fn(n) {
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	for _, r := range t.roots {
		visit(r)
	}
}
