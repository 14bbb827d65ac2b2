package engine

import (
	"fmt"
	"strings"

	"github.com/openfroyo/cfgtree/pkg/expr"
	"github.com/openfroyo/cfgtree/pkg/schema"
)

// EdgeKind records why one node reads another.
type EdgeKind int

const (
	// EdgeParent links a node to its parent: activity is inherited.
	EdgeParent EdgeKind = iota
	// EdgeDepends comes from a reference in a depends clause.
	EdgeDepends
	// EdgeValid comes from a reference in a valid clause.
	EdgeValid
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeParent:
		return "parent"
	case EdgeDepends:
		return "depends"
	default:
		return "valid"
	}
}

// Edge says node From reads the resolved state of node To, so To must be
// evaluated first.
type Edge struct {
	From schema.NodeID
	To   schema.NodeID
	Kind EdgeKind
}

// EvaluationOrder is the compiled form of a Tree: a topological order over
// every node plus the resolved target of every expression reference.
// It is immutable and may be shared by any number of resolution passes.
type EvaluationOrder struct {
	Tree *schema.Tree

	// Order lists every node so that each comes after everything it reads.
	Order []schema.NodeID

	// Edges lists every dependency edge in declaration order.
	Edges []Edge

	// Levels groups nodes by dependency depth. Nodes in the same level do
	// not read each other.
	Levels [][]schema.NodeID

	deps       [][]schema.NodeID
	dependents [][]schema.NodeID
	refs       []map[string]schema.NodeID
	level      []int
}

// Dependencies returns the nodes id reads directly.
func (o *EvaluationOrder) Dependencies(id schema.NodeID) []schema.NodeID {
	return o.deps[id]
}

// Dependents returns the nodes that read id directly.
func (o *EvaluationOrder) Dependents(id schema.NodeID) []schema.NodeID {
	return o.dependents[id]
}

// Level returns the dependency depth of id.
func (o *EvaluationOrder) Level(id schema.NodeID) int {
	return o.level[id]
}

// Target returns the node an expression reference in owner resolves to.
func (o *EvaluationOrder) Target(owner schema.NodeID, ref string) (schema.NodeID, bool) {
	id, ok := o.refs[owner][ref]
	return id, ok
}

// Paths returns Order as option paths.
func (o *EvaluationOrder) Paths() []string {
	out := make([]string, len(o.Order))
	for i, id := range o.Order {
		out[i] = o.Tree.Node(id).Path
	}
	return out
}

// BuildOrder compiles tree into an evaluation order. Dangling references and
// dependency cycles are returned as *schema.SchemaError.
func BuildOrder(tree *schema.Tree) (*EvaluationOrder, error) {
	return NewDAGBuilder(tree).Build()
}

// DAGBuilder builds the dependency graph between option nodes, orders it
// topologically and detects cycles.
type DAGBuilder struct {
	tree *schema.Tree

	// adjacencyList maps a node to the nodes it reads
	adjacencyList [][]schema.NodeID

	// reverseAdjacencyList maps a node to the nodes that read it
	reverseAdjacencyList [][]schema.NodeID

	edges []Edge
	refs  []map[string]schema.NodeID
}

// NewDAGBuilder creates a new DAG builder for tree.
func NewDAGBuilder(tree *schema.Tree) *DAGBuilder {
	n := tree.Len()
	return &DAGBuilder{
		tree:                 tree,
		adjacencyList:        make([][]schema.NodeID, n),
		reverseAdjacencyList: make([][]schema.NodeID, n),
		refs:                 make([]map[string]schema.NodeID, n),
	}
}

// Build extracts every reference, orders the graph and computes levels.
func (b *DAGBuilder) Build() (*EvaluationOrder, error) {
	if err := b.initialize(); err != nil {
		return nil, err
	}

	order, err := b.topologicalOrder()
	if err != nil {
		return nil, err
	}

	level, levels := b.computeLevels(order)

	return &EvaluationOrder{
		Tree:       b.tree,
		Order:      order,
		Edges:      b.edges,
		Levels:     levels,
		deps:       b.adjacencyList,
		dependents: b.reverseAdjacencyList,
		refs:       b.refs,
		level:      level,
	}, nil
}

// initialize adds parent edges and one edge per distinct expression reference.
func (b *DAGBuilder) initialize() error {
	for _, n := range b.tree.Nodes() {
		b.refs[n.ID] = make(map[string]schema.NodeID)

		if n.Parent != schema.NoNode {
			b.addEdge(n.ID, n.Parent, EdgeParent)
		}

		if err := b.addReferences(n, n.Depends, EdgeDepends); err != nil {
			return err
		}
		if err := b.addReferences(n, n.Valid, EdgeValid); err != nil {
			return err
		}
	}
	return nil
}

func (b *DAGBuilder) addReferences(n *schema.Node, e *expr.Expression, kind EdgeKind) error {
	if e == nil {
		return nil
	}
	for _, ref := range e.References() {
		path, err := b.tree.ResolveRef(n, ref)
		if err != nil {
			return schema.NewSchemaError(schema.ErrCodeInvalidExpression, "invalid option reference", err).
				WithPath(n.Path).WithText(e.Source())
		}
		target, ok := b.tree.Lookup(path)
		if !ok {
			return schema.NewSchemaError(schema.ErrCodeDanglingReference,
				fmt.Sprintf("reference to unknown option %s", path), nil).
				WithPath(n.Path).WithText(e.Source())
		}
		b.refs[n.ID][ref] = target.ID
		b.addEdge(n.ID, target.ID, kind)
	}
	return nil
}

func (b *DAGBuilder) addEdge(from, to schema.NodeID, kind EdgeKind) {
	for _, existing := range b.adjacencyList[from] {
		if existing == to {
			return
		}
	}
	b.adjacencyList[from] = append(b.adjacencyList[from], to)
	b.reverseAdjacencyList[to] = append(b.reverseAdjacencyList[to], from)
	b.edges = append(b.edges, Edge{From: from, To: to, Kind: kind})
}

const (
	white = iota // unvisited
	grey         // on the current DFS path
	black        // finished
)

// topologicalOrder runs a depth-first search in declaration order and emits
// each node after everything it reads. Meeting a grey node means a cycle.
func (b *DAGBuilder) topologicalOrder() ([]schema.NodeID, error) {
	color := make([]int, b.tree.Len())
	order := make([]schema.NodeID, 0, b.tree.Len())
	path := make([]schema.NodeID, 0)

	var visit func(id schema.NodeID) []schema.NodeID
	visit = func(id schema.NodeID) []schema.NodeID {
		color[id] = grey
		path = append(path, id)

		for _, dep := range b.adjacencyList[id] {
			switch color[dep] {
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			case grey:
				cycleStart := -1
				for i, p := range path {
					if p == dep {
						cycleStart = i
						break
					}
				}
				cycle := append([]schema.NodeID(nil), path[cycleStart:]...)
				return append(cycle, dep)
			}
		}

		path = path[:len(path)-1]
		color[id] = black
		order = append(order, id)
		return nil
	}

	for _, n := range b.tree.Nodes() {
		if color[n.ID] != white {
			continue
		}
		if cycle := visit(n.ID); cycle != nil {
			paths := make([]string, len(cycle))
			for i, id := range cycle {
				paths[i] = b.tree.Node(id).Path
			}
			return nil, schema.NewSchemaError(schema.ErrCodeDependencyCycle, "circular dependency detected", nil).
				WithPath(paths[0]).WithCycle(paths)
		}
	}
	return order, nil
}

// computeLevels assigns each node 1 + the highest level of what it reads.
func (b *DAGBuilder) computeLevels(order []schema.NodeID) ([]int, [][]schema.NodeID) {
	level := make([]int, b.tree.Len())
	var levels [][]schema.NodeID
	for _, id := range order {
		l := 0
		for _, dep := range b.adjacencyList[id] {
			if level[dep]+1 > l {
				l = level[dep] + 1
			}
		}
		level[id] = l
		for len(levels) <= l {
			levels = append(levels, nil)
		}
		levels[l] = append(levels[l], id)
	}
	return level, levels
}

// ToDOT renders the graph in DOT format for Graphviz. Edges point from the
// reader to what it reads.
func (o *EvaluationOrder) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Options {\n")
	sb.WriteString("  rankdir=BT;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range o.Levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")

		for _, id := range ids {
			n := o.Tree.Node(id)
			label := n.Path
			if n.Kind == schema.KindScalar {
				label = fmt.Sprintf("%s\\n%s", n.Path, n.TypeName)
			}
			sb.WriteString(fmt.Sprintf("    %q [label=\"%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
				n.Path, label, nodeColor(n)))
		}

		sb.WriteString("  }\n\n")
	}

	for _, e := range o.Edges {
		sb.WriteString(fmt.Sprintf("  %q -> %q [%s];\n",
			o.Tree.Node(e.From).Path, o.Tree.Node(e.To).Path, edgeStyle(e.Kind)))
	}

	sb.WriteString("}\n")
	return sb.String()
}

func nodeColor(n *schema.Node) string {
	if n.Kind == schema.KindMenu {
		return "lightgray"
	}
	switch n.Type {
	case schema.TypeBool:
		return "lightgreen"
	case schema.TypeEnum:
		return "lightblue"
	default:
		return "white"
	}
}

func edgeStyle(kind EdgeKind) string {
	switch kind {
	case EdgeDepends:
		return "style=dashed, color=blue"
	case EdgeValid:
		return "style=dotted, color=red"
	default:
		return "style=solid, color=gray"
	}
}
