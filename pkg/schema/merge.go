package schema

import (
	"fmt"

	"github.com/openfroyo/cfgtree/pkg/expr"
)

// Merge mounts every component under a root menu named after its identity
// and checks the result. Any defect is returned as a *SchemaError.
func Merge(components []*Component) (*Tree, error) {
	b := &treeBuilder{
		tree: &Tree{index: make(map[string]NodeID)},
	}

	for _, comp := range components {
		if err := checkSegment(comp.Name); err != nil {
			return nil, NewSchemaError(ErrCodeInvalidDefinition, "invalid component name", err).
				WithPath(comp.Name)
		}
		if _, exists := b.tree.index[comp.Name]; exists {
			return nil, NewSchemaError(ErrCodeDuplicateName,
				fmt.Sprintf("component %s is defined more than once", comp.Name), nil).
				WithPath(comp.Name)
		}

		root := b.add(&Node{
			Parent:      NoNode,
			Component:   comp.Name,
			Path:        comp.Name,
			Name:        comp.Name,
			Description: comp.Description,
			Kind:        KindMenu,
		})
		b.tree.roots = append(b.tree.roots, root.ID)

		for _, def := range comp.Options {
			if err := b.addDefinition(root, def); err != nil {
				return nil, err
			}
		}
	}

	return b.tree, nil
}

type treeBuilder struct {
	tree *Tree
}

func (b *treeBuilder) add(n *Node) *Node {
	n.ID = NodeID(len(b.tree.nodes))
	b.tree.nodes = append(b.tree.nodes, n)
	b.tree.index[n.Path] = n.ID
	if n.Parent != NoNode {
		parent := b.tree.nodes[n.Parent]
		parent.Children = append(parent.Children, n.ID)
		n.Depth = parent.Depth + 1
	}
	return n
}

func (b *treeBuilder) addDefinition(parent *Node, def *Definition) error {
	path := JoinPath(parent.Path, def.Name)
	if err := checkSegment(def.Name); err != nil {
		return NewSchemaError(ErrCodeInvalidDefinition, "invalid option name", err).WithPath(path)
	}
	if _, exists := b.tree.index[path]; exists {
		return NewSchemaError(ErrCodeDuplicateName, fmt.Sprintf("duplicate option name %q", def.Name), nil).
			WithPath(path)
	}

	n := &Node{
		Parent:      parent.ID,
		Component:   parent.Component,
		Path:        path,
		Name:        def.Name,
		Description: def.Description,
		Kind:        KindMenu,
	}

	if def.Type == "" {
		switch {
		case def.Default != nil:
			return invalidDefinition(path, "menu cannot have a default")
		case len(def.Values) > 0:
			return invalidDefinition(path, "menu cannot declare values")
		case def.Valid != "":
			return NewSchemaError(ErrCodeInvalidDefinition, "valid is only allowed on typed options", nil).
				WithPath(path).WithText(def.Valid)
		}
	} else if err := b.scalar(n, def); err != nil {
		return err
	}

	var err error
	if n.Depends, err = parseClause(path, def.Depends); err != nil {
		return err
	}
	if n.Depends != nil && n.Depends.UsesValue() {
		return NewSchemaError(ErrCodeInvalidExpression, "value is only available in a valid clause", nil).
			WithPath(path).WithText(def.Depends)
	}
	if n.Valid, err = parseClause(path, def.Valid); err != nil {
		return err
	}

	b.add(n)
	for _, child := range def.Options {
		if err := b.addDefinition(n, child); err != nil {
			return err
		}
	}
	return nil
}

func (b *treeBuilder) scalar(n *Node, def *Definition) error {
	typ, lo, hi, ok := ParseType(def.Type)
	if !ok {
		return NewSchemaError(ErrCodeInvalidDefinition, "unknown type", nil).
			WithPath(n.Path).WithText(def.Type)
	}
	if len(def.Options) > 0 {
		return invalidDefinition(n.Path, "option of type %s cannot have nested options", def.Type)
	}

	n.Kind = KindScalar
	n.Type = typ
	n.TypeName = def.Type
	n.Min, n.Max = lo, hi

	if typ == TypeEnum {
		if len(def.Values) == 0 {
			return invalidDefinition(n.Path, "enum must declare at least one value")
		}
		seen := make(map[string]bool, len(def.Values))
		for _, v := range def.Values {
			if seen[v.Literal] {
				return NewSchemaError(ErrCodeDuplicateName,
					fmt.Sprintf("duplicate enum value %q", v.Literal), nil).WithPath(n.Path)
			}
			seen[v.Literal] = true
		}
		n.Values = append([]EnumValue(nil), def.Values...)
	} else if len(def.Values) > 0 {
		return invalidDefinition(n.Path, "values are only allowed on enum options")
	}

	if def.Default != nil {
		v, err := n.Coerce(def.Default)
		if err != nil {
			return NewSchemaError(ErrCodeInvalidDefault, "default does not match the declared type", err).
				WithPath(n.Path).WithText(fmt.Sprint(def.Default))
		}
		n.Default = v
		n.HasDefault = true
	}
	return nil
}

func parseClause(path, text string) (*expr.Expression, error) {
	if text == "" {
		return nil, nil
	}
	e, err := expr.Parse(text)
	if err != nil {
		return nil, NewSchemaError(ErrCodeInvalidExpression, "malformed expression", err).
			WithPath(path).WithText(text)
	}
	return e, nil
}
