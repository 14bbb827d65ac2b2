package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/cfgtree/pkg/schema"
)

// Format is the syntax of a definition document.
type Format int

const (
	FormatTOML Format = iota
	FormatYAML
)

func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "toml"
}

// FormatOf picks the document format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return 0, fmt.Errorf("unsupported definition format: %s", path)
	}
}

// DefinitionLoader reads component definition documents, checks them against
// the built-in CUE schema and decodes them into schema components.
type DefinitionLoader struct {
	registry *SchemaRegistry
}

// NewDefinitionLoader creates a loader using registry, or a fresh registry
// when nil.
func NewDefinitionLoader(registry *SchemaRegistry) *DefinitionLoader {
	if registry == nil {
		registry = NewSchemaRegistry()
	}
	return &DefinitionLoader{registry: registry}
}

// Load reads the definition of component name from path.
func (l *DefinitionLoader) Load(ctx context.Context, name, path string) (*schema.Component, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, schema.NewSchemaError(schema.ErrCodeInvalidDefinition, "cannot load definition", err).WithPath(name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition %s: %w", path, err)
	}
	return l.Parse(ctx, name, path, format, data)
}

// Parse decodes a definition document. Every defect is reported as a
// *schema.SchemaError naming the component.
func (l *DefinitionLoader) Parse(ctx context.Context, name, source string, format Format, data []byte) (*schema.Component, error) {
	var (
		doc *schema.Table
		err error
	)
	switch format {
	case FormatYAML:
		doc, err = ParseYAML(data)
	default:
		doc, err = ParseTOML(data)
	}
	if err != nil {
		return nil, schema.NewSchemaError(schema.ErrCodeInvalidDefinition, "malformed "+format.String()+" document", err).WithPath(name)
	}

	if err := l.registry.ValidateAgainstSchema(ctx, SchemaDefinition, Plain(doc)); err != nil {
		var verrs ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			path := name
			if verrs[0].Path != "" {
				path = name + "." + verrs[0].Path
			}
			return nil, schema.NewSchemaError(schema.ErrCodeInvalidDefinition, verrs.Error(), nil).WithPath(path)
		}
		return nil, err
	}

	comp, err := schema.Decode(name, doc)
	if err != nil {
		return nil, err
	}
	comp.Source = source
	return comp, nil
}

// Plain converts a table tree into maps and slices.
func Plain(v any) any {
	switch x := v.(type) {
	case *schema.Table:
		out := make(map[string]any, len(x.Keys))
		for _, k := range x.Keys {
			out[k] = Plain(x.Fields[k])
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Plain(item)
		}
		return out
	default:
		return v
	}
}

// ParseTOML parses a TOML document into an ordered table. Keys keep their
// document order.
func ParseTOML(data []byte) (*schema.Table, error) {
	var raw map[string]any
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, err
	}

	root := schema.NewTable()
	for _, key := range md.Keys() {
		if err := placeTOMLKey(root, raw, key); err != nil {
			return nil, err
		}
	}
	if err := fillTOMLTable(root, raw); err != nil {
		return nil, err
	}
	return root, nil
}

// placeTOMLKey creates the tables along key and stores its leaf value.
func placeTOMLKey(t *schema.Table, m map[string]any, key toml.Key) error {
	for _, seg := range key {
		v, ok := m[seg]
		if !ok {
			return nil
		}
		sub, isMap := v.(map[string]any)
		if !isMap {
			if _, exists := t.Get(seg); !exists {
				conv, err := convertTOML(v)
				if err != nil {
					return fmt.Errorf("%s: %w", key, err)
				}
				t.Set(seg, conv)
			}
			return nil
		}

		next, exists := t.Get(seg)
		nt, _ := next.(*schema.Table)
		if !exists {
			nt = schema.NewTable()
			t.Set(seg, nt)
		} else if nt == nil {
			return nil
		}
		t, m = nt, sub
	}
	return nil
}

// fillTOMLTable adds fields the key list did not mention, in sorted order.
func fillTOMLTable(t *schema.Table, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		existing, exists := t.Get(k)
		if !exists {
			conv, err := convertTOML(m[k])
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			t.Set(k, conv)
			continue
		}
		sub, isMap := m[k].(map[string]any)
		nt, isTable := existing.(*schema.Table)
		if isMap && isTable {
			if err := fillTOMLTable(nt, sub); err != nil {
				return fmt.Errorf("%s.%w", k, err)
			}
		}
	}
	return nil
}

func convertTOML(v any) (any, error) {
	switch x := v.(type) {
	case string, bool, int64, float64:
		return x, nil
	case map[string]any:
		t := schema.NewTable()
		if err := fillTOMLTable(t, x); err != nil {
			return nil, err
		}
		return t, nil
	case []map[string]any:
		out := make([]any, len(x))
		for i, item := range x {
			conv, err := convertTOML(item)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			conv, err := convertTOML(item)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

// ParseYAML parses a YAML document into an ordered table. An empty document
// yields an empty table.
func ParseYAML(data []byte) (*schema.Table, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return schema.NewTable(), nil
	}

	node := &doc
	if doc.Kind == yaml.DocumentNode {
		node = doc.Content[0]
	}
	v, err := convertYAML(node)
	if err != nil {
		return nil, err
	}
	t, ok := v.(*schema.Table)
	if !ok {
		return nil, fmt.Errorf("line %d: top level must be a mapping", node.Line)
	}
	return t, nil
}

func convertYAML(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.MappingNode:
		t := schema.NewTable()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if _, dup := t.Get(k.Value); dup {
				return nil, fmt.Errorf("line %d: key %q already defined", k.Line, k.Value)
			}
			v, err := convertYAML(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			t.Set(k.Value, v)
		}
		return t, nil

	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := convertYAML(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case yaml.AliasNode:
		return convertYAML(n.Alias)

	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		switch x := v.(type) {
		case nil:
			return nil, fmt.Errorf("line %d: null is not a valid value", n.Line)
		case int:
			return int64(x), nil
		case int64:
			return x, nil
		case uint64:
			if x > math.MaxInt64 {
				return nil, fmt.Errorf("line %d: integer %d out of range", n.Line, x)
			}
			return int64(x), nil
		case string, bool, float64:
			return x, nil
		default:
			return nil, fmt.Errorf("line %d: unsupported value %v", n.Line, v)
		}

	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
}
