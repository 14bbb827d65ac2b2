package schema

import (
	"fmt"
	"strconv"
)

// Definition is one option as declared by a component, before merging.
// A definition without a Type is a menu.
type Definition struct {
	Name        string
	Description string
	Type        string
	Default     any
	Values      []EnumValue
	Depends     string
	Valid       string
	Options     []*Definition
}

// Component is the option forest declared by one component.
type Component struct {
	// Name is the component identity. Its options are mounted under it.
	Name        string
	Description string
	// Source is where the definition was read from, for messages only.
	Source  string
	Options []*Definition
}

// Table is an ordered document table: the generic tree a document parser
// produces. Values are string, bool, int64, float64, []any or *Table.
type Table struct {
	Keys   []string
	Fields map[string]any
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{Fields: make(map[string]any)}
}

// Set stores a field, appending the key on first use.
func (t *Table) Set(key string, v any) {
	if _, exists := t.Fields[key]; !exists {
		t.Keys = append(t.Keys, key)
	}
	t.Fields[key] = v
}

// Get returns a field.
func (t *Table) Get(key string) (any, bool) {
	v, ok := t.Fields[key]
	return v, ok
}

// Definition document keys.
const (
	KeyDescription = "description"
	KeyType        = "type"
	KeyDefault     = "default"
	KeyValues      = "values"
	KeyDepends     = "depends"
	KeyValid       = "valid"
	KeyOptions     = "options"
	KeyValue       = "value"
)

// Decode builds a component from a definition document whose top-level keys
// are option names.
func Decode(name string, doc *Table) (*Component, error) {
	comp := &Component{Name: name}
	opts, err := decodeOptions(name, doc)
	if err != nil {
		return nil, err
	}
	comp.Options = opts
	return comp, nil
}

func decodeOptions(prefix string, t *Table) ([]*Definition, error) {
	var out []*Definition
	for _, key := range t.Keys {
		path := JoinPath(prefix, key)
		sub, ok := t.Fields[key].(*Table)
		if !ok {
			return nil, invalidDefinition(path, "option must be a table, got %s", describe(t.Fields[key]))
		}
		def, err := decodeDefinition(path, key, sub)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func decodeDefinition(path, name string, t *Table) (*Definition, error) {
	def := &Definition{Name: name}
	for _, key := range t.Keys {
		val := t.Fields[key]
		var err error
		switch key {
		case KeyDescription:
			def.Description, err = stringField(path, key, val)
		case KeyType:
			def.Type, err = stringField(path, key, val)
		case KeyDepends:
			def.Depends, err = stringField(path, key, val)
		case KeyValid:
			def.Valid, err = stringField(path, key, val)
		case KeyDefault:
			switch val.(type) {
			case string, bool, int64, float64:
				def.Default = val
			default:
				err = invalidDefinition(path, "default must be a scalar, got %s", describe(val))
			}
		case KeyValues:
			def.Values, err = decodeValues(path, val)
		case KeyOptions:
			sub, ok := val.(*Table)
			if !ok {
				return nil, invalidDefinition(path, "options must be a table")
			}
			def.Options, err = decodeOptions(path, sub)
		default:
			err = invalidDefinition(path, "unknown key %q", key)
		}
		if err != nil {
			return nil, err
		}
	}
	return def, nil
}

func decodeValues(path string, val any) ([]EnumValue, error) {
	items, ok := val.([]any)
	if !ok {
		return nil, invalidDefinition(path, "values must be an array, got %s", describe(val))
	}
	out := make([]EnumValue, 0, len(items))
	for i, item := range items {
		t, ok := item.(*Table)
		if !ok {
			return nil, invalidDefinition(path, "values[%d] must be a table", i)
		}
		var ev EnumValue
		for _, key := range t.Keys {
			switch key {
			case KeyValue:
				switch v := t.Fields[key].(type) {
				case string:
					ev.Literal = v
				case int64:
					ev.Literal = strconv.FormatInt(v, 10)
				default:
					return nil, invalidDefinition(path, "values[%d].value must be a string", i)
				}
			case KeyDescription:
				s, err := stringField(path, fmt.Sprintf("values[%d].description", i), t.Fields[key])
				if err != nil {
					return nil, err
				}
				ev.Label = s
			default:
				return nil, invalidDefinition(path, "values[%d]: unknown key %q", i, key)
			}
		}
		if ev.Literal == "" {
			return nil, invalidDefinition(path, "values[%d] has no value", i)
		}
		out = append(out, ev)
	}
	return out, nil
}

func stringField(path, key string, val any) (string, error) {
	s, ok := val.(string)
	if !ok {
		return "", invalidDefinition(path, "%s must be a string, got %s", key, describe(val))
	}
	return s, nil
}

func invalidDefinition(path, format string, args ...any) *SchemaError {
	return NewSchemaError(ErrCodeInvalidDefinition, fmt.Sprintf(format, args...), nil).WithPath(path)
}
