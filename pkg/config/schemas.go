package config

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// Built-in schema names.
const (
	SchemaDefinition = "definition"
	SchemaValues     = "values"
)

// SchemaRegistry manages the CUE schemas documents are checked against.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema(SchemaDefinition, builtinDefinitionSchema, "#Definition"); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema(SchemaValues, builtinValuesSchema, "#Values"); err != nil {
		panic(err)
	}

	return sr
}

// RegisterSchema compiles a CUE schema and registers the value at root (a
// definition selector such as "#Definition") under name. An empty root
// registers the whole file.
func (sr *SchemaRegistry) RegisterSchema(name, source, root string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	if root != "" {
		val = val.LookupPath(cue.ParsePath(root))
		if !val.Exists() {
			return fmt.Errorf("schema %s has no %s", name, root)
		}
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema checks plain data (maps, slices and scalars) against
// a named schema. Violations are returned as a *ValidationErrors.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err)
	}
	return nil
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidationError is one schema violation.
type ValidationError struct {
	Path    string
	Message string
}

// ValidationErrors collects the violations of one document.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, v := range e {
		if v.Path != "" {
			parts[i] = v.Path + ": " + v.Message
		} else {
			parts[i] = v.Message
		}
	}
	return strings.Join(parts, "; ")
}

func convertCUEErrors(err error) ValidationErrors {
	var out ValidationErrors
	for _, e := range cueerrors.Errors(err) {
		path := e.Path()
		for len(path) > 0 && strings.HasPrefix(path[0], "#") {
			path = path[1:]
		}
		out = append(out, ValidationError{
			Path:    strings.Join(path, "."),
			Message: cueerrors.Details(e, nil),
		})
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Message: err.Error()})
	}
	return out
}

// Built-in schema definitions

const builtinDefinitionSchema = `
// A definition document maps option names to option tables.
#Definition: {[string]: #Option}

#Option: {
	// Short text shown in the editor
	description?: string

	// Value type; omitted for menus
	type?: string

	default?: #Scalar

	// Enum literals
	values?: [...#EnumValue]

	// Predicates
	depends?: string
	valid?:   string

	// Children of a menu
	options?: {[string]: #Option}
}

#EnumValue: {
	value:        string | int
	description?: string
}

#Scalar: string | bool | number
`

const builtinValuesSchema = `
// A user configuration maps component identities to assignments.
#Values: {[string]: {...}}
`
