package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/openfroyo/cfgtree/pkg/engine"
	"github.com/openfroyo/cfgtree/pkg/schema"
)

var (
	// ErrNotFound is returned when a configuration file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned by InitValues when the file is already present.
	ErrExists = errors.New("already exists")
)

// DefaultConfigFile is the user configuration file name.
const DefaultConfigFile = "config.toml"

// BackupSuffix is appended to the previous configuration when it is replaced.
const BackupSuffix = ".old"

// ValuesStore reads and writes a user configuration file.
type ValuesStore struct {
	Path     string
	registry *SchemaRegistry
}

// NewValuesStore returns a store for the configuration at path.
func NewValuesStore(path string, registry *SchemaRegistry) *ValuesStore {
	if registry == nil {
		registry = NewSchemaRegistry()
	}
	return &ValuesStore{Path: path, registry: registry}
}

// Load reads the raw values. A missing file yields ErrNotFound.
func (s *ValuesStore) Load(ctx context.Context) (engine.RawValues, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config %s: %w", s.Path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return s.Parse(ctx, data)
}

// LoadOrEmpty is Load with a missing file treated as an empty configuration.
func (s *ValuesStore) LoadOrEmpty(ctx context.Context) (engine.RawValues, error) {
	values, err := s.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return engine.RawValues{}, nil
	}
	return values, err
}

// Parse decodes a TOML configuration into a flat map keyed by full path.
// Both `[comp] a.b = 1` and `comp.a.b = 1` spellings are accepted.
func (s *ValuesStore) Parse(ctx context.Context, data []byte) (engine.RawValues, error) {
	var doc map[string]any
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", s.Path, err)
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	if err := s.registry.ValidateAgainstSchema(ctx, SchemaValues, doc); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", s.Path, err)
	}

	out := make(engine.RawValues)
	flatten("", doc, out)
	return out, nil
}

func flatten(prefix string, m map[string]any, out engine.RawValues) {
	for k, v := range m {
		path := schema.JoinPath(prefix, k)
		if sub, ok := v.(map[string]any); ok {
			flatten(path, sub, out)
			continue
		}
		out[path] = v
	}
}

// Save writes values nested under their component tables. The previous file,
// if any, is kept with BackupSuffix appended.
func (s *ValuesStore) Save(values engine.RawValues) error {
	var buf bytes.Buffer
	if err := EncodeValues(&buf, values); err != nil {
		return err
	}
	return s.write(buf.Bytes())
}

// Init creates an empty configuration. An existing file is only replaced when
// overwrite is set; otherwise ErrExists is returned.
func (s *ValuesStore) Init(overwrite bool) error {
	info, err := os.Stat(s.Path)
	switch {
	case err == nil && info.IsDir():
		return fmt.Errorf("config %s must be a file, not a directory", s.Path)
	case err == nil && !overwrite:
		return fmt.Errorf("config %s: %w", s.Path, ErrExists)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("failed to stat config: %w", err)
	}
	return s.write(nil)
}

// Exists reports whether the configuration file is present.
func (s *ValuesStore) Exists() bool {
	info, err := os.Stat(s.Path)
	return err == nil && !info.IsDir()
}

func (s *ValuesStore) write(data []byte) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cfgtree-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if s.Exists() {
		if err := os.Rename(s.Path, s.Path+BackupSuffix); err != nil {
			return fmt.Errorf("failed to back up config: %w", err)
		}
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// EncodeValues writes values as TOML, nested by path segment. Output is
// deterministic: tables and keys are sorted.
func EncodeValues(w io.Writer, values engine.RawValues) error {
	doc, err := Nest(values)
	if err != nil {
		return err
	}
	if len(doc) == 0 {
		return nil
	}
	return toml.NewEncoder(w).Encode(doc)
}

// Nest turns a flat path map into nested maps.
func Nest(values engine.RawValues) (map[string]any, error) {
	doc := make(map[string]any)
	for _, path := range values.SortedKeys() {
		segs := strings.Split(path, ".")
		m := doc
		for _, seg := range segs[:len(segs)-1] {
			next, exists := m[seg]
			if !exists {
				sub := make(map[string]any)
				m[seg] = sub
				m = sub
				continue
			}
			sub, ok := next.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("value path %s conflicts with an assigned value", path)
			}
			m = sub
		}
		leaf := segs[len(segs)-1]
		if _, exists := m[leaf]; exists {
			return nil, fmt.Errorf("value path %s conflicts with a table", path)
		}
		m[leaf] = values[path]
	}
	return doc, nil
}
