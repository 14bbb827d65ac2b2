package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openfroyo/cfgtree/pkg/schema"
)

// Definition file names recognised by discovery.
var DefinitionFiles = []string{"cfgtree.def.toml", "cfgtree.def.yaml", "cfgtree.def.yml"}

// DefaultHistoryFile is the resolution history database, relative to the
// project root.
const DefaultHistoryFile = ".cfgtree/history.db"

// ComponentSource is one discovered component definition.
type ComponentSource struct {
	Name string
	Path string
}

// Project is the result of discovery: every input a resolution needs.
type Project struct {
	Root            string
	Manifest        *Manifest
	ConfigPath      string
	HistoryPath     string
	DefaultFeatures []string
	Policies        []string
	Components      []ComponentSource
}

// Discover locates the components of the project at root. With a manifest
// the listed components are used; otherwise root is walked for definition
// files and each component is named after its directory. Discovery stops
// early when ctx is cancelled.
func Discover(ctx context.Context, root string) (*Project, error) {
	logger := zerolog.Ctx(ctx)

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	p := &Project{
		Root:        root,
		ConfigPath:  filepath.Join(root, DefaultConfigFile),
		HistoryPath: filepath.Join(root, DefaultHistoryFile),
	}

	m, err := LoadManifest(filepath.Join(root, ManifestFile))
	switch {
	case err == nil:
		p.applyManifest(m)
		logger.Debug().Str("root", root).Int("components", len(p.Components)).Msg("Loaded project manifest")
		return p, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isDefinitionFile(d.Name()) {
			return nil
		}
		name := filepath.Base(filepath.Dir(path))
		p.Components = append(p.Components, ComponentSource{Name: name, Path: path})
		logger.Debug().Str("component", name).Str("path", path).Msg("Found component definition")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	return p, nil
}

func isDefinitionFile(name string) bool {
	for _, f := range DefinitionFiles {
		if name == f {
			return true
		}
	}
	return false
}

func (p *Project) applyManifest(m *Manifest) {
	p.Manifest = m
	p.DefaultFeatures = m.DefaultFeatures
	if m.Config != "" {
		p.ConfigPath = p.abs(m.Config)
	}
	if m.History != "" {
		p.HistoryPath = p.abs(m.History)
	}
	for _, pol := range m.Policies {
		p.Policies = append(p.Policies, p.abs(pol))
	}
	for _, c := range m.Components {
		p.Components = append(p.Components, ComponentSource{Name: c.Name, Path: p.abs(c.Definition)})
	}
}

func (p *Project) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.Root, path)
}

// LoadComponents reads every component definition in discovery order.
func (p *Project) LoadComponents(ctx context.Context, loader *DefinitionLoader) ([]*schema.Component, error) {
	comps := make([]*schema.Component, 0, len(p.Components))
	for _, src := range p.Components {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		comp, err := loader.Load(ctx, src.Name, src.Path)
		if err != nil {
			return nil, err
		}
		comps = append(comps, comp)
	}
	return comps, nil
}

// Sources returns every file a resolution of this project reads.
func (p *Project) Sources() []string {
	var out []string
	if p.Manifest != nil {
		out = append(out, filepath.Join(p.Root, ManifestFile))
	}
	for _, c := range p.Components {
		out = append(out, c.Path)
	}
	out = append(out, p.ConfigPath)
	out = append(out, p.Policies...)
	return out
}
