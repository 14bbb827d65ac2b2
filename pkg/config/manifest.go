package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// ManifestFile is the optional project manifest.
const ManifestFile = "cfgtree.toml"

var identityPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Manifest lists the components of a project and where its configuration
// lives. Relative paths are relative to the manifest's directory.
type Manifest struct {
	// Config is the user configuration file. Defaults to DefaultConfigFile.
	Config string `toml:"config"`

	// DefaultFeatures are enabled unless --no-default-features is given.
	DefaultFeatures []string `toml:"default_features" validate:"dive,identity"`

	// Policies are rego files or directories checked after resolution.
	Policies []string `toml:"policies" validate:"dive,required"`

	// History is the resolution history database.
	History string `toml:"history"`

	Components []ComponentRef `toml:"component" validate:"unique=Name,dive"`
}

// ComponentRef names one component and its definition document.
type ComponentRef struct {
	Name       string `toml:"name" validate:"required,identity"`
	Definition string `toml:"definition" validate:"required"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("identity", func(fl validator.FieldLevel) bool {
		return identityPattern.MatchString(fl.Field().String())
	})
	return v
}

// LoadManifest reads and validates a manifest.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	md, err := toml.DecodeFile(path, &m)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("manifest %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("manifest %s: unknown key %s", path, undecoded[0])
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks the manifest's field constraints.
func (m *Manifest) Validate() error {
	if err := newValidator().Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: failed %q constraint", fe.Namespace(), fe.Tag())
		}
		return err
	}
	return nil
}
