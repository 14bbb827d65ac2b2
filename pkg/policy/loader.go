package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Policy file extensions.
const (
	extRego = ".rego"
	extJSON = ".json"
)

// Loader reads policy files. A .rego file is one policy named after the file;
// its leading comment block is the description, except for directive lines:
//
//	# severity: warning
//	# tags: memory, boards
//	# disabled
//
// A .json file holds one Policy document.
type Loader struct {
	logger zerolog.Logger
}

// NewLoader returns a loader that logs through logger.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{logger: logger.With().Str("component", "policy-loader").Logger()}
}

// Load reads every policy below paths. Directories are walked in lexical
// order; files with other extensions are ignored. Any file that cannot be
// read or parsed fails the whole load.
func (l *Loader) Load(ctx context.Context, paths []string) ([]Policy, error) {
	var out []Policy
	for _, root := range paths {
		files, err := policyFiles(root)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			p, err := l.LoadFile(file)
			if err != nil {
				return nil, err
			}
			out = append(out, *p)
		}
	}
	l.logger.Debug().Int("policies", len(out)).Int("sources", len(paths)).Msg("Policies read")
	return out, nil
}

// policyFiles expands root into the policy files it names.
func policyFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("policy source: %w", err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isPolicyFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

func isPolicyFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == extRego || ext == extJSON
}

// LoadFile reads a single policy file.
func (l *Loader) LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var p *Policy
	switch filepath.Ext(path) {
	case extRego:
		p, err = parseRego(name, data)
	case extJSON:
		p, err = parseJSON(name, data)
	default:
		err = fmt.Errorf("unsupported policy file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	p.Source = path

	l.logger.Debug().Str("path", path).Str("policy", p.Name).Str("severity", string(p.Severity)).Msg("Policy read")
	return p, nil
}

func parseRego(name string, data []byte) (*Policy, error) {
	p := &Policy{
		Name:     name,
		Rego:     string(data),
		Severity: SeverityError,
		Enabled:  true,
	}

	var desc []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(desc) > 0 {
				break
			}
			continue
		}
		if !strings.HasPrefix(line, "#") {
			break
		}
		comment := strings.TrimSpace(strings.TrimPrefix(line, "#"))
		key, value, _ := strings.Cut(comment, ":")
		switch strings.TrimSpace(key) {
		case "severity":
			sev, err := ParseSeverity(strings.TrimSpace(value))
			if err != nil {
				return nil, err
			}
			p.Severity = sev
		case "tags":
			for _, tag := range strings.Split(value, ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					p.Tags = append(p.Tags, tag)
				}
			}
		case "disabled":
			p.Enabled = false
		default:
			if comment != "" {
				desc = append(desc, comment)
			}
		}
	}
	p.Description = strings.Join(desc, " ")
	return p, nil
}

func parseJSON(name string, data []byte) (*Policy, error) {
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	if p.Name == "" {
		p.Name = name
	}
	if strings.TrimSpace(p.Rego) == "" {
		return nil, fmt.Errorf("no rego module")
	}
	if p.Severity == "" {
		p.Severity = SeverityError
	}
	if _, err := ParseSeverity(string(p.Severity)); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseSeverity checks a severity name.
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(s); sev {
	case SeverityInfo, SeverityWarning, SeverityError:
		return sev, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}
