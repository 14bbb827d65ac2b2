package policy

import (
	"time"

	"github.com/openfroyo/cfgtree/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the configuration.
	SeverityError Severity = "error"
)

// Blocking reports whether a violation of this severity rejects the configuration.
func (s Severity) Blocking() bool { return s == SeverityError }

// Policy is a named Rego module whose deny rule is checked against every
// resolved configuration.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	Description string `json:"description"`

	// Rego contains the policy code. Its package must define a deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	Enabled bool     `json:"enabled"`
	Tags    []string `json:"tags,omitempty"`

	// Source is the file the policy was read from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is one deny result.
type Violation struct {
	Policy   string   `json:"policy"`
	Path     string   `json:"path,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of checking a configuration against all enabled policies.
type Result struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	EvaluatedPolicies []string      `json:"evaluated_policies"`
	Duration          time.Duration `json:"duration"`
}

// Input is the document policies see as `input`.
type Input struct {
	// Values maps full option paths to their resolved values.
	Values map[string]any `json:"values"`

	// Config holds the same values nested by component and path segment.
	Config map[string]any `json:"config"`

	// Options describes every active option, valued or not, in declaration order.
	Options []OptionInput `json:"options"`

	Features []string `json:"features"`
	Mode     string   `json:"mode"`

	Diagnostics []engine.Diagnostic `json:"diagnostics"`
}

// OptionInput describes one active option.
type OptionInput struct {
	Path      string `json:"path"`
	Component string `json:"component"`
	Type      string `json:"type"`
	Value     any    `json:"value"`
	Defaulted bool   `json:"defaulted"`
}

// NewInput builds the policy input for a resolution.
func NewInput(res *engine.Resolution, features engine.FeatureSet) *Input {
	in := &Input{
		Values:      res.Config.Values(),
		Config:      res.Config.Nested(),
		Features:    features.Names(),
		Mode:        res.Mode.String(),
		Diagnostics: res.Diagnostics,
		Options:     make([]OptionInput, 0, res.Config.Len()),
	}
	if in.Diagnostics == nil {
		in.Diagnostics = []engine.Diagnostic{}
	}
	for _, e := range res.Config.Entries() {
		in.Options = append(in.Options, OptionInput{
			Path:      e.Path,
			Component: e.Node.Component,
			Type:      e.Node.TypeName,
			Value:     e.Value.Interface(),
			Defaulted: e.Defaulted,
		})
	}
	return in
}
