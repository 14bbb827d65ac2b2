package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/openfroyo/cfgtree/pkg/engine"
	"github.com/openfroyo/cfgtree/pkg/policy"
)

// checkReport is the --json form of a check.
type checkReport struct {
	Mode        string                 `json:"mode"`
	Features    []string               `json:"features"`
	Failed      bool                   `json:"failed"`
	Options     int                    `json:"options"`
	Diagnostics []engine.Diagnostic    `json:"diagnostics"`
	Policy      *policy.Result         `json:"policy,omitempty"`
	Config      *engine.ResolvedConfig `json:"config"`
	Fixed       []string               `json:"fixed,omitempty"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printDiagnostics writes one line per diagnostic.
func printDiagnostics(w io.Writer, diags []engine.Diagnostic) {
	for _, d := range diags {
		fmt.Fprintf(w, "%-7s %s: %s: %s\n", d.Severity, d.Path, d.Kind, d.Message)
	}
}

// printPolicy writes policy violations and evaluation warnings.
func printPolicy(w io.Writer, result *policy.Result) {
	if result == nil {
		return
	}
	for _, v := range result.Violations {
		path := v.Path
		if path == "" {
			path = "-"
		}
		fmt.Fprintf(w, "%-7s %s: policy %s: %s\n", v.Severity, path, v.Policy, v.Message)
	}
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "warning policy evaluation: %s\n", warn)
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
