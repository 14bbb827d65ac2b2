package engine

import (
	"strings"
)

// CfgFlag is one build flag derived from a resolved option.
type CfgFlag struct {
	Name  string
	Value string
}

// FlagName turns an option path into an identifier: dots and dashes become
// underscores.
func FlagName(path string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(path)
}

// CfgFlags derives build flags from cfg in declaration order. Every valued
// option yields has_<name>; options whose value is neither 0 nor false also
// yield <name>. The same config always yields the same flags.
func CfgFlags(cfg *ResolvedConfig) []CfgFlag {
	var out []CfgFlag
	for _, e := range cfg.Entries() {
		if !e.HasValue {
			continue
		}
		name := FlagName(e.Path)
		text := e.Value.Text()
		out = append(out, CfgFlag{Name: "has_" + name, Value: text})
		if text != "0" && text != "false" {
			out = append(out, CfgFlag{Name: name, Value: text})
		}
	}
	return out
}

// EnvBindings renders cfg as CONFIG_<NAME>=<value> pairs in declaration order.
func EnvBindings(cfg *ResolvedConfig) []string {
	var out []string
	for _, e := range cfg.Entries() {
		if !e.HasValue {
			continue
		}
		out = append(out, "CONFIG_"+FlagName(e.Path)+"="+e.Value.Text())
	}
	return out
}
