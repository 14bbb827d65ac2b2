package commands

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/cfgtree/pkg/engine"
)

// Output formats accepted by show.
const (
	formatTOML  = "toml"
	formatYAML  = "yaml"
	formatJSON  = "json"
	formatFlags = "flags"
	formatEnv   = "env"
)

func newShowCommand(opts *globalOptions) *cobra.Command {
	var (
		format  string
		lenient bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Long: `Resolve the configuration and print every active option that has a value.

Formats:
  toml   nested tables, as config.toml is written (default)
  yaml   the same document as YAML
  json   an ordered list of path, type and value
  flags  build flags: has_<name> for every value, <name> when it is set
  env    CONFIG_<NAME>=<value> lines

Output is deterministic. Resolution problems fail the command unless
--lenient is given, in which case rejected values fall back to their
defaults.`,
		Example: `  # Export the configuration to the environment
  eval "$(cfgtree show --format env | sed 's/^/export /')"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mode := engine.ModeStrict
			if lenient {
				mode = engine.ModeLenient
			}

			ws, err := opts.loadWorkspace(ctx)
			if err != nil {
				return err
			}
			raw, err := ws.values.LoadOrEmpty(ctx)
			if err != nil {
				return err
			}

			res, _ := opts.resolve(ctx, ws, raw, mode)
			if res.Failed() {
				printDiagnostics(cmd.ErrOrStderr(), res.Diagnostics)
				return res.Err()
			}
			return renderConfig(cmd.OutOrStdout(), res.Config, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTOML, "output format (toml, yaml, json, flags, env)")
	cmd.Flags().BoolVar(&lenient, "lenient", false, "fall back to defaults instead of failing on problems")

	return cmd
}

// renderConfig writes cfg to w in the named format.
func renderConfig(w io.Writer, cfg *engine.ResolvedConfig, format string) error {
	switch format {
	case formatTOML:
		doc := cfg.Nested()
		if len(doc) == 0 {
			return nil
		}
		return toml.NewEncoder(w).Encode(doc)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg.Nested()); err != nil {
			return err
		}
		return enc.Close()
	case formatJSON:
		return writeJSON(w, cfg)
	case formatFlags:
		for _, f := range engine.CfgFlags(cfg) {
			fmt.Fprintf(w, "%s=%s\n", f.Name, f.Value)
		}
		return nil
	case formatEnv:
		for _, line := range engine.EnvBindings(cfg) {
			fmt.Fprintln(w, line)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
