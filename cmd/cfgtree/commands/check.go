package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"

	"github.com/spf13/cobra"

	"github.com/openfroyo/cfgtree/pkg/config"
	"github.com/openfroyo/cfgtree/pkg/engine"
	"github.com/openfroyo/cfgtree/pkg/policy"
	"github.com/openfroyo/cfgtree/pkg/stores"
	"github.com/openfroyo/cfgtree/pkg/telemetry"
)

// ErrPolicyDenied is returned when a blocking policy violation is found.
var ErrPolicyDenied = errors.New("configuration denied by policy")

type checkOptions struct {
	*globalOptions

	fix         bool
	force       bool
	watch       bool
	noPolicy    bool
	metricsAddr string
}

func newCheckCommand(opts *globalOptions) *cobra.Command {
	c := &checkOptions{globalOptions: opts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Resolve the configuration and report problems",
		Long: `Resolve the user configuration against every component definition and
report each problem found.

In the default strict mode every problem is an error and the command exits
non-zero. With --fix problems are warnings: rejected values fall back to their
defaults and the configuration file is rewritten without the keys that no
longer apply. --force skips the confirmation before keys are removed and drops
orphan keys silently.

Definition errors (malformed clauses, duplicate names, dangling references,
dependency cycles) always fail with exit status 2.`,
		Example: `  # Check the project in the current directory
  cfgtree check

  # Check with extra features and without the defaults
  cfgtree check --features esp32s3,psram --no-default-features

  # Drop invalid keys from config.toml without asking
  cfgtree check --fix --force

  # Re-check on every change and expose metrics
  cfgtree check --watch --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.watch {
				return c.runWatch(cmd.Context(), cmd.OutOrStdout())
			}
			return c.run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&c.fix, "fix", false, "downgrade problems to warnings and rewrite the config without invalid keys")
	cmd.Flags().BoolVar(&c.force, "force", false, "do not ask before removing keys; drop orphan keys silently")
	cmd.Flags().BoolVarP(&c.watch, "watch", "w", false, "re-check whenever a definition, policy or the config changes")
	cmd.Flags().BoolVar(&c.noPolicy, "no-policy", false, "skip policy evaluation")
	cmd.Flags().StringVar(&c.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while watching")
	cmd.MarkFlagsMutuallyExclusive("watch", "fix")

	return cmd
}

func (c *checkOptions) mode() engine.Mode {
	return engine.ModeFor(c.fix, c.force)
}

// run performs one check. The returned error carries the cause so the exit
// status can be derived from it.
func (c *checkOptions) run(ctx context.Context, in io.Reader, out io.Writer) error {
	mode := c.mode()

	ws, err := c.loadWorkspace(ctx)
	if err != nil {
		var project *config.Project
		if ws != nil {
			project = ws.project
		}
		c.recordSchemaError(ctx, "check", project, mode, err)
		return err
	}

	if c.fix && !ws.values.Exists() {
		return fmt.Errorf("no configuration at %s; use `cfgtree init` to create one", ws.values.Path)
	}
	raw, err := ws.values.LoadOrEmpty(ctx)
	if err != nil {
		return err
	}

	res, took := c.resolve(ctx, ws, raw, mode)

	var verdict *policy.Result
	if !c.noPolicy {
		verdict, err = c.evaluatePolicies(ctx, ws, res)
		if err != nil {
			return err
		}
	}

	c.record(ctx, ws.project, stores.NewRecord("check", res, ws.features, took))

	var fixed []string
	if c.fix {
		fixed, err = c.rewrite(ctx, in, out, ws, raw, res)
		if err != nil {
			return err
		}
	}

	if err := c.report(out, ws, res, verdict, fixed); err != nil {
		return err
	}

	if err := res.Err(); err != nil {
		return err
	}
	if verdict != nil && !verdict.Allowed {
		return ErrPolicyDenied
	}
	return nil
}

func (c *checkOptions) evaluatePolicies(ctx context.Context, ws *workspace, res *engine.Resolution) (*policy.Result, error) {
	op := telemetry.StartOperation(ctx, telemetry.StagePolicy)

	pe, err := policy.NewEngine(op.Logger)
	if err == nil && len(ws.project.Policies) > 0 {
		err = pe.LoadPolicies(op.Ctx, ws.project.Policies)
	}
	if err != nil {
		op.End(err)
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}

	verdict, err := pe.Evaluate(op.Ctx, res, ws.features)
	op.End(err)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policies: %w", err)
	}
	if c.tel != nil {
		c.tel.Metrics.RecordPolicyResult(verdict)
	}
	return verdict, nil
}

// rewrite saves the values that survived a lenient pass. It returns the
// removed keys, sorted.
func (c *checkOptions) rewrite(ctx context.Context, in io.Reader, out io.Writer, ws *workspace, raw engine.RawValues, res *engine.Resolution) ([]string, error) {
	values := res.FixedValues()
	if reflect.DeepEqual(values, raw) {
		return nil, nil
	}

	var removed []string
	for path := range raw {
		if _, ok := values[path]; !ok {
			removed = append(removed, path)
		}
	}
	sort.Strings(removed)

	if len(removed) > 0 && !c.force {
		fmt.Fprintf(out, "The following keys will be removed from %s:\n", ws.values.Path)
		for _, p := range removed {
			fmt.Fprintf(out, "  %s\n", p)
		}
		ok, err := confirm(in, out, "Remove them?")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("aborted: %s left unchanged", ws.values.Path)
		}
	}

	op := telemetry.StartOperation(ctx, telemetry.StageSave)
	err := ws.values.Save(values)
	op.End(err)
	if err != nil {
		return nil, err
	}
	op.Logger.Info().
		Str("config", ws.values.Path).
		Int("removed", len(removed)).
		Msg("configuration rewritten")
	return removed, nil
}

func (c *checkOptions) report(out io.Writer, ws *workspace, res *engine.Resolution, verdict *policy.Result, fixed []string) error {
	if c.jsonOutput {
		return writeJSON(out, checkReport{
			Mode:        res.Mode.String(),
			Features:    ws.features.Names(),
			Failed:      res.Failed(),
			Options:     res.Config.Len(),
			Diagnostics: res.Diagnostics,
			Policy:      verdict,
			Config:      res.Config,
			Fixed:       fixed,
		})
	}

	printDiagnostics(out, res.Diagnostics)
	printPolicy(out, verdict)
	for _, p := range fixed {
		fmt.Fprintf(out, "removed %s\n", p)
	}

	status := "ok"
	if res.Failed() || (verdict != nil && !verdict.Allowed) {
		status = "FAILED"
	}
	fmt.Fprintf(out, "%s: %s resolved, %s, %s (%s mode)\n",
		status,
		plural(res.Config.Len(), "option"),
		plural(len(res.Errors()), "error"),
		plural(len(res.Warnings()), "warning"),
		res.Mode)
	return nil
}

// runWatch checks once, then again after every change to the project's
// inputs until ctx is cancelled.
func (c *checkOptions) runWatch(ctx context.Context, out io.Writer) error {
	logger := telemetry.ComponentLogger(ctx, "check")

	if c.metricsAddr != "" && c.tel != nil {
		addr, errc, err := c.tel.Metrics.Serve(ctx, c.metricsAddr)
		if err != nil {
			return err
		}
		logger.Info().Str("addr", addr.String()).Msg("serving metrics")
		go func() {
			for err := range errc {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	project, _, err := c.discover(ctx)
	if err != nil {
		return err
	}

	check := func(ctx context.Context) error {
		err := c.run(ctx, nil, out)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		return nil
	}
	_ = check(ctx)

	watcher := config.NewWatcher(logger, config.DefaultDebounce)
	return watcher.Run(ctx, project.Sources(), check)
}
