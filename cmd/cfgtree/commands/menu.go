package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/openfroyo/cfgtree/pkg/config"
	"github.com/openfroyo/cfgtree/pkg/editor"
	"github.com/openfroyo/cfgtree/pkg/engine"
	"github.com/openfroyo/cfgtree/pkg/stores"
	"github.com/openfroyo/cfgtree/pkg/telemetry"
	"github.com/openfroyo/cfgtree/pkg/tui"
)

// ErrLocked is returned when another session holds the configuration.
var ErrLocked = errors.New("configuration is being edited by another session")

// lockSuffix names the lock file next to the configuration.
const lockSuffix = ".lock"

// lockConfig takes the single-writer lock for the configuration at path.
// The caller must Unlock the returned lock.
func lockConfig(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	lock := flock.New(path + lockSuffix)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock held: %s)", ErrLocked, lock.Path())
	}
	return lock, nil
}

func newMenuCommand(opts *globalOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Edit the configuration interactively",
		Long: `Open the interactive configuration editor.

Options are grouped into the menus declared by the component definitions.
Options that are not active under the current values and features are shown
disabled. Every edit is resolved immediately; problems appear under the
selected option.

Keys: up/down move, enter or space select, backspace goes back, r resets an
option to its default, s saves and exits, q or esc quits without saving.

Saving writes only the active options that have a value; the previous file is
kept with a .old suffix.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMenu(cmd.Context(), opts, strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "report problems as errors while editing")

	return cmd
}

func runMenu(ctx context.Context, opts *globalOptions, strict bool) error {
	mode := engine.ModeLenient
	if strict {
		mode = engine.ModeStrict
	}

	ws, err := opts.loadWorkspace(ctx)
	if err != nil {
		var project *config.Project
		if ws != nil {
			project = ws.project
		}
		opts.recordSchemaError(ctx, "menu", project, mode, err)
		return err
	}

	lock, err := lockConfig(ws.values.Path)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	raw, err := ws.values.LoadOrEmpty(ctx)
	if err != nil {
		return err
	}

	logger := telemetry.ComponentLogger(ctx, "menu")
	timer := telemetry.NewTimer()

	session := editor.NewSession(ws.order, ws.features, raw,
		editor.WithMode(mode),
		editor.WithPersister(ws.values),
	)

	program := tea.NewProgram(tui.New(session), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := program.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("editor failed: %w", err)
	}

	model, ok := final.(tui.Model)
	if !ok {
		return nil
	}
	if err := model.Err(); err != nil {
		logger.Warn().Err(err).Msg("last editor action failed")
	}

	state := model.Session().State()
	if state.Exit != editor.ExitSave {
		logger.Info().Bool("dirty", model.Session().Dirty()).Msg("configuration not saved")
		return nil
	}

	res := model.Session().Resolution()
	if opts.tel != nil {
		opts.tel.Metrics.RecordResolution(res, timer.Duration())
	}
	opts.record(ctx, ws.project, stores.NewRecord("menu", res, ws.features, timer.Duration()))
	logger.Info().Str("config", ws.values.Path).Msg("configuration saved")
	return nil
}
