package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfroyo/cfgtree/pkg/config"
)

func newInitCommand(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty configuration",
		Long: `Create an empty, valid user configuration. Every option then takes its
default.

An existing configuration is only replaced after confirmation, or
unconditionally with --force. The replaced file is kept with a .old suffix.`,
		Example: `  # Start over with defaults
  cfgtree init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			_, values, err := opts.discover(ctx)
			if err != nil {
				return err
			}

			lock, err := lockConfig(values.Path)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			err = values.Init(force)
			if errors.Is(err, config.ErrExists) {
				ok, cerr := confirm(cmd.InOrStdin(), out, fmt.Sprintf("Overwrite %s?", values.Path))
				if cerr != nil {
					return cerr
				}
				if !ok {
					fmt.Fprintf(out, "%s left unchanged\n", values.Path)
					return nil
				}
				err = values.Init(true)
			}
			if err != nil {
				return err
			}

			zerolog.Ctx(ctx).Debug().Str("config", values.Path).Msg("configuration initialised")
			fmt.Fprintf(out, "Created %s\n", values.Path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration without asking")

	return cmd
}
