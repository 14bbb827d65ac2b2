package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/openfroyo/cfgtree/pkg/stores"
)

func newHistoryCommand(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded resolutions",
		Long: `List the resolutions recorded by check and by saves from the menu, newest
first. The history lives in .cfgtree/history.db under the project root.`,
		Example: `  cfgtree history --limit 5
  cfgtree history show 3f9c0e1a-...
  cfgtree history prune --keep 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withHistory(cmd.Context(), func(ctx context.Context, store stores.Store) error {
				records, err := store.ListResolutions(ctx, limit, 0)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), records)
				}
				printRecords(cmd.OutOrStdout(), records)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of records (0 for all)")

	cmd.AddCommand(newHistoryShowCommand(opts))
	cmd.AddCommand(newHistoryPruneCommand(opts))

	return cmd
}

func newHistoryShowCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show one recorded resolution (default the latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withHistory(cmd.Context(), func(ctx context.Context, store stores.Store) error {
				var (
					rec *stores.Record
					err error
				)
				if len(args) == 1 {
					rec, err = store.GetResolution(ctx, args[0])
				} else {
					rec, err = store.LatestResolution(ctx)
				}
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), rec)
				}
				printRecord(cmd.OutOrStdout(), rec)
				return nil
			})
		},
	}
}

func newHistoryPruneCommand(opts *globalOptions) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withHistory(cmd.Context(), func(ctx context.Context, store stores.Store) error {
				n, err := store.PruneResolutions(ctx, keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", plural(int(n), "record"))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 50, "number of records to keep")

	return cmd
}

// withHistory opens the project history for the duration of fn.
func (o *globalOptions) withHistory(ctx context.Context, fn func(context.Context, stores.Store) error) error {
	project, _, err := o.discover(ctx)
	if err != nil {
		return err
	}
	store, err := openHistory(ctx, project.HistoryPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

func printRecords(w io.Writer, records []*stores.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No resolutions recorded")
		return
	}
	cell := lipgloss.NewStyle().PaddingRight(2)
	header := cell.Bold(true)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		}).
		Headers("ID", "WHEN", "COMMAND", "MODE", "OUTCOME", "OPTIONS", "ERRORS", "WARNINGS")
	for _, r := range records {
		t.Row(
			r.ID,
			r.RecordedAt.Local().Format(time.DateTime),
			r.Command,
			r.Mode,
			string(r.Outcome),
			strconv.Itoa(r.Options),
			strconv.Itoa(r.Errors),
			strconv.Itoa(r.Warnings),
		)
	}
	fmt.Fprintln(w, t.Render())
}

func printRecord(w io.Writer, r *stores.Record) {
	fmt.Fprintf(w, "ID:       %s\n", r.ID)
	fmt.Fprintf(w, "When:     %s\n", r.RecordedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Command:  %s (%s mode)\n", r.Command, r.Mode)
	fmt.Fprintf(w, "Features: %s\n", strings.Join(r.Features, ", "))
	fmt.Fprintf(w, "Outcome:  %s in %s\n", r.Outcome, r.Duration)
	if r.Error != nil {
		fmt.Fprintf(w, "Error:    %s\n", *r.Error)
	}
	if len(r.Diagnostics) > 0 {
		fmt.Fprintln(w, "\nDiagnostics:")
		printDiagnostics(w, r.Diagnostics)
	}
	if len(r.Values) > 0 {
		fmt.Fprintln(w, "\nValues:")
		for _, p := range r.ValuePaths() {
			fmt.Fprintf(w, "  %s = %v\n", p, r.Values[p])
		}
	}
}
