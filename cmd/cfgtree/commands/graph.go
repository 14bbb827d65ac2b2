package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/cfgtree/pkg/engine"
)

// graphReport is the --json form of graph.
type graphReport struct {
	Order  []string    `json:"order"`
	Levels [][]string  `json:"levels"`
	Edges  []graphEdge `json:"edges"`
}

type graphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

func newGraphCommand(opts *globalOptions) *cobra.Command {
	var dot bool

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show the evaluation order of the option tree",
		Long: `Print the order in which options are evaluated, grouped by dependency
level, with the options each one reads. --dot prints the dependency graph in
Graphviz format instead.`,
		Example: `  cfgtree graph --dot | dot -Tsvg > options.svg`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := opts.loadWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case dot:
				_, err = io.WriteString(out, ws.order.ToDOT())
				return err
			case opts.jsonOutput:
				return writeJSON(out, newGraphReport(ws.order))
			default:
				printLevels(out, ws.order)
				return nil
			}
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "print the graph in DOT format")

	return cmd
}

func newGraphReport(order *engine.EvaluationOrder) graphReport {
	tree := order.Tree
	report := graphReport{
		Order:  order.Paths(),
		Levels: make([][]string, len(order.Levels)),
		Edges:  make([]graphEdge, 0, len(order.Edges)),
	}
	for i, level := range order.Levels {
		for _, id := range level {
			report.Levels[i] = append(report.Levels[i], tree.Node(id).Path)
		}
	}
	for _, e := range order.Edges {
		report.Edges = append(report.Edges, graphEdge{
			From: tree.Node(e.From).Path,
			To:   tree.Node(e.To).Path,
			Kind: e.Kind.String(),
		})
	}
	return report
}

func printLevels(w io.Writer, order *engine.EvaluationOrder) {
	tree := order.Tree
	for i, level := range order.Levels {
		fmt.Fprintf(w, "level %d:\n", i)
		for _, id := range level {
			n := tree.Node(id)
			deps := order.Dependencies(id)
			if len(deps) == 0 {
				fmt.Fprintf(w, "  %s\n", n.Path)
				continue
			}
			names := make([]string, len(deps))
			for j, d := range deps {
				names[j] = tree.Node(d).Path
			}
			fmt.Fprintf(w, "  %s <- %s\n", n.Path, strings.Join(names, ", "))
		}
	}
}
