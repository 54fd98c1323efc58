package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantfx/quantfx/internal/qconfig"
)

// InspectResult is the JSON payload of an inspect run.
type InspectResult struct {
	Graph string `json:"graph"`
	Nodes int    `json:"nodes"`
	Dump  string `json:"dump"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <graph.yaml>",
		Short: "Print the canonical dump of a traced graph",
		Long: `Load a traced graph from YAML and print its canonical text dump
without annotating or rewriting it. Useful for checking that a graph file
parses the way you expect.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runInspect(opts *RootOptions, graphPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	m, _, err := LoadGraph(graphPath)
	if err != nil {
		_ = formatter.Error(qconfig.ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "loading graph", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(InspectResult{
			Graph: m.Graph().Name(),
			Nodes: m.Graph().Len(),
			Dump:  m.Dump(),
		})
	}
	fmt.Fprint(formatter.Writer, m.Dump())
	return nil
}
