package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantfx/quantfx/internal/qconfig"
	"github.com/quantfx/quantfx/internal/store"
)

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "trace <trace.db>",
		Short: "List or show persisted pass traces",
		Long: `List the pass runs persisted in a trace database, or show the full
trace of one run with --run.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(rootOpts, cmd, args[0], runID)
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "show the full trace of this run id")

	return cmd
}

func runTrace(opts *RootOptions, cmd *cobra.Command, dbPath, runID string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	s, err := store.Open(dbPath)
	if err != nil {
		_ = formatter.Error(qconfig.ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening trace database", err)
	}
	defer s.Close()

	if runID != "" {
		return showRun(formatter, s, cmd, runID)
	}
	return listRuns(formatter, s, cmd)
}

func listRuns(formatter *OutputFormatter, s *store.Store, cmd *cobra.Command) error {
	runs, err := s.ListRuns(cmd.Context())
	if err != nil {
		_ = formatter.Error(qconfig.ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "listing runs", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "no pass runs recorded")
		return nil
	}
	for _, run := range runs {
		mode := "ptq"
		if run.IsQAT {
			mode = "qat"
		}
		fmt.Fprintf(formatter.Writer, "%s  %s  %s  %d -> %d node(s)  %s\n",
			run.ID, run.GraphName, mode, run.NodesBefore, run.NodesAfter, run.CreatedAt)
	}
	return nil
}

func showRun(formatter *OutputFormatter, s *store.Store, cmd *cobra.Command, runID string) error {
	run, err := s.ReadRun(cmd.Context(), runID)
	if err != nil {
		_ = formatter.Error(qconfig.ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reading run", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(run)
	}

	fmt.Fprintf(formatter.Writer, "run %s (%s)\n", run.ID, run.CreatedAt)
	fmt.Fprintf(formatter.Writer, "graph %s qat=%v nodes %d -> %d\n",
		run.Trace.GraphName, run.Trace.IsQAT, run.Trace.NodesBefore, run.Trace.NodesAfter)
	for _, obs := range run.Trace.Observers {
		fmt.Fprintf(formatter.Writer, "  observer %s observes=%s kind=%s dtype=%s dynamic=%v\n",
			obs.Name, obs.Observes, obs.Kind, obs.DType, obs.IsDynamic)
	}
	for _, edge := range run.Trace.Edges {
		key := edge.Producer
		if edge.Consumer != "" {
			key = edge.Producer + "->" + edge.Consumer
		}
		fmt.Fprintf(formatter.Writer, "  edge %s dtype=%s dynamic=%v\n", key, edge.DType, edge.Dynamic)
	}
	return nil
}
