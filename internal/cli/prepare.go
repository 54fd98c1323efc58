package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quantfx/quantfx/internal/prepare"
	"github.com/quantfx/quantfx/internal/qconfig"
	"github.com/quantfx/quantfx/internal/store"
)

// PrepareResult is the JSON payload of a successful prepare run.
type PrepareResult struct {
	Graph       string `json:"graph"`
	QAT         bool   `json:"qat"`
	Annotated   int    `json:"annotated_nodes"`
	NodesBefore int    `json:"nodes_before"`
	NodesAfter  int    `json:"nodes_after"`
	Observers   int    `json:"observers"`
	Edges       int    `json:"registry_entries"`
	RunID       string `json:"run_id,omitempty"`
	Dump        string `json:"dump"`
}

// NewPrepareCommand creates the prepare command.
func NewPrepareCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		qconfigDir string
		qat        bool
		traceDB    string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "prepare <graph.yaml>",
		Short: "Annotate a traced graph and insert observers",
		Long: `Load a traced graph from YAML, annotate it from a CUE quantization
config, and run the observer-insertion pass.

The rewritten graph is printed as a canonical dump (or written to --output).
With --trace-db, the pass trace is persisted to a SQLite database for later
inspection with the trace command.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrepare(rootOpts, cmd, args[0], qconfigDir, qat, traceDB, outputPath)
		},
	}

	cmd.Flags().StringVar(&qconfigDir, "qconfig", "", "directory with CUE quantization config (required)")
	cmd.Flags().BoolVar(&qat, "qat", false, "prepare for quantization-aware training (fake-quantize)")
	cmd.Flags().StringVar(&traceDB, "trace-db", "", "SQLite database to persist the pass trace to")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the rewritten graph dump to a file instead of stdout")
	_ = cmd.MarkFlagRequired("qconfig")

	return cmd
}

func runPrepare(opts *RootOptions, cmd *cobra.Command, graphPath, qconfigDir string, qat bool, traceDB, outputPath string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	m, scope, err := LoadGraph(graphPath)
	if err != nil {
		_ = formatter.Error(qconfig.ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "loading graph", err)
	}
	formatter.VerboseLog("Loaded graph %s with %d node(s)", m.Graph().Name(), m.Graph().Len())

	result, err := qconfig.LoadDir(qconfigDir)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "loading qconfig", err)
	}
	formatter.VerboseLog("Loaded %d CUE file(s) from %s", result.FileCount, qconfigDir)

	if validationErrs := qconfig.Validate(result.Config); len(validationErrs) > 0 {
		return outputValidationErrors(formatter, validationErrs)
	}

	annotated := qconfig.Annotate(m, result.Config)
	formatter.VerboseLog("Annotated %d node(s)", annotated)

	m, trace, err := prepare.PrepareTraced(m, scope, qat)
	if err != nil {
		var ie *prepare.InvariantError
		if errors.As(err, &ie) {
			_ = formatter.Error(string(ie.Code), err.Error(), nil)
		} else {
			_ = formatter.Error(qconfig.ErrCodeGeneric, err.Error(), nil)
		}
		return WrapExitError(ExitFailure, "pass failed", err)
	}

	runID := ""
	if traceDB != "" {
		s, err := store.Open(traceDB)
		if err != nil {
			_ = formatter.Error(qconfig.ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "opening trace database", err)
		}
		defer s.Close()
		runID, err = s.WriteRun(cmd.Context(), store.UUIDv7Generator{}, trace)
		if err != nil {
			_ = formatter.Error(qconfig.ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "persisting trace", err)
		}
		formatter.VerboseLog("Trace persisted as run %s", runID)
	}

	dump := m.Dump()
	if outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(dump), 0o644); err != nil {
			_ = formatter.Error(qconfig.ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "writing output", err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(PrepareResult{
			Graph:       trace.GraphName,
			QAT:         trace.IsQAT,
			Annotated:   annotated,
			NodesBefore: trace.NodesBefore,
			NodesAfter:  trace.NodesAfter,
			Observers:   len(trace.Observers),
			Edges:       len(trace.Edges),
			RunID:       runID,
			Dump:        dump,
		})
	}

	if outputPath == "" {
		fmt.Fprint(formatter.Writer, dump)
	}
	fmt.Fprintf(formatter.Writer, "prepared %s: %d -> %d node(s), %d observer(s), %d registry entr(ies)\n",
		trace.GraphName, trace.NodesBefore, trace.NodesAfter, len(trace.Observers), len(trace.Edges))
	if runID != "" {
		fmt.Fprintf(formatter.Writer, "trace run: %s\n", runID)
	}
	return nil
}

// loadErrorCode extracts the code from a qconfig load error.
func loadErrorCode(err error) string {
	if loadErr, ok := err.(*qconfig.LoadError); ok {
		return loadErr.Code
	}
	return qconfig.ErrCodeGeneric
}
