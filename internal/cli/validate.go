package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantfx/quantfx/internal/qconfig"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                      `json:"valid"`
	Rules  int                       `json:"rules"`
	Errors []qconfig.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <qconfig-dir>",
		Short: "Validate a quantization config without running the pass",
		Long: `Validate a CUE quantization config: syntax, schema, and rule
consistency, without loading a graph or inserting observers. Faster than
prepare for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, qconfigDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, err := qconfig.LoadDir(qconfigDir)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "loading qconfig", err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, qconfigDir)

	if validationErrs := qconfig.Validate(result.Config); len(validationErrs) > 0 {
		return outputValidationErrors(formatter, validationErrs)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Rules: len(result.Config.Rules)})
	}
	fmt.Fprintf(formatter.Writer, "✓ config valid: %d rule(s)\n", len(result.Config.Rules))
	return nil
}

// outputValidationErrors outputs validation errors and returns the
// validation-failure exit error.
func outputValidationErrors(formatter *OutputFormatter, errs []qconfig.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n", err.Code, err.Field, err.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
