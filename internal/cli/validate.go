package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/hdrc/internal/layout"
	"github.com/roach88/hdrc/internal/tech"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool      `json:"valid"`
	Top      string    `json:"top,omitempty"`
	Cells    int       `json:"cells"`
	Layers   int       `json:"layers"`
	Rules    int       `json:"rules"`
	Problems []Problem `json:"problems,omitempty"`
}

// Problem is one structural problem of a layout.
type Problem struct {
	Cell    string `json:"cell"`
	Message string `json:"message"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var techPath string

	cmd := &cobra.Command{
		Use:   "validate [layout.yaml]",
		Short: "Validate a layout and technology without checking rules",
		Long: `Load the technology and the layout and report structural problems:
unknown cells and nets, containment cycles, bad connections and shapes on
layers the technology does not define.

Faster than check for development feedback.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts, args, techPath)
		},
	}

	cmd.Flags().StringVarP(&techPath, "tech", "t", "", "technology CUE directory or file")
	return cmd
}

func runValidate(cmd *cobra.Command, opts *RootOptions, args []string, techFlag string) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	layoutPath, techPath := inputPaths(opts, args, techFlag)
	if layoutPath == "" {
		return formatter.Fail(ExitCommandError, ErrCodeArguments, "no layout file given", nil)
	}
	if techPath == "" {
		return formatter.Fail(ExitCommandError, ErrCodeArguments, "no technology given (use --tech)", nil)
	}

	tc, err := tech.Load(techPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeTech, "failed to load technology", err)
	}
	formatter.VerboseLog("technology %s: %d layers, %d rules", tc.Name, len(tc.Layers), len(tc.Rules))

	result := ValidationResult{Layers: len(tc.Layers), Rules: len(tc.Rules)}

	lib, top, err := layout.Load(layoutPath)
	if err != nil {
		var verr *layout.ValidationError
		if !errors.As(err, &verr) {
			return formatter.Fail(ExitCommandError, ErrCodeLayout, "failed to load layout", err)
		}
		result.Problems = convertProblems(verr.Problems)
	} else {
		result.Top = top
		result.Cells = len(lib.Cells)
		result.Problems = convertProblems(lib.Problems(tc.HasLayer))
	}

	result.Valid = len(result.Problems) == 0
	if !result.Valid {
		return outputValidationProblems(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

func convertProblems(ps []layout.Problem) []Problem {
	out := make([]Problem, 0, len(ps))
	for _, p := range ps {
		out = append(out, Problem{Cell: p.Cell, Message: p.Message})
	}
	return out
}

// outputValidationProblems outputs the problems in the configured format.
func outputValidationProblems(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		_ = formatter.Error(ErrCodeProblems, "validation failed", result)
	} else {
		fmt.Fprintf(formatter.Writer, "Validation failed: %d problem(s)\n", len(result.Problems))
		for _, p := range result.Problems {
			fmt.Fprintf(formatter.Writer, "  [%s] %s: %s\n", ErrCodeProblems, p.Cell, p.Message)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%s: %d problem(s)", ErrCodeProblems, len(result.Problems)))
}

// outputValidateSuccess outputs success in the configured format.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ layout and technology valid (%d cells, %d layers, %d rules)\n",
		result.Cells, result.Layers, result.Rules)
	return nil
}
