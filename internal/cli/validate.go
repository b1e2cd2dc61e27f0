package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qakit/qakit/internal/harness"
)

// ValidationIssue is one file that failed validation.
type ValidationIssue struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenarios-dir>",
		Short: "Validate scenario files without running them",
		Long: `Validate scenario YAML files without executing any steps.

Performs strict parsing (unknown fields are errors), checks step and
assertion shapes, and verifies that referenced fixture files exist.
Faster than run for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		_ = formatter.Error("E_NOT_FOUND", fmt.Sprintf("scenarios directory not found: %s", scenariosDir), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	scenarioFiles, err := findScenarioFiles(scenariosDir, "")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	if len(scenarioFiles) == 0 {
		_ = formatter.Error("E_NO_SCENARIOS", fmt.Sprintf("no scenario files found in %s", scenariosDir), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("no scenario files found in %s", scenariosDir))
	}

	result := ValidationResult{Valid: true, Files: len(scenarioFiles)}
	for _, file := range scenarioFiles {
		formatter.VerboseLog("Validating %s", file)
		if _, err := harness.LoadScenario(file); err != nil {
			result.Valid = false
			result.Issues = append(result.Issues, ValidationIssue{File: file, Message: err.Error()})
		}
	}

	if !result.Valid {
		if formatter.Format == "json" {
			if err := formatter.Error("E_INVALID_SCENARIO",
				fmt.Sprintf("%d file(s) failed validation", len(result.Issues)), result.Issues); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(formatter.Writer, "Validation failed")
			fmt.Fprintln(formatter.Writer)
			for _, issue := range result.Issues {
				fmt.Fprintf(formatter.Writer, "  %s\n    %s\n", issue.File, issue.Message)
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d file(s) failed validation", len(result.Issues)))
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "%d scenario file(s) valid\n", result.Files)
	return nil
}
