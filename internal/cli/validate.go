package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/reckon/internal/config"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Config string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file against the schema",
		Long: `Validate a YAML config file against the embedded schema without
running anything. Exit code 0 means the config is usable; 1 means it is
not.

Example:
  reckon validate --config reckon.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to YAML config file (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

type validateResult struct {
	Path  string `json:"path"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func runValidate(cmd *cobra.Command, opts *ValidateOptions) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	result := validateResult{Path: opts.Config, Valid: true}
	if _, err := config.Load(opts.Config); err != nil {
		result.Valid = false
		result.Error = err.Error()
	}

	if formatter.JSONOutput() {
		if err := formatter.EmitJSON(result); err != nil {
			return WrapExitError(ExitCommandError, "write output", err)
		}
	} else if result.Valid {
		formatter.EmitText("%s: valid", result.Path)
	} else {
		formatter.EmitText("%s: invalid\n%s", result.Path, result.Error)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "config is invalid")
	}
	return nil
}
