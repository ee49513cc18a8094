package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <source>",
		Short: "Check a package source without writing anything",
		Long: `Build a package from CUE sources in memory and report every problem
that would leave it invalid: bad names, empty consequences, unknown
dialects, invalid type declarations and rule flow cycles.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, source string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd.OutOrStdout(), cmd.ErrOrStderr())

	res, src, err := CompileSource(source, opts.Config.Dialects, opts.logger())
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Loaded %d CUE file(s) from %s", len(src.Files), source)

	if len(res.Errors) > 0 {
		return outputValidationErrors(formatter, res.Package.Name(), res.Errors)
	}

	if formatter.Structured() {
		return formatter.Success(ValidationResult{Package: res.Package.Name(), Valid: true})
	}
	fmt.Fprintf(formatter.Writer, "✓ Package %s is valid\n", res.Package.Name())
	return nil
}
