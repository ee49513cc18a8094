package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rulepack/internal/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage rulepack configuration",
	}
	cmd.AddCommand(newConfigInitCommand(rootOpts))
	cmd.AddCommand(newConfigShowCommand(rootOpts))
	return cmd
}

func newConfigInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "init [path]",
		Short:         "Write a config file holding the defaults",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd.OutOrStdout(), cmd.ErrOrStderr())
			path := config.LocalConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error())
			}
			if formatter.Structured() {
				return formatter.Success(map[string]string{"path": path})
			}
			fmt.Fprintf(formatter.Writer, "Wrote default config to %s\n", path)
			return nil
		},
	}
}

func newConfigShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Print the effective configuration",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := rootOpts.Config.Marshal()
			if err != nil {
				return WrapExitError(ExitCommandError, "encoding configuration", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
