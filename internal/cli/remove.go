package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rulepack/internal/store"
)

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <name>",
		Short:         "Undeploy a package and delete its history",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), rootOpts, args[0], cmd)
		},
	}
}

func runRemove(ctx context.Context, opts *RootOptions, name string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd.OutOrStdout(), cmd.ErrOrStderr())

	reg, s, err := opts.openRegistry()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, fmt.Sprintf("opening package database: %v", err))
	}
	defer s.Close()

	if err := reg.Undeploy(ctx, name); err != nil {
		if errors.Is(err, store.ErrPackageNotFound) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("package not found: %s", name))
		}
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error())
	}

	if formatter.Structured() {
		return formatter.Success(map[string]string{"removed": name})
	}
	fmt.Fprintf(formatter.Writer, "✓ Removed %s\n", name)
	return nil
}
