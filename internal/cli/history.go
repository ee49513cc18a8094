package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// RevisionEntry is one save in history output.
type RevisionEntry struct {
	Revision string `json:"revision" yaml:"revision"`
	Digest   string `json:"digest" yaml:"digest"`
	Valid    bool   `json:"valid" yaml:"valid"`
	Seq      int64  `json:"seq" yaml:"seq"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "history <name>",
		Short:         "Show the save history of a stored package",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), rootOpts, args[0], cmd)
		},
	}
}

func runHistory(ctx context.Context, opts *RootOptions, name string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd.OutOrStdout(), cmd.ErrOrStderr())

	s, err := opts.openStore()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, fmt.Sprintf("opening package database: %v", err))
	}
	defer s.Close()

	revs, err := s.Revisions(ctx, name)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error())
	}
	if len(revs) == 0 {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("package not found: %s", name))
	}

	entries := make([]RevisionEntry, len(revs))
	for i, r := range revs {
		entries[i] = RevisionEntry{Revision: r.Revision, Digest: r.Digest, Valid: r.Valid, Seq: r.Seq}
	}

	if formatter.Structured() {
		return formatter.Success(entries)
	}
	fmt.Fprintf(formatter.Writer, "History of %s\n", name)
	for _, e := range entries {
		fmt.Fprintf(formatter.Writer, "  %4d  %s  %s\n", e.Seq, e.Revision, shortDigest(e.Digest))
	}
	return nil
}
