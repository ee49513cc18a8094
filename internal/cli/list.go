package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/rulepack/internal/store"
)

// PackageEntry is one stored package in list output.
type PackageEntry struct {
	Name         string `json:"name" yaml:"name"`
	Revision     string `json:"revision" yaml:"revision"`
	Digest       string `json:"digest" yaml:"digest"`
	Valid        bool   `json:"valid" yaml:"valid"`
	ErrorSummary string `json:"error_summary,omitempty" yaml:"error_summary,omitempty"`
	Framing      string `json:"framing" yaml:"framing"`
	Rules        int    `json:"rules" yaml:"rules"`
	Size         int    `json:"size" yaml:"size"`
	Seq          int64  `json:"seq" yaml:"seq"`
}

func newPackageEntry(rec store.Record) PackageEntry {
	return PackageEntry{
		Name:         rec.Name,
		Revision:     rec.Revision,
		Digest:       rec.Digest,
		Valid:        rec.Valid,
		ErrorSummary: rec.ErrorSummary,
		Framing:      rec.Framing.String(),
		Rules:        rec.RuleCount,
		Size:         rec.Size,
		Seq:          rec.Seq,
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List packages in the package database",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), rootOpts, cmd)
		},
	}
}

func runList(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd.OutOrStdout(), cmd.ErrOrStderr())

	s, err := opts.openStore()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, fmt.Sprintf("opening package database: %v", err))
	}
	defer s.Close()

	records, err := s.ListPackages(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error())
	}

	entries := make([]PackageEntry, len(records))
	for i, rec := range records {
		entries[i] = newPackageEntry(rec)
	}

	if formatter.Structured() {
		return formatter.Success(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(formatter.Writer, "No packages stored")
		return nil
	}
	for _, e := range entries {
		status := "valid"
		if !e.Valid {
			status = "invalid"
		}
		fmt.Fprintf(formatter.Writer, "%-32s %-8s %3d rule(s)  %s  %s\n",
			e.Name, status, e.Rules, shortDigest(e.Digest), e.Revision)
	}
	return nil
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
