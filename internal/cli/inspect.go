package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rulepack/internal/codec"
	"github.com/roach88/rulepack/internal/ir"
	"github.com/roach88/rulepack/internal/rulepkg"
	"github.com/roach88/rulepack/internal/store"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Name    string // stored package to inspect instead of a file
	Framing string // framing of the file; empty means the configured one
}

// InspectResult is the structured form of an inspected package.
type InspectResult struct {
	Digest   string `json:"digest" yaml:"digest"`
	Manifest any    `json:"manifest" yaml:"manifest"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Describe a built package",
		Long: `Describe a package read from a binary package file, or from the
package database with --name. Structured formats print the package
manifest, the same document its digest is computed from.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "inspect the stored package with this name")
	cmd.Flags().StringVar(&opts.Framing, "framing", "", "framing of the package file (framed|wrapped)")

	return cmd
}

func runInspect(ctx context.Context, opts *InspectOptions, args []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd.OutOrStdout(), cmd.ErrOrStderr())

	if (len(args) == 1) == (opts.Name != "") {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, "give either a package file or --name")
	}

	var (
		pkg *rulepkg.Package
		err error
	)
	if opts.Name != "" {
		pkg, err = loadStoredPackage(ctx, opts.RootOptions, opts.Name)
	} else {
		pkg, err = readPackageFile(args[0], opts)
	}
	if err != nil {
		return outputPackageError(formatter, err)
	}

	manifest := pkg.Manifest()
	digest, err := ir.PackageDigest(manifest)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("computing digest: %v", err))
	}

	if formatter.Structured() {
		return formatter.Success(InspectResult{Digest: digest, Manifest: ir.Plain(manifest)})
	}
	writePackageText(formatter.Writer, pkg, digest)
	return nil
}

func loadStoredPackage(ctx context.Context, opts *RootOptions, name string) (*rulepkg.Package, error) {
	s, err := opts.openStore()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.LoadPackage(ctx, name, nil)
}

func readPackageFile(path string, opts *InspectOptions) (*rulepkg.Package, error) {
	framing := opts.Config.FramingMode()
	if opts.Framing != "" {
		f, err := codec.ParseFraming(opts.Framing)
		if err != nil {
			return nil, err
		}
		framing = f
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return rulepkg.NewSerializer(rulepkg.WithFraming(framing)).Decode(f)
}

// outputPackageError maps package read failures to error codes.
func outputPackageError(formatter *OutputFormatter, err error) error {
	switch {
	case errors.Is(err, store.ErrPackageNotFound), errors.Is(err, os.ErrNotExist):
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error())
	case rulepkg.IsDeserialization(err), errors.Is(err, store.ErrDigestMismatch):
		return formatter.Fail(ExitCommandError, ErrCodeDecodeFailed, err.Error())
	default:
		var ioErr *rulepkg.IOError
		if errors.As(err, &ioErr) {
			return formatter.Fail(ExitCommandError, ErrCodeDecodeFailed, err.Error())
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
	}
}

func writePackageText(w io.Writer, pkg *rulepkg.Package, digest string) {
	fmt.Fprintf(w, "Package %s\n", pkg.Name())
	if summary, ok := pkg.ErrorSummary(); ok {
		fmt.Fprintf(w, "  valid:   no (%s)\n", summary)
	} else {
		fmt.Fprintln(w, "  valid:   yes")
	}
	fmt.Fprintf(w, "  digest:  %s\n", digest)

	if imports := pkg.Imports(); len(imports) > 0 {
		fmt.Fprintln(w, "\nImports:")
		for _, target := range sortedKeys(imports) {
			fmt.Fprintf(w, "  %s\n", target)
		}
	}
	if statics := pkg.StaticImports(); len(statics) > 0 {
		fmt.Fprintln(w, "\nStatic imports:")
		for _, s := range statics {
			fmt.Fprintf(w, "  %s\n", s)
		}
	}
	if globals := pkg.Globals(); len(globals) > 0 {
		fmt.Fprintln(w, "\nGlobals:")
		for _, id := range sortedKeys(globals) {
			fmt.Fprintf(w, "  %s %s\n", id, globals[id])
		}
	}
	if decls := pkg.TypeDeclarations(); len(decls) > 0 {
		fmt.Fprintln(w, "\nType declarations:")
		for _, name := range sortedKeys(decls) {
			d := decls[name]
			target := d.ClassName
			if d.Match == ir.MatchPattern {
				target = d.Pattern
			}
			fmt.Fprintf(w, "  %s: %s, %s %s\n", name, d.Role, d.Match, target)
		}
	}
	if templates := pkg.FactTemplates(); len(templates) > 0 {
		fmt.Fprintln(w, "\nFact templates:")
		for _, name := range sortedKeys(templates) {
			fields := make([]string, len(templates[name].Fields))
			for i, f := range templates[name].Fields {
				fields[i] = f.Name + " " + f.Type
			}
			fmt.Fprintf(w, "  %s(%s)\n", name, strings.Join(fields, ", "))
		}
	}
	if fns := pkg.Functions(); len(fns) > 0 {
		fmt.Fprintln(w, "\nFunctions:")
		for _, name := range sortedKeys(fns) {
			fn := fns[name]
			fmt.Fprintf(w, "  %s(%s) [%s]\n", name, strings.Join(fn.Params, ", "), fn.Dialect)
		}
	}
	if rules := pkg.Rules(); len(rules) > 0 {
		fmt.Fprintln(w, "\nRules:")
		for _, r := range rules {
			fmt.Fprintf(w, "  %d. %s salience=%d [%s]", r.LoadOrder, r.Name, r.Salience, r.Dialect)
			if r.AgendaGroup != "" {
				fmt.Fprintf(w, " agenda-group=%s", r.AgendaGroup)
			}
			fmt.Fprintln(w)
		}
	}
	if flows := pkg.RuleFlows(); len(flows) > 0 {
		fmt.Fprintln(w, "\nRule flows:")
		for _, id := range sortedKeys(flows) {
			p := flows[id]
			fmt.Fprintf(w, "  %s %q: %d node(s), %d connection(s)\n", id, p.Name, len(p.Nodes), len(p.Connections))
		}
	}
}
