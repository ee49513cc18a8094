package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/rulepack/internal/compiler"
	"github.com/roach88/rulepack/internal/rulepkg"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	Output string // binary package file
	Store  bool   // deploy into the package database
}

// BuildSummary describes a successfully built package.
type BuildSummary struct {
	Package   string `json:"package" yaml:"package"`
	Digest    string `json:"digest" yaml:"digest"`
	Rules     int    `json:"rules" yaml:"rules"`
	Functions int    `json:"functions" yaml:"functions"`
	Artifacts int    `json:"artifacts" yaml:"artifacts"`
	Files     int    `json:"files" yaml:"files"`
	Output    string `json:"output,omitempty" yaml:"output,omitempty"`
	Framing   string `json:"framing,omitempty" yaml:"framing,omitempty"`
	Revision  string `json:"revision,omitempty" yaml:"revision,omitempty"`
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build <source>",
		Short: "Build a rule package from CUE sources",
		Long: `Build a rule package from a directory of CUE files or a single .cue file.

Every rule and function gets a generated class in the package's dialect
data. The package is written in its binary form with --output, deployed
into the package database with --store, or both.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the binary package to this file")
	cmd.Flags().BoolVar(&opts.Store, "store", false, "deploy the package into the package database")

	return cmd
}

func runBuild(ctx context.Context, opts *BuildOptions, source string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd.OutOrStdout(), cmd.ErrOrStderr())

	res, src, err := CompileSource(source, opts.Config.Dialects, opts.logger())
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Loaded %d CUE file(s) from %s", len(src.Files), source)

	if len(res.Errors) > 0 {
		return outputValidationErrors(formatter, res.Package.Name(), res.Errors)
	}

	pkg := res.Package
	digest, err := pkg.Digest()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("computing digest: %v", err))
	}

	summary := BuildSummary{
		Package:   pkg.Name(),
		Digest:    digest,
		Rules:     len(pkg.Rules()),
		Functions: len(pkg.Functions()),
		Artifacts: pkg.DialectDatas().Len(),
		Files:     len(src.Files),
	}

	if opts.Output != "" {
		if err := writePackageFile(pkg, opts.Output, opts); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
		summary.Output = opts.Output
		summary.Framing = opts.Config.FramingMode().String()
	}

	if opts.Store {
		reg, s, err := opts.openRegistry()
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, fmt.Sprintf("opening package database: %v", err))
		}
		defer s.Close()

		rec, err := reg.Deploy(ctx, pkg)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStoreFailed, fmt.Sprintf("deploying package: %v", err))
		}
		summary.Revision = rec.Revision
	}

	return outputBuildSuccess(formatter, summary)
}

// writePackageFile writes pkg in its binary form using the configured framing.
func writePackageFile(pkg *rulepkg.Package, path string, opts *BuildOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	s := rulepkg.NewSerializer(rulepkg.WithFraming(opts.Config.FramingMode()))
	if err := s.Encode(f, pkg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func outputBuildSuccess(formatter *OutputFormatter, summary BuildSummary) error {
	if formatter.Structured() {
		return formatter.Success(summary)
	}

	fmt.Fprintf(formatter.Writer, "✓ Built %s: %d rule(s), %d function(s), %d artifact(s)\n",
		summary.Package, summary.Rules, summary.Functions, summary.Artifacts)
	fmt.Fprintf(formatter.Writer, "  digest: %s\n", summary.Digest)
	if summary.Output != "" {
		fmt.Fprintf(formatter.Writer, "Wrote package to %s (%s)\n", summary.Output, summary.Framing)
	}
	if summary.Revision != "" {
		fmt.Fprintf(formatter.Writer, "Deployed revision %s\n", summary.Revision)
	}
	return nil
}

// outputLoadError outputs a load or decode failure (exit code 2).
func outputLoadError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
	}

	if formatter.Structured() {
		var details any
		if loadErr.Pos.IsValid() {
			details = map[string]any{
				"file":   loadErr.Pos.Filename(),
				"line":   loadErr.Pos.Line(),
				"column": loadErr.Pos.Column(),
			}
		}
		_ = formatter.Error(loadErr.Code, loadErr.Message, details)
	} else {
		if loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
	}
	return NewExitError(ExitCommandError, loadErr.Error())
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Package string                     `json:"package" yaml:"package"`
	Valid   bool                       `json:"valid" yaml:"valid"`
	Errors  []compiler.ValidationError `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// outputValidationErrors outputs every validation error (exit code 1).
func outputValidationErrors(formatter *OutputFormatter, pkg string, errs []compiler.ValidationError) error {
	if formatter.Structured() {
		if err := formatter.Encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Package: pkg, Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintf(formatter.Writer, "✗ Package %s is invalid\n\n", pkg)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", err.Code, err.Field, err.Message)
	}
	fmt.Fprintln(formatter.Writer)

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
