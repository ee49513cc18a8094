package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/rulepack/internal/config"
	"github.com/roach88/rulepack/internal/registry"
	"github.com/roach88/rulepack/internal/store"
)

// RootOptions holds global flags for all commands and the configuration
// resolved from them.
type RootOptions struct {
	Verbose    bool
	Format     string // "text" | "json" | "yaml"
	ConfigFile string
	DBPath     string // overrides db_path from config

	Config config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the rulepack CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Config: config.Defaults()}

	cmd := &cobra.Command{
		Use:   "rulepack",
		Short: "rulepack - rule package registry",
		Long: `Build, inspect and deploy rule packages.

A rule package is a named container of rules, functions, imports,
globals, type declarations, fact templates and rule flows, built from
CUE sources and stored in a binary form.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.load(cmd.ErrOrStderr())
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "",
		"config file (default: .rulepack/config.yaml or ~/.config/rulepack/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "package database path (overrides db_path)")

	cmd.AddCommand(NewBuildCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// load resolves configuration and builds the logger. Diagnostics go to
// errOut so structured output on stdout stays parseable.
func (o *RootOptions) load(errOut io.Writer) error {
	cfg, used, err := config.Load(viper.New(), o.ConfigFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading configuration", err)
	}
	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	o.Config = cfg

	level := cfg.Level()
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.Logger = slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))
	if used != "" {
		o.Logger.Debug("config loaded", slog.String("path", used))
	}
	return nil
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// openStore opens the configured package database, creating its directory
// when needed.
func (o *RootOptions) openStore() (*store.Store, error) {
	path := o.Config.DBPath
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	return store.Open(path,
		store.WithFraming(o.Config.FramingMode()),
		store.WithLogger(o.logger()),
	)
}

// openRegistry opens the store and a registry over it. The caller closes
// the store.
func (o *RootOptions) openRegistry() (*registry.Registry, *store.Store, error) {
	s, err := o.openStore()
	if err != nil {
		return nil, nil, err
	}
	reg := registry.New(s,
		registry.WithTTL(o.Config.Cache.TTL),
		registry.WithCleanupInterval(o.Config.Cache.CleanupInterval),
		registry.WithLogger(o.logger()),
	)
	return reg, s, nil
}

func (o *RootOptions) formatter(out, errOut io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    out,
		ErrWriter: errOut, // Verbose logs go to stderr to avoid corrupting structured output
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
