// Command rulepack builds, inspects and deploys rule packages.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/rulepack/internal/cli"
	"github.com/roach88/rulepack/internal/ir"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := cli.NewRootCommand()
	cmd.Version = fmt.Sprintf("%s (commit: %s, builder: %s)", version, commit, ir.BuilderVersion)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return
	}
	// Commands report their own failures through the output formatter.
	// Flag parsing and configuration errors are printed here.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	stop()
	os.Exit(cli.GetExitCode(err))
}
