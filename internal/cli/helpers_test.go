package cli

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/roach88/rulepack/internal/config"
)

const (
	tradingDir = "testdata/trading"
	invalidDir = "testdata/invalid"
	brokenDir  = "testdata/broken"
)

// testOptions returns root options with defaults and a private database.
func testOptions(t *testing.T, format string) *RootOptions {
	t.Helper()
	cfg := config.Defaults()
	cfg.DBPath = filepath.Join(t.TempDir(), "packages.db")
	return &RootOptions{Format: format, Config: cfg}
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	if args == nil {
		args = []string{} // cobra falls back to os.Args on nil
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
