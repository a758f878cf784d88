// Package cli implements the reglet-script command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// Version is the semantic version (set via -ldflags).
var Version = "dev"

// app carries the streams and filesystem every command works against.
type app struct {
	fs     afero.Fs
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewRootCmd builds the command tree over the given streams. Files are read
// from and written to fsys.
func NewRootCmd(fsys afero.Fs, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{fs: fsys, stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "reglet-script",
		Short: "Run CommonJS scripts under a capability policy",
		Long: `reglet-script runs a CommonJS entry module in an embedded JavaScript
engine. Every filesystem access, including loading modules, is checked
against a capability policy before it happens.

Examples:
  reglet-script run ./main.js --allow-read .
  reglet-script run ./main.js --policy policy.yaml --export result
  reglet-script schema > policy.schema.json
  reglet-script validate-policy policy.yaml`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(a.newRunCmd())
	root.AddCommand(a.newSchemaCmd())
	root.AddCommand(a.newValidatePolicyCmd())
	return root
}

// Execute runs the CLI against the process streams and exits with the code
// of any failure.
func Execute() {
	root := NewRootCmd(afero.NewOsFs(), os.Stdin, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
