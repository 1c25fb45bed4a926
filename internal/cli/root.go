// Package cli implements the fusion command-line interface.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fusion/internal/auth"
	"github.com/mesh-intelligence/fusion/internal/paths"
	"github.com/mesh-intelligence/fusion/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	jsonMode  bool
}

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// NewRootCmd creates the top-level "fusion" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "fusion",
		Short: "Web backend with a runtime-selected database",
		Long: "fusion serves the user API and the built frontend over SQLite,\n" +
			"PostgreSQL, MySQL or MongoDB, chosen by configuration at startup.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: .fusion)")
	root.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(newVersionCmd(flags))
	root.AddCommand(newInitCmd(flags))
	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newHealthCmd(flags))
	root.AddCommand(newUsersCmd(flags))

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	os.Exit(run(NewRootCmd(), os.Args[1:], os.Stderr))
}

func run(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintln(stderr, "Error:", err)
	return exitCode(err)
}

// exitCode classifies err: bad input and configuration are the user's to
// fix, everything else is a system failure.
func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	switch {
	case errors.Is(err, types.ErrConfig),
		errors.Is(err, auth.ErrMissingSecret),
		errors.Is(err, auth.ErrUnsupportedMethod):
		return exitUserError
	case errors.Is(err, types.ErrConnect), errors.Is(err, types.ErrUnavailable):
		return exitSysError
	}
	return exitUserError
}

func sysError(err error) error  { return &exitError{code: exitSysError, err: err} }
func userError(err error) error { return &exitError{code: exitUserError, err: err} }

// resolveConfigDir applies the --config-dir flag over the environment and defaults.
func (f *rootFlags) resolveConfigDir() (string, error) {
	dir, err := paths.ResolveConfigDir(f.configDir)
	if err != nil {
		return "", sysError(fmt.Errorf("resolve config directory: %w", err))
	}
	return dir, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
