package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fusion/internal/app"
	"github.com/mesh-intelligence/fusion/internal/engine"
)

type healthResult struct {
	Backend  string `json:"backend"`
	Database string `json:"database"`
}

func newHealthCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := flags.resolveConfigDir()
			if err != nil {
				return err
			}
			a, err := app.Open(cmd.Context(), dir, app.Options{SkipMigrate: true})
			if err != nil {
				return err
			}
			defer a.Close()

			res := healthResult{Backend: a.Engine.Kind().String(), Database: a.Engine.Probe(cmd.Context())}
			if flags.jsonMode {
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", res.Backend, res.Database)
			}
			if res.Database != engine.StatusConnected {
				return sysError(errors.New("database unreachable"))
			}
			return nil
		},
	}
}
