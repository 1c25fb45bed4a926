package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fusion/internal/app"
	"github.com/mesh-intelligence/fusion/internal/config"
)

type initResult struct {
	ConfigDir     string `json:"config_dir"`
	ConfigWritten bool   `json:"config_written"`
	Backend       string `json:"backend"`
}

func newInitCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration and the database schema",
		Long: "Create the configuration directory with a default config.yaml when none\n" +
			"exists, then connect to the configured backend and create the users schema.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := flags.resolveConfigDir()
			if err != nil {
				return err
			}

			written, err := config.WriteDefault(dir)
			if err != nil {
				return sysError(err)
			}

			a, err := app.Open(cmd.Context(), dir, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			res := initResult{ConfigDir: dir, ConfigWritten: written, Backend: a.Engine.Kind().String()}
			if flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			if written {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", filepath.Join(dir, config.ConfigFileName))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fusion initialized (%s)\n", res.Backend)
			return nil
		},
	}
}
