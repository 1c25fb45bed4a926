package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fusion/pkg/fusion"
)

const modulePath = "github.com/mesh-intelligence/fusion"

func newVersionCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the fusion version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": fusion.Version, "module": modulePath})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fusion v%s\nmodule: %s\n", fusion.Version, modulePath)
			return nil
		},
	}
}
