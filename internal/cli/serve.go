package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fusion/internal/app"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long:  "Serve the API and the built frontend until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := flags.resolveConfigDir()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Open(ctx, dir, app.Options{Console: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("host") {
				a.Settings.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.Settings.Port = port
			}
			if err := a.Server().Run(ctx); err != nil {
				return sysError(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides configuration)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides configuration)")
	return cmd
}
