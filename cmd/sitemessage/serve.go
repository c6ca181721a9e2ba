package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/idlesign/sitemessage/internal/web"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the unsubscribe, tracking and preferences endpoints",
		Long: "Starts the HTTP server handling signed unsubscribe links, the read tracking " +
			"pixel and subscription preferences. Runs until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := openStore(configPath)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("port") {
				port = cfg.Site.Port
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return web.Start(ctx, web.StartOpts{
				DB:      conn,
				Port:    port,
				BaseURL: cfg.Site.BaseURL,
				SignKey: cfg.Site.SignKey,
				Out:     cmd.OutOrStdout(),
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVar(&port, "port", 0, "listen port (defaults to site.port)")
	return cmd
}
