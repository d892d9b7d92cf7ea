package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/exocortex/exoql/pkg/server"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP SPARQL endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.newStore()
			if err != nil {
				return err
			}

			addr := a.cfg.Server.Listen
			if listen != "" {
				addr = listen
			}
			srv := server.NewServer(a.newEngine(s),
				server.WithAddr(addr),
				server.WithCORSOrigins(a.cfg.Server.CORSOrigins),
				server.WithLogger(a.logger))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides server.listen)")
	return cmd
}
