package cli

import (
	"github.com/spf13/cobra"

	"github.com/mfreeman451/clientradar/pkg/core"
	"github.com/mfreeman451/clientradar/pkg/lifecycle"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, the HTTP API and the gRPC health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			srv, err := core.NewServer(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			return lifecycle.RunServer(cmd.Context(), &lifecycle.ServerOptions{
				ServiceName: "clientradar",
				Service:     srv,
				Logger:      logger,
				HTTPAddr:    cfg.HTTP.ListenAddr,
				HTTPHandler: srv.Handler(),
				GRPCAddr:    cfg.GRPC.ListenAddr,
				Security:    cfg.GRPC.Security,
			})
		},
	}
}
