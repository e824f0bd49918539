package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mfreeman451/clientradar/pkg/core"
	"github.com/mfreeman451/clientradar/pkg/health"
)

type batchOutput struct {
	Checked       int               `json:"checked"`
	Skipped       int               `json:"skipped"`
	Unhealthy     int               `json:"unhealthy"`
	Notifications int               `json:"notifications"`
	Failed        map[string]string `json:"failed,omitempty"`
	Duration      string            `json:"duration"`
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var (
		clientID  string
		checkOpts health.CheckOptions
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe one client or every due client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withServer(cmd.Context(), func(srv *core.Server) error {
				if clientID != "" {
					check, err := srv.Health().CheckClient(cmd.Context(), clientID, checkOpts)
					if err != nil {
						return err
					}

					return writeJSON(cmd.OutOrStdout(), check)
				}

				res, err := srv.Health().CheckDue(cmd.Context(), checkOpts)
				if err != nil {
					return err
				}

				out := batchOutput{
					Checked:       res.Checked,
					Skipped:       res.Skipped,
					Unhealthy:     res.Unhealthy,
					Notifications: res.Notifications,
					Duration:      res.Duration.Round(time.Millisecond).String(),
				}

				if len(res.Failed) > 0 {
					out.Failed = make(map[string]string, len(res.Failed))
					for id, err := range res.Failed {
						out.Failed[id] = err.Error()
					}
				}

				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "client id; all due clients when empty")
	cmd.Flags().BoolVar(&checkOpts.Force, "force", false, "probe regardless of the check interval")
	cmd.Flags().BoolVar(&checkOpts.IncludeMaintenance, "include-maintenance", false, "also probe clients in maintenance mode")

	return cmd
}
