package cli

import (
	"github.com/spf13/cobra"

	"github.com/mfreeman451/clientradar/pkg/core"
	"github.com/mfreeman451/clientradar/pkg/retention"
)

func newCleanupCmd(opts *rootOptions) *cobra.Command {
	var (
		runOpts retention.Options
		targets []string
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge data older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range targets {
				tier, err := retention.ParseTier(name)
				if err != nil {
					return err
				}

				runOpts.Targets = append(runOpts.Targets, tier)
			}

			return opts.withServer(cmd.Context(), func(srv *core.Server) error {
				report, err := srv.Cleaner().Run(cmd.Context(), runOpts)
				if err != nil {
					return err
				}

				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}

				return report.Err()
			})
		},
	}

	cmd.Flags().BoolVar(&runOpts.DryRun, "dry-run", false, "count matching rows without deleting")
	cmd.Flags().IntVar(&runOpts.RetentionDays, "retention-days", 0, "override the configured retention window")
	cmd.Flags().StringSliceVar(&targets, "targets", nil, "tiers to purge (tokens,events,critical_events,usage,orphans,notifications)")

	return cmd
}
