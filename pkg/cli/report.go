package cli

import (
	"github.com/spf13/cobra"

	"github.com/mfreeman451/clientradar/pkg/core"
	"github.com/mfreeman451/clientradar/pkg/perf"
)

func newReportCmd(opts *rootOptions) *cobra.Command {
	var names []string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a performance report with recommendations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sections := make([]perf.Section, 0, len(names))

			for _, name := range names {
				section, err := perf.ParseSection(name)
				if err != nil {
					return err
				}

				sections = append(sections, section)
			}

			return opts.withServer(cmd.Context(), func(srv *core.Server) error {
				report, err := srv.Perf().Report(cmd.Context(), sections...)
				if err != nil {
					return err
				}

				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}

	cmd.Flags().StringSliceVar(&names, "sections", nil, "sections to include (queries,cache,memory); all when empty")

	return cmd
}
