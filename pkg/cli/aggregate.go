package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfreeman451/clientradar/pkg/core"
	"github.com/mfreeman451/clientradar/pkg/usage"
)

var errDateFlags = errors.New("use either --date or --from with --to")

type aggregateOutput struct {
	Days       []string          `json:"days"`
	Aggregated int               `json:"aggregated"`
	Failed     map[string]string `json:"failed,omitempty"`
	Duration   string            `json:"duration"`
}

func newAggregateCmd(opts *rootOptions) *cobra.Command {
	var date, from, to string

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Roll up usage for a day or a range of days (default yesterday)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ranged := from != "" || to != ""
			if (ranged && date != "") || (ranged && (from == "" || to == "")) {
				return errDateFlags
			}

			return opts.withServer(cmd.Context(), func(srv *core.Server) error {
				agg := srv.Usage()

				var (
					res *usage.BatchResult
					err error
				)

				switch {
				case ranged:
					res, err = agg.AggregateRange(cmd.Context(), from, to)
				case date != "":
					res, err = agg.AggregateAll(cmd.Context(), date)
				default:
					res, err = agg.AggregateAll(cmd.Context(), agg.Yesterday(time.Now()))
				}

				if err != nil {
					return err
				}

				out := aggregateOutput{
					Days:       res.Days,
					Aggregated: res.Aggregated,
					Duration:   res.Duration.Round(time.Millisecond).String(),
				}

				if len(res.Failed) > 0 {
					out.Failed = make(map[string]string, len(res.Failed))
					for key, err := range res.Failed {
						out.Failed[key] = err.Error()
					}
				}

				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day to aggregate (YYYY-MM-DD)")
	cmd.Flags().StringVar(&from, "from", "", "first day of a range")
	cmd.Flags().StringVar(&to, "to", "", "last day of a range")

	return cmd
}
