package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-sql/civil"
	"github.com/spf13/cobra"

	"github.com/warp/payroll-engine/api"
)

// NewCheckPunchesCommand creates the check-punches command.
func NewCheckPunchesCommand(rootOpts *RootOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "check-punches",
		Short: "Report missing check-outs and over-long shifts for a day",
		Long: `Report shift anomalies for shifts that started on the given day
(default yesterday in the policy timezone). Exits 1 when any are found.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				p, err := s.policy(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to load policy", err)
				}
				loc := p.Loc()

				day := civil.DateOf(time.Now().In(loc)).AddDays(-1)
				if date != "" {
					if day, err = civil.ParseDate(date); err != nil {
						return WrapExitError(ExitCommandError, "invalid --date, want YYYY-MM-DD", err)
					}
				}

				anomalies, err := s.checker.CheckDay(ctx, day, loc)
				if err != nil {
					return WrapExitError(ExitCommandError, "check failed", err)
				}
				if s.out.JSON() {
					if err := s.out.Encode(api.AnomalyDTOs(anomalies)); err != nil {
						return err
					}
				} else {
					for _, a := range anomalies {
						s.out.Printf("%s\n", a)
					}
					if len(anomalies) == 0 {
						s.out.Printf("%s: no anomalies\n", day)
					}
				}
				if len(anomalies) > 0 {
					return NewExitError(ExitFailure, fmt.Sprintf("%d anomalies on %s", len(anomalies), day))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to check, YYYY-MM-DD (default yesterday)")
	return cmd
}
