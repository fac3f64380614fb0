package cli

import (
	"context"
	"slices"

	"github.com/spf13/cobra"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/payroll"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var staff []string

	cmd := &cobra.Command{
		Use:           "show <YYYYMM>",
		Short:         "Show stored payroll records for a month",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				return runShow(ctx, s, args[0], staff)
			})
		},
	}
	cmd.Flags().StringSliceVar(&staff, "staff", nil, "only these staff IDs")
	return cmd
}

func runShow(ctx context.Context, s *session, yearMonth string, staff []string) error {
	if _, err := payroll.ParseYearMonth(yearMonth); err != nil {
		return WrapExitError(ExitCommandError, "invalid month", err)
	}
	records, err := s.store.ListRecords(ctx, yearMonth)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list records", err)
	}
	if len(staff) > 0 {
		records = slices.DeleteFunc(records, func(r payroll.Record) bool {
			return !slices.Contains(staff, string(r.StaffID))
		})
	}

	if s.out.JSON() {
		return s.out.Encode(api.RecordDTOs(records))
	}
	if len(records) == 0 {
		s.out.Printf("no records for %s\n", yearMonth)
		return nil
	}
	return recordTable(s.out, records)
}
