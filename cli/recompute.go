package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/payroll"
)

// RecomputeOptions holds flags for the recompute command.
type RecomputeOptions struct {
	Staff   []string
	Lenient bool
}

// NewRecomputeCommand creates the recompute command.
func NewRecomputeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecomputeOptions{}

	cmd := &cobra.Command{
		Use:   "recompute <YYYYMM>",
		Short: "Recompute and store payroll records for a month",
		Long: `Recompute payroll records for a payroll month.

By default every staff member is recomputed in one transaction and the
first failure aborts the whole batch. With --lenient each staff member is
committed separately and failures are reported at the end.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				return runRecompute(ctx, s, opts, args[0])
			})
		},
	}

	cmd.Flags().StringSliceVar(&opts.Staff, "staff", nil, "staff IDs to recompute (default all)")
	cmd.Flags().BoolVar(&opts.Lenient, "lenient", false, "commit each staff member separately")

	return cmd
}

func runRecompute(ctx context.Context, s *session, opts *RecomputeOptions, yearMonth string) error {
	if _, err := payroll.ParseYearMonth(yearMonth); err != nil {
		return WrapExitError(ExitCommandError, "invalid month", err)
	}
	ids := make([]payroll.StaffID, len(opts.Staff))
	for i, id := range opts.Staff {
		ids[i] = payroll.StaffID(id)
	}

	var rep payroll.BatchReport
	if opts.Lenient {
		var err error
		if rep, err = s.service.RecomputeLenient(ctx, yearMonth, ids); err != nil {
			return WrapExitError(ExitCommandError, "recompute failed", err)
		}
	} else {
		period, err := s.service.Period(ctx, yearMonth)
		if err != nil {
			return WrapExitError(ExitCommandError, "recompute failed", err)
		}
		records, err := s.service.RecomputeBatch(ctx, yearMonth, ids)
		if err != nil {
			return WrapExitError(ExitFailure, "recompute aborted, nothing stored", err)
		}
		rep = payroll.BatchReport{YearMonth: yearMonth, Period: period, Records: records}
	}

	if s.out.JSON() {
		if err := s.out.Encode(api.BatchDTOFrom(rep)); err != nil {
			return err
		}
	} else {
		s.out.Printf("%s\n", rep.Period)
		if err := recordTable(s.out, rep.Records); err != nil {
			return err
		}
		for _, f := range rep.Failures {
			s.out.Printf("FAILED %s: %v\n", f.StaffID, f.Err)
		}
	}

	if !rep.OK() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d staff failed", len(rep.Failures)))
	}
	return nil
}

func recordTable(out *OutputFormatter, records []payroll.Record) error {
	dtos := api.RecordDTOs(records)
	rows := make([][]string, len(dtos))
	for i, r := range dtos {
		deductions := r.EmploymentInsurance + r.HealthInsurance + r.Pension + r.ResidentTax + r.WithholdingTax
		rows[i] = []string{
			r.StaffID,
			strconv.Itoa(r.DaysWorked),
			r.TotalHours,
			out.Yen(r.GrossPay),
			out.Yen(deductions),
			out.Yen(r.NetPay),
		}
	}
	return out.Table([]string{"STAFF", "DAYS", "HOURS", "GROSS", "DEDUCTIONS", "NET"}, rows)
}
