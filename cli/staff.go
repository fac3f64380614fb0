package cli

import (
	"context"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
)

// NewStaffCommand creates the staff command group.
func NewStaffCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Import or list staff profiles",
	}
	cmd.AddCommand(newStaffListCommand(rootOpts))
	cmd.AddCommand(newStaffImportCommand(rootOpts))
	return cmd
}

func newStaffListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List staff profiles",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				staff, err := s.store.ListStaff(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list staff", err)
				}
				f := factory.NewStaffFactory(s.cfg.Location())
				docs := make([]factory.StaffDocument, len(staff))
				for i, st := range staff {
					docs[i] = f.ToDocument(st)
				}
				if s.out.JSON() {
					return s.out.Encode(docs)
				}
				rows := make([][]string, len(docs))
				for i, d := range docs {
					rate := d.HourlyRate
					if d.WageType == string(payroll.WageSalary) {
						rate = d.MonthlySalary
					}
					rows[i] = []string{d.ID, d.Name, d.WageType, rate, d.DeductMethod, strconv.FormatBool(d.Retired)}
				}
				return s.out.Table([]string{"ID", "NAME", "WAGE", "AMOUNT", "DEDUCT", "RETIRED"}, rows)
			})
		},
	}
}

func newStaffImportCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import -f <roster.yaml>",
		Short: "Create or replace staff from a YAML roster",
		Long: `Create or replace staff profiles from a roster file:

  staff:
    - id: sato
      name: Sato
      wage_type: hourly
      hourly_rate: "1200"

The roster is validated in full before anything is written, and all
profiles are saved in one transaction.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read roster", err)
			}
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				staff, err := factory.NewStaffFactory(s.cfg.Location()).ParseRosterYAML(data)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid roster", err)
				}
				err = s.store.WithTx(ctx, func(tx payroll.Store) error {
					for _, st := range staff {
						if err := tx.SaveStaff(ctx, st); err != nil {
							return err
						}
					}
					return nil
				})
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to save roster", err)
				}
				s.out.Printf("imported %d staff\n", len(staff))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "roster file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
