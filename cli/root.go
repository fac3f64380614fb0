// Package cli implements payrollctl, the operator command line for the
// payroll engine. Commands open the configured store directly; no server
// needs to be running.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile string
	DBPath  string
	Format  string // "text" | "json"
	Verbose bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for payrollctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "payrollctl",
		Short: "Payroll engine operator tool",
		Long:  "Recompute, inspect and configure monthly payroll from punch-clock data.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "env file to load (default .env when present)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "SQLite database path, overrides DB_PATH and DB_DRIVER")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log engine activity to stderr")

	cmd.AddCommand(NewRecomputeCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewPolicyCommand(opts))
	cmd.AddCommand(NewStaffCommand(opts))
	cmd.AddCommand(NewCheckPunchesCommand(opts))

	return cmd
}

// session is an open store plus the services built on it.
type session struct {
	cfg     *config.Config
	store   store.Backend
	service *payroll.Service
	checker *attendance.Checker
	logger  *slog.Logger
	out     *OutputFormatter
}

func (opts *RootOptions) open(ctx context.Context, cmd *cobra.Command) (*session, error) {
	var files []string
	if opts.EnvFile != "" {
		files = append(files, opts.EnvFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	if opts.DBPath != "" {
		cfg.Database.Driver = config.DriverSQLite
		cfg.Database.Path = opts.DBPath
	}

	level := slog.LevelWarn
	if opts.Verbose {
		level = cfg.SlogLevel()
	}
	logger := api.NewLogger(api.LoggerOptions{
		Level:  level,
		Env:    cfg.App.Env,
		Output: cmd.ErrOrStderr(),
	})

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &session{
		cfg:     cfg,
		store:   st,
		service: payroll.NewService(st, logger),
		checker: attendance.NewChecker(st),
		logger:  logger,
		out:     newOutputFormatter(opts.Format, cmd.OutOrStdout()),
	}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

func (s *session) policy(ctx context.Context) (payroll.Policy, error) {
	return s.store.CurrentPolicy(ctx)
}

func (s *session) policyFactory() *factory.PolicyFactory {
	f := factory.NewPolicyFactory()
	f.Location = s.cfg.Location()
	return f
}

// withSession opens a session for the duration of fn.
func withSession(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := opts.open(ctx, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "setup failed", err)
	}
	defer s.Close()
	return fn(ctx, s)
}
