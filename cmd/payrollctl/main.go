/*
main.go - payrollctl entry point

USAGE:

	payrollctl recompute 202503 [--staff sato,tanaka] [--lenient]
	payrollctl show 202503 [--format json]
	payrollctl policy apply -f policy.yaml
	payrollctl staff import -f roster.yaml
	payrollctl check-punches --date 2025-03-10

Configuration comes from .env and the environment, as for the server.
--db points every command at a SQLite file instead.

SEE ALSO:
  - cli/: Command implementations
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "time/tzdata"

	"github.com/warp/payroll-engine/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
