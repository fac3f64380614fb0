/*
scheduler.go - Automated payroll recompute scheduler

PURPOSE:
  Keeps payroll records fresh without an operator. On every cron tick it
  recomputes, in lenient mode, the period(s) touched by yesterday and
  today, and reports yesterday's shift anomalies.

DESIGN:
  - robfig/cron drives the schedule (default "0 2 * * *", daily 02:00)
    in the payroll policy's timezone
  - Each tick is independent; recomputing is idempotent so overlapping or
    repeated ticks are harmless
  - Closing-day-only mode runs only on the day after a closing day and
    recomputes just the period that closed

CONFIGURATION:
  - Spec:           cron expression (SCHEDULER_SPEC)
  - ClosingDayOnly: see above (SCHEDULER_CLOSING_DAY_ONLY)

USAGE:
  scheduler := NewPayrollScheduler(handler, "0 2 * * *")
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - payroll/service.go: RecomputeLenient
  - attendance/anomaly.go: Checker
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-sql/civil"
	"github.com/robfig/cron/v3"

	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/payroll"
)

// DefaultScheduleSpec runs daily at 02:00.
const DefaultScheduleSpec = "0 2 * * *"

// RunSummary describes one scheduler tick.
type RunSummary struct {
	At        time.Time
	Skipped   bool
	Reports   []payroll.BatchReport
	Anomalies []attendance.Anomaly
}

// PayrollScheduler handles automated payroll recomputes.
type PayrollScheduler struct {
	Service        *payroll.Service
	Policies       payroll.PolicyStore
	Checker        *attendance.Checker
	Logger         *slog.Logger
	Spec           string
	ClosingDayOnly bool

	// Now is the clock; tests replace it.
	Now func() time.Time

	cron *cron.Cron
	last *RunSummary
	mu   sync.Mutex
}

// NewPayrollScheduler creates a scheduler sharing the handler's service.
func NewPayrollScheduler(h *Handler, spec string) *PayrollScheduler {
	if spec == "" {
		spec = DefaultScheduleSpec
	}
	return &PayrollScheduler{
		Service:  h.Service,
		Policies: h.Store,
		Checker:  h.Checker,
		Logger:   h.Logger,
		Spec:     spec,
		Now:      time.Now,
	}
}

// Start registers the job and starts the cron runner.
func (ps *PayrollScheduler) Start(ctx context.Context) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.cron != nil {
		return nil
	}

	loc := payroll.DefaultLocation()
	if p, err := ps.Policies.CurrentPolicy(ctx); err == nil {
		loc = p.Loc()
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(ps.Spec, func() {
		if _, err := ps.RunNow(context.Background()); err != nil {
			ps.Logger.Error("scheduled payroll run failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", ps.Spec, err)
	}
	c.Start()
	ps.cron = c

	ps.Logger.Info("payroll scheduler started",
		slog.String("spec", ps.Spec),
		slog.String("timezone", loc.String()),
		slog.Bool("closing_day_only", ps.ClosingDayOnly))
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (ps *PayrollScheduler) Stop() {
	ps.mu.Lock()
	c := ps.cron
	ps.cron = nil
	ps.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
		ps.Logger.Info("payroll scheduler stopped")
	}
}

// RunNow performs one tick immediately (for testing/admin).
func (ps *PayrollScheduler) RunNow(ctx context.Context) (RunSummary, error) {
	policy, err := ps.Policies.CurrentPolicy(ctx)
	if err != nil {
		return RunSummary{}, fmt.Errorf("load policy: %w", err)
	}

	now := ps.Now().In(policy.Loc())
	summary := RunSummary{At: now}
	months := ps.Targets(now, policy)
	if len(months) == 0 {
		summary.Skipped = true
		ps.remember(summary)
		return summary, nil
	}

	for _, ym := range months {
		rep, err := ps.Service.RecomputeLenient(ctx, ym.String(), nil)
		if err != nil {
			return summary, err
		}
		summary.Reports = append(summary.Reports, rep)
	}

	yesterday := civil.DateOf(now).AddDays(-1)
	if ps.Checker != nil {
		anomalies, err := ps.Checker.CheckDay(ctx, yesterday, policy.Loc())
		if err != nil {
			return summary, fmt.Errorf("check anomalies: %w", err)
		}
		for _, a := range anomalies {
			ps.Logger.WarnContext(ctx, "shift anomaly",
				slog.String("staff_id", string(a.StaffID)),
				slog.String("kind", string(a.Kind)),
				slog.Time("check_in", a.CheckIn))
		}
		summary.Anomalies = anomalies
	}

	ps.remember(summary)
	return summary, nil
}

// Targets returns the year-months a tick at now should recompute.
func (ps *PayrollScheduler) Targets(now time.Time, policy payroll.Policy) []payroll.YearMonth {
	today := civil.DateOf(now.In(policy.Loc()))
	yesterday := today.AddDays(-1)

	if ps.ClosingDayOnly {
		if !payroll.IsClosingDay(yesterday, policy) {
			return nil
		}
		return []payroll.YearMonth{payroll.PeriodContaining(yesterday, policy)}
	}

	prev := payroll.PeriodContaining(yesterday, policy)
	cur := payroll.PeriodContaining(today, policy)
	if prev == cur {
		return []payroll.YearMonth{cur}
	}
	return []payroll.YearMonth{prev, cur}
}

// LastRun returns the most recent tick, if any.
func (ps *PayrollScheduler) LastRun() (RunSummary, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.last == nil {
		return RunSummary{}, false
	}
	return *ps.last, true
}

// NextRun returns when the next tick is due; zero when not started.
func (ps *PayrollScheduler) NextRun() time.Time {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.cron == nil {
		return time.Time{}
	}
	entries := ps.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (ps *PayrollScheduler) remember(s RunSummary) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.last = &s
}
