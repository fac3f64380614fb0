/*
service.go - Payroll Record upsert: the pipeline end to end

PURPOSE:
  Service wires the pipeline together:
    policy -> period -> aggregate -> calculate -> upsert
  and offers three write modes.

WRITE MODES:
  Recompute:        One staff, one transaction.
  RecomputeBatch:   Many staff, ONE transaction. The first failure rolls
                    back every record written in the batch.
  RecomputeLenient: Many staff, one transaction EACH. Failures are logged
                    and collected; the rest continue. Used by the
                    scheduled job.

  All modes are idempotent: recomputing with unchanged inputs writes the
  same derived fields and keeps the record ID.

POLICY SNAPSHOT:
  The policy is read once per call inside the transaction and passed by
  value to every stage, so a batch never mixes two policies.

SEE ALSO:
  - store.go: TxStore contract
  - api/scheduler.go: Calls RecomputeLenient on a cron schedule
*/
package payroll

import (
	"context"
	"fmt"
	"log/slog"
)

// Service runs payroll computations against a store.
type Service struct {
	Store  TxStore
	Logger *slog.Logger
}

// NewService creates a service. A nil logger uses slog.Default().
func NewService(store TxStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Logger: logger}
}

// BatchReport is the outcome of a lenient batch.
type BatchReport struct {
	YearMonth string
	Period    Period
	Records   []Record
	Failures  []*StaffError
}

// OK reports whether every staff member succeeded.
func (r BatchReport) OK() bool {
	return len(r.Failures) == 0
}

// =============================================================================
// READ-ONLY
// =============================================================================

// Compute returns the breakdown for staff without persisting it.
func (s *Service) Compute(ctx context.Context, staffID StaffID, yearMonth string) (Breakdown, error) {
	ym, err := ParseYearMonth(yearMonth)
	if err != nil {
		return Breakdown{}, err
	}
	policy, err := s.Store.CurrentPolicy(ctx)
	if err != nil {
		return Breakdown{}, fmt.Errorf("load policy: %w", err)
	}
	b, err := computeFor(ctx, s.Store, staffID, ResolvePeriod(ym, policy), policy)
	if err != nil {
		return Breakdown{}, &StaffError{StaffID: staffID, YearMonth: yearMonth, Err: err}
	}
	return b, nil
}

// Period resolves yearMonth under the current policy.
func (s *Service) Period(ctx context.Context, yearMonth string) (Period, error) {
	ym, err := ParseYearMonth(yearMonth)
	if err != nil {
		return Period{}, err
	}
	policy, err := s.Store.CurrentPolicy(ctx)
	if err != nil {
		return Period{}, fmt.Errorf("load policy: %w", err)
	}
	return ResolvePeriod(ym, policy), nil
}

// =============================================================================
// WRITES
// =============================================================================

// Recompute computes and upserts the record for one staff member.
func (s *Service) Recompute(ctx context.Context, staffID StaffID, yearMonth string) (Record, error) {
	ym, err := ParseYearMonth(yearMonth)
	if err != nil {
		return Record{}, err
	}

	var rec Record
	err = s.Store.WithTx(ctx, func(tx Store) error {
		policy, err := tx.CurrentPolicy(ctx)
		if err != nil {
			return fmt.Errorf("load policy: %w", err)
		}
		rec, err = upsertFor(ctx, tx, staffID, ResolvePeriod(ym, policy), policy)
		return err
	})
	if err != nil {
		return Record{}, &StaffError{StaffID: staffID, YearMonth: yearMonth, Err: err}
	}

	s.Logger.InfoContext(ctx, "payroll recomputed",
		slog.String("staff_id", string(staffID)),
		slog.String("year_month", yearMonth),
		slog.Int64("gross_pay", rec.GrossPay),
		slog.Int64("net_pay", rec.NetPay))
	return rec, nil
}

// RecomputeBatch upserts records for staffIDs (every staff when empty)
// inside a single transaction. Any failure rolls back the whole batch and
// is returned as a *StaffError.
func (s *Service) RecomputeBatch(ctx context.Context, yearMonth string, staffIDs []StaffID) ([]Record, error) {
	ym, err := ParseYearMonth(yearMonth)
	if err != nil {
		return nil, err
	}

	var records []Record
	err = s.Store.WithTx(ctx, func(tx Store) error {
		policy, err := tx.CurrentPolicy(ctx)
		if err != nil {
			return fmt.Errorf("load policy: %w", err)
		}
		ids, err := resolveStaffIDs(ctx, tx, staffIDs)
		if err != nil {
			return err
		}
		period := ResolvePeriod(ym, policy)

		records = make([]Record, 0, len(ids))
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := upsertFor(ctx, tx, id, period, policy)
			if err != nil {
				return &StaffError{StaffID: id, YearMonth: yearMonth, Err: err}
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		s.Logger.ErrorContext(ctx, "payroll batch rolled back",
			slog.String("year_month", yearMonth),
			slog.String("error", err.Error()))
		return nil, err
	}

	s.Logger.InfoContext(ctx, "payroll batch committed",
		slog.String("year_month", yearMonth),
		slog.Int("records", len(records)))
	return records, nil
}

// RecomputeLenient upserts each staff member in its own transaction and
// keeps going after failures. The returned error is non-nil only when the
// batch could not start.
func (s *Service) RecomputeLenient(ctx context.Context, yearMonth string, staffIDs []StaffID) (BatchReport, error) {
	ym, err := ParseYearMonth(yearMonth)
	if err != nil {
		return BatchReport{}, err
	}
	policy, err := s.Store.CurrentPolicy(ctx)
	if err != nil {
		return BatchReport{}, fmt.Errorf("load policy: %w", err)
	}
	ids, err := resolveStaffIDs(ctx, s.Store, staffIDs)
	if err != nil {
		return BatchReport{}, err
	}

	report := BatchReport{YearMonth: yearMonth, Period: ResolvePeriod(ym, policy)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var rec Record
		err := s.Store.WithTx(ctx, func(tx Store) error {
			var err error
			rec, err = upsertFor(ctx, tx, id, report.Period, policy)
			return err
		})
		if err != nil {
			failure := &StaffError{StaffID: id, YearMonth: yearMonth, Err: err}
			report.Failures = append(report.Failures, failure)
			s.Logger.WarnContext(ctx, "payroll recompute failed",
				slog.String("staff_id", string(id)),
				slog.String("year_month", yearMonth),
				slog.String("error", err.Error()))
			continue
		}
		report.Records = append(report.Records, rec)
	}

	s.Logger.InfoContext(ctx, "payroll lenient batch finished",
		slog.String("year_month", yearMonth),
		slog.Int("records", len(report.Records)),
		slog.Int("failures", len(report.Failures)))
	return report, nil
}

// =============================================================================
// HELPERS
// =============================================================================

type computeStore interface {
	PunchReader
	StaffStore
}

func computeFor(ctx context.Context, st computeStore, staffID StaffID, period Period, policy Policy) (Breakdown, error) {
	staff, err := st.GetStaff(ctx, staffID)
	if err != nil {
		return Breakdown{}, err
	}
	agg, err := (&Aggregator{Punches: st}).Aggregate(ctx, staffID, period, policy)
	if err != nil {
		return Breakdown{}, err
	}
	return Calculate(staff, period, agg, policy)
}

func upsertFor(ctx context.Context, tx Store, staffID StaffID, period Period, policy Policy) (Record, error) {
	b, err := computeFor(ctx, tx, staffID, period, policy)
	if err != nil {
		return Record{}, err
	}
	rec, err := tx.UpsertRecord(ctx, RecordFromBreakdown(b))
	if err != nil {
		return Record{}, fmt.Errorf("upsert record: %w", err)
	}
	return rec, nil
}

func resolveStaffIDs(ctx context.Context, st StaffStore, ids []StaffID) ([]StaffID, error) {
	if len(ids) > 0 {
		return ids, nil
	}
	all, err := st.ListStaff(ctx)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	out := make([]StaffID, 0, len(all))
	for _, s := range all {
		out = append(out, s.ID)
	}
	return out, nil
}
