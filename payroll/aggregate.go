/*
aggregate.go - Duration Aggregator: punches -> categorized worked time

PURPOSE:
  Turns the ordered punch stream of one staff member in one period into
  exact worked time per category. This is a pure computation; the
  Aggregator type only adds the store read in front of it.

ALGORITHM:
  1. Pair punches: a check-in followed by a check-out is a shift. A
     check-in followed by another check-in discards the earlier one. A
     check-out with nothing pending is ignored. A trailing check-in is
     dropped (reported as OpenCheckIn).
  2. Classify each shift by the civil date of its check-in.
  3. Worked = out - in, minus the overlap with that date's lunch window,
     never below zero.
  4. Bucket by (date, category).
  5. Each date with recorded time loses a flat 15 minutes, drawn from
     normal, then special, then holiday, never below zero.
  6. Sum the buckets.

  Overnight shifts stay on their check-in date and are not split.

SEE ALSO:
  - policy.go: Classify and LunchWindow
  - pay.go: Consumes Aggregation.Durations
*/
package payroll

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/golang-sql/civil"
)

// DailyBreakDeduction is removed once per worked day.
const DailyBreakDeduction = 15 * time.Minute

// Shift is one paired check-in/check-out.
type Shift struct {
	In       time.Time
	Out      time.Time
	Date     civil.Date
	Category Category

	// Lunch is the overlap with the lunch window that was subtracted.
	Lunch time.Duration
	// Worked is the shift duration after lunch, before the daily deduction.
	Worked time.Duration
}

// DayBucket is worked time on one civil date.
type DayBucket struct {
	Date civil.Date
	Durations

	// Deducted is how much of DailyBreakDeduction was actually taken.
	Deducted time.Duration
}

// Aggregation is the result of aggregating one staff member's period.
type Aggregation struct {
	Durations

	Days       []DayBucket
	DaysWorked int
	Shifts     []Shift

	DiscardedCheckIns int
	IgnoredCheckOuts  int
	OpenCheckIn       *PunchEvent
}

// =============================================================================
// PAIRING
// =============================================================================

// Pairing is the outcome of walking a punch stream.
type Pairing struct {
	Shifts            []Shift
	DiscardedCheckIns int
	IgnoredCheckOuts  int
	OpenCheckIn       *PunchEvent
}

// PairShifts pairs check-ins with check-outs. Events must already be in
// timestamp order.
func PairShifts(events []PunchEvent) Pairing {
	var out Pairing
	var pending *PunchEvent

	for i := range events {
		ev := events[i]
		switch ev.Direction {
		case DirectionIn:
			if pending != nil {
				out.DiscardedCheckIns++
			}
			pending = &ev
		case DirectionOut:
			if pending == nil {
				out.IgnoredCheckOuts++
				continue
			}
			out.Shifts = append(out.Shifts, Shift{In: pending.Timestamp, Out: ev.Timestamp})
			pending = nil
		}
	}
	out.OpenCheckIn = pending
	return out
}

// =============================================================================
// AGGREGATION
// =============================================================================

// AggregateEvents runs the full algorithm over events. The slice is not
// modified; a sorted copy is used.
func AggregateEvents(events []PunchEvent, policy Policy) Aggregation {
	sorted := append([]PunchEvent(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	pairing := PairShifts(sorted)
	loc := policy.Loc()

	byDate := make(map[civil.Date]*DayBucket)
	var order []civil.Date

	shifts := make([]Shift, 0, len(pairing.Shifts))
	for _, s := range pairing.Shifts {
		s.Date = civil.DateOf(s.In.In(loc))
		s.Category = policy.Classify(s.Date)

		raw := s.Out.Sub(s.In)
		if raw < 0 {
			raw = 0
		}
		lunchStart, lunchEnd := policy.LunchWindow(s.Date)
		s.Lunch = overlap(s.In, s.Out, lunchStart, lunchEnd)
		s.Worked = raw - s.Lunch
		if s.Worked < 0 {
			s.Worked = 0
		}
		shifts = append(shifts, s)

		if s.Worked == 0 {
			continue
		}
		b, ok := byDate[s.Date]
		if !ok {
			b = &DayBucket{Date: s.Date}
			byDate[s.Date] = b
			order = append(order, s.Date)
		}
		b.Add(s.Category, s.Worked)
	}

	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	agg := Aggregation{
		Shifts:            shifts,
		DiscardedCheckIns: pairing.DiscardedCheckIns,
		IgnoredCheckOuts:  pairing.IgnoredCheckOuts,
		OpenCheckIn:       pairing.OpenCheckIn,
	}
	for _, d := range order {
		b := byDate[d]
		if b.Total() <= 0 {
			continue
		}
		b.Deducted = deductByPriority(&b.Durations, DailyBreakDeduction)
		agg.Days = append(agg.Days, *b)
		agg.DaysWorked++
		agg.Normal += b.Normal
		agg.Special += b.Special
		agg.Holiday += b.Holiday
	}
	return agg
}

// deductByPriority removes up to amount from d, normal first, then special,
// then holiday. Returns how much was removed.
func deductByPriority(d *Durations, amount time.Duration) time.Duration {
	taken := time.Duration(0)
	for _, c := range Categories {
		if amount <= 0 {
			break
		}
		have := d.Get(c)
		take := min(have, amount)
		d.Add(c, -take)
		amount -= take
		taken += take
	}
	return taken
}

// overlap returns the length of [aStart,aEnd) ∩ [bStart,bEnd).
func overlap(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

// =============================================================================
// AGGREGATOR - Store-backed entry point
// =============================================================================

// Aggregator reads punches and aggregates them.
type Aggregator struct {
	Punches PunchReader
}

// Aggregate fetches the staff member's punches in the period and aggregates
// them. A shift that straddles a period boundary counts in neither period:
// its outside half is never fetched, so the inside half is unpaired.
func (a *Aggregator) Aggregate(ctx context.Context, staffID StaffID, period Period, policy Policy) (Aggregation, error) {
	events, err := a.Punches.FetchPunches(ctx, staffID, period.Start, period.End)
	if err != nil {
		return Aggregation{}, fmt.Errorf("fetch punches for %s: %w", staffID, err)
	}
	inPeriod := events[:0:0]
	for _, ev := range events {
		if period.Contains(ev.Timestamp) {
			inPeriod = append(inPeriod, ev)
		}
	}
	return AggregateEvents(inPeriod, policy), nil
}
