package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-sql/civil"

	"github.com/warp/payroll-engine/payroll"
)

// DefaultMaxShift is the longest shift accepted without a warning.
const DefaultMaxShift = 12 * time.Hour

// AnomalyKind names a shift problem.
type AnomalyKind string

const (
	AnomalyMissingCheckOut AnomalyKind = "missing_checkout"
	AnomalyLongShift       AnomalyKind = "long_shift"
)

// Anomaly is one suspicious shift.
type Anomaly struct {
	StaffID  payroll.StaffID
	Kind     AnomalyKind
	CheckIn  time.Time
	CheckOut *time.Time
	Duration time.Duration
}

func (a Anomaly) String() string {
	switch a.Kind {
	case AnomalyLongShift:
		return fmt.Sprintf("%s: shift from %s lasted %s", a.StaffID, a.CheckIn.Format(time.RFC3339), a.Duration)
	default:
		return fmt.Sprintf("%s: check-in at %s has no check-out", a.StaffID, a.CheckIn.Format(time.RFC3339))
	}
}

// CheckShifts pairs each staff member's punches and reports missing
// check-outs and shifts longer than maxShift. Events must be ordered by
// staff, then timestamp.
func CheckShifts(events []payroll.PunchEvent, maxShift time.Duration) []Anomaly {
	var anomalies []Anomaly
	for start := 0; start < len(events); {
		end := start
		for end < len(events) && events[end].StaffID == events[start].StaffID {
			end++
		}
		anomalies = append(anomalies, checkStaff(events[start:end], maxShift)...)
		start = end
	}
	return anomalies
}

func checkStaff(events []payroll.PunchEvent, maxShift time.Duration) []Anomaly {
	var anomalies []Anomaly
	var pending *payroll.PunchEvent

	for i := range events {
		ev := events[i]
		switch ev.Direction {
		case payroll.DirectionIn:
			if pending != nil {
				anomalies = append(anomalies, Anomaly{StaffID: pending.StaffID, Kind: AnomalyMissingCheckOut, CheckIn: pending.Timestamp})
			}
			pending = &ev
		case payroll.DirectionOut:
			if pending == nil {
				continue
			}
			if d := ev.Timestamp.Sub(pending.Timestamp); d > maxShift {
				out := ev.Timestamp
				anomalies = append(anomalies, Anomaly{
					StaffID:  ev.StaffID,
					Kind:     AnomalyLongShift,
					CheckIn:  pending.Timestamp,
					CheckOut: &out,
					Duration: d,
				})
			}
			pending = nil
		}
	}
	if pending != nil {
		anomalies = append(anomalies, Anomaly{StaffID: pending.StaffID, Kind: AnomalyMissingCheckOut, CheckIn: pending.Timestamp})
	}
	return anomalies
}

// Checker runs the daily shift check against a store.
type Checker struct {
	Punches  payroll.PunchStore
	MaxShift time.Duration
}

// NewChecker creates a checker with the default shift limit.
func NewChecker(punches payroll.PunchStore) *Checker {
	return &Checker{Punches: punches, MaxShift: DefaultMaxShift}
}

// CheckDay reports anomalies for shifts that started on day. Punches up to
// MaxShift after midnight are read so overnight check-outs are matched.
func (c *Checker) CheckDay(ctx context.Context, day civil.Date, loc *time.Location) ([]Anomaly, error) {
	from := day.In(loc)
	to := day.AddDays(1).In(loc)

	events, err := c.Punches.FetchAllPunches(ctx, from, to.Add(c.MaxShift))
	if err != nil {
		return nil, fmt.Errorf("fetch punches for %s: %w", day, err)
	}

	var result []Anomaly
	for _, a := range CheckShifts(events, c.MaxShift) {
		if !a.CheckIn.Before(from) && a.CheckIn.Before(to) {
			result = append(result, a)
		}
	}
	return result, nil
}
