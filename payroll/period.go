package payroll

import (
	"fmt"
	"time"

	"github.com/golang-sql/civil"
)

// =============================================================================
// YEAR-MONTH - The identifier of a billing period
// =============================================================================

// YearMonth names a billing month, written YYYYMM.
type YearMonth struct {
	Year  int
	Month time.Month
}

// ParseYearMonth parses a six-digit YYYYMM identifier.
func ParseYearMonth(s string) (YearMonth, error) {
	if len(s) != 6 {
		return YearMonth{}, fmt.Errorf("%w: %q is not YYYYMM", ErrInvalidPeriodIdentifier, s)
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return YearMonth{}, fmt.Errorf("%w: %q is not YYYYMM", ErrInvalidPeriodIdentifier, s)
		}
		n = n*10 + int(c-'0')
	}
	ym := YearMonth{Year: n / 100, Month: time.Month(n % 100)}
	if ym.Month < time.January || ym.Month > time.December {
		return YearMonth{}, fmt.Errorf("%w: month %02d out of range", ErrInvalidPeriodIdentifier, int(ym.Month))
	}
	return ym, nil
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d%02d", ym.Year, int(ym.Month))
}

// AddMonths returns the year-month n months later (n may be negative).
func (ym YearMonth) AddMonths(n int) YearMonth {
	t := time.Date(ym.Year, ym.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// DaysInMonth returns the number of calendar days in the month.
func (ym YearMonth) DaysInMonth() int {
	return time.Date(ym.Year, ym.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// =============================================================================
// PERIOD - Half-open [Start, End) in the policy location
// =============================================================================

// Period is the time window a payroll month covers.
type Period struct {
	YearMonth YearMonth
	Start     time.Time
	End       time.Time
}

// Contains reports whether t is within [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Dates returns every civil date the period covers.
func (p Period) Dates() []civil.Date {
	var dates []civil.Date
	last := civil.DateOf(p.End.Add(-time.Nanosecond))
	for d := civil.DateOf(p.Start); !d.After(last); d = d.AddDays(1) {
		dates = append(dates, d)
	}
	return dates
}

func (p Period) String() string {
	return fmt.Sprintf("%s [%s, %s)", p.YearMonth, p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
}

// ResolvePeriod returns the window for ym under the policy's closing day.
//
//	closing day >= 28: the calendar month
//	otherwise:         previous month (closing+1) .. this month (closing+1)
func ResolvePeriod(ym YearMonth, policy Policy) Period {
	loc := policy.Loc()
	closing := policy.EffectiveClosingDay()

	if closing >= 28 {
		start := time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, loc)
		return Period{YearMonth: ym, Start: start, End: start.AddDate(0, 1, 0)}
	}

	prev := ym.AddMonths(-1)
	return Period{
		YearMonth: ym,
		Start:     time.Date(prev.Year, prev.Month, closing+1, 0, 0, 0, 0, loc),
		End:       time.Date(ym.Year, ym.Month, closing+1, 0, 0, 0, 0, loc),
	}
}

// ResolvePeriodString parses s and resolves it.
func ResolvePeriodString(s string, policy Policy) (Period, error) {
	ym, err := ParseYearMonth(s)
	if err != nil {
		return Period{}, err
	}
	return ResolvePeriod(ym, policy), nil
}

// PeriodContaining returns the billing month that civil date d belongs to.
func PeriodContaining(d civil.Date, policy Policy) YearMonth {
	ym := YearMonth{Year: d.Year, Month: d.Month}
	closing := policy.EffectiveClosingDay()
	if closing < 28 && d.Day > closing {
		return ym.AddMonths(1)
	}
	return ym
}

// IsClosingDay reports whether d is the last day of a billing period.
// Closing days of 28 and later use calendar months, so only the last day
// of the month closes them.
func IsClosingDay(d civil.Date, policy Policy) bool {
	closing := policy.EffectiveClosingDay()
	if closing >= 28 {
		return d.Day == YearMonth{Year: d.Year, Month: d.Month}.DaysInMonth()
	}
	return d.Day == closing
}
