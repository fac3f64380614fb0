/*
policy.go - Company payroll policy snapshot

PURPOSE:
  Policy is the value every stage of the pipeline reads: closing day,
  lunch window, weekly holidays, special date ranges and rates. It is
  passed by value into each computation; the "current" policy comes from
  PolicyStore.CurrentPolicy, so there is no ambient global.

DEFAULTS:
  When nothing is configured the engine uses DefaultPolicy(): closing
  day 31 (calendar months), lunch 12:00-13:00, no holidays, no special
  ranges, zero employment insurance, Asia/Tokyo.

CLASSIFICATION:
  A civil date is classified with precedence
    special range > weekly holiday > normal

SEE ALSO:
  - period.go: Uses ClosingDay and Location
  - aggregate.go: Uses Classify and LunchWindow
  - factory/policy.go: Builds Policy from JSON/YAML documents
*/
package payroll

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
)

// WorktimeRule selects how worked time is turned into payable hours.
type WorktimeRule string

const (
	// WorktimeRounded pays quarter-hour rounded hours.
	WorktimeRounded WorktimeRule = "rounded"
	// WorktimeRaw pays exact hours.
	WorktimeRaw WorktimeRule = "raw"
)

// Standard named special ranges. Any other name is allowed too.
const (
	RangeNewYear = "new_year"
	RangeBon     = "bon"
	RangeGW      = "gw"
)

// DefaultClosingDay is used when the configured closing day is invalid.
const DefaultClosingDay = 31

// DefaultTimezone is the zone civil dates are evaluated in.
const DefaultTimezone = "Asia/Tokyo"

// SpecialRange is an inclusive range of civil dates paid at the special rate.
type SpecialRange struct {
	Name  string
	Start civil.Date
	End   civil.Date
}

// Contains reports whether d is within [Start, End].
func (r SpecialRange) Contains(d civil.Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Policy is an immutable snapshot of payroll configuration.
type Policy struct {
	ClosingDay              int
	SpecialRate             decimal.Decimal
	EmploymentInsuranceRate decimal.Decimal
	LunchStart              civil.Time
	LunchEnd                civil.Time

	// WeeklyHolidays holds weekday indices, 0=Monday .. 6=Sunday.
	WeeklyHolidays []int
	SpecialRanges  []SpecialRange

	WorktimeRule          WorktimeRule
	IncludeCommuteInGross bool

	// DailyHours is the nominal working day used by the working_hour method.
	DailyHours decimal.Decimal

	Location *time.Location
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		ClosingDay:              DefaultClosingDay,
		SpecialRate:             decimal.NewFromInt(1),
		EmploymentInsuranceRate: decimal.Zero,
		LunchStart:              civil.Time{Hour: 12},
		LunchEnd:                civil.Time{Hour: 13},
		WorktimeRule:            WorktimeRounded,
		IncludeCommuteInGross:   true,
		DailyHours:              decimal.NewFromInt(8),
		Location:                DefaultLocation(),
	}
}

// DefaultLocation loads Asia/Tokyo, falling back to a fixed +09:00 zone
// when the tz database is unavailable.
func DefaultLocation() *time.Location {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

// EffectiveClosingDay returns the closing day clamped to 1..31.
// Anything outside that range falls back to 31.
func (p Policy) EffectiveClosingDay() int {
	if p.ClosingDay < 1 || p.ClosingDay > 31 {
		return DefaultClosingDay
	}
	return p.ClosingDay
}

// Loc returns the policy location, never nil.
func (p Policy) Loc() *time.Location {
	if p.Location == nil {
		return DefaultLocation()
	}
	return p.Location
}

// Classify returns the category for work started on d.
func (p Policy) Classify(d civil.Date) Category {
	for _, r := range p.SpecialRanges {
		if r.Contains(d) {
			return CategorySpecial
		}
	}
	idx := WeekdayIndex(d)
	for _, h := range p.WeeklyHolidays {
		if h == idx {
			return CategoryHoliday
		}
	}
	return CategoryNormal
}

// LunchWindow returns the lunch break on civil date d as absolute times.
func (p Policy) LunchWindow(d civil.Date) (time.Time, time.Time) {
	loc := p.Loc()
	start := civil.DateTime{Date: d, Time: p.LunchStart}.In(loc)
	end := civil.DateTime{Date: d, Time: p.LunchEnd}.In(loc)
	return start, end
}

// Validate checks a policy loaded from configuration.
func (p Policy) Validate() error {
	if p.SpecialRate.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: special rate %s is below 1.0", ErrInvalidPolicy, p.SpecialRate)
	}
	if p.EmploymentInsuranceRate.IsNegative() {
		return fmt.Errorf("%w: employment insurance rate is negative", ErrInvalidPolicy)
	}
	if !p.LunchStart.IsValid() || !p.LunchEnd.IsValid() {
		return fmt.Errorf("%w: lunch window times are invalid", ErrInvalidPolicy)
	}
	if !timeBefore(p.LunchStart, p.LunchEnd) {
		return fmt.Errorf("%w: lunch end %s is not after start %s", ErrInvalidPolicy, p.LunchEnd, p.LunchStart)
	}
	for _, h := range p.WeeklyHolidays {
		if h < 0 || h > 6 {
			return fmt.Errorf("%w: weekday index %d out of range 0..6", ErrInvalidPolicy, h)
		}
	}
	for _, r := range p.SpecialRanges {
		if r.End.Before(r.Start) {
			return fmt.Errorf("%w: range %q ends before it starts", ErrInvalidPolicy, r.Name)
		}
	}
	switch p.WorktimeRule {
	case WorktimeRounded, WorktimeRaw:
	default:
		return fmt.Errorf("%w: unknown worktime rule %q", ErrInvalidPolicy, p.WorktimeRule)
	}
	if !p.DailyHours.IsPositive() {
		return fmt.Errorf("%w: daily hours must be positive", ErrInvalidPolicy)
	}
	return nil
}

// Clone returns a copy that shares no slices with p.
func (p Policy) Clone() Policy {
	c := p
	c.WeeklyHolidays = append([]int(nil), p.WeeklyHolidays...)
	c.SpecialRanges = append([]SpecialRange(nil), p.SpecialRanges...)
	return c
}

// WeekdayIndex returns 0 for Monday through 6 for Sunday.
func WeekdayIndex(d civil.Date) int {
	return (int(d.In(time.UTC).Weekday()) + 6) % 7
}

func timeBefore(a, b civil.Time) bool {
	if a.Hour != b.Hour {
		return a.Hour < b.Hour
	}
	if a.Minute != b.Minute {
		return a.Minute < b.Minute
	}
	if a.Second != b.Second {
		return a.Second < b.Second
	}
	return a.Nanosecond < b.Nanosecond
}
