/*
types.go - Core domain types for the payroll engine

PURPOSE:
  Value types shared by every stage of the pipeline: staff profiles,
  punch events, work categories and the durations bucketed by category.
  Nothing in this file talks to storage.

KEY CONCEPTS:
  StaffProfile: The wage and deduction inputs for one employee.
                Roster management lives elsewhere; the engine only reads it.
  PunchEvent:   One check-in or check-out, ordered by server timestamp.
  Category:     normal | special | holiday, decided per shift.
  Durations:    Exact (unrounded) worked time per category.

SEE ALSO:
  - policy.go: Policy snapshot read by every stage
  - aggregate.go: Builds Durations from PunchEvents
  - pay.go: Turns Durations + StaffProfile into money
*/
package payroll

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StaffID identifies an employee.
type StaffID string

// =============================================================================
// PUNCH EVENTS
// =============================================================================

// Direction is the kind of punch.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// PunchEvent is one recorded check-in or check-out.
// Timestamp is assigned by the server and is authoritative for ordering;
// DeviceTimestamp is what the client clock said and is informational only.
type PunchEvent struct {
	ID              string
	StaffID         StaffID
	Direction       Direction
	Timestamp       time.Time
	DeviceTimestamp *time.Time
	IdempotencyKey  string
}

// =============================================================================
// CATEGORIES
// =============================================================================

// Category classifies worked time for pay purposes.
type Category string

const (
	CategoryNormal  Category = "normal"
	CategorySpecial Category = "special"
	CategoryHoliday Category = "holiday"
)

// Categories lists every category in deduction priority order.
var Categories = []Category{CategoryNormal, CategorySpecial, CategoryHoliday}

// Durations is worked time split by category.
type Durations struct {
	Normal  time.Duration
	Special time.Duration
	Holiday time.Duration
}

// Total returns the sum of all categories.
func (d Durations) Total() time.Duration {
	return d.Normal + d.Special + d.Holiday
}

// Get returns the duration for a category.
func (d Durations) Get(c Category) time.Duration {
	switch c {
	case CategorySpecial:
		return d.Special
	case CategoryHoliday:
		return d.Holiday
	default:
		return d.Normal
	}
}

// Add adds dur to the given category.
func (d *Durations) Add(c Category, dur time.Duration) {
	switch c {
	case CategorySpecial:
		d.Special += dur
	case CategoryHoliday:
		d.Holiday += dur
	default:
		d.Normal += dur
	}
}

// =============================================================================
// STAFF
// =============================================================================

// WageType selects how base pay is computed.
type WageType string

const (
	WageHourly WageType = "hourly"
	WageSalary WageType = "salary"
)

// DeductMethod selects how a monthly salary is prorated.
type DeductMethod string

const (
	DeductCalendar    DeductMethod = "calendar"     // salary / calendar days in month
	DeductFixed30     DeductMethod = "fixed30"      // salary / 30
	DeductWorking     DeductMethod = "working"      // salary / weekdays in month
	DeductWorkingHour DeductMethod = "working_hour" // salary / (weekdays * daily hours)
	DeductHourlyAvg   DeductMethod = "hourly_avg"   // salary / 173.8
	DeductWeekly      DeductMethod = "weekly"       // salary / (4.33 * 5)
	DeductNoWork      DeductMethod = "nowork"       // salary - calendar unit * absent days
	DeductNone        DeductMethod = "no_deduct"    // salary as-is
)

// DeductMethods lists every supported method.
var DeductMethods = []DeductMethod{
	DeductCalendar, DeductFixed30, DeductWorking, DeductWorkingHour,
	DeductHourlyAvg, DeductWeekly, DeductNoWork, DeductNone,
}

// StaffProfile carries the per-employee inputs the calculator needs.
// Exactly one of HourlyRate / MonthlySalary is meaningful, chosen by WageType.
type StaffProfile struct {
	ID            StaffID
	Name          string
	WageType      WageType
	HourlyRate    decimal.NullDecimal
	MonthlySalary decimal.NullDecimal
	DeductMethod  DeductMethod

	// Insured enables employment insurance.
	Insured bool

	// Fixed monthly amounts in yen.
	ResidentTax      decimal.Decimal
	WithholdingTax   decimal.Decimal
	HealthInsurance  decimal.Decimal
	Pension          decimal.Decimal
	CommuteAllowance decimal.Decimal

	Retired   bool
	RetiredOn *time.Time
}

// Validate checks that the wage configuration matches the wage type:
// exactly one of HourlyRate and MonthlySalary is set.
func (s StaffProfile) Validate() error {
	switch s.WageType {
	case WageHourly:
		if !s.HourlyRate.Valid || !s.HourlyRate.Decimal.IsPositive() {
			return &WageConfigError{StaffID: s.ID, WageType: s.WageType, Field: "hourly_rate"}
		}
		if s.MonthlySalary.Valid {
			return &WageConfigError{StaffID: s.ID, WageType: s.WageType, Field: "monthly_salary", Unexpected: true}
		}
	case WageSalary:
		if !s.MonthlySalary.Valid || !s.MonthlySalary.Decimal.IsPositive() {
			return &WageConfigError{StaffID: s.ID, WageType: s.WageType, Field: "monthly_salary"}
		}
		if s.HourlyRate.Valid {
			return &WageConfigError{StaffID: s.ID, WageType: s.WageType, Field: "hourly_rate", Unexpected: true}
		}
	default:
		return fmt.Errorf("%w: unknown wage type %q", ErrMissingWageConfiguration, s.WageType)
	}
	return nil
}

// Retire marks the staff as retired on the given date. Retiring an already
// retired staff keeps the original date.
func (s *StaffProfile) Retire(on time.Time) {
	if s.Retired {
		return
	}
	s.Retired = true
	s.RetiredOn = &on
}

// Rehire clears the retirement state.
func (s *StaffProfile) Rehire() {
	s.Retired = false
	s.RetiredOn = nil
}
