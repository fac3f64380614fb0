/*
pay.go - Pay Calculator: worked time + staff profile -> money

PURPOSE:
  Converts an Aggregation into gross pay, deductions and net pay for one
  staff member. All money is whole yen; every amount is floored
  independently so category totals never borrow from each other.

HOURLY STAFF:
  normal  = floor(rate * hours(normal))
  special = floor(rate * hours(special) * special rate)
  holiday = floor(rate * hours(holiday) * special rate)

SALARIED STAFF:
  base = floor(SalariedPay(...)); special and holiday are zero.

GROSS / NET:
  gross = base + special + holiday (+ commute when the policy says so)
  net   = gross - (employment insurance + health + pension
                   + resident tax + withholding tax)

SEE ALSO:
  - salary.go: The eight deduction methods
  - rounding.go: Quarter-hour rounding and yen flooring
*/
package payroll

import (
	"github.com/shopspring/decimal"
)

// Hours holds quarter-hour rounded hours for display and storage.
type Hours struct {
	Normal  decimal.Decimal
	Special decimal.Decimal
	Holiday decimal.Decimal
	Total   decimal.Decimal
}

// HoursOf rounds each category of d to quarter hours.
func HoursOf(d Durations) Hours {
	return Hours{
		Normal:  RoundQuarterHour(d.Normal),
		Special: RoundQuarterHour(d.Special),
		Holiday: RoundQuarterHour(d.Holiday),
		Total:   RoundQuarterHour(d.Total()),
	}
}

// Deductions are the amounts withheld from gross pay.
type Deductions struct {
	EmploymentInsurance int64
	HealthInsurance     int64
	Pension             int64
	ResidentTax         int64
	WithholdingTax      int64
}

// Total sums every deduction.
func (d Deductions) Total() int64 {
	return d.EmploymentInsurance + d.HealthInsurance + d.Pension + d.ResidentTax + d.WithholdingTax
}

// Breakdown is the full payroll result for one staff member and period.
type Breakdown struct {
	StaffID     StaffID
	Period      Period
	Aggregation Aggregation
	Hours       Hours

	BasePay          int64
	SpecialPay       int64
	HolidayPay       int64
	CommuteAllowance int64
	GrossPay         int64

	Deductions Deductions
	NetPay     int64
}

// Calculate prices an aggregation for staff under policy.
func Calculate(staff StaffProfile, period Period, agg Aggregation, policy Policy) (Breakdown, error) {
	if err := staff.Validate(); err != nil {
		return Breakdown{}, err
	}

	b := Breakdown{
		StaffID:     staff.ID,
		Period:      period,
		Aggregation: agg,
		Hours:       HoursOf(agg.Durations),
	}

	switch staff.WageType {
	case WageHourly:
		rate := staff.HourlyRate.Decimal
		premium := rate.Mul(policy.SpecialRate)
		b.BasePay = FloorYen(timesRate(rate, agg.Normal, policy.WorktimeRule))
		b.SpecialPay = FloorYen(timesRate(premium, agg.Special, policy.WorktimeRule))
		b.HolidayPay = FloorYen(timesRate(premium, agg.Holiday, policy.WorktimeRule))

	case WageSalary:
		cal := NewMonthCalendar(period.YearMonth, policy.DailyHours)
		hours := PayableHours(agg.Total(), policy.WorktimeRule)
		pay, err := SalariedPay(staff.MonthlySalary.Decimal, staff.DeductMethod, cal, agg.DaysWorked, hours)
		if err != nil {
			return Breakdown{}, err
		}
		b.BasePay = FloorYen(pay)
	}

	// Recorded either way; counted in gross only when the policy says so.
	b.CommuteAllowance = FloorYen(staff.CommuteAllowance)
	b.GrossPay = b.BasePay + b.SpecialPay + b.HolidayPay
	if policy.IncludeCommuteInGross {
		b.GrossPay += b.CommuteAllowance
	}

	if staff.Insured {
		b.Deductions.EmploymentInsurance = FloorYen(decimal.NewFromInt(b.GrossPay).Mul(policy.EmploymentInsuranceRate))
	}
	b.Deductions.HealthInsurance = FloorYen(staff.HealthInsurance)
	b.Deductions.Pension = FloorYen(staff.Pension)
	b.Deductions.ResidentTax = FloorYen(staff.ResidentTax)
	b.Deductions.WithholdingTax = FloorYen(staff.WithholdingTax)

	b.NetPay = b.GrossPay - b.Deductions.Total()
	return b, nil
}
