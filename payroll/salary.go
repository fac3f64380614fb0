package payroll

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	hourlyAverageDivisor = decimal.RequireFromString("173.8")
	weeklyDivisor        = decimal.RequireFromString("4.33").Mul(decimal.NewFromInt(5))
	fixedMonthDays       = decimal.NewFromInt(30)
)

// MonthCalendar is the day and hour counts the salary methods divide by.
type MonthCalendar struct {
	CalendarDays int
	WorkingDays  int // Monday..Friday
	WorkingHours decimal.Decimal
}

// NewMonthCalendar builds the calendar for ym with dailyHours per weekday.
func NewMonthCalendar(ym YearMonth, dailyHours decimal.Decimal) MonthCalendar {
	days := ym.DaysInMonth()
	working := 0
	for day := 1; day <= days; day++ {
		switch time.Date(ym.Year, ym.Month, day, 0, 0, 0, 0, time.UTC).Weekday() {
		case time.Saturday, time.Sunday:
		default:
			working++
		}
	}
	return MonthCalendar{
		CalendarDays: days,
		WorkingDays:  working,
		WorkingHours: dailyHours.Mul(decimal.NewFromInt(int64(working))),
	}
}

// unitBasis says what a salary unit is multiplied by.
type unitBasis int

const (
	basisNone unitBasis = iota
	basisDay
	basisHour
)

// SalaryUnit returns the per-day or per-hour amount for method, rounded to
// two decimals. no_deduct has no unit and returns the salary itself.
func SalaryUnit(salary decimal.Decimal, method DeductMethod, cal MonthCalendar) (decimal.Decimal, error) {
	unit, _, err := salaryUnit(salary, method, cal)
	return unit, err
}

func salaryUnit(salary decimal.Decimal, method DeductMethod, cal MonthCalendar) (decimal.Decimal, unitBasis, error) {
	var divisor decimal.Decimal
	basis := basisDay

	switch method {
	case DeductCalendar, DeductNoWork:
		divisor = decimal.NewFromInt(int64(cal.CalendarDays))
	case DeductFixed30:
		divisor = fixedMonthDays
	case DeductWorking:
		divisor = decimal.NewFromInt(int64(cal.WorkingDays))
	case DeductWeekly:
		divisor = weeklyDivisor
	case DeductWorkingHour:
		divisor = cal.WorkingHours
		basis = basisHour
	case DeductHourlyAvg:
		divisor = hourlyAverageDivisor
		basis = basisHour
	case DeductNone:
		return salary, basisNone, nil
	default:
		return decimal.Zero, basisNone, fmt.Errorf("%w: %q", ErrUnsupportedDeductionMethod, method)
	}

	if !divisor.IsPositive() {
		return decimal.Zero, basisNone, fmt.Errorf("%w: %s has no divisor for this month", ErrUnsupportedDeductionMethod, method)
	}
	return roundUnit(salary.Div(divisor)), basis, nil
}

// SalariedPay prorates a monthly salary.
//
//	day methods:  unit * workedDays
//	hour methods: unit * workedHours
//	nowork:       salary - unit * (calendar days - workedDays)
//	no_deduct:    salary
func SalariedPay(salary decimal.Decimal, method DeductMethod, cal MonthCalendar, workedDays int, workedHours decimal.Decimal) (decimal.Decimal, error) {
	unit, basis, err := salaryUnit(salary, method, cal)
	if err != nil {
		return decimal.Zero, err
	}

	var pay decimal.Decimal
	switch {
	case method == DeductNone:
		pay = salary
	case method == DeductNoWork:
		absent := cal.CalendarDays - workedDays
		if absent < 0 {
			absent = 0
		}
		pay = salary.Sub(unit.Mul(decimal.NewFromInt(int64(absent))))
	case basis == basisHour:
		pay = unit.Mul(workedHours)
	default:
		pay = unit.Mul(decimal.NewFromInt(int64(workedDays)))
	}

	if pay.IsNegative() {
		return decimal.Zero, nil
	}
	return pay, nil
}
