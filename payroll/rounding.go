package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	hourNanos = decimal.NewFromInt(int64(time.Hour))
	four      = decimal.NewFromInt(4)
)

// RoundQuarterHour converts d to hours rounded to the nearest quarter hour,
// halves rounding up: 8h37m -> 8.50, 8h45m -> 8.75.
func RoundQuarterHour(d time.Duration) decimal.Decimal {
	if d <= 0 {
		return decimal.Zero
	}
	quarters := decimal.NewFromInt(int64(d)).Mul(four).Div(hourNanos).Round(0)
	return quarters.Div(four)
}

// ExactHours converts d to hours without rounding.
func ExactHours(d time.Duration) decimal.Decimal {
	if d <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(d)).Div(hourNanos)
}

// PayableHours returns hours under the given rule.
func PayableHours(d time.Duration, rule WorktimeRule) decimal.Decimal {
	if rule == WorktimeRaw {
		return ExactHours(d)
	}
	return RoundQuarterHour(d)
}

// timesRate multiplies rate by d under the rule. The raw path multiplies
// before dividing so whole-yen results are not lost to a repeating fraction.
func timesRate(rate decimal.Decimal, d time.Duration, rule WorktimeRule) decimal.Decimal {
	if d <= 0 {
		return decimal.Zero
	}
	if rule == WorktimeRaw {
		return rate.Mul(decimal.NewFromInt(int64(d))).Div(hourNanos)
	}
	return rate.Mul(RoundQuarterHour(d))
}

// FloorYen truncates an amount to whole yen. Negative amounts become zero.
func FloorYen(v decimal.Decimal) int64 {
	if !v.IsPositive() {
		return 0
	}
	return v.Floor().IntPart()
}

// roundUnit rounds a salary unit to two decimals, halves up.
func roundUnit(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}
