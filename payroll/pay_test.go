package payroll

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func hourlyStaff(rate int64) StaffProfile {
	return StaffProfile{
		ID:         "s1",
		WageType:   WageHourly,
		HourlyRate: decimal.NewNullDecimal(decimal.NewFromInt(rate)),
	}
}

func salariedStaff(salary int64, method DeductMethod) StaffProfile {
	return StaffProfile{
		ID:            "s2",
		WageType:      WageSalary,
		MonthlySalary: decimal.NewNullDecimal(decimal.NewFromInt(salary)),
		DeductMethod:  method,
	}
}

var march2025 = YearMonth{2025, time.March}

// =============================================================================
// ROUNDING
// =============================================================================

func TestRoundQuarterHour(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{8*time.Hour + 37*time.Minute, "8.5"},
		{8*time.Hour + 45*time.Minute, "8.75"},
		{7*time.Minute + 30*time.Second, "0.25"}, // exact half rounds up
		{7*time.Minute + 29*time.Second, "0"},
		{52*time.Minute + 30*time.Second, "1"},
		{0, "0"},
		{-time.Hour, "0"},
	}
	for _, c := range cases {
		assert.True(t, dec(c.want).Equal(RoundQuarterHour(c.d)), "%s -> %s, got %s", c.d, c.want, RoundQuarterHour(c.d))
	}
}

func TestFloorYen(t *testing.T) {
	assert.Equal(t, int64(10), FloorYen(dec("10.99")))
	assert.Equal(t, int64(0), FloorYen(dec("-5.5")))
}

// =============================================================================
// HOURLY
// =============================================================================

func TestCalculate_HourlyRoundedQuarterHours(t *testing.T) {
	// GIVEN: Hourly 1200 yen, 8h37m of normal time
	// WHEN: Calculating under the rounded rule
	// THEN: 8.50h * 1200 = 10200

	agg := Aggregation{Durations: Durations{Normal: 8*time.Hour + 37*time.Minute}, DaysWorked: 1}
	p := policyWithClosing(31)

	b, err := Calculate(hourlyStaff(1200), ResolvePeriod(march2025, p), agg, p)
	require.NoError(t, err)

	assert.Equal(t, int64(10200), b.BasePay)
	assert.Equal(t, int64(10200), b.GrossPay)
	assert.Equal(t, int64(10200), b.NetPay)
	assert.True(t, dec("8.5").Equal(b.Hours.Normal))
}

func TestCalculate_HourlySpecialAndHolidayFlooredSeparately(t *testing.T) {
	// 1001 * 1.35 = 1351.35/h
	// special 1.25h -> 1689.1875 -> 1689
	// holiday 0.75h -> 1013.5125 -> 1013
	p := policyWithClosing(31)
	p.SpecialRate = dec("1.35")
	agg := Aggregation{Durations: Durations{
		Normal:  2 * time.Hour,
		Special: 1*time.Hour + 15*time.Minute,
		Holiday: 45 * time.Minute,
	}}

	b, err := Calculate(hourlyStaff(1001), ResolvePeriod(march2025, p), agg, p)
	require.NoError(t, err)

	assert.Equal(t, int64(2002), b.BasePay)
	assert.Equal(t, int64(1689), b.SpecialPay)
	assert.Equal(t, int64(1013), b.HolidayPay)
	assert.Equal(t, int64(2002+1689+1013), b.GrossPay)
}

func TestCalculate_HourlyRawRule(t *testing.T) {
	// 20 minutes at 1200/h is exactly 400 under raw, 0.25h -> 300 under rounded
	p := policyWithClosing(31)
	agg := Aggregation{Durations: Durations{Normal: 20 * time.Minute}}

	p.WorktimeRule = WorktimeRaw
	raw, err := Calculate(hourlyStaff(1200), ResolvePeriod(march2025, p), agg, p)
	require.NoError(t, err)
	assert.Equal(t, int64(400), raw.BasePay)

	p.WorktimeRule = WorktimeRounded
	rounded, err := Calculate(hourlyStaff(1200), ResolvePeriod(march2025, p), agg, p)
	require.NoError(t, err)
	assert.Equal(t, int64(300), rounded.BasePay)
}

func TestCalculate_MissingHourlyRate(t *testing.T) {
	s := hourlyStaff(0)
	s.HourlyRate = decimal.NullDecimal{}
	p := policyWithClosing(31)

	_, err := Calculate(s, ResolvePeriod(march2025, p), Aggregation{}, p)

	assert.ErrorIs(t, err, ErrMissingWageConfiguration)
	var wErr *WageConfigError
	require.ErrorAs(t, err, &wErr)
	assert.Equal(t, "hourly_rate", wErr.Field)
}

func TestCalculate_MissingSalary(t *testing.T) {
	s := salariedStaff(0, DeductNone)
	p := policyWithClosing(31)
	_, err := Calculate(s, ResolvePeriod(march2025, p), Aggregation{}, p)
	assert.ErrorIs(t, err, ErrMissingWageConfiguration)
}

// =============================================================================
// SALARIED
// =============================================================================

func TestCalculate_SalariedNoDeduct(t *testing.T) {
	p := policyWithClosing(31)
	b, err := Calculate(salariedStaff(300000, DeductNone), ResolvePeriod(march2025, p), Aggregation{}, p)
	require.NoError(t, err)
	assert.Equal(t, int64(300000), b.BasePay)
	assert.Zero(t, b.SpecialPay)
	assert.Zero(t, b.HolidayPay)
}

func TestNewMonthCalendar(t *testing.T) {
	cal := NewMonthCalendar(march2025, decimal.NewFromInt(8))
	assert.Equal(t, 31, cal.CalendarDays)
	assert.Equal(t, 21, cal.WorkingDays)
	assert.True(t, decimal.NewFromInt(168).Equal(cal.WorkingHours))

	feb := NewMonthCalendar(YearMonth{2024, time.February}, decimal.NewFromInt(8))
	assert.Equal(t, 29, feb.CalendarDays)
	assert.Equal(t, 21, feb.WorkingDays)
}

func TestSalariedPay_Methods(t *testing.T) {
	// March 2025: 31 calendar days, 21 weekdays, 168 working hours
	cal := NewMonthCalendar(march2025, decimal.NewFromInt(8))
	salary := decimal.NewFromInt(300000)
	days := 20
	hours := decimal.NewFromInt(160)

	cases := []struct {
		method DeductMethod
		unit   string
		pay    string
	}{
		{DeductCalendar, "9677.42", "193548.4"},      // 300000/31
		{DeductFixed30, "10000", "200000"},           // 300000/30
		{DeductWorking, "14285.71", "285714.2"},      // 300000/21
		{DeductWorkingHour, "1785.71", "285713.6"},   // 300000/168 per hour
		{DeductHourlyAvg, "1726.12", "276179.2"},     // 300000/173.8 per hour
		{DeductWeekly, "13856.81", "277136.2"},       // 300000/21.65
		{DeductNoWork, "9677.42", "193548.38"},       // 300000 - 9677.42*11
		{DeductNone, "300000", "300000"},
	}
	for _, c := range cases {
		unit, err := SalaryUnit(salary, c.method, cal)
		require.NoError(t, err, c.method)
		assert.True(t, dec(c.unit).Equal(unit), "%s unit: want %s got %s", c.method, c.unit, unit)

		pay, err := SalariedPay(salary, c.method, cal, days, hours)
		require.NoError(t, err, c.method)
		assert.True(t, dec(c.pay).Equal(pay), "%s pay: want %s got %s", c.method, c.pay, pay)
	}
}

func TestSalariedPay_UnknownMethod(t *testing.T) {
	cal := NewMonthCalendar(march2025, decimal.NewFromInt(8))
	_, err := SalariedPay(decimal.NewFromInt(300000), DeductMethod("biweekly"), cal, 10, decimal.Zero)
	assert.ErrorIs(t, err, ErrUnsupportedDeductionMethod)
}

func TestSalariedPay_NoWorkNeverNegative(t *testing.T) {
	cal := NewMonthCalendar(march2025, decimal.NewFromInt(8))
	pay, err := SalariedPay(decimal.NewFromInt(300000), DeductNoWork, cal, 40, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(300000).Equal(pay), "absent days clamp at zero")
}

func TestCalculate_SalariedUsesDaysWorked(t *testing.T) {
	p := policyWithClosing(31)
	agg := Aggregation{Durations: Durations{Normal: 80 * time.Hour}, DaysWorked: 10}

	b, err := Calculate(salariedStaff(300000, DeductFixed30), ResolvePeriod(march2025, p), agg, p)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), b.BasePay)
}

// =============================================================================
// GROSS / DEDUCTIONS / NET
// =============================================================================

func TestCalculate_DeductionsAndNet(t *testing.T) {
	// GIVEN: Hourly 1000, 100h, commute 5000, insured at 0.006
	// THEN: gross 105000, EI floor(630) = 630, net = gross - all deductions

	p := policyWithClosing(31)
	p.EmploymentInsuranceRate = dec("0.006")

	s := hourlyStaff(1000)
	s.Insured = true
	s.CommuteAllowance = decimal.NewFromInt(5000)
	s.HealthInsurance = dec("4900.9")
	s.Pension = decimal.NewFromInt(9000)
	s.ResidentTax = decimal.NewFromInt(3000)
	s.WithholdingTax = decimal.NewFromInt(2000)

	agg := Aggregation{Durations: Durations{Normal: 100 * time.Hour}}
	b, err := Calculate(s, ResolvePeriod(march2025, p), agg, p)
	require.NoError(t, err)

	assert.Equal(t, int64(5000), b.CommuteAllowance)
	assert.Equal(t, int64(105000), b.GrossPay)
	assert.Equal(t, int64(630), b.Deductions.EmploymentInsurance)
	assert.Equal(t, int64(4900), b.Deductions.HealthInsurance)
	assert.Equal(t, int64(630+4900+9000+3000+2000), b.Deductions.Total())
	assert.Equal(t, b.GrossPay-b.Deductions.Total(), b.NetPay)
}

func TestCalculate_UninsuredAndCommuteExcluded(t *testing.T) {
	p := policyWithClosing(31)
	p.EmploymentInsuranceRate = dec("0.006")
	p.IncludeCommuteInGross = false

	s := hourlyStaff(1000)
	s.CommuteAllowance = decimal.NewFromInt(5000)

	b, err := Calculate(s, ResolvePeriod(march2025, p), Aggregation{Durations: Durations{Normal: 10 * time.Hour}}, p)
	require.NoError(t, err)

	assert.Equal(t, int64(5000), b.CommuteAllowance)
	assert.Equal(t, int64(10000), b.GrossPay)
	assert.Zero(t, b.Deductions.EmploymentInsurance)
	assert.Equal(t, int64(10000), b.NetPay)
}
