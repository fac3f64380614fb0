package payroll

import (
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jst = time.FixedZone("JST", 9*60*60)

func policyWithClosing(day int) Policy {
	p := DefaultPolicy()
	p.ClosingDay = day
	p.Location = jst
	return p
}

func TestParseYearMonth_Valid(t *testing.T) {
	ym, err := ParseYearMonth("202503")
	require.NoError(t, err)
	assert.Equal(t, 2025, ym.Year)
	assert.Equal(t, time.March, ym.Month)
	assert.Equal(t, "202503", ym.String())
}

func TestParseYearMonth_Invalid(t *testing.T) {
	for _, in := range []string{"", "2025", "2025-03", "20250", "2025031", "2025ab", "202513", "202500", "２０２５０３"} {
		_, err := ParseYearMonth(in)
		assert.ErrorIs(t, err, ErrInvalidPeriodIdentifier, "input %q", in)
	}
}

func TestResolvePeriod_ClosingDay25(t *testing.T) {
	// GIVEN: Closing day 25
	// WHEN: Resolving 202503
	// THEN: [2025-02-26 00:00, 2025-03-26 00:00)

	p := ResolvePeriod(YearMonth{2025, time.March}, policyWithClosing(25))

	assert.Equal(t, time.Date(2025, 2, 26, 0, 0, 0, 0, jst), p.Start)
	assert.Equal(t, time.Date(2025, 3, 26, 0, 0, 0, 0, jst), p.End)
	assert.True(t, p.Contains(time.Date(2025, 3, 25, 23, 59, 59, 0, jst)))
	assert.False(t, p.Contains(p.End), "end is exclusive")
}

func TestResolvePeriod_ClosingDay31_February(t *testing.T) {
	p := ResolvePeriod(YearMonth{2025, time.February}, policyWithClosing(31))

	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, jst), p.Start)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, jst), p.End)
	assert.Len(t, p.Dates(), 28)
}

func TestResolvePeriod_ClosingDay28IsCalendarMonth(t *testing.T) {
	p := ResolvePeriod(YearMonth{2024, time.February}, policyWithClosing(28))

	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, jst), p.Start)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, jst), p.End)
	assert.Len(t, p.Dates(), 29)
}

func TestResolvePeriod_JanuaryCrossesYear(t *testing.T) {
	p := ResolvePeriod(YearMonth{2025, time.January}, policyWithClosing(20))

	assert.Equal(t, time.Date(2024, 12, 21, 0, 0, 0, 0, jst), p.Start)
	assert.Equal(t, time.Date(2025, 1, 21, 0, 0, 0, 0, jst), p.End)
}

func TestResolvePeriod_InvalidClosingDayFallsBackTo31(t *testing.T) {
	for _, day := range []int{0, -3, 32, 99} {
		p := ResolvePeriod(YearMonth{2025, time.April}, policyWithClosing(day))
		assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, jst), p.Start, "closing %d", day)
		assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, jst), p.End, "closing %d", day)
	}
}

func TestResolvePeriodString_RejectsBadIdentifier(t *testing.T) {
	_, err := ResolvePeriodString("2025-3", policyWithClosing(25))
	assert.ErrorIs(t, err, ErrInvalidPeriodIdentifier)
}

func TestPeriodContaining(t *testing.T) {
	p25 := policyWithClosing(25)
	assert.Equal(t, "202503", PeriodContaining(civil.Date{Year: 2025, Month: 3, Day: 25}, p25).String())
	assert.Equal(t, "202504", PeriodContaining(civil.Date{Year: 2025, Month: 3, Day: 26}, p25).String())
	assert.Equal(t, "202501", PeriodContaining(civil.Date{Year: 2024, Month: 12, Day: 31}, p25).String())

	p31 := policyWithClosing(31)
	assert.Equal(t, "202412", PeriodContaining(civil.Date{Year: 2024, Month: 12, Day: 31}, p31).String())
}

func TestIsClosingDay_ShortMonthUsesLastDay(t *testing.T) {
	p := policyWithClosing(31)

	assert.True(t, IsClosingDay(civil.Date{Year: 2025, Month: 2, Day: 28}, p))
	assert.False(t, IsClosingDay(civil.Date{Year: 2025, Month: 2, Day: 27}, p))
	assert.True(t, IsClosingDay(civil.Date{Year: 2025, Month: 4, Day: 30}, p))
	assert.True(t, IsClosingDay(civil.Date{Year: 2025, Month: 5, Day: 31}, p))
	assert.False(t, IsClosingDay(civil.Date{Year: 2025, Month: 5, Day: 30}, p))

	p25 := policyWithClosing(25)
	assert.True(t, IsClosingDay(civil.Date{Year: 2025, Month: 2, Day: 25}, p25))

	// 28..30 resolve to calendar months, so the 28th is not a closing day
	// in March but the 31st is.
	p28 := policyWithClosing(28)
	assert.False(t, IsClosingDay(civil.Date{Year: 2025, Month: 3, Day: 28}, p28))
	assert.False(t, IsClosingDay(civil.Date{Year: 2025, Month: 3, Day: 30}, p28))
	assert.True(t, IsClosingDay(civil.Date{Year: 2025, Month: 3, Day: 31}, p28))
	assert.True(t, IsClosingDay(civil.Date{Year: 2025, Month: 2, Day: 28}, p28))

	period := ResolvePeriod(YearMonth{Year: 2025, Month: 3}, p28)
	lastDay := civil.DateOf(period.End.Add(-time.Nanosecond).In(p28.Loc()))
	assert.True(t, IsClosingDay(lastDay, p28))
}
