package factory

import (
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

const policyYAML = `
closing_day: 25
special_rate: 1.35
employment_insurance_rate: "0.006"
lunch_start: "11:30"
lunch_end: "12:30"
weekly_holidays: [5, 6]
special_ranges:
  - name: new_year
    start: 2025-12-29
    end: 2026-01-03
  - name: bon
    start: 2025-08-13
    end: 2025-08-16
worktime_rule: raw
include_commute_in_gross: false
`

func TestPolicyFactory_ParseYAML(t *testing.T) {
	p, err := NewPolicyFactory().ParseYAML([]byte(policyYAML))
	require.NoError(t, err)

	assert.Equal(t, 25, p.ClosingDay)
	assert.True(t, decimal.RequireFromString("1.35").Equal(p.SpecialRate))
	assert.True(t, decimal.RequireFromString("0.006").Equal(p.EmploymentInsuranceRate))
	assert.Equal(t, civil.Time{Hour: 11, Minute: 30}, p.LunchStart)
	assert.Equal(t, civil.Time{Hour: 12, Minute: 30}, p.LunchEnd)
	assert.Equal(t, []int{5, 6}, p.WeeklyHolidays)
	require.Len(t, p.SpecialRanges, 2)
	assert.Equal(t, payroll.RangeNewYear, p.SpecialRanges[0].Name)
	assert.Equal(t, civil.Date{Year: 2026, Month: 1, Day: 3}, p.SpecialRanges[0].End)
	assert.Equal(t, payroll.WorktimeRaw, p.WorktimeRule)
	assert.False(t, p.IncludeCommuteInGross)
}

func TestPolicyFactory_DefaultsForEmptyDocument(t *testing.T) {
	p, err := NewPolicyFactory().ParseJSON([]byte(`{}`))
	require.NoError(t, err)

	def := payroll.DefaultPolicy()
	assert.Equal(t, def.ClosingDay, p.ClosingDay)
	assert.Equal(t, def.LunchStart, p.LunchStart)
	assert.Equal(t, def.WorktimeRule, p.WorktimeRule)
	assert.True(t, p.IncludeCommuteInGross)
}

func TestPolicyFactory_DefaultLocation(t *testing.T) {
	utc := NewPolicyFactory()
	utc.Location = time.UTC

	p, err := utc.ParseJSON([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, time.UTC, p.Location)

	p, err = utc.ParseJSON([]byte(`{"timezone": "Asia/Tokyo"}`))
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", p.Location.String())
}

func TestPolicyFactory_ClampsClosingDay(t *testing.T) {
	p, err := NewPolicyFactory().ParseJSON([]byte(`{"closing_day": 45}`))
	require.NoError(t, err)
	assert.Equal(t, 31, p.ClosingDay)
}

func TestPolicyFactory_Rejects(t *testing.T) {
	cases := map[string]string{
		"special rate below one": `{"special_rate": "0.9"}`,
		"lunch reversed":         `{"lunch_start": "13:00", "lunch_end": "12:00"}`,
		"weekday out of range":   `{"weekly_holidays": [7]}`,
		"range reversed":         `{"special_ranges": [{"name": "gw", "start": "2025-05-06", "end": "2025-05-01"}]}`,
		"bad rule":               `{"worktime_rule": "ceil"}`,
		"bad number":             `{"special_rate": "abc"}`,
		"bad time":               `{"lunch_start": "noon"}`,
		"bad timezone":           `{"timezone": "Mars/Olympus"}`,
		"malformed json":         `{`,
	}
	for name, doc := range cases {
		_, err := NewPolicyFactory().ParseJSON([]byte(doc))
		assert.ErrorIs(t, err, payroll.ErrInvalidPolicy, name)
	}
}

func TestPolicyFactory_DocumentRoundTrip(t *testing.T) {
	f := NewPolicyFactory()
	p, err := f.ParseYAML([]byte(policyYAML))
	require.NoError(t, err)

	doc := f.ToDocument(p)
	assert.Equal(t, "11:30", doc.LunchStart)
	assert.Equal(t, "2025-12-29", doc.SpecialRanges[0].Start)

	again, err := f.Build(doc)
	require.NoError(t, err)
	assert.Equal(t, p.SpecialRanges, again.SpecialRanges)
	assert.True(t, p.SpecialRate.Equal(again.SpecialRate))
}

func TestStaffFactory_Build(t *testing.T) {
	f := NewStaffFactory(nil)

	s, err := f.ParseJSON([]byte(`{"id":"s1","name":"Sato","wage_type":"hourly","hourly_rate":"1200","commute_allowance":"5000","insured":true}`))
	require.NoError(t, err)
	assert.Equal(t, payroll.DeductNone, s.DeductMethod)
	assert.True(t, s.HourlyRate.Valid)
	assert.True(t, decimal.NewFromInt(5000).Equal(s.CommuteAllowance))

	_, err = f.ParseJSON([]byte(`{"id":"s2","wage_type":"salary"}`))
	assert.ErrorIs(t, err, payroll.ErrMissingWageConfiguration)

	_, err = f.ParseJSON([]byte(`{"id":"s3","wage_type":"salary","monthly_salary":"300000","deduct_method":"biweekly"}`))
	assert.ErrorIs(t, err, payroll.ErrUnsupportedDeductionMethod)
}

func TestStaffFactory_RejectsBothWageFields(t *testing.T) {
	f := NewStaffFactory(nil)

	_, err := f.Build(StaffDocument{ID: "s1", WageType: "hourly", HourlyRate: "1200", MonthlySalary: "300000"})
	require.ErrorIs(t, err, payroll.ErrMissingWageConfiguration)
	var wce *payroll.WageConfigError
	require.ErrorAs(t, err, &wce)
	assert.Equal(t, "monthly_salary", wce.Field)
	assert.True(t, wce.Unexpected)

	_, err = f.Build(StaffDocument{ID: "s2", WageType: "salary", MonthlySalary: "300000", HourlyRate: "1200"})
	require.ErrorAs(t, err, &wce)
	assert.Equal(t, "hourly_rate", wce.Field)
}

func TestStaffFactory_ParseRosterYAML(t *testing.T) {
	roster := `
staff:
  - id: s1
    name: Sato
    wage_type: hourly
    hourly_rate: "1100"
  - id: s2
    name: Suzuki
    wage_type: salary
    monthly_salary: "300000"
    deduct_method: working
    retired: true
    retired_on: 2025-03-31
`
	profiles, err := NewStaffFactory(nil).ParseRosterYAML([]byte(roster))
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, payroll.DeductWorking, profiles[1].DeductMethod)
	assert.True(t, profiles[1].Retired)
	require.NotNil(t, profiles[1].RetiredOn)
}
