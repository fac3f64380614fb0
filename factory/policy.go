/*
Package factory converts policy and staff documents into engine types.

PURPOSE:
  Payroll policy is edited by people, not code. The factory reads a
  JSON (HTTP API) or YAML (operator files) document, fills defaults,
  validates it and returns a payroll.Policy value. The reverse
  direction (ToDocument) is used to show the active policy.

DOCUMENT SCHEMA (YAML shown, JSON uses the same keys):
  closing_day: 25
  special_rate: "1.35"
  employment_insurance_rate: "0.006"
  lunch_start: "12:00"
  lunch_end: "13:00"
  weekly_holidays: [5, 6]          # 0=Monday .. 6=Sunday
  special_ranges:
    - name: new_year
      start: 2025-12-29
      end: 2026-01-03
  worktime_rule: rounded           # rounded | raw
  include_commute_in_gross: true
  daily_hours: "8"
  timezone: Asia/Tokyo

DEFAULTS:
  Anything omitted takes its value from payroll.DefaultPolicy(). A
  closing day outside 1..31 becomes 31.

USAGE:
  f := factory.NewPolicyFactory()
  policy, err := f.ParseYAML(data)

SEE ALSO:
  - payroll/policy.go: Policy type and Validate
  - staff.go: Staff documents
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// PolicyDocument is the serialized form of a payroll policy.
type PolicyDocument struct {
	ClosingDay              int                    `json:"closing_day,omitempty" yaml:"closing_day,omitempty"`
	SpecialRate             string                 `json:"special_rate,omitempty" yaml:"special_rate,omitempty"`
	EmploymentInsuranceRate string                 `json:"employment_insurance_rate,omitempty" yaml:"employment_insurance_rate,omitempty"`
	LunchStart              string                 `json:"lunch_start,omitempty" yaml:"lunch_start,omitempty"`
	LunchEnd                string                 `json:"lunch_end,omitempty" yaml:"lunch_end,omitempty"`
	WeeklyHolidays          []int                  `json:"weekly_holidays" yaml:"weekly_holidays"`
	SpecialRanges           []SpecialRangeDocument `json:"special_ranges" yaml:"special_ranges"`
	WorktimeRule            string                 `json:"worktime_rule,omitempty" yaml:"worktime_rule,omitempty"`
	IncludeCommuteInGross   *bool                  `json:"include_commute_in_gross,omitempty" yaml:"include_commute_in_gross,omitempty"`
	DailyHours              string                 `json:"daily_hours,omitempty" yaml:"daily_hours,omitempty"`
	Timezone                string                 `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// SpecialRangeDocument is one named inclusive date range, dates as YYYY-MM-DD.
type SpecialRangeDocument struct {
	Name  string `json:"name" yaml:"name"`
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts policy documents to payroll.Policy.
type PolicyFactory struct {
	// Location is used when a document names no timezone. Nil means
	// payroll.DefaultLocation.
	Location *time.Location
}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParseJSON parses a JSON policy document.
func (f *PolicyFactory) ParseJSON(data []byte) (payroll.Policy, error) {
	var doc PolicyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return payroll.Policy{}, fmt.Errorf("%w: invalid JSON: %v", payroll.ErrInvalidPolicy, err)
	}
	return f.Build(doc)
}

// ParseYAML parses a YAML policy document.
func (f *PolicyFactory) ParseYAML(data []byte) (payroll.Policy, error) {
	var doc PolicyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return payroll.Policy{}, fmt.Errorf("%w: invalid YAML: %v", payroll.ErrInvalidPolicy, err)
	}
	return f.Build(doc)
}

// Build turns a document into a validated policy.
func (f *PolicyFactory) Build(doc PolicyDocument) (payroll.Policy, error) {
	p := payroll.DefaultPolicy()
	if f.Location != nil {
		p.Location = f.Location
	}

	if doc.ClosingDay != 0 {
		p.ClosingDay = doc.ClosingDay
	}
	p.ClosingDay = p.EffectiveClosingDay()

	var err error
	if p.SpecialRate, err = parseDecimal("special_rate", doc.SpecialRate, p.SpecialRate); err != nil {
		return payroll.Policy{}, err
	}
	if p.EmploymentInsuranceRate, err = parseDecimal("employment_insurance_rate", doc.EmploymentInsuranceRate, p.EmploymentInsuranceRate); err != nil {
		return payroll.Policy{}, err
	}
	if p.DailyHours, err = parseDecimal("daily_hours", doc.DailyHours, p.DailyHours); err != nil {
		return payroll.Policy{}, err
	}
	if p.LunchStart, err = parseClock("lunch_start", doc.LunchStart, p.LunchStart); err != nil {
		return payroll.Policy{}, err
	}
	if p.LunchEnd, err = parseClock("lunch_end", doc.LunchEnd, p.LunchEnd); err != nil {
		return payroll.Policy{}, err
	}

	p.WeeklyHolidays = append([]int(nil), doc.WeeklyHolidays...)

	for _, rd := range doc.SpecialRanges {
		r, err := parseRange(rd)
		if err != nil {
			return payroll.Policy{}, err
		}
		p.SpecialRanges = append(p.SpecialRanges, r)
	}

	if doc.WorktimeRule != "" {
		p.WorktimeRule = payroll.WorktimeRule(doc.WorktimeRule)
	}
	if doc.IncludeCommuteInGross != nil {
		p.IncludeCommuteInGross = *doc.IncludeCommuteInGross
	}
	if doc.Timezone != "" {
		loc, err := time.LoadLocation(doc.Timezone)
		if err != nil {
			return payroll.Policy{}, fmt.Errorf("%w: unknown timezone %q", payroll.ErrInvalidPolicy, doc.Timezone)
		}
		p.Location = loc
	}

	if err := p.Validate(); err != nil {
		return payroll.Policy{}, err
	}
	return p, nil
}

// ToDocument converts a policy back to its document form.
func (f *PolicyFactory) ToDocument(p payroll.Policy) PolicyDocument {
	include := p.IncludeCommuteInGross
	doc := PolicyDocument{
		ClosingDay:              p.EffectiveClosingDay(),
		SpecialRate:             p.SpecialRate.String(),
		EmploymentInsuranceRate: p.EmploymentInsuranceRate.String(),
		LunchStart:              formatClock(p.LunchStart),
		LunchEnd:                formatClock(p.LunchEnd),
		WeeklyHolidays:          append([]int{}, p.WeeklyHolidays...),
		SpecialRanges:           []SpecialRangeDocument{},
		WorktimeRule:            string(p.WorktimeRule),
		IncludeCommuteInGross:   &include,
		DailyHours:              p.DailyHours.String(),
		Timezone:                p.Loc().String(),
	}
	for _, r := range p.SpecialRanges {
		doc.SpecialRanges = append(doc.SpecialRanges, SpecialRangeDocument{
			Name:  r.Name,
			Start: r.Start.String(),
			End:   r.End.String(),
		})
	}
	return doc
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDecimal(field, s string, fallback decimal.Decimal) (decimal.Decimal, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q is not a number", payroll.ErrInvalidPolicy, field, s)
	}
	return d, nil
}

// parseClock accepts HH:MM or HH:MM:SS.
func parseClock(field, s string, fallback civil.Time) (civil.Time, error) {
	if s == "" {
		return fallback, nil
	}
	if strings.Count(s, ":") == 1 {
		s += ":00"
	}
	t, err := civil.ParseTime(s)
	if err != nil {
		return civil.Time{}, fmt.Errorf("%w: %s %q is not a time of day", payroll.ErrInvalidPolicy, field, s)
	}
	return t, nil
}

func formatClock(t civil.Time) string {
	if t.Second == 0 && t.Nanosecond == 0 {
		return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
	}
	return t.String()
}

func parseRange(rd SpecialRangeDocument) (payroll.SpecialRange, error) {
	start, err := civil.ParseDate(rd.Start)
	if err != nil {
		return payroll.SpecialRange{}, fmt.Errorf("%w: range %q start %q", payroll.ErrInvalidPolicy, rd.Name, rd.Start)
	}
	end, err := civil.ParseDate(rd.End)
	if err != nil {
		return payroll.SpecialRange{}, fmt.Errorf("%w: range %q end %q", payroll.ErrInvalidPolicy, rd.Name, rd.End)
	}
	return payroll.SpecialRange{Name: rd.Name, Start: start, End: end}, nil
}
