package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/payroll-engine/payroll"
)

// StaffDocument is the serialized form of a staff profile. Money fields are
// decimal strings in yen.
type StaffDocument struct {
	ID               string `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	WageType         string `json:"wage_type" yaml:"wage_type"`
	HourlyRate       string `json:"hourly_rate,omitempty" yaml:"hourly_rate,omitempty"`
	MonthlySalary    string `json:"monthly_salary,omitempty" yaml:"monthly_salary,omitempty"`
	DeductMethod     string `json:"deduct_method,omitempty" yaml:"deduct_method,omitempty"`
	Insured          bool   `json:"insured" yaml:"insured"`
	ResidentTax      string `json:"resident_tax,omitempty" yaml:"resident_tax,omitempty"`
	WithholdingTax   string `json:"withholding_tax,omitempty" yaml:"withholding_tax,omitempty"`
	HealthInsurance  string `json:"health_insurance,omitempty" yaml:"health_insurance,omitempty"`
	Pension          string `json:"pension,omitempty" yaml:"pension,omitempty"`
	CommuteAllowance string `json:"commute_allowance,omitempty" yaml:"commute_allowance,omitempty"`
	Retired          bool   `json:"retired" yaml:"retired"`
	RetiredOn        string `json:"retired_on,omitempty" yaml:"retired_on,omitempty"`
}

// StaffRoster is a YAML file listing staff.
type StaffRoster struct {
	Staff []StaffDocument `yaml:"staff"`
}

// StaffFactory converts staff documents to payroll.StaffProfile.
type StaffFactory struct {
	Location *time.Location
}

// NewStaffFactory creates a staff factory that reads dates in loc.
func NewStaffFactory(loc *time.Location) *StaffFactory {
	if loc == nil {
		loc = payroll.DefaultLocation()
	}
	return &StaffFactory{Location: loc}
}

// ParseJSON parses one staff document.
func (f *StaffFactory) ParseJSON(data []byte) (payroll.StaffProfile, error) {
	var doc StaffDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return payroll.StaffProfile{}, fmt.Errorf("invalid staff JSON: %w", err)
	}
	return f.Build(doc)
}

// ParseRosterYAML parses a roster file.
func (f *StaffFactory) ParseRosterYAML(data []byte) ([]payroll.StaffProfile, error) {
	var roster StaffRoster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("invalid roster YAML: %w", err)
	}
	profiles := make([]payroll.StaffProfile, 0, len(roster.Staff))
	for i, doc := range roster.Staff {
		p, err := f.Build(doc)
		if err != nil {
			return nil, fmt.Errorf("staff #%d (%s): %w", i+1, doc.ID, err)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// Build validates a document and returns the profile. An empty deduction
// method means no_deduct.
func (f *StaffFactory) Build(doc StaffDocument) (payroll.StaffProfile, error) {
	if doc.ID == "" {
		return payroll.StaffProfile{}, fmt.Errorf("staff id is required")
	}

	s := payroll.StaffProfile{
		ID:           payroll.StaffID(doc.ID),
		Name:         doc.Name,
		WageType:     payroll.WageType(doc.WageType),
		DeductMethod: payroll.DeductMethod(doc.DeductMethod),
		Insured:      doc.Insured,
	}
	if s.DeductMethod == "" {
		s.DeductMethod = payroll.DeductNone
	}
	if !knownDeductMethod(s.DeductMethod) {
		return payroll.StaffProfile{}, fmt.Errorf("%w: %q", payroll.ErrUnsupportedDeductionMethod, s.DeductMethod)
	}

	var err error
	if s.HourlyRate, err = parseNullYen("hourly_rate", doc.HourlyRate); err != nil {
		return payroll.StaffProfile{}, err
	}
	if s.MonthlySalary, err = parseNullYen("monthly_salary", doc.MonthlySalary); err != nil {
		return payroll.StaffProfile{}, err
	}

	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"resident_tax", doc.ResidentTax, &s.ResidentTax},
		{"withholding_tax", doc.WithholdingTax, &s.WithholdingTax},
		{"health_insurance", doc.HealthInsurance, &s.HealthInsurance},
		{"pension", doc.Pension, &s.Pension},
		{"commute_allowance", doc.CommuteAllowance, &s.CommuteAllowance},
	}
	for _, fld := range fields {
		v, err := parseYen(fld.name, fld.raw)
		if err != nil {
			return payroll.StaffProfile{}, err
		}
		*fld.dst = v
	}

	if doc.Retired {
		on := time.Time{}
		if doc.RetiredOn != "" {
			d, err := civil.ParseDate(doc.RetiredOn)
			if err != nil {
				return payroll.StaffProfile{}, fmt.Errorf("retired_on %q is not YYYY-MM-DD", doc.RetiredOn)
			}
			on = d.In(f.Location)
		}
		s.Retire(on)
	}

	if err := s.Validate(); err != nil {
		return payroll.StaffProfile{}, err
	}
	return s, nil
}

// ToDocument converts a profile to its document form.
func (f *StaffFactory) ToDocument(s payroll.StaffProfile) StaffDocument {
	doc := StaffDocument{
		ID:               string(s.ID),
		Name:             s.Name,
		WageType:         string(s.WageType),
		DeductMethod:     string(s.DeductMethod),
		Insured:          s.Insured,
		ResidentTax:      s.ResidentTax.String(),
		WithholdingTax:   s.WithholdingTax.String(),
		HealthInsurance:  s.HealthInsurance.String(),
		Pension:          s.Pension.String(),
		CommuteAllowance: s.CommuteAllowance.String(),
		Retired:          s.Retired,
	}
	if s.HourlyRate.Valid {
		doc.HourlyRate = s.HourlyRate.Decimal.String()
	}
	if s.MonthlySalary.Valid {
		doc.MonthlySalary = s.MonthlySalary.Decimal.String()
	}
	if s.RetiredOn != nil && !s.RetiredOn.IsZero() {
		doc.RetiredOn = civil.DateOf(s.RetiredOn.In(f.Location)).String()
	}
	return doc
}

func knownDeductMethod(m payroll.DeductMethod) bool {
	for _, known := range payroll.DeductMethods {
		if m == known {
			return true
		}
	}
	return false
}

func parseYen(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s %q is not a number", field, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

func parseNullYen(field, s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseYen(field, s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
