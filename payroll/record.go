package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is the persisted payroll result, unique per (StaffID, YearMonth).
// Recomputing overwrites every derived field and keeps ID.
type Record struct {
	ID        string
	StaffID   StaffID
	YearMonth string

	PeriodStart time.Time
	PeriodEnd   time.Time

	NormalDuration  time.Duration
	SpecialDuration time.Duration
	HolidayDuration time.Duration
	TotalDuration   time.Duration

	NormalHours  decimal.Decimal
	SpecialHours decimal.Decimal
	HolidayHours decimal.Decimal
	TotalHours   decimal.Decimal

	DaysWorked int

	BasePay          int64
	SpecialPay       int64
	HolidayPay       int64
	CommuteAllowance int64
	GrossPay         int64

	EmploymentInsurance int64
	HealthInsurance     int64
	Pension             int64
	ResidentTax         int64
	WithholdingTax      int64

	NetPay int64
}

// RecordFromBreakdown flattens a breakdown. ID is left for the store.
func RecordFromBreakdown(b Breakdown) Record {
	return Record{
		StaffID:             b.StaffID,
		YearMonth:           b.Period.YearMonth.String(),
		PeriodStart:         b.Period.Start,
		PeriodEnd:           b.Period.End,
		NormalDuration:      b.Aggregation.Normal,
		SpecialDuration:     b.Aggregation.Special,
		HolidayDuration:     b.Aggregation.Holiday,
		TotalDuration:       b.Aggregation.Total(),
		NormalHours:         b.Hours.Normal,
		SpecialHours:        b.Hours.Special,
		HolidayHours:        b.Hours.Holiday,
		TotalHours:          b.Hours.Total,
		DaysWorked:          b.Aggregation.DaysWorked,
		BasePay:             b.BasePay,
		SpecialPay:          b.SpecialPay,
		HolidayPay:          b.HolidayPay,
		CommuteAllowance:    b.CommuteAllowance,
		GrossPay:            b.GrossPay,
		EmploymentInsurance: b.Deductions.EmploymentInsurance,
		HealthInsurance:     b.Deductions.HealthInsurance,
		Pension:             b.Deductions.Pension,
		ResidentTax:         b.Deductions.ResidentTax,
		WithholdingTax:      b.Deductions.WithholdingTax,
		NetPay:              b.NetPay,
	}
}

// Deductions returns the withheld amounts as a Deductions value.
func (r Record) Deductions() Deductions {
	return Deductions{
		EmploymentInsurance: r.EmploymentInsurance,
		HealthInsurance:     r.HealthInsurance,
		Pension:             r.Pension,
		ResidentTax:         r.ResidentTax,
		WithholdingTax:      r.WithholdingTax,
	}
}
