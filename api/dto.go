/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY AND TIME:
  Money is whole yen (int64). Hours are decimal strings ("8.5") so
  clients never see float rounding. Durations are exposed both as
  minutes and as Go duration strings.

TYPES:
  Staff:    factory.StaffDocument is the wire form
  Policy:   factory.PolicyDocument is the wire form
  Punch:    PunchRequestBody, PunchDTO, PunchResponse, CancelDTO
  Payroll:  RecordDTO, BreakdownDTO, ShiftDTO, BatchDTO, PeriodDTO

SEE ALSO:
  - handlers.go: Uses these types
  - factory/: Staff and policy documents
*/
package api

import (
	"time"

	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// PUNCHES
// =============================================================================

// PunchRequestBody is the body of POST /api/staff/{id}/punches.
type PunchRequestBody struct {
	Direction       string `json:"direction"`
	DeviceTimestamp string `json:"device_timestamp,omitempty"`
	Force           bool   `json:"force,omitempty"`
}

// PunchDTO represents a punch event.
type PunchDTO struct {
	ID              string `json:"id"`
	StaffID         string `json:"staff_id"`
	Direction       string `json:"direction"`
	Timestamp       string `json:"timestamp"`
	DeviceTimestamp string `json:"device_timestamp,omitempty"`
	IdempotencyKey  string `json:"idempotency_key,omitempty"`
}

// PunchResponse wraps a recorded punch. Duplicate is true when the
// idempotency key matched an earlier punch.
type PunchResponse struct {
	Punch     PunchDTO `json:"punch"`
	Duplicate bool     `json:"duplicate"`
}

// CancelRequest is the optional body of the cancel endpoint.
type CancelRequest struct {
	CanceledBy string `json:"canceled_by"`
}

// CancelDTO is one cancel-audit entry.
type CancelDTO struct {
	ID         string `json:"id"`
	StaffID    string `json:"staff_id"`
	PunchID    string `json:"punch_id"`
	Direction  string `json:"direction"`
	PunchedAt  string `json:"punched_at"`
	CanceledBy string `json:"canceled_by"`
	CanceledAt string `json:"canceled_at"`
}

// RetireRequest is the optional body of the retire endpoint.
type RetireRequest struct {
	RetiredOn string `json:"retired_on,omitempty"`
}

// =============================================================================
// PAYROLL
// =============================================================================

// PeriodDTO is a resolved aggregation period.
type PeriodDTO struct {
	YearMonth string `json:"year_month"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Days      int    `json:"days"`
}

// RecordDTO is a stored payroll record.
type RecordDTO struct {
	ID          string `json:"id"`
	StaffID     string `json:"staff_id"`
	YearMonth   string `json:"year_month"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`

	NormalMinutes  int64 `json:"normal_minutes"`
	SpecialMinutes int64 `json:"special_minutes"`
	HolidayMinutes int64 `json:"holiday_minutes"`
	TotalMinutes   int64 `json:"total_minutes"`

	NormalHours  string `json:"normal_hours"`
	SpecialHours string `json:"special_hours"`
	HolidayHours string `json:"holiday_hours"`
	TotalHours   string `json:"total_hours"`
	DaysWorked   int    `json:"days_worked"`

	BasePay          int64 `json:"base_pay"`
	SpecialPay       int64 `json:"special_pay"`
	HolidayPay       int64 `json:"holiday_pay"`
	CommuteAllowance int64 `json:"commute_allowance"`
	GrossPay         int64 `json:"gross_pay"`

	EmploymentInsurance int64 `json:"employment_insurance"`
	HealthInsurance     int64 `json:"health_insurance"`
	Pension             int64 `json:"pension"`
	ResidentTax         int64 `json:"resident_tax"`
	WithholdingTax      int64 `json:"withholding_tax"`
	NetPay              int64 `json:"net_pay"`
}

// ShiftDTO is one paired shift in a preview.
type ShiftDTO struct {
	In       string `json:"in"`
	Out      string `json:"out"`
	Date     string `json:"date"`
	Category string `json:"category"`
	Lunch    string `json:"lunch"`
	Worked   string `json:"worked"`
}

// BreakdownDTO is an unsaved computation with its shifts.
type BreakdownDTO struct {
	Record            RecordDTO  `json:"record"`
	Shifts            []ShiftDTO `json:"shifts"`
	DiscardedCheckIns int        `json:"discarded_check_ins"`
	IgnoredCheckOuts  int        `json:"ignored_check_outs"`
	OpenCheckIn       *PunchDTO  `json:"open_check_in,omitempty"`
}

// FailureDTO is one staff member that failed in a lenient batch.
type FailureDTO struct {
	StaffID string `json:"staff_id"`
	Kind    string `json:"kind"`
	Error   string `json:"error"`
}

// BatchDTO is the result of a batch recompute.
type BatchDTO struct {
	YearMonth string       `json:"year_month"`
	Period    PeriodDTO    `json:"period"`
	Records   []RecordDTO  `json:"records"`
	Failures  []FailureDTO `json:"failures"`
}

// AnomalyDTO is one suspicious shift.
type AnomalyDTO struct {
	StaffID  string `json:"staff_id"`
	Kind     string `json:"kind"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   any    `json:"details,omitempty"`
	Kind      string `json:"kind,omitempty"`
	StaffID   string `json:"staff_id,omitempty"`
	YearMonth string `json:"year_month,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toPunchDTO(ev payroll.PunchEvent) PunchDTO {
	dto := PunchDTO{
		ID:             ev.ID,
		StaffID:        string(ev.StaffID),
		Direction:      string(ev.Direction),
		Timestamp:      ev.Timestamp.Format(time.RFC3339),
		IdempotencyKey: ev.IdempotencyKey,
	}
	if ev.DeviceTimestamp != nil {
		dto.DeviceTimestamp = ev.DeviceTimestamp.Format(time.RFC3339)
	}
	return dto
}

func toCancelDTO(e payroll.CancelEntry) CancelDTO {
	return CancelDTO{
		ID:         e.ID,
		StaffID:    string(e.StaffID),
		PunchID:    e.PunchID,
		Direction:  string(e.Direction),
		PunchedAt:  e.PunchedAt.Format(time.RFC3339),
		CanceledBy: e.CanceledBy,
		CanceledAt: e.CanceledAt.Format(time.RFC3339),
	}
}

func toPeriodDTO(p payroll.Period) PeriodDTO {
	return PeriodDTO{
		YearMonth: p.YearMonth.String(),
		Start:     p.Start.Format(time.RFC3339),
		End:       p.End.Format(time.RFC3339),
		Days:      len(p.Dates()),
	}
}

func toRecordDTO(r payroll.Record) RecordDTO {
	return RecordDTO{
		ID:                  r.ID,
		StaffID:             string(r.StaffID),
		YearMonth:           r.YearMonth,
		PeriodStart:         r.PeriodStart.Format(time.RFC3339),
		PeriodEnd:           r.PeriodEnd.Format(time.RFC3339),
		NormalMinutes:       int64(r.NormalDuration / time.Minute),
		SpecialMinutes:      int64(r.SpecialDuration / time.Minute),
		HolidayMinutes:      int64(r.HolidayDuration / time.Minute),
		TotalMinutes:        int64(r.TotalDuration / time.Minute),
		NormalHours:         r.NormalHours.String(),
		SpecialHours:        r.SpecialHours.String(),
		HolidayHours:        r.HolidayHours.String(),
		TotalHours:          r.TotalHours.String(),
		DaysWorked:          r.DaysWorked,
		BasePay:             r.BasePay,
		SpecialPay:          r.SpecialPay,
		HolidayPay:          r.HolidayPay,
		CommuteAllowance:    r.CommuteAllowance,
		GrossPay:            r.GrossPay,
		EmploymentInsurance: r.EmploymentInsurance,
		HealthInsurance:     r.HealthInsurance,
		Pension:             r.Pension,
		ResidentTax:         r.ResidentTax,
		WithholdingTax:      r.WithholdingTax,
		NetPay:              r.NetPay,
	}
}

func toRecordDTOs(records []payroll.Record) []RecordDTO {
	dtos := make([]RecordDTO, len(records))
	for i, r := range records {
		dtos[i] = toRecordDTO(r)
	}
	return dtos
}

func toBreakdownDTO(b payroll.Breakdown) BreakdownDTO {
	dto := BreakdownDTO{
		Record:            toRecordDTO(payroll.RecordFromBreakdown(b)),
		Shifts:            make([]ShiftDTO, len(b.Aggregation.Shifts)),
		DiscardedCheckIns: b.Aggregation.DiscardedCheckIns,
		IgnoredCheckOuts:  b.Aggregation.IgnoredCheckOuts,
	}
	for i, s := range b.Aggregation.Shifts {
		dto.Shifts[i] = ShiftDTO{
			In:       s.In.Format(time.RFC3339),
			Out:      s.Out.Format(time.RFC3339),
			Date:     s.Date.String(),
			Category: string(s.Category),
			Lunch:    s.Lunch.String(),
			Worked:   s.Worked.String(),
		}
	}
	if b.Aggregation.OpenCheckIn != nil {
		open := toPunchDTO(*b.Aggregation.OpenCheckIn)
		dto.OpenCheckIn = &open
	}
	return dto
}

func toBatchDTO(rep payroll.BatchReport) BatchDTO {
	dto := BatchDTO{
		YearMonth: rep.YearMonth,
		Period:    toPeriodDTO(rep.Period),
		Records:   toRecordDTOs(rep.Records),
		Failures:  make([]FailureDTO, 0, len(rep.Failures)),
	}
	for _, f := range rep.Failures {
		dto.Failures = append(dto.Failures, FailureDTO{
			StaffID: string(f.StaffID),
			Kind:    errorKind(f),
			Error:   f.Err.Error(),
		})
	}
	return dto
}

func toAnomalyDTO(a attendance.Anomaly) AnomalyDTO {
	dto := AnomalyDTO{
		StaffID: string(a.StaffID),
		Kind:    string(a.Kind),
		CheckIn: a.CheckIn.Format(time.RFC3339),
	}
	if a.CheckOut != nil {
		dto.CheckOut = a.CheckOut.Format(time.RFC3339)
		dto.Duration = a.Duration.String()
	}
	return dto
}

// RecordDTOs converts records for callers outside the HTTP layer.
func RecordDTOs(records []payroll.Record) []RecordDTO {
	return toRecordDTOs(records)
}

// BatchDTOFrom converts a batch report for callers outside the HTTP layer.
func BatchDTOFrom(rep payroll.BatchReport) BatchDTO {
	return toBatchDTO(rep)
}

// AnomalyDTOs converts anomalies for callers outside the HTTP layer.
func AnomalyDTOs(anomalies []attendance.Anomaly) []AnomalyDTO {
	out := make([]AnomalyDTO, len(anomalies))
	for i, a := range anomalies {
		out[i] = toAnomalyDTO(a)
	}
	return out
}
