/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify with errors.Is / errors.As; storage adapters wrap
  their driver errors around the sentinels defined here.

ERROR CATEGORIES:
  1. Input errors     - Malformed period identifiers, unknown codes
  2. Integrity errors - Staff data that cannot produce a payroll
  3. Store errors     - Missing rows, duplicate idempotency keys

SEE ALSO:
  - service.go: Wraps failures in StaffError for batch reporting
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package payroll

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriodIdentifier is returned when a year-month is not exactly
	// six digits YYYYMM with a month in 1..12.
	ErrInvalidPeriodIdentifier = errors.New("invalid period identifier")

	// ErrUnsupportedDeductionMethod is returned for an unknown salary
	// deduction code.
	ErrUnsupportedDeductionMethod = errors.New("unsupported deduction method")

	// ErrMissingWageConfiguration is returned when an hourly employee has no
	// rate or a salaried employee has no salary.
	ErrMissingWageConfiguration = errors.New("missing wage configuration")

	// ErrStaffNotFound is returned when a staff ID has no profile.
	ErrStaffNotFound = errors.New("staff not found")

	// ErrRecordNotFound is returned when no payroll record exists for a
	// staff and year-month.
	ErrRecordNotFound = errors.New("payroll record not found")

	// ErrDuplicateIdempotencyKey is returned by stores when a punch with the
	// same idempotency key already exists for the staff.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInvalidPolicy is returned when a policy snapshot fails validation.
	ErrInvalidPolicy = errors.New("invalid policy")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StaffError names the staff and period a computation failed for.
type StaffError struct {
	StaffID   StaffID
	YearMonth string
	Err       error
}

func (e *StaffError) Error() string {
	return fmt.Sprintf("payroll %s for staff %s: %v", e.YearMonth, e.StaffID, e.Err)
}

func (e *StaffError) Unwrap() error {
	return e.Err
}

// WageConfigError reports a wage field that is missing, or set when the
// wage type does not use it.
type WageConfigError struct {
	StaffID    StaffID
	WageType   WageType
	Field      string
	Unexpected bool
}

func (e *WageConfigError) Error() string {
	if e.Unexpected {
		return fmt.Sprintf("invalid wage configuration: staff %s (%s) must not set %s",
			e.StaffID, e.WageType, e.Field)
	}
	return fmt.Sprintf("missing wage configuration: staff %s (%s) has no %s",
		e.StaffID, e.WageType, e.Field)
}

func (e *WageConfigError) Unwrap() error {
	return ErrMissingWageConfiguration
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriodIdentifier) ||
		errors.Is(err, ErrInvalidPolicy)
}

// IsDataIntegrity returns true if stored staff data cannot produce a payroll.
func IsDataIntegrity(err error) bool {
	return errors.Is(err, ErrMissingWageConfiguration) ||
		errors.Is(err, ErrUnsupportedDeductionMethod)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStaffNotFound) ||
		errors.Is(err, ErrRecordNotFound)
}
