package attendance

import (
	"errors"
	"fmt"
	"time"

	"github.com/warp/payroll-engine/payroll"
)

var (
	// ErrRecentPunch is returned when a punch arrives within the minimum
	// interval of the previous one and is not forced.
	ErrRecentPunch = errors.New("punch too soon after previous punch")

	// ErrNothingToCancel is returned when the staff has no punches.
	ErrNothingToCancel = errors.New("no punch to cancel")

	// ErrStaffRetired is returned when a retired staff member punches.
	ErrStaffRetired = errors.New("staff is retired")

	// ErrInvalidDirection is returned for a direction other than in/out.
	ErrInvalidDirection = errors.New("invalid punch direction")
)

// RecentPunchError carries the previous punch that blocked a new one.
type RecentPunchError struct {
	StaffID  payroll.StaffID
	Previous payroll.PunchEvent
	Elapsed  time.Duration
	Interval time.Duration
}

func (e *RecentPunchError) Error() string {
	return fmt.Sprintf("staff %s punched %s %s ago (minimum interval %s)",
		e.StaffID, e.Previous.Direction, e.Elapsed.Round(time.Second), e.Interval)
}

func (e *RecentPunchError) Unwrap() error {
	return ErrRecentPunch
}
