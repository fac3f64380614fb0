/*
recorder.go - Punch recording with idempotency and cancel audit

PURPOSE:
  The write side of the punch store. Every check-in and check-out goes
  through Recorder so the rules below hold no matter which client
  (terminal, HTTP, CLI) produced the punch.

RULES:
  1. Idempotency: a punch carrying a key already seen for that staff
     returns the existing event and writes nothing.
  2. Server time: Timestamp comes from the recorder's clock. The client
     clock is kept in DeviceTimestamp for reference only.
  3. Double-punch guard: a punch within MinInterval of the previous one
     is rejected with RecentPunchError unless the request is forced.
  4. Retired staff cannot punch.
  5. CancelLast removes the newest punch and appends a CancelEntry in
     the same store call. Cancel entries are never removed.

EXAMPLE:
  rec := attendance.NewRecorder(store, store)
  res, err := rec.Punch(ctx, attendance.PunchRequest{
      StaffID: "s1", Direction: payroll.DirectionIn, IdempotencyKey: key,
  })
  if res.Duplicate {
      // retried request, nothing new was written
  }

SEE ALSO:
  - payroll/store.go: PunchStore contract
  - anomaly.go: Daily shift checks
*/
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/payroll-engine/payroll"
)

// DefaultMinInterval is the double-punch guard window.
const DefaultMinInterval = 60 * time.Second

// PunchRequest is one incoming punch.
type PunchRequest struct {
	StaffID         payroll.StaffID
	Direction       payroll.Direction
	IdempotencyKey  string
	DeviceTimestamp *time.Time

	// Force skips the double-punch guard.
	Force bool
}

// PunchResult is the stored event and whether it already existed.
type PunchResult struct {
	Event     payroll.PunchEvent
	Duplicate bool
}

// Recorder writes punches.
type Recorder struct {
	punches payroll.PunchStore
	staff   payroll.StaffStore

	// Now is the server clock.
	Now func() time.Time
	// MinInterval is the double-punch guard. Zero disables it.
	MinInterval time.Duration
}

// NewRecorder creates a recorder with the default guard and clock.
func NewRecorder(punches payroll.PunchStore, staff payroll.StaffStore) *Recorder {
	return &Recorder{
		punches:     punches,
		staff:       staff,
		Now:         time.Now,
		MinInterval: DefaultMinInterval,
	}
}

// Punch records a check-in or check-out.
func (r *Recorder) Punch(ctx context.Context, req PunchRequest) (PunchResult, error) {
	if !req.Direction.Valid() {
		return PunchResult{}, fmt.Errorf("%w: %q", ErrInvalidDirection, req.Direction)
	}

	staff, err := r.staff.GetStaff(ctx, req.StaffID)
	if err != nil {
		return PunchResult{}, err
	}
	if staff.Retired {
		return PunchResult{}, fmt.Errorf("%w: %s", ErrStaffRetired, staff.ID)
	}

	if req.IdempotencyKey != "" {
		existing, found, err := r.punches.FindPunchByKey(ctx, req.StaffID, req.IdempotencyKey)
		if err != nil {
			return PunchResult{}, fmt.Errorf("lookup idempotency key: %w", err)
		}
		if found {
			return PunchResult{Event: existing, Duplicate: true}, nil
		}
	}

	now := r.Now()
	if r.MinInterval > 0 && !req.Force {
		last, found, err := r.punches.LastPunch(ctx, req.StaffID)
		if err != nil {
			return PunchResult{}, fmt.Errorf("load last punch: %w", err)
		}
		if found {
			if elapsed := now.Sub(last.Timestamp); elapsed >= 0 && elapsed < r.MinInterval {
				return PunchResult{}, &RecentPunchError{
					StaffID:  req.StaffID,
					Previous: last,
					Elapsed:  elapsed,
					Interval: r.MinInterval,
				}
			}
		}
	}

	ev := payroll.PunchEvent{
		ID:              uuid.NewString(),
		StaffID:         req.StaffID,
		Direction:       req.Direction,
		Timestamp:       now,
		DeviceTimestamp: req.DeviceTimestamp,
		IdempotencyKey:  req.IdempotencyKey,
	}
	if err := r.punches.AppendPunch(ctx, ev); err != nil {
		if errors.Is(err, payroll.ErrDuplicateIdempotencyKey) {
			// Lost a race with a concurrent retry; return the winner.
			existing, found, lookupErr := r.punches.FindPunchByKey(ctx, req.StaffID, req.IdempotencyKey)
			if lookupErr == nil && found {
				return PunchResult{Event: existing, Duplicate: true}, nil
			}
		}
		return PunchResult{}, fmt.Errorf("append punch: %w", err)
	}
	return PunchResult{Event: ev}, nil
}

// CancelLast removes the staff member's newest punch and records who did it.
func (r *Recorder) CancelLast(ctx context.Context, staffID payroll.StaffID, actor string) (payroll.CancelEntry, error) {
	last, found, err := r.punches.LastPunch(ctx, staffID)
	if err != nil {
		return payroll.CancelEntry{}, fmt.Errorf("load last punch: %w", err)
	}
	if !found {
		return payroll.CancelEntry{}, fmt.Errorf("%w: staff %s", ErrNothingToCancel, staffID)
	}

	entry := payroll.CancelEntry{
		ID:         uuid.NewString(),
		StaffID:    staffID,
		PunchID:    last.ID,
		Direction:  last.Direction,
		PunchedAt:  last.Timestamp,
		CanceledBy: actor,
		CanceledAt: r.Now(),
	}
	if err := r.punches.CancelPunch(ctx, entry); err != nil {
		return payroll.CancelEntry{}, fmt.Errorf("cancel punch: %w", err)
	}
	return entry, nil
}

// Cancellations returns the audit trail for staff.
func (r *Recorder) Cancellations(ctx context.Context, staffID payroll.StaffID) ([]payroll.CancelEntry, error) {
	return r.punches.ListCancels(ctx, staffID)
}

// History returns punches for staff in [from, to).
func (r *Recorder) History(ctx context.Context, staffID payroll.StaffID, from, to time.Time) ([]payroll.PunchEvent, error) {
	return r.punches.FetchPunches(ctx, staffID, from, to)
}
