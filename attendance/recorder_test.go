package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var jst = time.FixedZone("JST", 9*60*60)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
func (c *fakeClock) Set(t time.Time)         { c.now = t }

func newTestRecorder(t *testing.T) (*attendance.Recorder, *store.TxMemory, *fakeClock) {
	t.Helper()
	st := store.NewTxMemory()
	require.NoError(t, st.SaveStaff(context.Background(), payroll.StaffProfile{
		ID:         "alice",
		WageType:   payroll.WageHourly,
		HourlyRate: decimal.NewNullDecimal(decimal.NewFromInt(1200)),
	}))

	clock := &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, jst)}
	rec := attendance.NewRecorder(st, st)
	rec.Now = clock.Now
	return rec, st, clock
}

// =============================================================================
// PUNCH
// =============================================================================

func TestRecorder_Punch_UsesServerClock(t *testing.T) {
	rec, _, clock := newTestRecorder(t)
	device := clock.now.Add(-3 * time.Minute)

	res, err := rec.Punch(context.Background(), attendance.PunchRequest{
		StaffID:         "alice",
		Direction:       payroll.DirectionIn,
		DeviceTimestamp: &device,
	})
	require.NoError(t, err)

	assert.False(t, res.Duplicate)
	assert.NotEmpty(t, res.Event.ID)
	assert.Equal(t, clock.now, res.Event.Timestamp)
	assert.Equal(t, device, *res.Event.DeviceTimestamp)
}

func TestRecorder_Punch_DuplicateKeyReturnsExisting(t *testing.T) {
	// GIVEN: A punch with key "k1" was recorded
	// WHEN: The same key is submitted again, later
	// THEN: The original event is returned and only one event exists

	rec, st, clock := newTestRecorder(t)
	ctx := context.Background()

	first, err := rec.Punch(ctx, attendance.PunchRequest{StaffID: "alice", Direction: payroll.DirectionIn, IdempotencyKey: "k1"})
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	second, err := rec.Punch(ctx, attendance.PunchRequest{StaffID: "alice", Direction: payroll.DirectionIn, IdempotencyKey: "k1"})
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Event.ID, second.Event.ID)

	events, err := st.FetchPunches(ctx, "alice", clock.now.Add(-time.Hour), clock.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRecorder_Punch_RecentPunchGuard(t *testing.T) {
	rec, _, clock := newTestRecorder(t)
	ctx := context.Background()

	_, err := rec.Punch(ctx, attendance.PunchRequest{StaffID: "alice", Direction: payroll.DirectionIn})
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	_, err = rec.Punch(ctx, attendance.PunchRequest{StaffID: "alice", Direction: payroll.DirectionOut})
	assert.ErrorIs(t, err, attendance.ErrRecentPunch)
	var rErr *attendance.RecentPunchError
	require.ErrorAs(t, err, &rErr)
	assert.Equal(t, payroll.DirectionIn, rErr.Previous.Direction)

	// Forced punches bypass the guard
	_, err = rec.Punch(ctx, attendance.PunchRequest{StaffID: "alice", Direction: payroll.DirectionOut, Force: true})
	assert.NoError(t, err)

	clock.Advance(61 * time.Second)
	_, err = rec.Punch(ctx, attendance.PunchRequest{StaffID: "alice", Direction: payroll.DirectionIn})
	assert.NoError(t, err)
}

func TestRecorder_Punch_RejectsRetiredStaff(t *testing.T) {
	rec, st, clock := newTestRecorder(t)
	ctx := context.Background()

	staff, err := st.GetStaff(ctx, "alice")
	require.NoError(t, err)
	staff.Retire(clock.now)
	require.NoError(t, st.SaveStaff(ctx, staff))

	_, err = rec.Punch(ctx, attendance.PunchRequest{StaffID: "alice", Direction: payroll.DirectionIn})
	assert.ErrorIs(t, err, attendance.ErrStaffRetired)

	staff.Rehire()
	require.NoError(t, st.SaveStaff(ctx, staff))
	_, err = rec.Punch(ctx, attendance.PunchRequest{StaffID: "alice", Direction: payroll.DirectionIn})
	assert.NoError(t, err)
}

func TestRecorder_Punch_Validation(t *testing.T) {
	rec, _, _ := newTestRecorder(t)
	ctx := context.Background()

	_, err := rec.Punch(ctx, attendance.PunchRequest{StaffID: "alice", Direction: "sideways"})
	assert.ErrorIs(t, err, attendance.ErrInvalidDirection)

	_, err = rec.Punch(ctx, attendance.PunchRequest{StaffID: "nobody", Direction: payroll.DirectionIn})
	assert.ErrorIs(t, err, payroll.ErrStaffNotFound)
}

// =============================================================================
// CANCEL
// =============================================================================

func TestRecorder_CancelLast_WritesAudit(t *testing.T) {
	// GIVEN: in at 09:00, out at 18:00
	// WHEN: A manager cancels the last punch
	// THEN: The out punch is gone and an audit entry names it

	rec, st, clock := newTestRecorder(t)
	ctx := context.Background()

	_, err := rec.Punch(ctx, attendance.PunchRequest{StaffID: "alice", Direction: payroll.DirectionIn})
	require.NoError(t, err)
	clock.Set(time.Date(2025, 3, 10, 18, 0, 0, 0, jst))
	outRes, err := rec.Punch(ctx, attendance.PunchRequest{StaffID: "alice", Direction: payroll.DirectionOut, IdempotencyKey: "k-out"})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	entry, err := rec.CancelLast(ctx, "alice", "manager-1")
	require.NoError(t, err)

	assert.Equal(t, outRes.Event.ID, entry.PunchID)
	assert.Equal(t, payroll.DirectionOut, entry.Direction)
	assert.Equal(t, "manager-1", entry.CanceledBy)
	assert.Equal(t, clock.now, entry.CanceledAt)

	last, found, err := st.LastPunch(ctx, "alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, payroll.DirectionIn, last.Direction)

	audit, err := rec.Cancellations(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, audit, 1)

	// The key is free again once its punch is canceled
	again, err := rec.Punch(ctx, attendance.PunchRequest{StaffID: "alice", Direction: payroll.DirectionOut, IdempotencyKey: "k-out"})
	require.NoError(t, err)
	assert.False(t, again.Duplicate)
}

func TestRecorder_CancelLast_RetryWithSameKeyRecordsNewPunch(t *testing.T) {
	// GIVEN: A check-in sent with key k-in, then canceled
	// WHEN: The terminal retries the same request with k-in
	// THEN: A new punch is recorded; a further retry is a duplicate of it

	rec, st, clock := newTestRecorder(t)
	ctx := context.Background()
	req := attendance.PunchRequest{StaffID: "alice", Direction: payroll.DirectionIn, IdempotencyKey: "k-in"}

	first, err := rec.Punch(ctx, req)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = rec.CancelLast(ctx, "alice", "manager-1")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	retry, err := rec.Punch(ctx, req)
	require.NoError(t, err)
	assert.False(t, retry.Duplicate)
	assert.NotEqual(t, first.Event.ID, retry.Event.ID)
	assert.True(t, retry.Event.Timestamp.Equal(clock.now))

	clock.Advance(2 * time.Minute)
	dup, err := rec.Punch(ctx, req)
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
	assert.Equal(t, retry.Event.ID, dup.Event.ID)

	events, err := st.FetchPunches(ctx, "alice", clock.now.Add(-time.Hour), clock.now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, retry.Event.ID, events[0].ID)

	audit, err := rec.Cancellations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, first.Event.ID, audit[0].PunchID)
}

func TestRecorder_CancelLast_Empty(t *testing.T) {
	rec, _, _ := newTestRecorder(t)
	_, err := rec.CancelLast(context.Background(), "alice", "manager-1")
	assert.ErrorIs(t, err, attendance.ErrNothingToCancel)
}

// =============================================================================
// ANOMALIES
// =============================================================================

func punch(staff payroll.StaffID, dir payroll.Direction, day, hour int) payroll.PunchEvent {
	return payroll.PunchEvent{
		ID:        string(staff) + string(dir) + time.Date(2025, 3, day, hour, 0, 0, 0, jst).Format(time.RFC3339),
		StaffID:   staff,
		Direction: dir,
		Timestamp: time.Date(2025, 3, day, hour, 0, 0, 0, jst),
	}
}

func TestCheckShifts(t *testing.T) {
	events := []payroll.PunchEvent{
		punch("alice", payroll.DirectionIn, 10, 6),
		punch("alice", payroll.DirectionOut, 10, 20), // 14h
		punch("bob", payroll.DirectionIn, 10, 9),
		punch("bob", payroll.DirectionIn, 10, 10), // first one never closed
		punch("bob", payroll.DirectionOut, 10, 17),
		punch("carol", payroll.DirectionIn, 10, 9), // trailing
	}

	anomalies := attendance.CheckShifts(events, attendance.DefaultMaxShift)

	require.Len(t, anomalies, 3)
	assert.Equal(t, attendance.AnomalyLongShift, anomalies[0].Kind)
	assert.Equal(t, 14*time.Hour, anomalies[0].Duration)
	assert.Equal(t, payroll.StaffID("bob"), anomalies[1].StaffID)
	assert.Equal(t, attendance.AnomalyMissingCheckOut, anomalies[1].Kind)
	assert.Equal(t, payroll.StaffID("carol"), anomalies[2].StaffID)
}

func TestChecker_CheckDay_MatchesOvernightCheckOut(t *testing.T) {
	st := store.NewTxMemory()
	ctx := context.Background()
	for _, ev := range []payroll.PunchEvent{
		punch("alice", payroll.DirectionIn, 10, 22),
		punch("alice", payroll.DirectionOut, 11, 6),
		punch("bob", payroll.DirectionIn, 10, 8),
		punch("bob", payroll.DirectionIn, 11, 8), // next day, out of scope
	} {
		require.NoError(t, st.AppendPunch(ctx, ev))
	}

	anomalies, err := attendance.NewChecker(st).CheckDay(ctx, civil.Date{Year: 2025, Month: 3, Day: 10}, jst)
	require.NoError(t, err)

	require.Len(t, anomalies, 1)
	assert.Equal(t, payroll.StaffID("bob"), anomalies[0].StaffID)
	assert.Equal(t, attendance.AnomalyMissingCheckOut, anomalies[0].Kind)
}
